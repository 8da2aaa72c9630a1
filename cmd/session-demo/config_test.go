package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		conf, err := NewConfig("", nil)
		require.NoError(t, err)
		require.Equal(t, "demo", conf.Room)
		require.Equal(t, []string{"alice", "bob"}, conf.Peers)
		require.Equal(t, 500*time.Millisecond, conf.Interval)
	})

	t.Run("yaml overrides", func(t *testing.T) {
		conf, err := NewConfig(`
room: standup
peers: [carol]
interval: 1s
logging:
  level: debug
`, nil)
		require.NoError(t, err)
		require.Equal(t, "standup", conf.Room)
		require.Equal(t, "me", conf.Identity)
		require.Equal(t, []string{"carol"}, conf.Peers)
		require.Equal(t, time.Second, conf.Interval)
		require.Equal(t, "debug", conf.Logging.Level)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := NewConfig("rooms: typo\n", nil)
		require.Error(t, err)
	})

	t.Run("peer cannot reuse local identity", func(t *testing.T) {
		_, err := NewConfig("identity: alice\n", nil)
		require.Error(t, err)
	})
}
