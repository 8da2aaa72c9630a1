package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/livekit/protocol/logger"
)

type Config struct {
	Room     string   `yaml:"room"`
	Identity string   `yaml:"identity"`
	Peers    []string `yaml:"peers"`
	// Rounds is the number of speaker snapshots the scripted peers go through.
	Rounds      int           `yaml:"rounds"`
	Interval    time.Duration `yaml:"interval"`
	ScreenShare bool          `yaml:"screen_share"`
	FlipCamera  bool          `yaml:"flip_camera"`
	Logging     logger.Config `yaml:"logging"`
}

var DefaultConfig = Config{
	Room:        "demo",
	Identity:    "me",
	Peers:       []string{"alice", "bob"},
	Rounds:      4,
	Interval:    500 * time.Millisecond,
	ScreenShare: true,
	FlipCamera:  true,
	Logging: logger.Config{
		Level: "info",
	},
}

// NewConfig starts from DefaultConfig, applies the yaml document if any, then the
// flags that were set on the command line.
func NewConfig(confString string, c *cli.Context) (*Config, error) {
	marshalled, err := yaml.Marshal(&DefaultConfig)
	if err != nil {
		return nil, err
	}
	var conf Config
	if err = yaml.Unmarshal(marshalled, &conf); err != nil {
		return nil, err
	}

	if confString != "" {
		decoder := yaml.NewDecoder(strings.NewReader(confString))
		decoder.KnownFields(true)
		if err := decoder.Decode(&conf); err != nil {
			return nil, fmt.Errorf("could not parse config: %v", err)
		}
	}

	if c != nil {
		if c.IsSet("room") {
			conf.Room = c.String("room")
		}
		if c.IsSet("identity") {
			conf.Identity = c.String("identity")
		}
		if c.IsSet("peers") {
			conf.Peers = c.StringSlice("peers")
		}
		if c.IsSet("rounds") {
			conf.Rounds = c.Int("rounds")
		}
		if c.IsSet("log-level") {
			conf.Logging.Level = c.String("log-level")
		}
	}

	if conf.Room == "" || conf.Identity == "" {
		return nil, fmt.Errorf("room and identity are required")
	}
	for _, p := range conf.Peers {
		if p == conf.Identity {
			return nil, fmt.Errorf("peer %q uses the local identity", p)
		}
	}
	if conf.Interval <= 0 {
		conf.Interval = DefaultConfig.Interval
	}
	return &conf, nil
}

func readConfigFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
