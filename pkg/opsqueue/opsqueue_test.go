package opsqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/livekit/protocol/logger"
)

func TestOpsQueueOrdering(t *testing.T) {
	oq := NewOpsQueue(logger.GetLogger(), "test")
	oq.Start()

	var mu sync.Mutex
	var seen []int
	for i := 0; i < 100; i++ {
		i := i
		oq.Enqueue(func() {
			mu.Lock()
			seen = append(seen, i)
			mu.Unlock()
		})
	}

	select {
	case <-oq.Stop():
	case <-time.After(5 * time.Second):
		t.Fatal("queue did not drain")
	}

	require.Len(t, seen, 100)
	for i, v := range seen {
		require.Equal(t, i, v)
	}
}

func TestOpsQueueStop(t *testing.T) {
	t.Run("enqueue after stop is dropped", func(t *testing.T) {
		oq := NewOpsQueue(logger.GetLogger(), "test")
		oq.Start()
		<-oq.Stop()

		ran := false
		oq.Enqueue(func() { ran = true })
		require.Equal(t, 0, oq.Len())
		require.False(t, ran)
	})

	t.Run("ops enqueued concurrently with stop run or are dropped", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			oq := NewOpsQueue(logger.GetLogger(), "test")
			oq.Start()

			var mu sync.Mutex
			ran := 0
			var wg sync.WaitGroup
			for j := 0; j < 4; j++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for k := 0; k < 25; k++ {
						oq.Enqueue(func() {
							mu.Lock()
							ran++
							mu.Unlock()
						})
					}
				}()
			}
			done := oq.Stop()
			wg.Wait()

			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("queue did not drain")
			}
			require.Zero(t, oq.Len(), "ops left behind after stop")

			mu.Lock()
			require.LessOrEqual(t, ran, 100)
			mu.Unlock()
		}
	})

	t.Run("stop before start completes", func(t *testing.T) {
		oq := NewOpsQueue(logger.GetLogger(), "test")
		select {
		case <-oq.Stop():
		case <-time.After(time.Second):
			t.Fatal("stop blocked")
		}
	})

	t.Run("panicking op does not stop the queue", func(t *testing.T) {
		oq := NewOpsQueue(logger.GetLogger(), "test")
		oq.Start()

		done := make(chan struct{})
		oq.Enqueue(func() { panic("boom") })
		oq.Enqueue(func() { close(done) })

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("op after panic did not run")
		}
		<-oq.Stop()
	})
}
