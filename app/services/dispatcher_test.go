package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsEnqueuedTasks(t *testing.T) {
	d := NewTaskDispatcher(64, 4)

	var executed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		ok := d.Enqueue(func(context.Context) {
			defer wg.Done()
			executed.Add(1)
		})
		require.True(t, ok)
	}
	wg.Wait()

	assert.Equal(t, int64(20), executed.Load())
	d.Stop(context.Background())
}

func TestDispatcherStopDrainsQueue(t *testing.T) {
	d := NewTaskDispatcher(64, 1)

	var executed atomic.Int64
	for i := 0; i < 10; i++ {
		d.Enqueue(func(context.Context) {
			time.Sleep(time.Millisecond)
			executed.Add(1)
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.Stop(ctx)

	assert.Equal(t, int64(10), executed.Load())
}

func TestDispatcherRejectsAfterStop(t *testing.T) {
	d := NewTaskDispatcher(64, 2)
	d.Stop(context.Background())

	ok := d.Enqueue(func(context.Context) {
		t.Error("task ran after stop")
	})
	assert.False(t, ok)
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	d := NewTaskDispatcher(1, 1)

	release := make(chan struct{})
	started := make(chan struct{})
	d.Enqueue(func(context.Context) {
		close(started)
		<-release
	})
	<-started

	// The worker is blocked, so the buffer fills after one more task
	require.True(t, d.Enqueue(func(context.Context) {}))
	assert.False(t, d.Enqueue(func(context.Context) {}))

	close(release)
	d.Stop(context.Background())
}

func TestDispatcherSurvivesPanickingTask(t *testing.T) {
	d := NewTaskDispatcher(64, 1)

	d.Enqueue(func(context.Context) {
		panic("boom")
	})

	done := make(chan struct{})
	d.Enqueue(func(context.Context) {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
	d.Stop(context.Background())
}

func TestDispatcherEnqueueRacingStopNeverPanics(t *testing.T) {
	for i := 0; i < 200; i++ {
		d := NewTaskDispatcher(4, 2)

		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					d.Enqueue(func(context.Context) {})
				}
			}()
		}
		d.Stop(context.Background())
		wg.Wait()

		// Enqueue after a completed Stop stays a clean rejection
		assert.False(t, d.Enqueue(func(context.Context) {}))
	}
}

func TestSynchronousDispatcherRunsInline(t *testing.T) {
	d := NewSynchronousDispatcher()

	var executed bool
	ok := d.Enqueue(func(context.Context) {
		executed = true
	})
	assert.True(t, ok)
	assert.True(t, executed)
}
