package commandqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandQueue_BasicEnqueue(t *testing.T) {
	cq := New()
	defer cq.Close()

	result, err := cq.Enqueue(context.Background(), "test", func(ctx context.Context) (interface{}, error) {
		return "result", nil
	}, nil)

	assert.NoError(t, err)
	assert.Equal(t, "result", result)
}

func TestCommandQueue_TaskError(t *testing.T) {
	cq := New()
	defer cq.Close()

	expectedErr := errors.New("task failed")
	result, err := cq.Enqueue(context.Background(), "test", func(ctx context.Context) (interface{}, error) {
		return nil, expectedErr
	}, nil)

	assert.Equal(t, expectedErr, err)
	assert.Nil(t, result)
}

func TestCommandQueue_TaskPanic(t *testing.T) {
	cq := New()
	defer cq.Close()

	_, err := cq.Enqueue(context.Background(), MainLane, func(ctx context.Context) (interface{}, error) {
		panic("boom")
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task panicked: boom")

	// The lane keeps working after a panic.
	v, err := cq.Enqueue(context.Background(), MainLane, func(ctx context.Context) (interface{}, error) {
		return 1, nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestCommandQueue_SerialDispatchLane(t *testing.T) {
	cq := New()
	defer cq.Close()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cq.Enqueue(context.Background(), DispatchLane, func(ctx context.Context) (interface{}, error) {
				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil, nil
			}, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
}

func TestCommandQueue_FIFO(t *testing.T) {
	cq := New()
	defer cq.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = cq.Enqueue(context.Background(), "fifo", func(ctx context.Context) (interface{}, error) {
			close(started)
			<-release
			return nil, nil
		}, nil)
	}()
	<-started

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = cq.Enqueue(context.Background(), "fifo", func(ctx context.Context) (interface{}, error) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil, nil
			}, nil)
		}(i)
		require.Eventually(t, func() bool { return cq.QueueSize("fifo") == i+1 }, time.Second, time.Millisecond)
	}

	close(release)
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestCommandQueue_DifferentLanesRunConcurrently(t *testing.T) {
	cq := New()
	defer cq.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = cq.Enqueue(context.Background(), "a", func(ctx context.Context) (interface{}, error) {
			close(started)
			<-release
			return nil, nil
		}, nil)
	}()
	<-started
	defer close(release)

	v, err := cq.Enqueue(context.Background(), "b", func(ctx context.Context) (interface{}, error) {
		return "b", nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestCommandQueue_QueuedCallerHonorsContext(t *testing.T) {
	cq := New()
	defer cq.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = cq.Enqueue(context.Background(), DispatchLane, func(ctx context.Context) (interface{}, error) {
			close(started)
			<-release
			return nil, nil
		}, nil)
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var ran atomic.Bool
	_, err := cq.Enqueue(ctx, DispatchLane, func(ctx context.Context) (interface{}, error) {
		ran.Store(true)
		return nil, nil
	}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, cq.QueueSize(DispatchLane))

	close(release)
	require.Eventually(t, func() bool { return cq.RunningCount(DispatchLane) == 0 }, time.Second, time.Millisecond)
	assert.False(t, ran.Load())
}

func TestCommandQueue_RunningTaskSeesCancellation(t *testing.T) {
	cq := New()
	defer cq.Close()

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := cq.Enqueue(ctx, MainLane, func(ctx context.Context) (interface{}, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}, nil)
		done <- err
	}()

	<-started
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestCommandQueue_WarnAfter(t *testing.T) {
	cq := New()
	defer cq.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = cq.Enqueue(context.Background(), "slow", func(ctx context.Context) (interface{}, error) {
			close(started)
			<-release
			return nil, nil
		}, nil)
	}()
	<-started

	waited := make(chan int, 1)
	go func() {
		_, _ = cq.Enqueue(context.Background(), "slow", func(ctx context.Context) (interface{}, error) {
			return nil, nil
		}, &TaskOptions{
			WarnAfter: 10 * time.Millisecond,
			OnWait:    func(wait time.Duration, pos int) { waited <- pos },
		})
	}()

	select {
	case pos := <-waited:
		assert.Equal(t, 0, pos)
	case <-time.After(time.Second):
		t.Fatal("OnWait not called")
	}
	close(release)
}

func TestCommandQueue_ClearLane(t *testing.T) {
	cq := New()
	defer cq.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = cq.Enqueue(context.Background(), "c", func(ctx context.Context) (interface{}, error) {
			close(started)
			<-release
			return nil, nil
		}, nil)
	}()
	<-started
	defer close(release)

	errCh := make(chan error, 1)
	go func() {
		_, err := cq.Enqueue(context.Background(), "c", func(ctx context.Context) (interface{}, error) {
			return nil, nil
		}, nil)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return cq.QueueSize("c") == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, 1, cq.ClearLane("c"))
	assert.ErrorIs(t, <-errCh, ErrLaneCleared)
	assert.Equal(t, 0, cq.ClearLane("missing"))
}

func TestCommandQueue_SetConcurrencyAndStats(t *testing.T) {
	cq := New()
	defer cq.Close()

	cq.SetConcurrency("wide", 3)
	stats := cq.Stats()
	assert.Equal(t, 3, stats["wide"]["concurrency"])
	assert.Equal(t, 1, stats[DispatchLane]["concurrency"])

	cq.SetConcurrency("wide", 0)
	assert.Equal(t, 1, cq.Stats()["wide"]["concurrency"])
}

func TestCommandQueue_Close(t *testing.T) {
	cq := New()

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := cq.Enqueue(context.Background(), MainLane, func(ctx context.Context) (interface{}, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}, nil)
		done <- err
	}()
	<-started

	require.NoError(t, cq.Close())
	assert.ErrorIs(t, <-done, context.Canceled)

	_, err := cq.Enqueue(context.Background(), MainLane, func(ctx context.Context) (interface{}, error) {
		return nil, nil
	}, nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, cq.Close())
}
