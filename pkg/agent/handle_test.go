package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFactory(ctx context.Context, env Env) (*Agent, error) {
	return New(Config{Provider: &scriptedProvider{}, Logger: env.Logger, Output: env.Output})
}

func TestHandle(t *testing.T) {
	t.Run("not ready until init completes", func(t *testing.T) {
		release := make(chan struct{})
		h := NewHandle(func(ctx context.Context) (*Runtime, error) {
			<-release
			return &Runtime{Factory: testFactory, Provider: "scripted"}, nil
		})

		_, err := h.Acquire()
		assert.ErrorIs(t, err, ErrNotReady)

		h.Start(context.Background())
		_, err = h.Acquire()
		assert.ErrorIs(t, err, ErrNotReady)

		close(release)
		select {
		case <-h.Ready():
		case <-time.After(time.Second):
			t.Fatal("handle never became ready")
		}

		rt, err := h.Acquire()
		require.NoError(t, err)
		assert.Equal(t, "scripted", rt.Provider)

		a, err := rt.Factory(context.Background(), Env{})
		require.NoError(t, err)
		assert.Equal(t, StateIdle, a.State())
	})

	t.Run("init failure is reported after ready", func(t *testing.T) {
		boom := errors.New("missing api key")
		h := NewHandle(func(ctx context.Context) (*Runtime, error) { return nil, boom })
		h.Start(context.Background())
		h.Start(context.Background())

		_, err := h.Wait(context.Background())
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrNotReady)
	})

	t.Run("runtime without factory is an error", func(t *testing.T) {
		h := NewHandle(func(ctx context.Context) (*Runtime, error) { return &Runtime{}, nil })
		h.Start(context.Background())
		_, err := h.Wait(context.Background())
		assert.Error(t, err)
	})

	t.Run("wait honors context", func(t *testing.T) {
		h := NewHandle(func(ctx context.Context) (*Runtime, error) { select {} })
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := h.Wait(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("ready handle", func(t *testing.T) {
		h := ReadyHandle(&Runtime{Factory: testFactory})
		rt, err := h.Acquire()
		require.NoError(t, err)
		assert.NotNil(t, rt.Factory)
		h.Start(context.Background())
	})
}
