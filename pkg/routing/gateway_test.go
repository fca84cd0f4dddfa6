package routing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/nava/pkg/agent"
	"github.com/harun/nava/pkg/commandqueue"
	"github.com/harun/nava/pkg/toolexecutor"
)

type providerFunc func(ctx context.Context, req agent.LLMRequest) (*agent.LLMResponse, error)

func (f providerFunc) Provider() string { return "fake" }

func (f providerFunc) Call(ctx context.Context, req agent.LLMRequest) (*agent.LLMResponse, error) {
	return f(ctx, req)
}

func terminateCall() *agent.LLMResponse {
	return &agent.LLMResponse{ToolCalls: []agent.ToolCall{{
		ID: "call-1", Name: agent.TerminateTool, Arguments: map[string]interface{}{"status": "success"},
	}}}
}

type fakeCompleter struct {
	calls  atomic.Int32
	system string
	prompt string
	text   string
	err    error
}

func (c *fakeCompleter) Complete(_ context.Context, system, prompt string) (string, error) {
	c.calls.Add(1)
	c.system = system
	c.prompt = prompt
	return c.text, c.err
}

type fixture struct {
	cleanups atomic.Int32
	tasks    []string
	mu       sync.Mutex
}

func (f *fixture) runtime(provider agent.LLMProvider) *agent.Runtime {
	return &agent.Runtime{Provider: "fake", Factory: func(ctx context.Context, env agent.Env) (*agent.Agent, error) {
		reg := toolexecutor.NewRegistry()
		err := reg.AddAll(
			toolexecutor.MustFuncTool(agent.TerminateTool, "Ends the run", []toolexecutor.Parameter{
				{Name: "status", Type: "string", Required: true},
			}, func(context.Context, map[string]interface{}) (interface{}, error) {
				return "finished", nil
			}),
			toolexecutor.MustFuncTool("shout", "Prints", nil, func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
				fmt.Fprintln(toolexecutor.Output(ctx), "shouting")
				return "ok", nil
			}),
		)
		if err != nil {
			return nil, err
		}
		recording := providerFunc(func(ctx context.Context, req agent.LLMRequest) (*agent.LLMResponse, error) {
			if len(req.Messages) > 0 {
				f.mu.Lock()
				f.tasks = append(f.tasks, req.Messages[0].Content)
				f.mu.Unlock()
			}
			return provider.Call(ctx, req)
		})
		return agent.New(agent.Config{
			Name:     "nava",
			Provider: recording,
			Tools:    reg,
			MaxSteps: 3,
			Logger:   env.Logger,
			Output:   env.Output,
			Cleanups: []func(context.Context) error{func(context.Context) error {
				f.cleanups.Add(1)
				return nil
			}},
		})
	}}
}

func newGateway(t *testing.T, rt *agent.Runtime, completer Completer) *Gateway {
	t.Helper()
	g, err := NewGateway(GatewayConfig{
		Handle:          agent.ReadyHandle(rt),
		Fallback:        completer,
		FallbackEnabled: true,
		Logger:          zerolog.New(io.Discard),
	})
	require.NoError(t, err)
	return g
}

func authFailure() providerFunc {
	return func(context.Context, agent.LLMRequest) (*agent.LLMResponse, error) {
		return nil, agent.NewProviderError("fake", "m", 401, "User not found.", nil)
	}
}

func TestNewGateway(t *testing.T) {
	_, err := NewGateway(GatewayConfig{})
	assert.Error(t, err)
}

func TestDispatch_Success(t *testing.T) {
	f := &fixture{}
	completer := &fakeCompleter{}
	g := newGateway(t, f.runtime(providerFunc(func(context.Context, agent.LLMRequest) (*agent.LLMResponse, error) {
		return terminateCall(), nil
	})), completer)

	resp, err := g.Dispatch(context.Background(), "  what is the capital of France  ", DispatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, IntentText, resp.Intent)
	assert.False(t, resp.UsedFallback)
	assert.Equal(t, "Step 1: Observed output of cmd `terminate` executed:\nfinished", resp.Output)
	assert.Equal(t, int32(0), completer.calls.Load())
	assert.Equal(t, int32(1), f.cleanups.Load())

	require.Len(t, f.tasks, 1)
	assert.Equal(t, FormatTask("what is the capital of France", IntentText), f.tasks[0])
}

func TestDispatch_ExplicitIntent(t *testing.T) {
	f := &fixture{}
	g := newGateway(t, f.runtime(providerFunc(func(context.Context, agent.LLMRequest) (*agent.LLMResponse, error) {
		return terminateCall(), nil
	})), nil)

	resp, err := g.Dispatch(context.Background(), "hello", DispatchOptions{Intent: IntentWebsite})
	require.NoError(t, err)
	assert.Equal(t, IntentWebsite, resp.Intent)
	assert.Equal(t, FormatTask("hello", IntentWebsite), f.tasks[0])
}

func TestDispatch_EmptyPrompt(t *testing.T) {
	g := newGateway(t, (&fixture{}).runtime(nil), nil)
	resp, err := g.Dispatch(context.Background(), " \t", DispatchOptions{})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Nil(t, resp)
}

func TestDispatch_NotReady(t *testing.T) {
	g, err := NewGateway(GatewayConfig{
		Handle: agent.NewHandle(func(context.Context) (*agent.Runtime, error) { return nil, nil }),
		Logger: zerolog.New(io.Discard),
	})
	require.NoError(t, err)

	resp, err := g.Dispatch(context.Background(), "draw a picture of a cat", DispatchOptions{})
	assert.ErrorIs(t, err, agent.ErrNotReady)
	require.NotNil(t, resp)
	assert.Equal(t, IntentImage, resp.Intent)
}

func TestDispatch_Fallback(t *testing.T) {
	t.Run("auth failure falls back exactly once", func(t *testing.T) {
		f := &fixture{}
		completer := &fakeCompleter{text: "Paris."}
		g := newGateway(t, f.runtime(authFailure()), completer)

		resp, err := g.Dispatch(context.Background(), " write a python function to sort a list ", DispatchOptions{})
		require.NoError(t, err)
		assert.True(t, resp.UsedFallback)
		assert.Equal(t, "Paris.", resp.Output)
		assert.Equal(t, IntentCode, resp.Intent)

		assert.Equal(t, int32(1), completer.calls.Load())
		assert.Equal(t, FallbackSystemMessage(IntentCode), completer.system)
		assert.Equal(t, "write a python function to sort a list", completer.prompt)
		assert.Equal(t, int32(1), f.cleanups.Load())
	})

	t.Run("untyped auth message falls back", func(t *testing.T) {
		completer := &fakeCompleter{text: "ok"}
		g := newGateway(t, (&fixture{}).runtime(providerFunc(func(context.Context, agent.LLMRequest) (*agent.LLMResponse, error) {
			return nil, fmt.Errorf("request failed: %w", errors.New("401 Unauthorized"))
		})), completer)

		resp, err := g.Dispatch(context.Background(), "hi", DispatchOptions{})
		require.NoError(t, err)
		assert.True(t, resp.UsedFallback)
		assert.Equal(t, int32(1), completer.calls.Load())
	})

	t.Run("fallback failure is composite", func(t *testing.T) {
		f := &fixture{}
		completer := &fakeCompleter{err: errors.New("fallback down")}
		g := newGateway(t, f.runtime(authFailure()), completer)

		resp, err := g.Dispatch(context.Background(), "hi", DispatchOptions{})
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, IntentText, resp.Intent)

		var fe *FallbackError
		require.ErrorAs(t, err, &fe)
		assert.True(t, agent.IsAuthError(fe.Original))
		assert.EqualError(t, fe.Fallback, "fallback down")
		assert.Contains(t, err.Error(), "User not found.")
		assert.Contains(t, err.Error(), "fallback down")
		assert.Equal(t, int32(1), completer.calls.Load())
		assert.Equal(t, int32(1), f.cleanups.Load())
	})

	t.Run("error-shaped fallback output is a failure", func(t *testing.T) {
		completer := &fakeCompleter{text: "Authentication Error: bad key"}
		g := newGateway(t, (&fixture{}).runtime(authFailure()), completer)

		_, err := g.Dispatch(context.Background(), "hi", DispatchOptions{})
		var fe *FallbackError
		require.ErrorAs(t, err, &fe)
		assert.EqualError(t, fe.Fallback, "Authentication Error: bad key")
		assert.Equal(t, int32(1), completer.calls.Load())
	})

	t.Run("non-auth failure skips fallback", func(t *testing.T) {
		f := &fixture{}
		completer := &fakeCompleter{text: "unused"}
		g := newGateway(t, f.runtime(providerFunc(func(context.Context, agent.LLMRequest) (*agent.LLMResponse, error) {
			return nil, agent.NewProviderError("fake", "m", 500, "upstream exploded", nil)
		})), completer)

		resp, err := g.Dispatch(context.Background(), "hi", DispatchOptions{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "upstream exploded")
		assert.Equal(t, IntentText, resp.Intent)
		assert.Equal(t, int32(0), completer.calls.Load())
		assert.Equal(t, int32(1), f.cleanups.Load())
	})

	t.Run("disabled per request", func(t *testing.T) {
		completer := &fakeCompleter{text: "unused"}
		g := newGateway(t, (&fixture{}).runtime(authFailure()), completer)

		_, err := g.Dispatch(context.Background(), "hi", DispatchOptions{NoFallback: true})
		require.Error(t, err)
		assert.True(t, agent.IsAuthError(err))
		assert.Contains(t, err.Error(), "authentication failed")
		assert.Equal(t, int32(0), completer.calls.Load())
	})
}

func TestDispatch_Serialized(t *testing.T) {
	var running, peak atomic.Int32
	provider := providerFunc(func(context.Context, agent.LLMRequest) (*agent.LLMResponse, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return terminateCall(), nil
	})

	f := &fixture{}
	queue := commandqueue.New()
	defer queue.Close()
	g, err := NewGateway(GatewayConfig{Handle: agent.ReadyHandle(f.runtime(provider)), Queue: queue, Logger: zerolog.New(io.Discard)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := g.Dispatch(context.Background(), fmt.Sprintf("question %d", i), DispatchOptions{})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, int32(4), f.cleanups.Load())
}

func TestDispatch_WaitingCallerHonorsContext(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	provider := providerFunc(func(context.Context, agent.LLMRequest) (*agent.LLMResponse, error) {
		started <- struct{}{}
		<-release
		return terminateCall(), nil
	})
	g := newGateway(t, (&fixture{}).runtime(provider), nil)

	done := make(chan error, 1)
	go func() {
		_, err := g.Dispatch(context.Background(), "first", DispatchOptions{})
		done <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := g.Dispatch(ctx, "second", DispatchOptions{NoFallback: true})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)
}

func TestStream(t *testing.T) {
	step := 0
	provider := providerFunc(func(context.Context, agent.LLMRequest) (*agent.LLMResponse, error) {
		step++
		if step == 1 {
			return &agent.LLMResponse{ToolCalls: []agent.ToolCall{{ID: "c1", Name: "shout", Arguments: map[string]interface{}{}}}}, nil
		}
		return terminateCall(), nil
	})
	g := newGateway(t, (&fixture{}).runtime(provider), nil)

	var chunks []string
	resp, err := g.Stream(context.Background(), "hello there", DispatchOptions{}, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	assert.Equal(t, resp.Output, chunks[len(chunks)-1])
	assert.Contains(t, chunks, "shouting")
	assert.True(t, containsPrefix(chunks, "INFO - Agent handling 'text' request"), chunks)
}

func TestStream_EmitFailureCancels(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, _ agent.LLMRequest) (*agent.LLMResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	g := newGateway(t, (&fixture{}).runtime(provider), nil)

	_, err := g.Stream(context.Background(), "hello", DispatchOptions{}, func(string) error {
		return errors.New("client gone")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func containsPrefix(items []string, prefix string) bool {
	for _, s := range items {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
