package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrNotReady is returned by Handle.Acquire before initialization completes.
var ErrNotReady = errors.New("agent runtime is not ready")

// InputFunc asks the human a question and waits for the answer.
type InputFunc func(ctx context.Context, question string) (string, error)

// Env is what a caller lends to the agents it builds.
type Env struct {
	Logger zerolog.Logger
	// Output receives incidental text written by tools.
	Output io.Writer
	// Input backs the ask_user capability. Nil leaves it unregistered.
	Input InputFunc
}

// Factory builds a fresh agent for one request or session.
type Factory func(ctx context.Context, env Env) (*Agent, error)

// Runtime is the initialized state shared by every request.
type Runtime struct {
	Factory  Factory
	Provider string
	Model    string
}

// Handle owns a Runtime that is initialized in the background. Callers must
// acquire it; there is no global agent.
type Handle struct {
	init  func(ctx context.Context) (*Runtime, error)
	once  sync.Once
	ready chan struct{}

	mu  sync.RWMutex
	rt  *Runtime
	err error
}

// NewHandle creates a handle that runs init on Start.
func NewHandle(init func(ctx context.Context) (*Runtime, error)) *Handle {
	return &Handle{init: init, ready: make(chan struct{})}
}

// ReadyHandle returns a handle that is already initialized with rt.
func ReadyHandle(rt *Runtime) *Handle {
	h := &Handle{ready: make(chan struct{}), rt: rt}
	h.once.Do(func() {})
	close(h.ready)
	return h
}

// Start runs initialization in the background. Only the first call has effect.
func (h *Handle) Start(ctx context.Context) {
	h.once.Do(func() {
		go func() {
			rt, err := h.init(ctx)
			if err == nil && (rt == nil || rt.Factory == nil) {
				err = fmt.Errorf("runtime initializer returned no agent factory")
			}

			h.mu.Lock()
			h.rt, h.err = rt, err
			h.mu.Unlock()
			close(h.ready)

			if err != nil {
				log.Error().Err(err).Msg("Agent runtime initialization failed")
				return
			}
			log.Info().Str("provider", rt.Provider).Str("model", rt.Model).Msg("Agent runtime ready")
		}()
	})
}

// Ready is closed once initialization has finished, successfully or not.
func (h *Handle) Ready() <-chan struct{} {
	return h.ready
}

// Acquire returns the runtime, ErrNotReady while initializing, or the
// initialization error.
func (h *Handle) Acquire() (*Runtime, error) {
	select {
	case <-h.ready:
	default:
		return nil, ErrNotReady
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.err != nil {
		return nil, fmt.Errorf("agent runtime failed to initialize: %w", h.err)
	}
	return h.rt, nil
}

// Wait blocks until initialization finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (*Runtime, error) {
	select {
	case <-h.ready:
		return h.Acquire()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
