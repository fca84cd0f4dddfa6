package routing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/harun/nava/internal/logger"
	"github.com/harun/nava/internal/observability"
	"github.com/harun/nava/internal/tracing"
	"github.com/harun/nava/pkg/agent"
	"github.com/harun/nava/pkg/commandqueue"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// ErrEmptyPrompt is returned for blank prompts.
var ErrEmptyPrompt = errors.New("prompt cannot be empty")

// FallbackError reports that both the agent and the direct completion failed.
type FallbackError struct {
	Original error
	Fallback error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("both agent and fallback failed: original error: %v; fallback error: %v", e.Original, e.Fallback)
}

func (e *FallbackError) Unwrap() []error {
	return []error{e.Original, e.Fallback}
}

// Response is the outcome of one dispatch.
type Response struct {
	Intent       Intent `json:"intent"`
	Output       string `json:"output"`
	UsedFallback bool   `json:"fallback"`
}

// DispatchOptions tunes a single dispatch.
type DispatchOptions struct {
	// Intent skips classification when set.
	Intent Intent
	// NoFallback disables the direct completion path for this request.
	NoFallback bool
	// Input backs ask_user. Nil leaves the capability out.
	Input agent.InputFunc
	// Output receives incidental tool output.
	Output io.Writer
	// Logger overrides the gateway logger for the agent run.
	Logger *zerolog.Logger
}

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	Handle          *agent.Handle
	Fallback        Completer
	FallbackEnabled bool
	Queue           *commandqueue.CommandQueue
	Logger          zerolog.Logger
	// WarnAfter logs requests that wait longer than this for the dispatch lane.
	WarnAfter time.Duration
}

// Gateway runs one agent per request, one request at a time, with a direct
// completion fallback for authentication failures.
type Gateway struct {
	cfg    GatewayConfig
	queue  *commandqueue.CommandQueue
	logger zerolog.Logger
}

// NewGateway creates a gateway. A nil Queue gets a private one.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Handle == nil {
		return nil, errors.New("agent handle is required")
	}
	if cfg.WarnAfter <= 0 {
		cfg.WarnAfter = 30 * time.Second
	}
	queue := cfg.Queue
	if queue == nil {
		queue = commandqueue.New()
	}
	return &Gateway{cfg: cfg, queue: queue, logger: cfg.Logger}, nil
}

// Dispatch classifies prompt, runs a fresh agent on the formatted task and,
// on an authentication failure, makes exactly one direct completion. The
// returned Response is non-nil whenever the prompt is not blank, even on error.
func (g *Gateway) Dispatch(ctx context.Context, prompt string, opts DispatchOptions) (*Response, error) {
	cleaned := strings.TrimSpace(prompt)
	if cleaned == "" {
		return nil, ErrEmptyPrompt
	}

	intent := opts.Intent
	if intent == "" {
		intent = Classify(cleaned)
	}
	resp := &Response{Intent: intent}

	if tracing.GetSessionKey(ctx) == "" {
		id, err := gonanoid.New()
		if err != nil {
			return resp, fmt.Errorf("failed to generate request id: %w", err)
		}
		ctx = tracing.WithSessionKey(ctx, id)
	}
	ctx, span := tracing.StartSpan(ctx, "nava.routing", "routing.dispatch", attribute.String("intent", string(intent)))
	defer span.End()

	log := g.logger
	if opts.Logger != nil {
		log = *opts.Logger
	}
	log = tracing.LoggerFromContext(ctx, log)

	rt, err := g.cfg.Handle.Acquire()
	if err != nil {
		tracing.RecordError(span, err)
		return resp, err
	}

	output, runErr := g.run(ctx, rt, intent, FormatTask(cleaned, intent), opts, log)
	if runErr == nil {
		resp.Output = output
		return resp, nil
	}
	tracing.RecordError(span, runErr)
	log.Warn().Err(runErr).Msg("Agent execution failed")

	if !agent.IsAuthError(runErr) {
		return resp, runErr
	}
	if opts.NoFallback || !g.cfg.FallbackEnabled || g.cfg.Fallback == nil {
		return resp, fmt.Errorf("authentication failed, check the reasoning provider API key: %w", runErr)
	}

	log.Info().Msg("Attempting direct completion fallback due to authentication error")
	text, fbErr := g.fallback(ctx, intent, cleaned)
	if fbErr != nil {
		observability.RecordFallback(false)
		log.Error().Err(fbErr).Msg("Fallback also failed")
		return resp, &FallbackError{Original: runErr, Fallback: fbErr}
	}
	observability.RecordFallback(true)
	log.Info().Msg("Fallback completion succeeded")
	resp.Output = text
	resp.UsedFallback = true
	return resp, nil
}

func (g *Gateway) run(ctx context.Context, rt *agent.Runtime, intent Intent, task string, opts DispatchOptions, log zerolog.Logger) (string, error) {
	out, err := g.queue.Enqueue(ctx, commandqueue.DispatchLane, func(ctx context.Context) (interface{}, error) {
		ag, err := rt.Factory(ctx, agent.Env{Logger: log, Output: opts.Output, Input: opts.Input})
		if err != nil {
			return nil, fmt.Errorf("failed to create agent: %w", err)
		}
		defer func() {
			cctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if cerr := ag.Cleanup(cctx); cerr != nil {
				log.Warn().Err(cerr).Msg("Error during agent cleanup")
			}
		}()

		log.Info().Str("intent", string(intent)).Msgf("Agent handling '%s' request", intent)
		result, err := ag.Run(ctx, task)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Agent execution finished")
		return result, nil
	}, &commandqueue.TaskOptions{
		WarnAfter: g.cfg.WarnAfter,
		OnWait: func(wait time.Duration, pos int) {
			log.Warn().Dur("wait", wait).Int("position", pos).Msg("Request is waiting for the dispatch lane")
		},
	})
	if err != nil {
		return "", err
	}
	s, _ := out.(string)
	return s, nil
}

func (g *Gateway) fallback(ctx context.Context, intent Intent, prompt string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "nava.routing", "routing.fallback", attribute.String("intent", string(intent)))
	defer span.End()

	text, err := g.cfg.Fallback.Complete(ctx, FallbackSystemMessage(intent), prompt)
	if err == nil && IsErrorShaped(text) {
		msg := strings.TrimSpace(text)
		if msg == "" {
			msg = "fallback returned an empty response"
		}
		err = errors.New(msg)
	}
	tracing.RecordError(span, err)
	return text, err
}

// Stream runs Dispatch and emits the run's log lines and tool output as
// chunks while it progresses. The final output is the last chunk. A failing
// emit cancels the run.
func (g *Gateway) Stream(ctx context.Context, prompt string, opts DispatchOptions, emit func(chunk string) error) (*Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu      sync.Mutex
		emitErr error
	)
	send := func(chunk string) {
		mu.Lock()
		defer mu.Unlock()
		if emitErr != nil {
			return
		}
		if err := emit(chunk); err != nil {
			emitErr = err
			cancel()
		}
	}

	base := g.logger
	if opts.Logger != nil {
		base = *opts.Logger
	}
	sink := logger.NewSink(send)
	lw := logger.NewLineWriter(opts.Output, send)
	streamLogger := logger.Tee(base, sink)
	opts.Logger = &streamLogger
	opts.Output = lw

	resp, err := g.Dispatch(ctx, prompt, opts)
	_ = lw.Restore()
	_ = sink.Close()

	if err == nil {
		send(resp.Output)
	}

	mu.Lock()
	defer mu.Unlock()
	if err == nil && emitErr != nil {
		err = fmt.Errorf("failed to stream response: %w", emitErr)
	}
	return resp, err
}
