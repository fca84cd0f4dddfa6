package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/harun/nava/internal/observability"
	"github.com/harun/nava/internal/tracing"
	"github.com/harun/nava/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultMaxSteps   = 20
	DefaultMaxObserve = 10000

	// recentTurns is the look-back used to pick the planning prompt variant.
	recentTurns        = 3
	duplicateThreshold = 2
)

// Config configures one Agent.
type Config struct {
	Name           string
	SystemPrompt   string
	NextStepPrompt string
	Provider       LLMProvider
	Model          string
	Temperature    float64
	MaxTokens      int
	Tools          *toolexecutor.Registry
	MaxSteps       int
	MaxObserve     int
	MemoryWindow   int

	// ContextTools names capabilities whose use within the last three turns
	// replaces the planning prompt with ContextPrompt's output for one call.
	ContextTools  []string
	ContextPrompt func(ctx context.Context) (string, error)

	Logger zerolog.Logger
	// Output receives incidental text written by tools.
	Output   io.Writer
	Cleanups []func(ctx context.Context) error
}

// Agent alternates think and act phases over one registry and one memory
// until the terminate tool runs or the step budget is spent.
type Agent struct {
	cfg    Config
	memory *Memory
	logger zerolog.Logger

	mu       sync.Mutex
	state    State
	steps    int
	stuck    bool
	cleanups []func(ctx context.Context) error

	cleanupOnce sync.Once
	cleanupErr  error
}

// New creates an idle agent.
func New(cfg Config) (*Agent, error) {
	observability.EnsureRegistered()

	if cfg.Provider == nil {
		return nil, fmt.Errorf("reasoning provider is required")
	}
	if cfg.Tools == nil {
		cfg.Tools = toolexecutor.NewRegistry()
	}
	if cfg.Name == "" {
		cfg.Name = "nava"
	}
	if cfg.NextStepPrompt == "" {
		cfg.NextStepPrompt = NextStepPrompt
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.MaxObserve <= 0 {
		cfg.MaxObserve = DefaultMaxObserve
	}
	if cfg.Output == nil {
		cfg.Output = io.Discard
	}

	return &Agent{
		cfg:      cfg,
		memory:   NewMemory(cfg.MemoryWindow),
		logger:   cfg.Logger.With().Str("agent", cfg.Name).Logger(),
		state:    StateIdle,
		cleanups: append([]func(ctx context.Context) error(nil), cfg.Cleanups...),
	}, nil
}

func (a *Agent) Name() string                  { return a.cfg.Name }
func (a *Agent) Tools() *toolexecutor.Registry { return a.cfg.Tools }
func (a *Agent) Memory() *Memory               { return a.memory }

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Steps returns the number of completed or running rounds.
func (a *Agent) Steps() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.steps
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// AddCleanup registers fn to run on Cleanup. Cleanups run in reverse order.
func (a *Agent) AddCleanup(fn func(ctx context.Context) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleanups = append(a.cleanups, fn)
}

// Run executes task and returns the step transcript. Capability failures are
// fed back into memory; reasoning provider failures, tool panics and context
// cancellation abort the run. An agent runs once.
func (a *Agent) Run(ctx context.Context, task string) (result string, err error) {
	a.mu.Lock()
	if a.state != StateIdle {
		state := a.state
		a.mu.Unlock()
		return "", fmt.Errorf("cannot run agent from state %s", state)
	}
	a.state = StateThinking
	a.mu.Unlock()

	if tracing.GetRunID(ctx) == "" {
		ctx = tracing.WithRunID(ctx, tracing.NewRunID())
	}
	provider := a.cfg.Provider.Provider()
	ctx, span := tracing.StartSpan(ctx, "nava.agent", "agent.run",
		attribute.String("agent", a.cfg.Name),
		attribute.String("provider", provider),
		attribute.Int("max_steps", a.cfg.MaxSteps),
	)
	start := time.Now()
	logger := tracing.LoggerFromContext(ctx, a.logger)

	defer func() {
		a.setState(StateTerminated)
		observability.RecordAgentRun(provider, time.Since(start), a.Steps(), err == nil)
		tracing.RecordError(span, err)
		span.End()
	}()

	if task != "" {
		a.memory.Add(UserMessage(task))
	}

	var results []string
	for a.State() != StateTerminated {
		step, ok := a.nextStep()
		if !ok {
			logger.Warn().Msgf("Terminated: reached max steps (%d)", a.cfg.MaxSteps)
			results = append(results, fmt.Sprintf("Terminated: Reached max steps (%d)", a.cfg.MaxSteps))
			break
		}
		if cerr := ctx.Err(); cerr != nil {
			return "", cerr
		}

		logger.Info().Msgf("Executing step %d/%d", step, a.cfg.MaxSteps)
		out, serr := a.step(ctx, logger, step)
		if serr != nil {
			return "", serr
		}

		if a.isStuck() {
			logger.Warn().Msg("Agent detected stuck state, changing strategy")
			a.mu.Lock()
			a.stuck = true
			a.mu.Unlock()
		}
		results = append(results, fmt.Sprintf("Step %d: %s", step, out))
	}

	return strings.Join(results, "\n"), nil
}

func (a *Agent) nextStep() (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.steps >= a.cfg.MaxSteps {
		return a.steps, false
	}
	a.steps++
	return a.steps, true
}

func (a *Agent) step(ctx context.Context, logger zerolog.Logger, step int) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "nava.agent", "agent.step", attribute.Int("step", step))
	defer span.End()

	resp, err := a.think(ctx, logger)
	if err != nil {
		tracing.RecordError(span, err)
		return "", err
	}
	if resp == nil {
		return "Thinking complete - no action needed", nil
	}

	out, err := a.act(ctx, logger, resp)
	if err != nil {
		tracing.RecordError(span, err)
	}
	return out, err
}

// think asks the reasoning provider for the next actions. A nil response
// means there is nothing to act on.
func (a *Agent) think(ctx context.Context, logger zerolog.Logger) (*LLMResponse, error) {
	a.setState(StateThinking)

	if prompt := a.planningPrompt(ctx, logger); prompt != "" {
		a.memory.Add(UserMessage(prompt))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := a.cfg.Provider.Call(ctx, LLMRequest{
		Model:        a.cfg.Model,
		SystemPrompt: a.cfg.SystemPrompt,
		Messages:     a.memory.Window(),
		Tools:        a.cfg.Tools.ExportSchemas(),
		Temperature:  a.cfg.Temperature,
		MaxTokens:    a.cfg.MaxTokens,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Error().Err(err).Msg("Reasoning provider call failed")
		return nil, fmt.Errorf("failed to ask reasoning provider: %w", err)
	}

	for i := range resp.ToolCalls {
		if resp.ToolCalls[i].ID == "" {
			resp.ToolCalls[i].ID = "call_" + uuid.NewString()
		}
	}

	logger.Info().Msgf("%s's thoughts: %s", a.cfg.Name, resp.Content)
	logger.Info().Msgf("%s selected %d tools to use", a.cfg.Name, len(resp.ToolCalls))
	if len(resp.ToolCalls) > 0 {
		names := make([]string, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			names = append(names, tc.Name)
		}
		logger.Info().Msgf("Tools being prepared: %s", strings.Join(names, ", "))
	}

	if resp.Content == "" && len(resp.ToolCalls) == 0 {
		return nil, nil
	}
	a.memory.Add(AssistantMessage(resp.Content, resp.ToolCalls))
	return resp, nil
}

// planningPrompt picks the prompt variant for this call. The configured
// prompt itself is never changed.
func (a *Agent) planningPrompt(ctx context.Context, logger zerolog.Logger) string {
	prompt := a.cfg.NextStepPrompt

	if a.cfg.ContextPrompt != nil && a.contextToolRecentlyUsed() {
		p, err := a.cfg.ContextPrompt(ctx)
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("Failed to build context prompt, using default")
		case p != "":
			prompt = p
		}
	}

	a.mu.Lock()
	stuck := a.stuck
	a.stuck = false
	a.mu.Unlock()
	if stuck {
		prompt = stuckPrompt + "\n" + prompt
	}
	return prompt
}

func (a *Agent) contextToolRecentlyUsed() bool {
	if len(a.cfg.ContextTools) == 0 {
		return false
	}
	for _, m := range a.memory.Recent(recentTurns) {
		if m.HasToolCall(a.cfg.ContextTools...) {
			return true
		}
	}
	return false
}

func (a *Agent) act(ctx context.Context, logger zerolog.Logger, resp *LLMResponse) (string, error) {
	if len(resp.ToolCalls) == 0 {
		if resp.Content == "" {
			return "No content or commands to execute", nil
		}
		return resp.Content, nil
	}

	a.setState(StateActing)
	results := make([]string, 0, len(resp.ToolCalls))
	for _, call := range resp.ToolCalls {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		obs, err := a.execute(ctx, logger, call)
		if err != nil {
			return "", err
		}
		a.memory.Add(ToolMessage(call.ID, call.Name, obs))
		results = append(results, obs)

		if call.Name == TerminateTool {
			logger.Info().Msgf("Special tool '%s' has completed the task!", call.Name)
			a.setState(StateTerminated)
			break
		}
	}

	if a.State() == StateActing {
		a.setState(StateThinking)
	}
	return strings.Join(results, "\n\n"), nil
}

func (a *Agent) execute(ctx context.Context, logger zerolog.Logger, call ToolCall) (string, error) {
	if call.Malformed() {
		logger.Error().Str("tool", call.Name).Str("arguments", call.Raw).Msg("Tool arguments are not valid JSON")
		return fmt.Sprintf("Error: Error parsing arguments for %s: Invalid JSON format", call.Name), nil
	}

	logger.Info().Msgf("Activating tool: '%s'...", call.Name)
	res, err := a.cfg.Tools.Execute(toolexecutor.WithOutput(ctx, a.cfg.Output), call.Name, call.Arguments)
	if err != nil {
		logger.Error().Str("tool", call.Name).Err(err).Msg("Tool execution aborted the run")
		return "", err
	}

	obs := truncateRunes(res.Observation(), a.cfg.MaxObserve)
	if res.Success {
		logger.Info().Msgf("Tool '%s' completed its mission! Result: %s", call.Name, obs)
	} else {
		logger.Warn().Msgf("Tool '%s' failed: %s", call.Name, res.Error)
	}
	return obs, nil
}

// isStuck reports whether the latest assistant content already appeared
// duplicateThreshold times before.
func (a *Agent) isStuck() bool {
	msgs := a.memory.Messages()
	last := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleAssistant {
			last = i
			break
		}
	}
	if last < 0 || msgs[last].Content == "" {
		return false
	}

	count := 0
	for _, m := range msgs[:last] {
		if m.Role == RoleAssistant && m.Content == msgs[last].Content {
			count++
		}
	}
	return count >= duplicateThreshold
}

// Cleanup releases resources held for this agent. It runs once; later calls
// return the first result.
func (a *Agent) Cleanup(ctx context.Context) error {
	a.cleanupOnce.Do(func() {
		a.mu.Lock()
		fns := a.cleanups
		a.cleanups = nil
		a.mu.Unlock()

		var errs []error
		for i := len(fns) - 1; i >= 0; i-- {
			if err := runCleanup(ctx, fns[i]); err != nil {
				errs = append(errs, err)
			}
		}
		a.cleanupErr = errors.Join(errs...)
		if a.cleanupErr != nil {
			a.logger.Warn().Err(a.cleanupErr).Msg("Agent cleanup finished with errors")
		} else {
			a.logger.Debug().Int("cleanups", len(fns)).Msg("Agent cleanup finished")
		}
	})
	return a.cleanupErr
}

func runCleanup(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("cleanup panicked: %v", p)
		}
	}()
	return fn(ctx)
}

func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
