package toolexecutor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/harun/nava/internal/observability"
	"github.com/harun/nava/internal/tracing"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultTimeout bounds a single tool execution.
	DefaultTimeout = 2 * time.Minute
	// DefaultMaxOutput is the largest tool output kept, in bytes.
	DefaultMaxOutput = 10 * 1024
)

type entry struct {
	tool   Tool
	schema *gojsonschema.Schema
}

// Registry is an insertion-ordered set of tools keyed by name.
type Registry struct {
	mu        sync.RWMutex
	order     []string
	entries   map[string]*entry
	timeout   time.Duration
	maxOutput int
}

// Option configures a Registry.
type Option func(*Registry)

// WithTimeout sets the default execution timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) { r.timeout = d }
}

// WithMaxOutput sets the output truncation limit. Zero disables it.
func WithMaxOutput(n int) Option {
	return func(r *Registry) { r.maxOutput = n }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries:   make(map[string]*entry),
		timeout:   DefaultTimeout,
		maxOutput: DefaultMaxOutput,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers a tool. A tool with the same name is replaced and keeps its
// original position.
func (r *Registry) Add(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	schema, err := compileSchema(tool.Parameters())
	if err != nil {
		log.Warn().
			Str("tool", name).
			Err(err).
			Msg("Tool schema does not compile, arguments will not be validated")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; !exists {
		r.order = append(r.order, name)
	}
	r.entries[name] = &entry{tool: tool, schema: schema}

	log.Debug().Str("tool", name).Str("source", SourceOf(tool)).Msg("Tool registered")
	return nil
}

// AddAll registers every tool in order. It stops at the first invalid tool.
func (r *Registry) AddAll(tools ...Tool) error {
	for _, t := range tools {
		if err := r.Add(t); err != nil {
			return err
		}
	}
	return nil
}

// RemoveWhere removes every tool matching pred and returns how many were removed.
func (r *Registry) RemoveWhere(pred func(Tool) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.order[:0]
	removed := 0
	for _, name := range r.order {
		if pred(r.entries[name].tool) {
			delete(r.entries, name)
			removed++
			continue
		}
		kept = append(kept, name)
	}
	r.order = kept

	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("Tools removed")
	}
	return removed
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return e.tool, nil
}

// Names returns tool names in insertion order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ExportSchemas snapshots the registry for the reasoning provider.
func (r *Registry) ExportSchemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]Schema, 0, len(r.order))
	for _, name := range r.order {
		t := r.entries[name].tool
		schemas = append(schemas, Schema{
			Name:        name,
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return schemas
}

type outcome struct {
	value    interface{}
	err      error
	panicked interface{}
}

// Execute runs the named tool. Lookup, validation, execution and timeout
// failures are reported in the Result. The error is non-nil only when the
// tool panicked.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]interface{}) (Result, error) {
	start := time.Now()

	ctx, span := tracing.StartSpan(ctx, "nava.toolexecutor", "tool.execute", attribute.String("tool", name))
	defer span.End()

	r.mu.RLock()
	e, ok := r.entries[name]
	timeout, maxOutput := r.timeout, r.maxOutput
	r.mu.RUnlock()

	if !ok {
		res := failed(name, fmt.Errorf("%w: %s", ErrToolNotFound, name), time.Since(start))
		tracing.RecordError(span, res.Err)
		observability.RecordToolExecution(name, res.Duration, false)
		return res, nil
	}

	if params == nil {
		params = map[string]interface{}{}
	}

	if err := validate(e.schema, params); err != nil {
		log.Warn().Str("tool", name).Err(err).Msg("Tool arguments rejected")
		res := failed(name, fmt.Errorf("invalid arguments for %s: %w", name, err), time.Since(start))
		tracing.RecordError(span, res.Err)
		observability.RecordToolExecution(name, res.Duration, false)
		return res, nil
	}

	if o, ok := e.tool.(TimeoutOverride); ok && o.Timeout() >= 0 {
		timeout = o.Timeout()
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{panicked: p}
			}
		}()
		value, err := e.tool.Execute(runCtx, params)
		done <- outcome{value: value, err: err}
	}()

	var res Result
	var fatal error

	select {
	case o := <-done:
		duration := time.Since(start)
		switch {
		case o.panicked != nil:
			fatal = fmt.Errorf("%w: %s: %v", ErrToolPanic, name, o.panicked)
			res = failed(name, fatal, duration)
		case o.err != nil:
			res = failed(name, o.err, duration)
		default:
			output, truncated := truncate(stringify(o.value), maxOutput)
			res = Result{
				Tool:      name,
				Success:   true,
				Output:    output,
				Truncated: truncated,
				Duration:  duration,
			}
		}

	case <-runCtx.Done():
		err := runCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("tool execution timeout after %v", timeout)
		}
		res = failed(name, err, time.Since(start))
	}

	if res.Success {
		log.Debug().
			Str("tool", name).
			Dur("duration", res.Duration).
			Bool("truncated", res.Truncated).
			Msg("Tool execution completed")
	} else {
		tracing.RecordError(span, res.Err)
		log.Warn().
			Str("tool", name).
			Dur("duration", res.Duration).
			Str("error", res.Error).
			Msg("Tool execution failed")
	}
	observability.RecordToolExecution(name, res.Duration, res.Success)

	return res, fatal
}

func compileSchema(params map[string]interface{}) (*gojsonschema.Schema, error) {
	if len(params) == 0 {
		return nil, nil
	}
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(params))
}

func validate(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.New(strings.Join(msgs, "; "))
}
