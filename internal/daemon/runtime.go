package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/harun/nava/pkg/agent"
	"github.com/harun/nava/pkg/browser"
	"github.com/harun/nava/pkg/coretools"
	"github.com/harun/nava/pkg/mcp"
	"github.com/harun/nava/pkg/toolexecutor"
	"github.com/rs/zerolog"
)

var newProvider = func(cfg agent.ProviderConfig) (agent.LLMProvider, error) {
	return agent.NewProvider(cfg)
}

// initRuntime builds the reasoning provider once; every request then gets a
// fresh agent from the returned factory.
func (d *Daemon) initRuntime(ctx context.Context) (*agent.Runtime, error) {
	llm := d.config.LLM
	provider, err := newProvider(agent.ProviderConfig{
		Provider:   llm.Provider,
		APIKey:     llm.APIKey,
		BaseURL:    llm.BaseURL,
		Headers:    llm.Headers,
		MaxRetries: llm.MaxRetries,
		Timeout:    llm.Timeout,
	})
	if err != nil {
		d.log.Error().Err(err).Str("provider", llm.Provider).Msg("Failed to initialize reasoning provider")
		return nil, fmt.Errorf("failed to create reasoning provider: %w", err)
	}

	d.log.Info().
		Str("provider", provider.Provider()).
		Str("model", llm.Model).
		Int("remote_servers", len(d.config.MCP.Servers)).
		Bool("browser", d.config.Browser.Enabled).
		Msg("Agent runtime ready")

	return &agent.Runtime{
		Factory:  d.agentFactory(provider),
		Provider: provider.Provider(),
		Model:    llm.Model,
	}, nil
}

func (d *Daemon) agentFactory(provider agent.LLMProvider) agent.Factory {
	return func(ctx context.Context, env agent.Env) (*agent.Agent, error) {
		toolset, err := d.buildTools(ctx, env)
		if err != nil {
			return nil, err
		}

		systemPrompt := d.config.Agent.SystemPrompt
		if systemPrompt == "" {
			systemPrompt = agent.SystemPrompt(d.workspace.Root())
		}

		ag, err := agent.New(agent.Config{
			Name:           d.config.Agent.Name,
			SystemPrompt:   systemPrompt,
			NextStepPrompt: d.config.Agent.NextStepPrompt,
			Provider:       provider,
			Model:          d.config.LLM.Model,
			Temperature:    d.config.LLM.Temperature,
			MaxTokens:      d.config.LLM.MaxTokens,
			Tools:          toolset.registry,
			MaxSteps:       d.config.Agent.MaxSteps,
			MaxObserve:     d.config.Agent.MaxObserve,
			MemoryWindow:   d.config.Agent.MemoryWindow,
			ContextTools:   toolset.contextTools,
			ContextPrompt:  toolset.contextPrompt,
			Logger:         env.Logger,
			Output:         env.Output,
			Cleanups:       toolset.cleanups,
		})
		if err != nil {
			toolset.close(ctx, env.Logger)
			return nil, err
		}
		return ag, nil
	}
}

// toolset is the registry of one agent plus what must be released with it.
type toolset struct {
	registry      *toolexecutor.Registry
	contextTools  []string
	contextPrompt func(ctx context.Context) (string, error)
	cleanups      []func(ctx context.Context) error
}

func (t *toolset) close(ctx context.Context, log zerolog.Logger) {
	var errs []error
	for _, fn := range t.cleanups {
		errs = append(errs, fn(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn().Err(err).Msg("Failed to release agent tools")
	}
}

// buildTools registers the core tools, the browser when enabled and the
// tools of every reachable remote server, then applies the tool policy.
// Remote failures are logged and never fatal.
func (d *Daemon) buildTools(ctx context.Context, env agent.Env) (*toolset, error) {
	registry := toolexecutor.NewRegistry(
		toolexecutor.WithTimeout(d.config.Agent.ToolTimeout),
		toolexecutor.WithMaxOutput(d.config.Agent.MaxToolOutput),
	)
	ts := &toolset{registry: registry}

	opts := coretools.Options{
		WorkspaceRoot: d.workspace.Root(),
		HTTPClient:    &http.Client{Timeout: d.config.Tools.HTTPTimeout},
		WikipediaURL:  d.config.Tools.WikipediaURL,
	}
	if env.Input != nil {
		opts.Input = coretools.InputFunc(env.Input)
	}
	if err := coretools.Register(registry, opts); err != nil {
		return nil, fmt.Errorf("failed to register core tools: %w", err)
	}

	if d.config.Browser.Enabled {
		b := browser.New(d.config.Browser.Config)
		if err := registry.Add(b.Tool()); err != nil {
			return nil, fmt.Errorf("failed to register browser tool: %w", err)
		}
		ts.contextTools = []string{browser.ToolName}
		ts.contextPrompt = b.ContextPrompt
		ts.cleanups = append(ts.cleanups, b.Close)
	}

	if len(d.config.MCP.Servers) > 0 {
		stderr := env.Output
		if stderr == nil {
			stderr = io.Discard
		}
		connector := mcp.NewConnector(registry, mcp.WithStderr(stderr))

		connectCtx := ctx
		if d.config.MCP.ConnectTimeout > 0 {
			var cancel context.CancelFunc
			connectCtx, cancel = context.WithTimeout(ctx, d.config.MCP.ConnectTimeout)
			defer cancel()
		}
		for id, err := range connector.ConnectAll(connectCtx, d.config.MCP.Servers) {
			env.Logger.Warn().Err(err).Str("server_id", id).Msg("Remote tool server unavailable")
		}
		ts.cleanups = append(ts.cleanups, func(context.Context) error {
			return connector.Close()
		})
	}

	registry.ApplyPolicy(&d.config.Tools.Policy)
	return ts, nil
}

// ToolSchemas returns the capability schemas an agent would export, with
// remote servers connected for the duration of the call.
func (d *Daemon) ToolSchemas(ctx context.Context) ([]toolexecutor.Schema, error) {
	env := agent.Env{
		Logger: d.log,
		Output: io.Discard,
		Input: func(context.Context, string) (string, error) {
			return "", errors.New("no input available")
		},
	}
	ts, err := d.buildTools(ctx, env)
	if err != nil {
		return nil, err
	}
	defer ts.close(ctx, d.log)

	return ts.registry.ExportSchemas(), nil
}
