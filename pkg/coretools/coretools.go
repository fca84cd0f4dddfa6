// Package coretools provides the local capabilities every agent starts with.
package coretools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/harun/nava/pkg/toolexecutor"
)

// InputFunc asks the human a question and waits for the answer.
type InputFunc func(ctx context.Context, question string) (string, error)

// Options configures core tool construction.
type Options struct {
	WorkspaceRoot string
	// Input backs ask_user. Nil leaves ask_user out.
	Input InputFunc
	// HTTPClient is used by network tools. Defaults to a 30s client.
	HTTPClient *http.Client
	// WikipediaURL is a format string taking the language code.
	WikipediaURL string
}

// Tools builds the core capability set.
func Tools(opts Options) ([]toolexecutor.Tool, error) {
	if strings.TrimSpace(opts.WorkspaceRoot) == "" {
		return nil, errors.New("workspace root is required")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.WikipediaURL == "" {
		opts.WikipediaURL = DefaultWikipediaURL
	}

	tools := []toolexecutor.Tool{
		terminateTool(opts),
		readFileTool(opts),
		writeFileTool(opts),
		editFileTool(opts),
		wikipediaTool(opts),
	}
	if opts.Input != nil {
		tools = append(tools, askUserTool(opts.Input))
	}
	return tools, nil
}

// Register adds the core capability set to registry.
func Register(registry *toolexecutor.Registry, opts Options) error {
	if registry == nil {
		return errors.New("tool registry is required")
	}
	tools, err := Tools(opts)
	if err != nil {
		return err
	}
	if err := registry.AddAll(tools...); err != nil {
		return fmt.Errorf("failed to register core tools: %w", err)
	}
	return nil
}

func toStringSlice(value interface{}) []string {
	raw, ok := value.([]interface{})
	if !ok {
		if s, ok := value.([]string); ok {
			return s
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func intParam(value interface{}, fallback int) int {
	switch v := value.(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	case int64:
		if v > 0 {
			return int(v)
		}
	}
	return fallback
}
