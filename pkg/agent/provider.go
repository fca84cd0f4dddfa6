package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/harun/nava/pkg/toolexecutor"
)

// LLMProvider is an interface for LLM API providers
type LLMProvider interface {
	// Call makes an LLM API call
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)

	// Provider returns the provider name
	Provider() string
}

// LLMRequest contains the request parameters for LLM call
type LLMRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Tools        []toolexecutor.Schema
	Temperature  float64
	MaxTokens    int
}

// LLMResponse contains the response from LLM
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// ProviderConfig selects and configures a reasoning provider.
type ProviderConfig struct {
	Provider   string            `json:"provider" mapstructure:"provider"`
	APIKey     string            `json:"api_key" mapstructure:"api_key"`
	BaseURL    string            `json:"base_url" mapstructure:"base_url"`
	Headers    map[string]string `json:"headers" mapstructure:"headers"`
	MaxRetries int               `json:"max_retries" mapstructure:"max_retries"`
	Timeout    time.Duration     `json:"timeout" mapstructure:"timeout"`
}

// NewProvider creates the provider named by cfg.Provider.
func NewProvider(cfg ProviderConfig) (LLMProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required for provider %q", cfg.Provider)
	}
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	case "openai", "openrouter", "":
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// parseArguments decodes a JSON argument object. Malformed input leaves the
// call with nil Arguments and the raw text, so the loop can report it.
func parseArguments(raw string) map[string]interface{} {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args
}

func marshalArguments(tc ToolCall) (string, error) {
	if tc.Arguments == nil {
		if tc.Raw != "" {
			return tc.Raw, nil
		}
		return "{}", nil
	}
	data, err := json.Marshal(tc.Arguments)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tool arguments: %w", err)
	}
	return string(data), nil
}
