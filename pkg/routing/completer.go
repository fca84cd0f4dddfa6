package routing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/harun/nava/internal/logger"
	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"
	DefaultFallbackModel = "openai/gpt-4o-mini"
	openRouterKeyPrefix  = "sk-or-v1-"
	openRouterKeysURL    = "https://openrouter.ai/keys"
)

// Completer performs a single-turn completion outside the agent loop.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// CompleterConfig configures a DirectCompleter.
type CompleterConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	// Referer and Title identify the app to OpenRouter.
	Referer string
	Title   string
	// Transport overrides the HTTP transport. Used by tests.
	Transport http.RoundTripper
}

// DirectCompleter calls an OpenAI-compatible chat completion endpoint
// directly, bypassing the agent loop and its tools.
type DirectCompleter struct {
	client *openai.Client
	cfg    CompleterConfig
}

// NewDirectCompleter creates a completer. Key problems are reported by
// Complete so a misconfigured fallback never blocks startup.
func NewDirectCompleter(cfg CompleterConfig) *DirectCompleter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenRouterURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultFallbackModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Title == "" {
		cfg.Title = "nava"
	}

	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	headers := map[string]string{"X-Title": cfg.Title}
	if cfg.Referer != "" {
		headers["HTTP-Referer"] = cfg.Referer
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	clientConfig.HTTPClient = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &headerTransport{base: base, headers: headers},
	}

	return &DirectCompleter{client: openai.NewClientWithConfig(clientConfig), cfg: cfg}
}

// Complete sends system and prompt as one chat turn and returns the reply text.
func (c *DirectCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	if err := c.checkKey(); err != nil {
		return "", err
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", c.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("fallback completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *DirectCompleter) checkKey() error {
	if c.cfg.APIKey == "" {
		return fmt.Errorf("no API key configured for the fallback provider; set OPENROUTER_API_KEY (get a key at %s)", openRouterKeysURL)
	}
	if strings.HasPrefix(c.cfg.BaseURL, DefaultOpenRouterURL) && !strings.HasPrefix(c.cfg.APIKey, openRouterKeyPrefix) {
		return fmt.Errorf("invalid OpenRouter API key format: keys start with '%s' (get a key at %s)", openRouterKeyPrefix, openRouterKeysURL)
	}
	return nil
}

func (c *DirectCompleter) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := logger.RedactString(apiErr.Message)
		if apiErr.HTTPStatusCode == http.StatusUnauthorized {
			return fmt.Errorf("Authentication Error: %s. Please check your API key at %s", msg, openRouterKeysURL)
		}
		return fmt.Errorf("API Error %d: %s", apiErr.HTTPStatusCode, msg)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("API Error %d: %s", reqErr.HTTPStatusCode, logger.RedactString(truncate(string(reqErr.Body), 200)))
	}
	return fmt.Errorf("fallback request failed: %w", err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// headerTransport adds fixed headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// IsErrorShaped reports whether a completion's text is an error report
// rather than an answer.
func IsErrorShaped(output string) bool {
	trimmed := strings.TrimSpace(output)
	return trimmed == "" || strings.HasPrefix(trimmed, "Error:") || strings.HasPrefix(trimmed, "Authentication Error:")
}
