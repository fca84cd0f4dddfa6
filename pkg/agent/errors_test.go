package agent

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewProviderError_Classification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		want    Reason
	}{
		{"401", 401, "", ReasonAuth},
		{"403", 403, "", ReasonAuth},
		{"402", 402, "", ReasonBilling},
		{"429", 429, "", ReasonRateLimit},
		{"400", 400, "", ReasonFormat},
		{"500", 500, "", ReasonServer},
		{"message auth", 0, "Invalid API key provided", ReasonAuth},
		{"message user not found", 0, "User not found.", ReasonAuth},
		{"message timeout", 0, "context deadline exceeded", ReasonTimeout},
		{"message rate", 0, "Rate limit reached", ReasonRateLimit},
		{"unknown", 0, "something odd", ReasonUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewProviderError("openai", "m", tt.status, tt.message, nil).Reason)
		})
	}
}

func TestProviderError_RedactsCredentials(t *testing.T) {
	err := NewProviderError("openrouter", "m", 401, "bad key sk-or-v1-abcdef1234567890abcdef", nil)
	assert.NotContains(t, err.Error(), "abcdef1234567890")
	assert.Contains(t, err.Error(), "[auth] openrouter model=m status=401")
}

type authenticationError struct{}

func (authenticationError) Error() string { return "AuthenticationError: Error code: 401" }

func TestIsAuthError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed auth", fmt.Errorf("run: %w", NewProviderError("p", "m", 401, "", nil)), true},
		{"typed server", fmt.Errorf("run: %w", NewProviderError("p", "m", 503, "", nil)), false},
		{"untyped root cause", fmt.Errorf("agent: %w", fmt.Errorf("llm: %w", authenticationError{})), true},
		{"wrapper mentions 401 but root does not", fmt.Errorf("step 401: %w", errors.New("connection reset")), false},
		{"plain", errors.New("disk full"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAuthError(tt.err))
		})
	}
}

func TestRootCause(t *testing.T) {
	root := errors.New("root")
	assert.Equal(t, root, RootCause(fmt.Errorf("a: %w", fmt.Errorf("b: %w", root))))
	assert.Nil(t, RootCause(nil))
}
