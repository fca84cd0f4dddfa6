package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact(t *testing.T) {
	r := NewRedactor()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"openrouter key", "Invalid key sk-or-v1-0123456789abcdef", "Invalid key [REDACTED]"},
		{"anthropic key", "key=sk-ant-api03-abcdefgh rejected", "key=[REDACTED] rejected"},
		{"openai key", "using sk-proj0123456789abcdefghij now", "using [REDACTED] now"},
		{"short sk prefix kept", "task sk-12 is done", "task sk-12 is done"},
		{"bearer token", "Authorization: Bearer abc123.def456", "Authorization: [REDACTED]"},
		{"api key header", `x-api-key: clipdrop123`, `[REDACTED]`},
		{"query api key", "GET /v1/img?api_key=abc123&size=2", "GET /v1/img?[REDACTED]&size=2"},
		{"shared secret", `{"shared_secret": "hunter2"}`, `{"shared_[REDACTED]"}`},
		{"plain text", "Executing step 3/20", "Executing step 3/20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.Redact(tt.input))
		})
	}
}

func TestAddPattern(t *testing.T) {
	r := NewRedactor()

	t.Run("valid pattern", func(t *testing.T) {
		require.NoError(t, r.AddPattern(`mcp-token-[0-9]+`))
		assert.Equal(t, "server said [REDACTED]", r.Redact("server said mcp-token-4242"))
	})

	t.Run("invalid pattern", func(t *testing.T) {
		assert.Error(t, r.AddPattern(`[invalid`))
	})
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWrap(t *testing.T) {
	t.Run("reports the input length", func(t *testing.T) {
		buf := &bytes.Buffer{}
		w := NewRedactor().Wrap(buf)

		data := []byte(`{"level":"error","error":"401 for sk-or-v1-0123456789abcdef"}` + "\n")
		n, err := w.Write(data)

		require.NoError(t, err)
		assert.Equal(t, len(data), n)
		assert.Equal(t, `{"level":"error","error":"401 for [REDACTED]"}`+"\n", buf.String())
	})

	t.Run("passes through clean lines", func(t *testing.T) {
		buf := &bytes.Buffer{}
		w := NewRedactor().Wrap(buf)

		_, err := w.Write([]byte("INFO - Starting agent"))
		require.NoError(t, err)
		assert.Equal(t, "INFO - Starting agent", buf.String())
	})

	t.Run("propagates write errors", func(t *testing.T) {
		n, err := NewRedactor().Wrap(failingWriter{}).Write([]byte("x"))
		assert.Error(t, err)
		assert.Zero(t, n)
	})
}

func TestRedactString(t *testing.T) {
	msg := RedactString("401 Unauthorized for key sk-ant-api03-abcdefghijkl")
	assert.Equal(t, "401 Unauthorized for key [REDACTED]", msg)
}
