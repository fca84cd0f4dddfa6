package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

// Redactor masks credentials in log output and user-facing error text.
type Redactor struct {
	patterns []*regexp.Regexp
}

var defaultRedactor = NewRedactor()

// NewRedactor creates a new redactor with default patterns
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// OpenRouter, Anthropic and OpenAI keys
			regexp.MustCompile(`sk-or-v1-[a-zA-Z0-9_-]{8,}`),
			regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{8,}`),
			regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),

			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),

			// Header and query style keys
			regexp.MustCompile(`(?i)x-api-key["\s:=]+[^\s"]+`),
			regexp.MustCompile(`(?i)api_key["\s:=]+[^\s"&]+`),

			regexp.MustCompile(`(?i)secret["\s:=]+[^\s"]+`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact redacts sensitive information from a string
func (r *Redactor) Redact(s string) string {
	for _, pattern := range r.patterns {
		s = pattern.ReplaceAllString(s, redacted)
	}
	return s
}

// Wrap wraps an io.Writer to redact sensitive information
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

// RedactString masks credentials using the default patterns.
func RedactString(s string) string {
	return defaultRedactor.Redact(s)
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
