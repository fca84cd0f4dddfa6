package toolexecutor

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrToolNotFound is returned when no tool is registered under a name.
	ErrToolNotFound = errors.New("tool not found")
	// ErrToolPanic marks a programming-level failure inside a tool.
	ErrToolPanic = errors.New("tool panicked")
)

// CapabilityError describes a tool invocation that failed. It is carried
// inside a failed Result and never aborts the caller.
type CapabilityError struct {
	Tool string
	Err  error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// Result represents the result of a tool execution
type Result struct {
	Tool      string        `json:"tool"`
	Success   bool          `json:"success"`
	Output    string        `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// Observation renders the result as the text recorded in conversation memory.
func (r Result) Observation() string {
	if !r.Success {
		return "Error: " + r.Error
	}
	if r.Output == "" {
		return fmt.Sprintf("Cmd `%s` completed with no output", r.Tool)
	}
	return fmt.Sprintf("Observed output of cmd `%s` executed:\n%s", r.Tool, r.Output)
}

func failed(tool string, err error, duration time.Duration) Result {
	capErr := &CapabilityError{Tool: tool, Err: err}
	return Result{
		Tool:     tool,
		Success:  false,
		Error:    err.Error(),
		Duration: duration,
		Err:      capErr,
	}
}

// stringify converts a tool return value into text.
func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case fmt.Stringer:
		return val.String()
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func truncate(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	return s[:max] + "\n... [output truncated]", true
}
