package toolexecutor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type remoteStub struct {
	name   string
	server string
}

func (s *remoteStub) Name() string        { return s.name }
func (s *remoteStub) Description() string { return "remote " + s.name }
func (s *remoteStub) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (s *remoteStub) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return s.server + ":" + s.name, nil
}
func (s *remoteStub) Source() string { return s.server }

func echoTool(t *testing.T, name string) *FuncTool {
	t.Helper()
	tool, err := NewFuncTool(name, "Echo the input text", []Parameter{
		{Name: "text", Type: "string", Description: "Text to echo", Required: true},
	}, func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return params["text"], nil
	})
	require.NoError(t, err)
	return tool
}

func TestNewFuncTool_InvalidDefinition(t *testing.T) {
	handler := func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return nil, nil }

	tests := []struct {
		name        string
		toolName    string
		description string
		params      []Parameter
		handler     Handler
	}{
		{name: "empty name", description: "d", handler: handler},
		{name: "empty description", toolName: "t", handler: handler},
		{name: "nil handler", toolName: "t", description: "d"},
		{name: "bad param type", toolName: "t", description: "d", handler: handler,
			params: []Parameter{{Name: "x", Type: "date"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFuncTool(tt.toolName, tt.description, tt.params, tt.handler)
			assert.Error(t, err)
		})
	}
}

func TestRegistry_AddAndExport(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.AddAll(echoTool(t, "b"), echoTool(t, "a"), &remoteStub{name: "c", server: "s1"}))
	assert.Equal(t, []string{"b", "a", "c"}, reg.Names())

	schemas := reg.ExportSchemas()
	require.Len(t, schemas, 3)
	assert.Equal(t, "b", schemas[0].Name)
	assert.Equal(t, "Echo the input text", schemas[0].Description)
	assert.Equal(t, []string{"text"}, schemas[0].Parameters["required"])
	assert.Equal(t, schemas, reg.ExportSchemas())
}

func TestRegistry_ReplaceKeepsPosition(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.AddAll(echoTool(t, "first"), echoTool(t, "second")))

	replacement := &remoteStub{name: "first", server: "srv"}
	require.NoError(t, reg.Add(replacement))

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []string{"first", "second"}, reg.Names())

	got, err := reg.Get("first")
	require.NoError(t, err)
	assert.Same(t, replacement, got)
}

func TestRegistry_AddRejectsInvalid(t *testing.T) {
	reg := NewRegistry()
	assert.Error(t, reg.Add(nil))
	assert.Error(t, reg.Add(&remoteStub{}))
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_RemoveWhere(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.AddAll(
		echoTool(t, "local"),
		&remoteStub{name: "r1", server: "alpha"},
		&remoteStub{name: "r2", server: "beta"},
		&remoteStub{name: "r3", server: "alpha"},
	))

	removed := reg.RemoveWhere(func(t Tool) bool { return SourceOf(t) == "alpha" })
	assert.Equal(t, 2, removed)
	assert.Equal(t, []string{"local", "r2"}, reg.Names())

	removed = reg.RemoveWhere(func(t Tool) bool { return SourceOf(t) == "gamma" })
	assert.Equal(t, 0, removed)
	assert.Equal(t, []string{"local", "r2"}, reg.Names())
}

func TestRegistry_Get(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get("missing")
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestRegistry_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Add(echoTool(t, "echo")))

		res, err := reg.Execute(ctx, "echo", map[string]interface{}{"text": "hello"})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "hello", res.Output)
		assert.Equal(t, "Observed output of cmd `echo` executed:\nhello", res.Observation())
	})

	t.Run("unknown tool is a failed result", func(t *testing.T) {
		reg := NewRegistry()
		res, err := reg.Execute(ctx, "nope", nil)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.ErrorIs(t, res.Err, ErrToolNotFound)
		assert.True(t, strings.HasPrefix(res.Observation(), "Error: "))
	})

	t.Run("malformed arguments are a failed result", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Add(echoTool(t, "echo")))

		res, err := reg.Execute(ctx, "echo", map[string]interface{}{"text": 42, "extra": true})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "invalid arguments for echo")

		var capErr *CapabilityError
		require.ErrorAs(t, res.Err, &capErr)
		assert.Equal(t, "echo", capErr.Tool)
	})

	t.Run("handler error is a failed result", func(t *testing.T) {
		reg := NewRegistry()
		boom := MustFuncTool("boom", "Always fails", nil,
			func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return nil, errors.New("disk full")
			})
		require.NoError(t, reg.Add(boom))

		res, err := reg.Execute(ctx, "boom", nil)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, "Error: disk full", res.Observation())
	})

	t.Run("panic is returned as error", func(t *testing.T) {
		reg := NewRegistry()
		bad := MustFuncTool("bad", "Panics", nil,
			func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				panic("nil map")
			})
		require.NoError(t, reg.Add(bad))

		res, err := reg.Execute(ctx, "bad", nil)
		assert.ErrorIs(t, err, ErrToolPanic)
		assert.False(t, res.Success)
	})

	t.Run("timeout", func(t *testing.T) {
		reg := NewRegistry(WithTimeout(20 * time.Millisecond))
		slow := MustFuncTool("slow", "Sleeps", nil,
			func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				<-ctx.Done()
				time.Sleep(50 * time.Millisecond)
				return "late", nil
			})
		require.NoError(t, reg.Add(slow))

		res, err := reg.Execute(ctx, "slow", nil)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "timeout")
	})

	t.Run("tool override disables timeout", func(t *testing.T) {
		reg := NewRegistry(WithTimeout(10 * time.Millisecond))
		patient := MustFuncTool("patient", "Waits", nil,
			func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				time.Sleep(40 * time.Millisecond)
				return "answer", ctx.Err()
			}).WithTimeout(0)
		require.NoError(t, reg.Add(patient))

		res, err := reg.Execute(ctx, "patient", nil)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "answer", res.Output)
	})

	t.Run("output truncated", func(t *testing.T) {
		reg := NewRegistry(WithMaxOutput(8))
		require.NoError(t, reg.Add(echoTool(t, "echo")))

		res, err := reg.Execute(ctx, "echo", map[string]interface{}{"text": "0123456789abcdef"})
		require.NoError(t, err)
		assert.True(t, res.Truncated)
		assert.True(t, strings.HasPrefix(res.Output, "01234567"))
	})

	t.Run("structured output is JSON", func(t *testing.T) {
		reg := NewRegistry()
		obj := MustFuncTool("obj", "Returns a map", nil,
			func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
				return map[string]interface{}{"n": 1}, nil
			})
		require.NoError(t, reg.Add(obj))

		res, err := reg.Execute(ctx, "obj", nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":1}`, res.Output)
	})
}

func TestPolicy(t *testing.T) {
	var nilPolicy *Policy
	assert.True(t, nilPolicy.IsAllowed("anything"))

	p := &Policy{Deny: []string{"mcp_*"}}
	assert.False(t, p.IsAllowed("mcp_files_read"))
	assert.True(t, p.IsAllowed("terminate"))

	p = &Policy{Allow: []string{"terminate", "ask_user"}, Deny: []string{"ask_user"}}
	assert.True(t, p.IsAllowed("terminate"))
	assert.False(t, p.IsAllowed("ask_user"))
	assert.False(t, p.IsAllowed("browser_use"))

	assert.NoError(t, p.Validate())
	assert.Error(t, (&Policy{Allow: []string{"mcp_["}}).Validate())

	reg := NewRegistry()
	require.NoError(t, reg.AddAll(echoTool(t, "terminate"), echoTool(t, "ask_user"), echoTool(t, "browser_use")))
	assert.Equal(t, 2, reg.ApplyPolicy(p))
	assert.Equal(t, []string{"terminate"}, reg.Names())
}

func TestOutputContext(t *testing.T) {
	var sb strings.Builder
	ctx := WithOutput(context.Background(), &sb)
	_, _ = Output(ctx).Write([]byte("x"))
	assert.Equal(t, "x", sb.String())
	assert.NotNil(t, Output(context.Background()))
}
