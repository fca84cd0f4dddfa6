package toolexecutor

import (
	"context"
	"fmt"
	"time"
)

// Tool is a named, schema-described capability the agent can invoke.
// Local tools and remote protocol tools both implement it.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON schema object describing the arguments.
	Parameters() map[string]interface{}
	Execute(ctx context.Context, params map[string]interface{}) (interface{}, error)
}

// Sourced is implemented by tools owned by an out-of-process provider.
type Sourced interface {
	Source() string
}

// TimeoutOverride lets a tool replace the registry timeout. Zero disables the
// timeout; a negative value keeps the registry default.
type TimeoutOverride interface {
	Timeout() time.Duration
}

// SourceOf returns the owning provider of t, or "" for local tools.
func SourceOf(t Tool) string {
	if s, ok := t.(Sourced); ok {
		return s.Source()
	}
	return ""
}

// Schema is the descriptor handed to the reasoning provider.
type Schema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Parameter defines a parameter for a local tool
type Parameter struct {
	Name        string                 `json:"name"`
	Type        string                 `json:"type"`
	Description string                 `json:"description"`
	Required    bool                   `json:"required"`
	Enum        []string               `json:"enum,omitempty"`
	Items       map[string]interface{} `json:"items,omitempty"`
	Default     interface{}            `json:"default,omitempty"`
}

// Handler is the function signature for local tool execution
type Handler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// FuncTool is a Tool backed by a Go function.
type FuncTool struct {
	name        string
	description string
	parameters  []Parameter
	schema      map[string]interface{}
	handler     Handler
	timeout     *time.Duration
}

var validParamTypes = map[string]bool{
	"string": true, "number": true, "boolean": true,
	"object": true, "array": true, "integer": true,
}

// NewFuncTool validates the definition and builds a FuncTool.
func NewFuncTool(name, description string, params []Parameter, handler Handler) (*FuncTool, error) {
	if name == "" {
		return nil, fmt.Errorf("tool name cannot be empty")
	}
	if description == "" {
		return nil, fmt.Errorf("tool description cannot be empty")
	}
	if handler == nil {
		return nil, fmt.Errorf("tool handler cannot be nil")
	}

	for _, p := range params {
		if p.Name == "" {
			return nil, fmt.Errorf("parameter name cannot be empty")
		}
		if !validParamTypes[p.Type] {
			return nil, fmt.Errorf("invalid parameter type %q for %s", p.Type, p.Name)
		}
	}

	return &FuncTool{
		name:        name,
		description: description,
		parameters:  params,
		schema:      buildSchema(params),
		handler:     handler,
	}, nil
}

// MustFuncTool is like NewFuncTool but panics on an invalid definition.
func MustFuncTool(name, description string, params []Parameter, handler Handler) *FuncTool {
	t, err := NewFuncTool(name, description, params, handler)
	if err != nil {
		panic(err)
	}
	return t
}

// WithTimeout overrides the registry timeout for this tool. Zero means none.
func (t *FuncTool) WithTimeout(d time.Duration) *FuncTool {
	t.timeout = &d
	return t
}

func (t *FuncTool) Name() string                       { return t.name }
func (t *FuncTool) Description() string                { return t.description }
func (t *FuncTool) Parameters() map[string]interface{} { return t.schema }

// Execute calls the handler.
func (t *FuncTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return t.handler(ctx, params)
}

// Timeout implements TimeoutOverride when an override was set.
func (t *FuncTool) Timeout() time.Duration {
	if t.timeout == nil {
		return -1
	}
	return *t.timeout
}

func buildSchema(params []Parameter) map[string]interface{} {
	properties := make(map[string]interface{}, len(params))
	required := []string{}

	for _, p := range params {
		prop := map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Items != nil {
			prop["items"] = p.Items
		} else if p.Type == "array" {
			prop["items"] = map[string]interface{}{"type": "string"}
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop

		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
