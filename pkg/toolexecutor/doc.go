// Package toolexecutor holds the capability registry used by the agent loop.
//
// Invariants:
// - Tool names are unique; registering an existing name replaces it in place.
// - Exported schemas follow insertion order.
// - Parameters are schema-validated before execution.
// - Tool failures come back as failed Results, not errors. Only a panic
//   inside a tool is returned as an error (ErrToolPanic).
//
// Usage:
//
//	reg := toolexecutor.NewRegistry()
//	echo := toolexecutor.MustFuncTool("echo", "Echo input",
//		[]toolexecutor.Parameter{{Name: "text", Type: "string", Description: "text", Required: true}},
//		func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return params["text"], nil })
//	_ = reg.Add(echo)
//	res, err := reg.Execute(ctx, "echo", map[string]interface{}{"text": "hi"})
package toolexecutor
