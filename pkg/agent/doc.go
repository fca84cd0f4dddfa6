// Package agent runs the think/act control loop over a tool registry.
//
// Invariants:
// - Each Agent owns one registry and one memory and runs once.
// - Capability failures become tool turns in memory; only reasoning provider
//   failures, tool panics and cancellation abort a run.
// - The terminate tool ends the run; the step budget bounds it otherwise.
// - Callers reach agents through a readiness-gated Handle, never a global.
//
// Usage:
//
//	a, _ := agent.New(agent.Config{Provider: p, Model: "openai/gpt-4o-mini", Tools: reg})
//	defer a.Cleanup(ctx)
//	transcript, err := a.Run(ctx, "summarize the workspace")
package agent
