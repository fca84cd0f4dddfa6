// Package session bridges one duplex connection to one agent run.
//
// Invariants:
// - The first inbound message is the task prompt.
// - Later inbound messages answer the pending input request, or are discarded.
// - Log lines, incidental output lines and input requests leave in emission order.
// - Exactly one terminal frame (DONE or an error frame) is sent, and it is the last frame.
//
// Usage:
//
//	bridge, err := session.NewBridge(conn, session.BridgeConfig{Factory: rt.Factory, Logger: logger})
//	if err != nil {
//		return err
//	}
//	_ = bridge.Serve(ctx)
package session
