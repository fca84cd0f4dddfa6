// Package commandqueue provides lane-based task execution with FIFO ordering per lane.
//
// Invariants:
// - Tasks in the same lane execute in FIFO order, at most Concurrency at a time.
// - Tasks in different lanes may execute concurrently.
// - A caller whose context ends while its task is still queued is removed from the lane.
//
// Usage:
//
//	queue := commandqueue.New()
//	defer queue.Close()
//	result, err := queue.Enqueue(ctx, commandqueue.DispatchLane, func(ctx context.Context) (interface{}, error) {
//		return "ok", nil
//	}, nil)
package commandqueue
