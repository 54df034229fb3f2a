// Package commandqueue provides lane-based task execution with FIFO ordering per lane.
//
// Invariants:
// - Tasks in the same lane execute one at a time, in submission order.
// - Tasks in different lanes may execute concurrently.
// - A lane exists only while it has queued or running work.
// - A task submitted with a DedupKey seen within the TTL is rejected with ErrDuplicate.
//
// Usage:
//
//	queue := commandqueue.New(commandqueue.Options{})
//	defer queue.Close()
//	result, err := queue.Enqueue("telegram:42", func(ctx context.Context) (interface{}, error) {
//		return "ok", nil
//	}, nil)
package commandqueue
