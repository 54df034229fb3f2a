package commandqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/harun/sessionbot/internal/observability"
	"github.com/harun/sessionbot/internal/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrClosed is returned for tasks submitted to or still queued in a closed queue.
	ErrClosed = errors.New("command queue closed")

	// ErrLaneDropped is returned for queued tasks discarded by DropLane.
	ErrLaneDropped = errors.New("lane dropped")

	// ErrDuplicate is returned when a task's DedupKey was already submitted.
	ErrDuplicate = errors.New("duplicate task")
)

// Task represents an asynchronous operation to be executed
type Task func(ctx context.Context) (interface{}, error)

// TaskOptions provides configuration for task execution
type TaskOptions struct {
	// WarnAfterMs logs a warning (and calls OnWait) if the task is still queued after this long.
	WarnAfterMs int
	OnWait      func(waitMs int64, queuePos int)

	// DedupKey rejects the task if the same key was submitted within the dedup TTL.
	DedupKey string
}

// Result is the outcome of one task.
type Result struct {
	Value interface{}
	Err   error
}

// Options configures a CommandQueue
type Options struct {
	DedupTTL time.Duration
}

// taskRecord tracks a task's execution state
type taskRecord struct {
	id         string
	task       Task
	ctx        context.Context
	enqueuedAt time.Time
	options    TaskOptions
	result     chan Result
}

// laneState holds the pending tasks of one lane. At most one runs at a time.
type laneState struct {
	queue    []*taskRecord
	running  bool
	activeID string
}

// CommandQueue serializes tasks per lane
type CommandQueue struct {
	mu        sync.Mutex
	lanes     map[string]*laneState
	taskIDSeq int
	closed    bool
	dedup     *dedupCache

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an empty CommandQueue
func New(opts Options) *CommandQueue {
	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())

	return &CommandQueue{
		lanes:  make(map[string]*laneState),
		dedup:  newDedupCache(ctx, opts.DedupTTL),
		ctx:    ctx,
		cancel: cancel,
	}
}

// laneKind keeps metric cardinality bounded: "telegram:42" is reported as "telegram".
func laneKind(lane string) string {
	if i := strings.IndexByte(lane, ':'); i > 0 {
		return lane[:i]
	}
	return lane
}

func resolved(err error) <-chan Result {
	ch := make(chan Result, 1)
	ch <- Result{Err: err}
	close(ch)
	return ch
}

// Submit appends task to lane and returns immediately. The returned channel
// receives exactly one Result. Tasks submitted to a lane from one goroutine
// run in the order Submit was called.
func (cq *CommandQueue) Submit(ctx context.Context, lane string, task Task, options *TaskOptions) <-chan Result {
	if ctx == nil {
		ctx = context.Background()
	}
	if tracing.GetConversationKey(ctx) == "" {
		ctx = tracing.WithConversationKey(ctx, lane)
	}
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	opts := TaskOptions{}
	if options != nil {
		opts = *options
	}

	if opts.DedupKey != "" && cq.dedup.Seen(opts.DedupKey) {
		logger.Debug().Str("lane", lane).Str("dedupKey", opts.DedupKey).Msg("Duplicate task dropped")
		return resolved(ErrDuplicate)
	}

	cq.mu.Lock()
	if cq.closed {
		cq.mu.Unlock()
		return resolved(ErrClosed)
	}

	cq.taskIDSeq++
	record := &taskRecord{
		id:         fmt.Sprintf("%s-%d", lane, cq.taskIDSeq),
		task:       task,
		ctx:        ctx,
		enqueuedAt: time.Now(),
		options:    opts,
		result:     make(chan Result, 1),
	}

	ls, exists := cq.lanes[lane]
	if !exists {
		ls = &laneState{}
		cq.lanes[lane] = ls
	}
	ls.queue = append(ls.queue, record)
	queueSize := len(ls.queue)
	cq.startNextLocked(lane, ls)
	cq.mu.Unlock()

	logger.Debug().
		Str("lane", lane).
		Str("taskId", record.id).
		Int("queueSize", queueSize).
		Msg("Task enqueued")

	observability.RecordQueueEnqueue(laneKind(lane), queueSize)

	if opts.WarnAfterMs > 0 {
		cq.wg.Add(1)
		go cq.startWarnTimer(record, lane)
	}

	return record.result
}

// Enqueue adds a task to the specified lane and waits for its result
func (cq *CommandQueue) Enqueue(lane string, task Task, options *TaskOptions) (interface{}, error) {
	return cq.EnqueueWithContext(context.Background(), lane, task, options)
}

// EnqueueWithContext adds a task to the specified lane and waits for its result.
// If ctx ends first the task still runs; only the wait is abandoned.
func (cq *CommandQueue) EnqueueWithContext(ctx context.Context, lane string, task Task, options *TaskOptions) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := tracing.StartSpan(
		ctx,
		"sessionbot.commandqueue",
		"commandqueue.enqueue",
		attribute.String("lane", lane),
	)
	defer span.End()

	select {
	case result := <-cq.Submit(ctx, lane, task, options):
		tracing.RecordError(span, result.Err)
		return result.Value, result.Err
	case <-ctx.Done():
		tracing.RecordError(span, ctx.Err())
		return nil, ctx.Err()
	}
}

// startNextLocked starts the head of the lane if nothing is running. cq.mu must be held.
func (cq *CommandQueue) startNextLocked(lane string, ls *laneState) {
	if ls.running || len(ls.queue) == 0 {
		return
	}

	record := ls.queue[0]
	ls.queue[0] = nil
	ls.queue = ls.queue[1:]
	ls.running = true
	ls.activeID = record.id

	cq.wg.Add(1)
	go cq.executeTask(lane, record)
}

// executeTask executes a single task
func (cq *CommandQueue) executeTask(lane string, record *taskRecord) {
	defer cq.wg.Done()

	taskCtx, span := tracing.StartSpan(
		record.ctx,
		"sessionbot.commandqueue",
		"commandqueue.execute_task",
		attribute.String("lane", lane),
		attribute.String("task_id", record.id),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(taskCtx, log.Logger)

	runCtx, cancel := context.WithCancel(taskCtx)
	stopCancel := context.AfterFunc(cq.ctx, cancel)
	defer func() {
		stopCancel()
		cancel()
	}()

	startTime := time.Now()
	value, err := cq.run(runCtx, record.task)
	duration := time.Since(startTime)

	cq.mu.Lock()
	queueSize := 0
	if ls, ok := cq.lanes[lane]; ok {
		ls.running = false
		ls.activeID = ""
		queueSize = len(ls.queue)
		if queueSize == 0 {
			delete(cq.lanes, lane)
		} else {
			cq.startNextLocked(lane, ls)
		}
	}
	cq.mu.Unlock()

	record.result <- Result{Value: value, Err: err}
	close(record.result)

	if err != nil {
		tracing.RecordError(span, err)
		logger.Error().
			Str("lane", lane).
			Str("taskId", record.id).
			Dur("duration", duration).
			Err(err).
			Msg("Task failed")
	} else {
		logger.Debug().
			Str("lane", lane).
			Str("taskId", record.id).
			Dur("duration", duration).
			Msg("Task completed")
	}

	observability.RecordQueueCompletion(laneKind(lane), duration, err == nil, queueSize)
}

// run executes task, turning a panic into an error so the lane keeps draining.
func (cq *CommandQueue) run(ctx context.Context, task Task) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}

// startWarnTimer starts a timer to warn about long wait times
func (cq *CommandQueue) startWarnTimer(record *taskRecord, lane string) {
	defer cq.wg.Done()

	timer := time.NewTimer(time.Duration(record.options.WarnAfterMs) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C:
		queuePos := -1
		cq.mu.Lock()
		if ls, ok := cq.lanes[lane]; ok {
			for i, r := range ls.queue {
				if r.id == record.id {
					queuePos = i
					break
				}
			}
		}
		cq.mu.Unlock()

		if queuePos >= 0 {
			waitMs := time.Since(record.enqueuedAt).Milliseconds()
			log.Warn().
				Str("lane", lane).
				Str("taskId", record.id).
				Int64("waitMs", waitMs).
				Int("queuePos", queuePos).
				Msg("Task waiting longer than expected")

			if record.options.OnWait != nil {
				record.options.OnWait(waitMs, queuePos)
			}
		}
	case <-cq.ctx.Done():
	}
}

// GetQueueSize returns the number of queued (not running) tasks for a lane
func (cq *CommandQueue) GetQueueSize(lane string) int {
	cq.mu.Lock()
	defer cq.mu.Unlock()

	if ls, ok := cq.lanes[lane]; ok {
		return len(ls.queue)
	}
	return 0
}

// IsBusy reports whether a task is running in lane
func (cq *CommandQueue) IsBusy(lane string) bool {
	cq.mu.Lock()
	defer cq.mu.Unlock()

	ls, ok := cq.lanes[lane]
	return ok && ls.running
}

// LaneCount returns the number of lanes with queued or running work
func (cq *CommandQueue) LaneCount() int {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	return len(cq.lanes)
}

// DropLane rejects every queued task of lane with ErrLaneDropped. A running
// task is not interrupted. Returns the number of rejected tasks.
func (cq *CommandQueue) DropLane(lane string) int {
	cq.mu.Lock()
	ls, ok := cq.lanes[lane]
	if !ok {
		cq.mu.Unlock()
		return 0
	}
	dropped := ls.queue
	ls.queue = nil
	if !ls.running {
		delete(cq.lanes, lane)
	}
	cq.mu.Unlock()

	for _, record := range dropped {
		record.result <- Result{Err: ErrLaneDropped}
		close(record.result)
	}

	if len(dropped) > 0 {
		log.Info().Str("lane", lane).Int("dropped", len(dropped)).Msg("Lane dropped")
	}
	return len(dropped)
}

// WaitForActive waits for all running and queued tasks to complete with timeout
func (cq *CommandQueue) WaitForActive(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if cq.LaneCount() == 0 {
			return true
		}

		if time.Now().After(deadline) {
			log.Warn().Dur("timeout", timeout).Msg("Timeout waiting for active tasks")
			return false
		}

		<-ticker.C
	}
}

// Close rejects queued tasks with ErrClosed, cancels running tasks' contexts
// and waits for them to return.
func (cq *CommandQueue) Close() error {
	cq.mu.Lock()
	if cq.closed {
		cq.mu.Unlock()
		return nil
	}
	cq.closed = true

	var pending []*taskRecord
	for _, ls := range cq.lanes {
		pending = append(pending, ls.queue...)
		ls.queue = nil
	}
	cq.mu.Unlock()

	for _, record := range pending {
		record.result <- Result{Err: ErrClosed}
		close(record.result)
	}

	cq.cancel()
	cq.wg.Wait()
	<-cq.dedup.done
	return nil
}
