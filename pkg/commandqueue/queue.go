package commandqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/nava/internal/observability"
	"github.com/harun/nava/internal/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// MainLane is the general purpose lane.
	MainLane = "main"
	// DispatchLane serializes agent dispatches.
	DispatchLane = "dispatch"
)

var (
	// ErrClosed is returned for tasks enqueued on, or pending in, a closed queue.
	ErrClosed = errors.New("command queue closed")
	// ErrLaneCleared is returned to callers whose queued task was cleared.
	ErrLaneCleared = errors.New("lane cleared")
)

// Task represents an asynchronous operation to be executed
type Task func(ctx context.Context) (interface{}, error)

// TaskOptions provides configuration for task execution
type TaskOptions struct {
	// WarnAfter logs and calls OnWait when the task is still queued after this long.
	WarnAfter time.Duration
	OnWait    func(wait time.Duration, queuePos int)
}

type taskRecord struct {
	id         string
	task       Task
	ctx        context.Context
	enqueuedAt time.Time
	options    TaskOptions
	result     chan taskResult
}

type taskResult struct {
	value interface{}
	err   error
}

type laneState struct {
	concurrency int
	queue       []*taskRecord
	running     int
	mu          sync.Mutex
}

// CommandQueue provides lane-based task serialization with concurrency control
type CommandQueue struct {
	lanes     map[string]*laneState
	taskIDSeq int
	closed    bool
	mu        sync.RWMutex
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a CommandQueue with the main and dispatch lanes, both serial.
func New() *CommandQueue {
	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())
	cq := &CommandQueue{
		lanes:  make(map[string]*laneState),
		ctx:    ctx,
		cancel: cancel,
	}
	cq.initLane(MainLane, 1)
	cq.initLane(DispatchLane, 1)
	return cq
}

func (cq *CommandQueue) initLane(lane string, concurrency int) *laneState {
	cq.mu.Lock()
	defer cq.mu.Unlock()

	ls, exists := cq.lanes[lane]
	if !exists {
		ls = &laneState{concurrency: concurrency}
		cq.lanes[lane] = ls
		log.Debug().Str("lane", lane).Int("concurrency", concurrency).Msg("Lane initialized")
	}
	return ls
}

func (cq *CommandQueue) lane(lane string) *laneState {
	cq.mu.RLock()
	ls, exists := cq.lanes[lane]
	cq.mu.RUnlock()
	if exists {
		return ls
	}
	return cq.initLane(lane, 1)
}

// Enqueue adds task to lane and waits for its result. If ctx ends while the
// task is queued it is dropped; if it ends while running, the task's context
// is cancelled and Enqueue returns ctx.Err() without waiting.
func (cq *CommandQueue) Enqueue(ctx context.Context, lane string, task Task, options *TaskOptions) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := tracing.StartSpan(ctx, "nava.commandqueue", "commandqueue.enqueue", attribute.String("lane", lane))
	defer span.End()

	cq.mu.Lock()
	if cq.closed {
		cq.mu.Unlock()
		return nil, ErrClosed
	}
	cq.taskIDSeq++
	taskID := fmt.Sprintf("%s-%d", lane, cq.taskIDSeq)
	cq.mu.Unlock()

	opts := TaskOptions{}
	if options != nil {
		opts = *options
	}

	record := &taskRecord{
		id:         taskID,
		task:       task,
		ctx:        ctx,
		enqueuedAt: time.Now(),
		options:    opts,
		result:     make(chan taskResult, 1),
	}

	ls := cq.lane(lane)
	ls.mu.Lock()
	ls.queue = append(ls.queue, record)
	queueSize := len(ls.queue)
	ls.mu.Unlock()

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Debug().Str("lane", lane).Str("taskId", taskID).Int("queueSize", queueSize).Msg("Task enqueued")
	observability.SetDispatchQueueSize(lane, queueSize)

	if opts.WarnAfter > 0 {
		go cq.startWarnTimer(record, lane)
	}

	go cq.processLane(lane)

	select {
	case result := <-record.result:
		if result.err != nil {
			tracing.RecordError(span, result.err)
		}
		return result.value, result.err
	case <-ctx.Done():
		if cq.dequeue(lane, record) {
			logger.Debug().Str("lane", lane).Str("taskId", taskID).Msg("Task abandoned while queued")
		}
		tracing.RecordError(span, ctx.Err())
		return nil, ctx.Err()
	}
}

// dequeue removes record if it is still waiting; it reports whether it was.
func (cq *CommandQueue) dequeue(lane string, record *taskRecord) bool {
	ls := cq.lane(lane)
	ls.mu.Lock()
	defer ls.mu.Unlock()

	for i, r := range ls.queue {
		if r == record {
			ls.queue = append(ls.queue[:i], ls.queue[i+1:]...)
			observability.SetDispatchQueueSize(lane, len(ls.queue))
			return true
		}
	}
	return false
}

func (cq *CommandQueue) processLane(lane string) {
	ls := cq.lane(lane)
	ls.mu.Lock()
	defer ls.mu.Unlock()

	for ls.running < ls.concurrency && len(ls.queue) > 0 {
		record := ls.queue[0]
		ls.queue = ls.queue[1:]
		observability.SetDispatchQueueSize(lane, len(ls.queue))

		if err := record.ctx.Err(); err != nil {
			record.result <- taskResult{err: err}
			continue
		}

		ls.running++
		cq.wg.Add(1)
		go cq.executeTask(lane, record)
	}
}

func (cq *CommandQueue) executeTask(lane string, record *taskRecord) {
	defer cq.wg.Done()

	taskCtx, span := tracing.StartSpan(
		record.ctx,
		"nava.commandqueue",
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

	start := time.Now()
	value, err := runTask(runCtx, record.task)
	duration := time.Since(start)

	ls := cq.lane(lane)
	ls.mu.Lock()
	ls.running--
	ls.mu.Unlock()

	record.result <- taskResult{value: value, err: err}

	if err != nil {
		tracing.RecordError(span, err)
		logger.Debug().Str("lane", lane).Str("taskId", record.id).Dur("duration", duration).Err(err).Msg("Task failed")
	} else {
		logger.Debug().Str("lane", lane).Str("taskId", record.id).Dur("duration", duration).Msg("Task completed")
	}
	observability.RecordDispatch(lane, duration, err == nil)

	go cq.processLane(lane)
}

func runTask(ctx context.Context, task Task) (value interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return task(ctx)
}

func (cq *CommandQueue) startWarnTimer(record *taskRecord, lane string) {
	timer := time.NewTimer(record.options.WarnAfter)
	defer timer.Stop()

	select {
	case <-timer.C:
		ls := cq.lane(lane)
		ls.mu.Lock()
		queuePos := -1
		for i, r := range ls.queue {
			if r == record {
				queuePos = i
				break
			}
		}
		ls.mu.Unlock()

		if queuePos >= 0 {
			wait := time.Since(record.enqueuedAt)
			log.Warn().
				Str("lane", lane).
				Str("taskId", record.id).
				Dur("wait", wait).
				Int("queuePos", queuePos).
				Msg("Task waiting longer than expected")

			if record.options.OnWait != nil {
				record.options.OnWait(wait, queuePos)
			}
		}
	case <-record.ctx.Done():
	case <-cq.ctx.Done():
	}
}

// QueueSize returns the number of queued tasks for a lane
func (cq *CommandQueue) QueueSize(lane string) int {
	cq.mu.RLock()
	ls, exists := cq.lanes[lane]
	cq.mu.RUnlock()
	if !exists {
		return 0
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.queue)
}

// RunningCount returns the number of currently executing tasks for a lane
func (cq *CommandQueue) RunningCount(lane string) int {
	cq.mu.RLock()
	ls, exists := cq.lanes[lane]
	cq.mu.RUnlock()
	if !exists {
		return 0
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.running
}

// Stats returns statistics for all lanes
func (cq *CommandQueue) Stats() map[string]map[string]int {
	cq.mu.RLock()
	defer cq.mu.RUnlock()

	stats := make(map[string]map[string]int, len(cq.lanes))
	for lane, ls := range cq.lanes {
		ls.mu.Lock()
		stats[lane] = map[string]int{
			"queued":      len(ls.queue),
			"running":     ls.running,
			"concurrency": ls.concurrency,
		}
		ls.mu.Unlock()
	}
	return stats
}

// ClearLane rejects every queued task in lane with ErrLaneCleared.
func (cq *CommandQueue) ClearLane(lane string) int {
	return cq.rejectQueued(lane, ErrLaneCleared)
}

func (cq *CommandQueue) rejectQueued(lane string, reason error) int {
	cq.mu.RLock()
	ls, exists := cq.lanes[lane]
	cq.mu.RUnlock()
	if !exists {
		return 0
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	count := len(ls.queue)
	for _, record := range ls.queue {
		record.result <- taskResult{err: reason}
	}
	ls.queue = nil
	observability.SetDispatchQueueSize(lane, 0)

	if count > 0 {
		log.Info().Str("lane", lane).Int("cleared", count).Msg("Lane cleared")
	}
	return count
}

// SetConcurrency updates the concurrency limit for a lane
func (cq *CommandQueue) SetConcurrency(lane string, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	ls := cq.lane(lane)
	ls.mu.Lock()
	oldMax := ls.concurrency
	ls.concurrency = concurrency
	ls.mu.Unlock()

	log.Debug().Str("lane", lane).Int("oldMax", oldMax).Int("newMax", concurrency).Msg("Lane concurrency updated")

	if concurrency > oldMax {
		go cq.processLane(lane)
	}
}

// Close rejects queued tasks, cancels running ones and waits for them to return.
func (cq *CommandQueue) Close() error {
	cq.mu.Lock()
	if cq.closed {
		cq.mu.Unlock()
		return nil
	}
	cq.closed = true
	lanes := make([]string, 0, len(cq.lanes))
	for lane := range cq.lanes {
		lanes = append(lanes, lane)
	}
	cq.mu.Unlock()

	for _, lane := range lanes {
		cq.rejectQueued(lane, ErrClosed)
	}
	cq.cancel()
	cq.wg.Wait()
	return nil
}
