// internal/orchestrator/orchestrator.go

// Package orchestrator runs the plan-observe-act loop that turns a natural
// language goal into a sequence of concrete actions. It owns task lifecycle
// (admission, budgets, retries, cancellation) and delegates deciding to the
// planner, doing to the executor registry, and seeing to the observation
// provider.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

// ErrUnknownTask is returned for task ids the orchestrator has never seen.
var ErrUnknownTask = errors.New("unknown task id")

// ErrShuttingDown is returned by Submit after Shutdown has begun.
var ErrShuttingDown = errors.New("orchestrator is shutting down")

const archiveSaveTimeout = 30 * time.Second

// uuidNewString is stubbed in tests for deterministic ids.
var uuidNewString = uuid.NewString

// Orchestrator coordinates every running task. Concurrency is bounded by a
// weighted semaphore; tasks beyond the limit wait in PENDING.
type Orchestrator struct {
	cfg      config.OrchestratorConfig
	logger   *zap.Logger
	planner  schemas.Planner
	executor schemas.ActionExecutor
	observer schemas.ObservationProvider
	events   schemas.EventSink
	archive  schemas.Archive

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu       sync.RWMutex
	tasks    map[string]*taskHandle
	shutdown bool

	// retryDelay paces action and planner retry attempts. Tests shrink it.
	retryDelay time.Duration
}

// Option tweaks orchestrator construction.
type Option func(*Orchestrator)

// WithRetryDelay overrides the pause between retry attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.retryDelay = d
	}
}

// WithArchive attaches a task archive. Without one, finished tasks live only
// in memory.
func WithArchive(archive schemas.Archive) Option {
	return func(o *Orchestrator) {
		o.archive = archive
	}
}

// New creates an orchestrator. The planner, executor, and observer are
// mandatory; the event sink defaults to discarding.
func New(
	cfg config.OrchestratorConfig,
	logger *zap.Logger,
	planner schemas.Planner,
	executor schemas.ActionExecutor,
	observer schemas.ObservationProvider,
	events schemas.EventSink,
	opts ...Option,
) (*Orchestrator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if planner == nil {
		return nil, errors.New("planner cannot be nil")
	}
	if executor == nil {
		return nil, errors.New("executor cannot be nil")
	}
	if observer == nil {
		return nil, errors.New("observation provider cannot be nil")
	}
	if events == nil {
		events = nopSink{}
	}

	concurrency := cfg.MaxConcurrentTasks
	if concurrency <= 0 {
		concurrency = 1
	}

	o := &Orchestrator{
		cfg:        cfg,
		logger:     logger.Named("orchestrator"),
		planner:    planner,
		executor:   executor,
		observer:   observer,
		events:     events,
		sem:        semaphore.NewWeighted(int64(concurrency)),
		tasks:      make(map[string]*taskHandle),
		retryDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

type nopSink struct{}

func (nopSink) Emit(schemas.Event) {}
func (nopSink) Close() error       { return nil }

// Submit registers a goal as a new task and starts working on it as soon as
// a concurrency slot frees up. The returned snapshot has the task id the
// caller needs for Wait and Cancel.
func (o *Orchestrator) Submit(goal schemas.Goal) (*schemas.Task, error) {
	if goal.Text == "" {
		return nil, errors.New("goal text cannot be empty")
	}

	task := schemas.Task{
		ID:          uuidNewString(),
		Goal:        goal,
		Status:      schemas.StatusPending,
		SubmittedAt: time.Now(),
	}

	taskCtx, cancel := context.WithCancel(context.Background())
	handle := newTaskHandle(task, cancel)

	o.mu.Lock()
	if o.shutdown {
		o.mu.Unlock()
		cancel()
		return nil, ErrShuttingDown
	}
	o.tasks[task.ID] = handle
	o.wg.Add(1)
	o.mu.Unlock()

	o.emit(handle, schemas.EventTaskSubmitted, "")
	o.logger.Info("Task submitted",
		zap.String("task_id", task.ID),
		zap.String("goal", goal.Text))

	// Snapshot before the loop starts so the caller always sees PENDING.
	snap := handle.snapshot()
	go o.runTask(taskCtx, handle)

	return snap, nil
}

// Cancel requests cancellation. It returns immediately; the task reaches
// CANCELLED once the loop notices, which it checks at every transition.
func (o *Orchestrator) Cancel(id string) error {
	handle, err := o.handle(id)
	if err != nil {
		return err
	}
	if handle.status().Terminal() {
		return nil
	}
	handle.cancelled.Store(true)
	handle.cancel()
	o.logger.Info("Task cancellation requested", zap.String("task_id", id))
	return nil
}

// Get returns a snapshot of the task.
func (o *Orchestrator) Get(id string) (*schemas.Task, error) {
	handle, err := o.handle(id)
	if err != nil {
		return nil, err
	}
	return handle.snapshot(), nil
}

// Wait blocks until the task reaches a terminal status or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context, id string) (*schemas.Task, error) {
	handle, err := o.handle(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-handle.done:
		return handle.snapshot(), nil
	case <-ctx.Done():
		return handle.snapshot(), ctx.Err()
	}
}

// Shutdown cancels every running task and waits for their loops to finish,
// bounded by ctx.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.shutdown = true
	handles := make([]*taskHandle, 0, len(o.tasks))
	for _, h := range o.tasks {
		handles = append(handles, h)
	}
	o.mu.Unlock()

	for _, h := range handles {
		if !h.status().Terminal() {
			h.cancelled.Store(true)
			h.cancel()
		}
	}

	finished := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		o.logger.Info("Orchestrator stopped gracefully.")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown wait interrupted: %w", ctx.Err())
	}
}

func (o *Orchestrator) handle(id string) (*taskHandle, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	handle, ok := o.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	return handle, nil
}

// -- Events --

// emit publishes an event stamped with the task's current status.
func (o *Orchestrator) emit(h *taskHandle, eventType schemas.EventType, detail string) {
	h.mu.RLock()
	event := schemas.Event{
		ID:        uuidNewString(),
		TaskID:    h.task.ID,
		Type:      eventType,
		Status:    h.task.Status,
		Detail:    detail,
		Timestamp: time.Now(),
	}
	h.mu.RUnlock()
	o.events.Emit(event)
}

// emitAttempt publishes a retry event carrying the attempt number.
func (o *Orchestrator) emitAttempt(h *taskHandle, eventType schemas.EventType, attempt int, detail string) {
	h.mu.RLock()
	event := schemas.Event{
		ID:        uuidNewString(),
		TaskID:    h.task.ID,
		Type:      eventType,
		Status:    h.task.Status,
		Attempt:   attempt,
		Detail:    detail,
		Timestamp: time.Now(),
	}
	h.mu.RUnlock()
	o.events.Emit(event)
}

// emitStep publishes the freshly appended step on the feed.
func (o *Orchestrator) emitStep(h *taskHandle, step schemas.Step) {
	h.mu.RLock()
	event := schemas.Event{
		ID:        uuidNewString(),
		TaskID:    h.task.ID,
		Type:      schemas.EventStepCompleted,
		Status:    h.task.Status,
		Step:      &step,
		Timestamp: time.Now(),
	}
	h.mu.RUnlock()
	o.events.Emit(event)
}

// transition moves the task to a new working status and emits the change.
func (o *Orchestrator) transition(h *taskHandle, status schemas.TaskStatus) {
	previous := h.setStatus(status)
	if previous == status {
		return
	}
	o.emit(h, schemas.EventStatusChanged, fmt.Sprintf("%s -> %s", previous, status))
}
