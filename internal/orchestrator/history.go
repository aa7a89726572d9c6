// internal/orchestrator/history.go
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// taskHandle is the orchestrator's mutable bookkeeping for one task. The
// embedded task is the single source of truth; readers get snapshot copies
// so in-flight mutation never leaks out.
type taskHandle struct {
	mu   sync.RWMutex
	task schemas.Task

	cancel context.CancelFunc
	// cancelled records an explicit Cancel call, distinguishing it from a
	// time-budget deadline on the same context.
	cancelled atomic.Bool
	done      chan struct{}
}

func newTaskHandle(task schemas.Task, cancel context.CancelFunc) *taskHandle {
	return &taskHandle{
		task:   task,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// snapshot returns a copy of the task with its own steps slice. Steps are
// append-only and never mutated once recorded, so sharing the step values
// themselves is safe.
func (h *taskHandle) snapshot() *schemas.Task {
	h.mu.RLock()
	defer h.mu.RUnlock()

	copied := h.task
	copied.Steps = make([]schemas.Step, len(h.task.Steps))
	copy(copied.Steps, h.task.Steps)
	return &copied
}

// setStatus transitions the task, returning the previous status.
func (h *taskHandle) setStatus(status schemas.TaskStatus) schemas.TaskStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	previous := h.task.Status
	h.task.Status = status
	return previous
}

func (h *taskHandle) status() schemas.TaskStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.task.Status
}

// appendStep adds a completed step to the history.
func (h *taskHandle) appendStep(step schemas.Step) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.task.Steps = append(h.task.Steps, step)
}

func (h *taskHandle) stepCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.task.Steps)
}

// steps returns a snapshot copy of the history for the planner.
func (h *taskHandle) steps() []schemas.Step {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]schemas.Step, len(h.task.Steps))
	copy(out, h.task.Steps)
	return out
}

// windowSteps trims the history to the most recent n steps for prompting.
// The full history stays on the task; only the planner's view narrows.
func windowSteps(steps []schemas.Step, n int) []schemas.Step {
	if n <= 0 || len(steps) <= n {
		return steps
	}
	return steps[len(steps)-n:]
}
