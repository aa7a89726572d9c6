package schemas

import (
	"context"
)

// -- Planner boundary --

// Planner decides the next move for a task. It is the only non-deterministic
// component in the loop; the orchestrator's state machine stays fully
// deterministic and is tested against scripted implementations of this
// interface.
type Planner interface {
	// Decide returns the planner's verdict given the goal, a bounded window of
	// the task's history, and the latest observation (which may be nil before
	// the first capture). Failures of the underlying completion call surface
	// as errors; the orchestrator treats them as transient with their own
	// retry budget.
	Decide(ctx context.Context, goal Goal, history []Step, obs *Observation) (*PlanVerdict, error)
}

// CompletionVerifier is an optional planner capability: a lightweight check
// of a COMPLETE verdict against the final observation. The orchestrator uses
// it when configured and the planner implements it; the returned note is
// advisory and appended to the task summary.
type CompletionVerifier interface {
	Verify(ctx context.Context, goal Goal, obs *Observation, summary string) (string, error)
}

// -- Executor boundary --

// ActionExecutor performs one kind (or several kinds) of action. Execute is
// invoked at most once concurrently per exclusive resource; the registry
// serializes access, not the executor.
//
// Execute must be safe to retry, or must mark its results NonIdempotent so
// the orchestrator escalates instead of retrying. A non-nil error means the
// executor itself malfunctioned; ordinary action failure is expressed through
// the result status.
type ActionExecutor interface {
	Execute(ctx context.Context, action *Action) (*ActionResult, error)
}

// -- Observation boundary --

// ObservationProvider produces a structured snapshot of current screen
// content on demand. Capture is side-effect-free with respect to task state
// and bounded by the provider's capture timeout: it fails rather than hang
// the loop.
type ObservationProvider interface {
	// Capture takes a screenshot, extracts text, and returns the assembled
	// observation. roi restricts the capture region when non-nil.
	Capture(ctx context.Context, taskID string, roi *BoundingBox) (*Observation, error)
}

// -- Presentation boundary --

// EventSink receives the append-only feed of steps and status transitions.
// Implementations must not block the control loop; slow consumers drop or
// buffer internally. Emit errors are logged and otherwise ignored.
type EventSink interface {
	Emit(event Event)
	Close() error
}

// -- Persistence boundary --

// Archive persists terminal tasks and their histories for audit. The control
// loop never reads from the archive; it exists for external consumers.
type Archive interface {
	// SaveTask persists a terminal task snapshot with all of its steps.
	SaveTask(ctx context.Context, task *Task) error
	// GetTask retrieves an archived task by ID.
	GetTask(ctx context.Context, id string) (*Task, error)
	// Close releases the underlying connections.
	Close()
}

// -- LLM boundary --

// LLMClient is the standard interface to a large language model, abstracting
// the underlying provider (Gemini, Anthropic, scripted test doubles).
type LLMClient interface {
	// Generate produces a text completion for the request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}
