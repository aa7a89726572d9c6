package schemas

import (
	"time"
)

// TaskStatus is the finite set of states a task moves through. Transitions
// happen only inside the orchestrator; everything else sees read-only copies.
type TaskStatus string

const (
	StatusPending   TaskStatus = "PENDING"   // Submitted, waiting for a run slot.
	StatusPlanning  TaskStatus = "PLANNING"  // Asking the planner for the next step.
	StatusActing    TaskStatus = "ACTING"    // An action is in flight with an executor.
	StatusObserving TaskStatus = "OBSERVING" // Capturing the post-action screen state.
	StatusRetrying  TaskStatus = "RETRYING"  // Re-executing a failed action within its retry budget.
	StatusCompleted TaskStatus = "COMPLETED" // Terminal: the planner declared the goal achieved.
	StatusFailed    TaskStatus = "FAILED"    // Terminal: unrecoverable, budget exhausted, or config error.
	StatusCancelled TaskStatus = "CANCELLED" // Terminal: cancelled by external request.
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// -- Failure reasons --
// Structured codes carried on terminal FAILED tasks so callers can tell
// "gave up" from "tool error" from "misconfigured" without parsing prose.
const (
	ReasonBudgetExhausted = "BUDGET_EXHAUSTED"  // Step or time budget reached.
	ReasonUnroutable      = "UNROUTABLE_ACTION" // Planner emitted a kind with no registered executor.
	ReasonPlannerError    = "PLANNER_ERROR"     // Planner retries exhausted.
	ReasonPerception      = "PERCEPTION_ERROR"  // Observation capture retries exhausted.
	ReasonUnrecoverable   = "UNRECOVERABLE"     // Planner verdict: the goal cannot be achieved.
)

// Constraints are the optional per-task limits supplied with a goal. Zero
// values mean "use the configured default". MaxSteps and MaxDuration are hard
// budgets enforced independently of per-action retries.
type Constraints struct {
	MaxSteps       int           `json:"max_steps,omitempty"`       // Hard cap on total steps.
	MaxDuration    time.Duration `json:"max_duration,omitempty"`    // Hard cap on wall time.
	AllowedKinds   []ActionKind  `json:"allowed_kinds,omitempty"`   // Restrict the planner's vocabulary; empty allows all.
	ActionRetries  int           `json:"action_retries,omitempty"`  // Per-action execution attempts before escalation.
	CaptureRetries int           `json:"capture_retries,omitempty"` // Observation capture attempts before task failure.
	PlannerRetries int           `json:"planner_retries,omitempty"` // Planner call attempts before task failure.
}

// Goal is the immutable objective a task is created from: the natural
// language objective plus optional structured constraints. Never mutated
// after submission.
type Goal struct {
	Text        string      `json:"text"`        // The natural-language objective.
	Constraints Constraints `json:"constraints"` // Optional per-task limits.
}

// Step is one completed iteration of the plan-act-observe loop. Steps are
// appended to a task's history and never mutated or reordered afterwards.
type Step struct {
	Index  int    `json:"index"`   // Position in the history, starting at 0.
	TaskID string `json:"task_id"` // The owning task.

	Action Action       `json:"action"` // The action the planner issued.
	Result ActionResult `json:"result"` // The outcome of its final attempt.

	Before *Observation `json:"before,omitempty"` // Screen state the planner decided on.
	After  *Observation `json:"after,omitempty"`  // Screen state following execution.

	// Attempts counts executions of this action, including the final one.
	// It never exceeds the task's per-action retry limit.
	Attempts int `json:"attempts"`

	// ScreenChanged reports whether the after-observation differs from the
	// before-observation under content comparison. False flags actions that
	// had no visible effect.
	ScreenChanged bool `json:"screen_changed"`

	StartedAt time.Time `json:"started_at"` // When the action was first dispatched.
	EndedAt   time.Time `json:"ended_at"`   // When the step was appended.
}

// Task pairs a goal with its accumulated history and current status. The
// orchestrator owns the only mutable instance; snapshots handed out through
// the API are deep copies.
type Task struct {
	ID     string     `json:"id"`     // Unique task identifier.
	Goal   Goal       `json:"goal"`   // The immutable objective.
	Status TaskStatus `json:"status"` // Current state.

	Steps []Step `json:"steps"` // Append-only history of completed steps.

	// Summary is the planner's completion summary; set only on COMPLETED.
	Summary string `json:"summary,omitempty"`
	// Reason is the structured failure code; set only on FAILED.
	Reason string `json:"reason,omitempty"`
	// Detail is the human-readable elaboration of Reason.
	Detail string `json:"detail,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"` // When the goal was accepted.
	StartedAt   time.Time `json:"started_at"`   // When the loop began; zero until then.
	EndedAt     time.Time `json:"ended_at"`     // When a terminal status was reached; zero until then.
}
