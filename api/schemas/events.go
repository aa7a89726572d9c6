package schemas

import (
	"time"
)

// EventType categorizes entries on the read-only presentation feed. The feed
// is one-way: consumers observe task progress, they never mutate task state.
type EventType string

const (
	EventTaskSubmitted EventType = "task_submitted" // A goal was accepted and queued.
	EventTaskStarted   EventType = "task_started"   // The control loop began running.
	EventStatusChanged EventType = "status_changed" // The task moved to a new status.
	EventStepCompleted EventType = "step_completed" // A step was appended to the history.
	EventActionRetry   EventType = "action_retry"   // A failed action is being re-executed.
	EventCaptureRetry  EventType = "capture_retry"  // Observation capture failed and is being retried.
	EventPlannerRetry  EventType = "planner_retry"  // A planner call failed and is being retried.
	EventTaskCompleted EventType = "task_completed" // Terminal: COMPLETED.
	EventTaskFailed    EventType = "task_failed"    // Terminal: FAILED.
	EventTaskCancelled EventType = "task_cancelled" // Terminal: CANCELLED.
)

// Event is one entry on the presentation feed. Payload fields are populated
// according to Type; the zero values are omitted from the serialized form.
type Event struct {
	ID     string    `json:"id"`      // Unique event identifier.
	TaskID string    `json:"task_id"` // The task the event concerns.
	Type   EventType `json:"type"`    // What happened.

	Status  TaskStatus `json:"status,omitempty"`  // New status for STATUS_CHANGED and terminal events.
	Step    *Step      `json:"step,omitempty"`    // The appended step for STEP_COMPLETED.
	Attempt int        `json:"attempt,omitempty"` // Attempt number for retry events.
	Detail  string     `json:"detail,omitempty"`  // Free-form context (failure detail, summary).

	Timestamp time.Time `json:"timestamp"` // When the event was emitted.
}
