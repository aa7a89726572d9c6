// internal/eventlog/console.go
package eventlog

import (
	"fmt"
	"io"
	"sync"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// FormatEvent renders one event as a single human-readable line. The same
// rendering serves the live feed during `run` and the replay in `watch`.
func FormatEvent(e schemas.Event) string {
	ts := e.Timestamp.Format("15:04:05")
	id := e.TaskID
	if len(id) > 8 {
		id = id[:8]
	}

	switch e.Type {
	case schemas.EventStepCompleted:
		if e.Step != nil {
			return fmt.Sprintf("%s [%s] step %d: %s -> %s (%d attempt(s))",
				ts, id, e.Step.Index, e.Step.Action.Describe(), e.Step.Result.Status, e.Step.Attempts)
		}
		return fmt.Sprintf("%s [%s] step completed", ts, id)
	case schemas.EventActionRetry:
		return fmt.Sprintf("%s [%s] retrying action (attempt %d failed): %s", ts, id, e.Attempt, e.Detail)
	case schemas.EventCaptureRetry:
		return fmt.Sprintf("%s [%s] retrying capture (attempt %d failed): %s", ts, id, e.Attempt, e.Detail)
	case schemas.EventPlannerRetry:
		return fmt.Sprintf("%s [%s] retrying planner (attempt %d failed): %s", ts, id, e.Attempt, e.Detail)
	case schemas.EventStatusChanged:
		return fmt.Sprintf("%s [%s] %s", ts, id, e.Detail)
	case schemas.EventTaskCompleted:
		return fmt.Sprintf("%s [%s] completed: %s", ts, id, e.Detail)
	case schemas.EventTaskFailed:
		return fmt.Sprintf("%s [%s] failed: %s", ts, id, e.Detail)
	case schemas.EventTaskCancelled:
		return fmt.Sprintf("%s [%s] cancelled", ts, id)
	}

	if e.Detail != "" {
		return fmt.Sprintf("%s [%s] %s: %s", ts, id, e.Type, e.Detail)
	}
	return fmt.Sprintf("%s [%s] %s", ts, id, e.Type)
}

// WriterSink renders events as lines on a writer. It backs the console feed
// of `deskpilot run`.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

var _ schemas.EventSink = (*WriterSink)(nil)

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Emit(event schemas.Event) {
	line := FormatEvent(event)
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, line)
}

func (s *WriterSink) Close() error { return nil }
