package planner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// ScriptedPlanner replays a fixed sequence of verdicts so the orchestrator's
// state machine can be exercised deterministically. It lives outside the test
// files because other packages' tests drive the loop with it.
type ScriptedPlanner struct {
	mu       sync.Mutex
	verdicts []*schemas.PlanVerdict
	next     int
	// Errs maps call indices (0-based) to errors returned instead of a
	// verdict, simulating planner-level failures.
	errs map[int]error
	// calls counts Decide invocations, including ones that returned errors.
	calls int
}

var _ schemas.Planner = (*ScriptedPlanner)(nil)

// NewScripted builds a planner that returns the given verdicts in order.
func NewScripted(verdicts ...*schemas.PlanVerdict) *ScriptedPlanner {
	return &ScriptedPlanner{verdicts: verdicts, errs: make(map[int]error)}
}

// FailCall makes the planner return err on the given 0-based call index. The
// scripted verdict sequence is not advanced by failing calls.
func (s *ScriptedPlanner) FailCall(i int, err error) *ScriptedPlanner {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[i] = err
	return s
}

// Decide returns the next scripted verdict.
func (s *ScriptedPlanner) Decide(ctx context.Context, goal schemas.Goal, history []schemas.Step, obs *schemas.Observation) (*schemas.PlanVerdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	call := s.calls
	s.calls++
	if err, ok := s.errs[call]; ok {
		return nil, err
	}

	if s.next >= len(s.verdicts) {
		return nil, fmt.Errorf("scripted planner exhausted after %d verdicts", len(s.verdicts))
	}
	v := s.verdicts[s.next]
	s.next++

	// Hand out a copy so callers cannot mutate the script.
	out := *v
	if v.Action != nil {
		a := *v.Action
		if a.ID == "" {
			a.ID = uuidNewString()
		}
		a.IssuedAt = time.Now().UTC()
		out.Action = &a
	}
	return &out, nil
}

// Calls reports how many times Decide was invoked.
func (s *ScriptedPlanner) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
