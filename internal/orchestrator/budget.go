// internal/orchestrator/budget.go
package orchestrator

import (
	"time"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// limits are the per-task budgets after merging goal constraints with the
// configured defaults.
type limits struct {
	maxSteps       int
	maxDuration    time.Duration
	actionRetries  int
	captureRetries int
	plannerRetries int
	allowedKinds   map[schemas.ActionKind]bool
}

// resolveLimits applies the task's constraint overrides on top of config.
// Zero constraint values mean "use the default"; the retry counts are total
// attempts and never drop below one.
func (o *Orchestrator) resolveLimits(c schemas.Constraints) limits {
	l := limits{
		maxSteps:       o.cfg.MaxSteps,
		maxDuration:    o.cfg.MaxDuration,
		actionRetries:  o.cfg.ActionRetries,
		captureRetries: o.cfg.CaptureRetries,
		plannerRetries: o.cfg.PlannerRetries,
	}
	if c.MaxSteps > 0 {
		l.maxSteps = c.MaxSteps
	}
	if c.MaxDuration > 0 {
		l.maxDuration = c.MaxDuration
	}
	if c.ActionRetries > 0 {
		l.actionRetries = c.ActionRetries
	}
	if c.CaptureRetries > 0 {
		l.captureRetries = c.CaptureRetries
	}
	if c.PlannerRetries > 0 {
		l.plannerRetries = c.PlannerRetries
	}
	if l.maxSteps <= 0 {
		l.maxSteps = 25
	}
	if l.actionRetries <= 0 {
		l.actionRetries = 1
	}
	if l.captureRetries <= 0 {
		l.captureRetries = 1
	}
	if l.plannerRetries <= 0 {
		l.plannerRetries = 1
	}
	if len(c.AllowedKinds) > 0 {
		l.allowedKinds = make(map[schemas.ActionKind]bool, len(c.AllowedKinds))
		for _, k := range c.AllowedKinds {
			l.allowedKinds[k] = true
		}
	}
	return l
}

// kindAllowed reports whether the task's constraints admit the kind. An
// empty allow list admits everything.
func (l limits) kindAllowed(kind schemas.ActionKind) bool {
	if l.allowedKinds == nil {
		return true
	}
	return l.allowedKinds[kind]
}
