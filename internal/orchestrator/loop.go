// internal/orchestrator/loop.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/executor"
	"github.com/xkilldash9x/deskpilot/internal/observer"
)

// runTask drives one task from admission to a terminal status. It is the
// only goroutine that mutates the task, so the state machine stays
// sequential even though many tasks run concurrently.
func (o *Orchestrator) runTask(taskCtx context.Context, h *taskHandle) {
	defer o.wg.Done()

	logger := o.logger.With(zap.String("task_id", h.task.ID))

	// Admission: wait for a concurrency slot. A task cancelled while queued
	// never starts.
	if err := o.sem.Acquire(taskCtx, 1); err != nil {
		logger.Info("Task cancelled while queued")
		o.finalizeCancelled(h)
		return
	}
	defer o.sem.Release(1)

	l := o.resolveLimits(h.task.Goal.Constraints)

	runCtx := taskCtx
	if l.maxDuration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(taskCtx, l.maxDuration)
		defer cancel()
	}

	h.mu.Lock()
	h.task.StartedAt = time.Now()
	h.mu.Unlock()
	o.emit(h, schemas.EventTaskStarted, h.task.Goal.Text)
	logger.Info("Task started",
		zap.Int("max_steps", l.maxSteps),
		zap.Duration("max_duration", l.maxDuration))

	o.loop(runCtx, h, l, logger)
}

// loop is the plan-observe-act state machine. Every transition re-checks
// cancellation and the budgets, so those always win over in-flight work.
func (o *Orchestrator) loop(runCtx context.Context, h *taskHandle, l limits, logger *zap.Logger) {
	// The planner needs to see the screen before its first decision.
	o.transition(h, schemas.StatusObserving)
	obs, ok := o.observeWithRetries(runCtx, h, l, logger)
	if !ok {
		return
	}

	for {
		if o.checkInterrupted(runCtx, h, logger) {
			return
		}
		if h.stepCount() >= l.maxSteps {
			o.finalizeFailed(h, schemas.ReasonBudgetExhausted,
				fmt.Sprintf("step budget exhausted after %d steps", h.stepCount()))
			return
		}

		// -- Planning --
		o.transition(h, schemas.StatusPlanning)
		verdict, ok := o.decideWithRetries(runCtx, h, l, obs, logger)
		if !ok {
			return
		}

		switch verdict.Decision {
		case schemas.DecideComplete:
			o.completeTask(runCtx, h, verdict.Summary, logger)
			return

		case schemas.DecideUnrecoverable:
			o.finalizeFailed(h, schemas.ReasonUnrecoverable, verdict.Reason)
			return

		case schemas.DecideNextAction:
			action := verdict.Action
			action.TaskID = h.task.ID
			if action.ID == "" {
				action.ID = uuidNewString()
			}
			if action.IssuedAt.IsZero() {
				action.IssuedAt = time.Now()
			}

			// -- Acting --
			o.transition(h, schemas.StatusActing)
			stepStarted := time.Now()
			result, attempts, execErr := o.executeWithRetries(runCtx, h, l, action, logger)
			if execErr != nil {
				if errors.Is(execErr, executor.ErrUnroutable) {
					o.finalizeFailed(h, schemas.ReasonUnroutable, execErr.Error())
					return
				}
				if o.checkInterrupted(runCtx, h, logger) {
					return
				}
				o.finalizeFailed(h, schemas.ReasonUnrecoverable, execErr.Error())
				return
			}

			// -- Observing --
			o.transition(h, schemas.StatusObserving)
			after, ok := o.observeWithRetries(runCtx, h, l, logger)
			if !ok {
				return
			}

			step := schemas.Step{
				Index:         h.stepCount(),
				TaskID:        h.task.ID,
				Action:        *action,
				Result:        *result,
				Before:        obs,
				After:         after,
				Attempts:      attempts,
				ScreenChanged: !observer.Same(obs, after),
				StartedAt:     stepStarted,
				EndedAt:       time.Now(),
			}
			h.appendStep(step)
			o.emitStep(h, step)
			logger.Info("Step completed",
				zap.Int("step", step.Index),
				zap.String("action", action.Describe()),
				zap.String("status", string(result.Status)),
				zap.Int("attempts", attempts),
				zap.Bool("screen_changed", step.ScreenChanged))

			obs = after
		}
	}
}

// checkInterrupted finalizes the task when cancellation or the time budget
// already ended it. Cancellation always wins over a concurrent deadline.
func (o *Orchestrator) checkInterrupted(runCtx context.Context, h *taskHandle, logger *zap.Logger) bool {
	if h.cancelled.Load() {
		logger.Info("Task cancelled")
		o.finalizeCancelled(h)
		return true
	}
	if err := runCtx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			o.finalizeFailed(h, schemas.ReasonBudgetExhausted,
				fmt.Sprintf("time budget exhausted after %d steps", h.stepCount()))
			return true
		}
		logger.Info("Task context ended", zap.Error(err))
		o.finalizeCancelled(h)
		return true
	}
	return false
}

// decideWithRetries calls the planner under its timeout, retrying transient
// failures. A verdict whose action violates the allowed-kind constraint
// counts as a failed attempt: it is a planner contract violation, not an
// execution failure.
func (o *Orchestrator) decideWithRetries(runCtx context.Context, h *taskHandle, l limits, obs *schemas.Observation, logger *zap.Logger) (*schemas.PlanVerdict, bool) {
	goal := h.task.Goal
	history := windowSteps(h.steps(), o.cfg.HistoryWindow)

	var lastErr error
	for attempt := 1; attempt <= l.plannerRetries; attempt++ {
		if o.checkInterrupted(runCtx, h, logger) {
			return nil, false
		}

		decideCtx := runCtx
		var cancel context.CancelFunc
		if o.cfg.PlannerTimeout > 0 {
			decideCtx, cancel = context.WithTimeout(runCtx, o.cfg.PlannerTimeout)
		}
		verdict, err := o.planner.Decide(decideCtx, goal, history, obs)
		if cancel != nil {
			cancel()
		}
		if err == nil && verdict.Decision == schemas.DecideNextAction && !l.kindAllowed(verdict.Action.Kind) {
			err = fmt.Errorf("planner chose kind %s, which the task constraints disallow", verdict.Action.Kind)
		}
		if err == nil {
			return verdict, true
		}
		lastErr = err

		if runCtx.Err() != nil {
			break
		}
		if attempt < l.plannerRetries {
			o.emitAttempt(h, schemas.EventPlannerRetry, attempt, err.Error())
			logger.Warn("Planner attempt failed",
				zap.Int("attempt", attempt),
				zap.Error(err))
			if !o.pause(runCtx, o.retryDelay<<(attempt-1)) {
				break
			}
		}
	}

	if o.checkInterrupted(runCtx, h, logger) {
		return nil, false
	}
	o.finalizeFailed(h, schemas.ReasonPlannerError,
		fmt.Sprintf("planner failed after %d attempts: %v", l.plannerRetries, lastErr))
	return nil, false
}

// executeWithRetries runs the action until it succeeds or the retry budget
// is spent. The final non-success result is returned for the history; the
// planner decides what to do with it. A timed-out action that may have
// mutated state is never blindly re-run.
func (o *Orchestrator) executeWithRetries(runCtx context.Context, h *taskHandle, l limits, action *schemas.Action, logger *zap.Logger) (*schemas.ActionResult, int, error) {
	var result *schemas.ActionResult

	for attempt := 1; ; attempt++ {
		actCtx := runCtx
		var cancel context.CancelFunc
		if o.cfg.ActionTimeout > 0 {
			actCtx, cancel = context.WithTimeout(runCtx, o.cfg.ActionTimeout)
		}
		res, err := o.executor.Execute(actCtx, action)
		if cancel != nil {
			cancel()
		}

		switch {
		case err == nil:
			result = res
		case errors.Is(err, executor.ErrUnroutable):
			return nil, attempt, err
		case runCtx.Err() != nil:
			return nil, attempt, runCtx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			// The per-action envelope expired, not the task budget.
			result = schemas.TimeoutResult(fmt.Sprintf("action did not finish within %s", o.cfg.ActionTimeout))
		default:
			result = schemas.FailureResult(schemas.ErrCodeInternal, err.Error())
		}

		if result.OK() {
			return result, attempt, nil
		}
		if attempt >= l.actionRetries {
			return result, attempt, nil
		}
		if result.Status == schemas.ResultTimedOut && result.NonIdempotent {
			logger.Warn("Not retrying timed-out non-idempotent action",
				zap.String("action", action.Describe()))
			return result, attempt, nil
		}

		o.transition(h, schemas.StatusRetrying)
		o.emitAttempt(h, schemas.EventActionRetry, attempt,
			fmt.Sprintf("%s: %s", action.Describe(), result.ErrDetail))
		logger.Warn("Action attempt failed, retrying",
			zap.String("action", action.Describe()),
			zap.Int("attempt", attempt),
			zap.String("error_code", result.ErrCode))
		if !o.pause(runCtx, o.retryDelay) {
			return result, attempt, runCtx.Err()
		}
		o.transition(h, schemas.StatusActing)
	}
}

// observeWithRetries captures the screen, retrying within the capture
// budget. Exhaustion fails the task: without perception the loop is blind.
func (o *Orchestrator) observeWithRetries(runCtx context.Context, h *taskHandle, l limits, logger *zap.Logger) (*schemas.Observation, bool) {
	var lastErr error
	for attempt := 1; attempt <= l.captureRetries; attempt++ {
		if o.checkInterrupted(runCtx, h, logger) {
			return nil, false
		}

		obs, err := o.observer.Capture(runCtx, h.task.ID, nil)
		if err == nil {
			return obs, true
		}
		lastErr = err

		if runCtx.Err() != nil {
			break
		}
		if attempt < l.captureRetries {
			o.emitAttempt(h, schemas.EventCaptureRetry, attempt, err.Error())
			logger.Warn("Observation capture failed, retrying",
				zap.Int("attempt", attempt),
				zap.Error(err))
			if !o.pause(runCtx, o.retryDelay) {
				break
			}
		}
	}

	if o.checkInterrupted(runCtx, h, logger) {
		return nil, false
	}
	o.finalizeFailed(h, schemas.ReasonPerception,
		fmt.Sprintf("observation capture failed after %d attempts: %v", l.captureRetries, lastErr))
	return nil, false
}

// pause sleeps unless the context ends first.
func (o *Orchestrator) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// completeTask finishes a task the planner declared done, optionally
// verifying against a fresh observation first. Verification is advisory:
// the planner's verdict stands either way, the note lands in the detail.
func (o *Orchestrator) completeTask(runCtx context.Context, h *taskHandle, summary string, logger *zap.Logger) {
	detail := ""
	if o.cfg.VerifyCompletion {
		if verifier, ok := o.planner.(schemas.CompletionVerifier); ok {
			if obs, err := o.observer.Capture(runCtx, h.task.ID, nil); err == nil {
				note, verr := verifier.Verify(runCtx, h.task.Goal, obs, summary)
				if verr != nil {
					logger.Debug("Completion verification unavailable", zap.Error(verr))
				} else {
					detail = note
				}
			}
		}
	}

	h.mu.Lock()
	h.task.Summary = summary
	h.task.Detail = detail
	h.task.EndedAt = time.Now()
	h.mu.Unlock()

	o.transition(h, schemas.StatusCompleted)
	o.emit(h, schemas.EventTaskCompleted, summary)
	logger.Info("Task completed",
		zap.String("summary", summary),
		zap.Int("steps", h.stepCount()))
	o.finish(h)
}

func (o *Orchestrator) finalizeFailed(h *taskHandle, reason, detail string) {
	h.mu.Lock()
	h.task.Reason = reason
	h.task.Detail = detail
	h.task.EndedAt = time.Now()
	h.mu.Unlock()

	o.transition(h, schemas.StatusFailed)
	o.emit(h, schemas.EventTaskFailed, fmt.Sprintf("%s: %s", reason, detail))
	o.logger.Warn("Task failed",
		zap.String("task_id", h.task.ID),
		zap.String("reason", reason),
		zap.String("detail", detail))
	o.finish(h)
}

func (o *Orchestrator) finalizeCancelled(h *taskHandle) {
	h.mu.Lock()
	h.task.EndedAt = time.Now()
	h.mu.Unlock()

	o.transition(h, schemas.StatusCancelled)
	o.emit(h, schemas.EventTaskCancelled, "")
	o.logger.Info("Task cancelled", zap.String("task_id", h.task.ID))
	o.finish(h)
}

// finish archives the terminal task and releases waiters. Archiving uses a
// background context so a shutdown-driven cancellation cannot lose the
// record of what happened.
func (o *Orchestrator) finish(h *taskHandle) {
	if o.archive != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), archiveSaveTimeout)
		defer cancel()
		if err := o.archive.SaveTask(saveCtx, h.snapshot()); err != nil {
			o.logger.Error("Failed to archive task",
				zap.String("task_id", h.task.ID),
				zap.Error(err))
		}
	}
	close(h.done)
}
