// internal/executor/registry.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// ErrUnroutable is returned when no executor is registered for an action kind.
// The orchestrator treats this as fatal for the task rather than retryable.
var ErrUnroutable = errors.New("no executor registered for action kind")

// Exclusive physical resources. Executors registered under the same resource
// name share a single permit, so two tasks can never drive the mouse or the
// browser at the same time.
const (
	ResourceDisplay = "display"
	ResourceBrowser = "browser"
)

// -- Registry --

// Registry routes actions to the executor registered for their kind and
// serializes access to exclusive resources. Callers above it (the
// orchestrator) never need to know which kinds contend for hardware.
type Registry struct {
	logger    *zap.Logger
	executors map[schemas.ActionKind]schemas.ActionExecutor
	resources map[string]*semaphore.Weighted
	locks     map[schemas.ActionKind]*semaphore.Weighted
}

var _ schemas.ActionExecutor = (*Registry)(nil)

// NewRegistry creates an empty registry. Executors are attached with Register.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:    logger.Named("executor_registry"),
		executors: make(map[schemas.ActionKind]schemas.ActionExecutor),
		resources: make(map[string]*semaphore.Weighted),
		locks:     make(map[schemas.ActionKind]*semaphore.Weighted),
	}
}

// Register associates an executor with one or more action kinds. A non-empty
// resource name places every listed kind behind that resource's permit;
// kinds registered with resource "" run without serialization.
func (r *Registry) Register(exec schemas.ActionExecutor, resource string, kinds ...schemas.ActionKind) {
	var sem *semaphore.Weighted
	if resource != "" {
		sem = r.resources[resource]
		if sem == nil {
			sem = semaphore.NewWeighted(1)
			r.resources[resource] = sem
		}
	}
	for _, k := range kinds {
		r.executors[k] = exec
		if sem != nil {
			r.locks[k] = sem
		}
	}
}

// Kinds reports the action kinds that currently have an executor attached.
func (r *Registry) Kinds() []schemas.ActionKind {
	kinds := make([]schemas.ActionKind, 0, len(r.executors))
	for k := range r.executors {
		kinds = append(kinds, k)
	}
	return kinds
}

// Execute routes the action to its executor, holding the resource permit for
// the duration of the call. Waiting for a permit respects ctx, so a cancelled
// task does not queue behind a long-running one.
func (r *Registry) Execute(ctx context.Context, action *schemas.Action) (*schemas.ActionResult, error) {
	exec, ok := r.executors[action.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnroutable, action.Kind)
	}

	if sem := r.locks[action.Kind]; sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("waiting for exclusive resource (%s): %w", action.Kind, err)
		}
		defer sem.Release(1)
	}

	started := time.Now()
	result, err := exec.Execute(ctx, action)
	elapsed := time.Since(started)

	if err != nil {
		r.logger.Warn("Action execution errored",
			zap.String("action", action.Describe()),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return result, err
	}

	if result.Duration == 0 {
		result.Duration = elapsed
	}
	r.logger.Debug("Action executed",
		zap.String("action", action.Describe()),
		zap.String("status", string(result.Status)),
		zap.Duration("elapsed", elapsed))
	return result, nil
}
