// File: internal/mocks/mocks.go

// Package mocks provides testify mocks for the engine's boundary interfaces.
// Suites that need scripted, order-sensitive behavior (the orchestrator's
// state machine tests) use purpose-built fakes instead; these mocks cover the
// common case of stubbing one boundary while exercising another.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// -- LLM client --

// MockLLMClient mocks schemas.LLMClient.
type MockLLMClient struct {
	mock.Mock
}

var _ schemas.LLMClient = (*MockLLMClient)(nil)

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Planner --

// MockPlanner mocks schemas.Planner.
type MockPlanner struct {
	mock.Mock
}

var _ schemas.Planner = (*MockPlanner)(nil)

func (m *MockPlanner) Decide(ctx context.Context, goal schemas.Goal, history []schemas.Step, obs *schemas.Observation) (*schemas.PlanVerdict, error) {
	args := m.Called(ctx, goal, history, obs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.PlanVerdict), args.Error(1)
}

// MockVerifyingPlanner is a MockPlanner that also satisfies
// schemas.CompletionVerifier.
type MockVerifyingPlanner struct {
	MockPlanner
}

var _ schemas.CompletionVerifier = (*MockVerifyingPlanner)(nil)

func (m *MockVerifyingPlanner) Verify(ctx context.Context, goal schemas.Goal, obs *schemas.Observation, summary string) (string, error) {
	args := m.Called(ctx, goal, obs, summary)
	return args.String(0), args.Error(1)
}

// -- Executor --

// MockActionExecutor mocks schemas.ActionExecutor.
type MockActionExecutor struct {
	mock.Mock
}

var _ schemas.ActionExecutor = (*MockActionExecutor)(nil)

func (m *MockActionExecutor) Execute(ctx context.Context, action *schemas.Action) (*schemas.ActionResult, error) {
	args := m.Called(ctx, action)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.ActionResult), args.Error(1)
}

// -- Observation provider --

// MockObservationProvider mocks schemas.ObservationProvider.
type MockObservationProvider struct {
	mock.Mock
}

var _ schemas.ObservationProvider = (*MockObservationProvider)(nil)

func (m *MockObservationProvider) Capture(ctx context.Context, taskID string, roi *schemas.BoundingBox) (*schemas.Observation, error) {
	args := m.Called(ctx, taskID, roi)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.Observation), args.Error(1)
}

// -- Event sink --

// MockEventSink mocks schemas.EventSink.
type MockEventSink struct {
	mock.Mock
}

var _ schemas.EventSink = (*MockEventSink)(nil)

func (m *MockEventSink) Emit(event schemas.Event) {
	m.Called(event)
}

func (m *MockEventSink) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Archive --

// MockArchive mocks schemas.Archive.
type MockArchive struct {
	mock.Mock
}

var _ schemas.Archive = (*MockArchive)(nil)

func (m *MockArchive) SaveTask(ctx context.Context, task *schemas.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockArchive) GetTask(ctx context.Context, id string) (*schemas.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.Task), args.Error(1)
}

func (m *MockArchive) Close() {
	m.Called()
}
