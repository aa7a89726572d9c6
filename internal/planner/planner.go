// Package planner turns goal, history and observation into the next verdict
// by prompting a large language model. The orchestrator's state machine never
// sees the model: it only sees schemas.Planner.
package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// uuidNewString is an indirection for deterministic IDs in tests.
var uuidNewString = uuid.NewString

// LLMPlanner implements schemas.Planner on top of an LLM client.
type LLMPlanner struct {
	client      schemas.LLMClient
	logger      *zap.Logger
	temperature float64
}

var _ schemas.Planner = (*LLMPlanner)(nil)

// New creates an LLM-backed planner.
func New(client schemas.LLMClient, logger *zap.Logger) *LLMPlanner {
	return &LLMPlanner{
		client:      client,
		logger:      logger.Named("planner"),
		temperature: 0.2,
	}
}

// Decide asks the model for the next verdict. The history slice is the
// bounded window selected by the orchestrator; obs may be nil before the
// first capture.
func (p *LLMPlanner) Decide(ctx context.Context, goal schemas.Goal, history []schemas.Step, obs *schemas.Observation) (*schemas.PlanVerdict, error) {
	userPrompt, err := buildUserPrompt(goal, history, obs)
	if err != nil {
		return nil, fmt.Errorf("building user prompt: %w", err)
	}

	req := schemas.GenerationRequest{
		SystemPrompt: buildSystemPrompt(goal.Constraints.AllowedKinds),
		UserPrompt:   userPrompt,
		Tier:         schemas.TierPowerful,
		Options:      schemas.GenerationOptions{ForceJSONFormat: true, Temperature: p.temperature},
	}

	response, err := p.client.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("llm generation failed: %w", err)
	}

	verdict, err := parseVerdict(response)
	if err != nil {
		p.logger.Warn("Failed to parse planner response",
			zap.String("raw_response", truncate(response, 2000)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to parse llm response: %w", err)
	}

	if verdict.Decision == schemas.DecideNextAction {
		verdict.Action.ID = uuidNewString()
		verdict.Action.IssuedAt = time.Now().UTC()
	}
	return verdict, nil
}

// Verify runs a lightweight post-completion check on the fast tier: given the
// final observation, does the screen support the completion summary? The
// returned note is advisory and recorded alongside the summary.
func (p *LLMPlanner) Verify(ctx context.Context, goal schemas.Goal, obs *schemas.Observation, summary string) (string, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: verifySystemPrompt,
		UserPrompt:   buildVerifyPrompt(goal, obs, summary),
		Tier:         schemas.TierFast,
		Options:      schemas.GenerationOptions{Temperature: 0.0, MaxTokens: 256},
	}

	note, err := p.client.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("verification call failed: %w", err)
	}
	return truncate(note, 500), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
