package schemas

// Decision is the tagged verdict a planner returns for one planning call.
type Decision string

const (
	DecideNextAction    Decision = "NEXT_ACTION"   // Proceed with Verdict.Action.
	DecideComplete      Decision = "COMPLETE"      // The goal is achieved; Verdict.Summary explains the outcome.
	DecideUnrecoverable Decision = "UNRECOVERABLE" // The goal cannot be achieved; Verdict.Reason explains why.
)

// PlanVerdict is the planner's answer to "what now": exactly one of the three
// decisions, with the payload matching the tag.
type PlanVerdict struct {
	Decision Decision `json:"decision"`          // The verdict tag.
	Action   *Action  `json:"action,omitempty"`  // Set when Decision == NEXT_ACTION.
	Summary  string   `json:"summary,omitempty"` // Set when Decision == COMPLETE.
	Reason   string   `json:"reason,omitempty"`  // Set when Decision == UNRECOVERABLE.

	// Thought is the planner's chain of reasoning for this verdict, retained
	// for diagnostics.
	Thought string `json:"thought,omitempty"`
}

// ModelTier selects a large language model by capability preference rather
// than by name, letting configuration map tiers to concrete models.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, cheaper model (classification, short calls).
	TierPowerful ModelTier = "powerful" // Prefers the most capable model (planning).
)

// GenerationOptions controls the text generation process.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, asks the model to output valid JSON.
	TopP            float64 `json:"top_p"`             // Nucleus sampling parameter.
	TopK            int     `json:"top_k"`             // Top-k sampling parameter.
	MaxTokens       int     `json:"max_tokens"`        // Cap on generated tokens; 0 uses the provider default.
}

// GenerationRequest encapsulates a complete request to the LLM: system and
// user prompts, the desired model tier, and generation options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"` // Instructions for the model's persona and output contract.
	UserPrompt   string            `json:"user_prompt"`   // The specific query or input.
	Tier         ModelTier         `json:"tier"`          // The desired model tier (fast or powerful).
	Options      GenerationOptions `json:"options"`       // Advanced generation parameters.
}
