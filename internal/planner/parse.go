package planner

import (
	"fmt"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/llmutil"
)

// parseVerdict extracts and validates the verdict from an LLM response.
// Extraction tolerates markdown fences and surrounding prose; validation
// rejects verdicts the orchestrator could not act on.
func parseVerdict(response string) (*schemas.PlanVerdict, error) {
	jsonStringToParse := llmutil.ExtractJSON(response)
	if jsonStringToParse == "" {
		return nil, fmt.Errorf("could not find any JSON in the LLM response")
	}

	var verdict schemas.PlanVerdict
	if err := json.Unmarshal([]byte(jsonStringToParse), &verdict); err != nil {
		return nil, fmt.Errorf("failed to unmarshal extracted JSON: %w", err)
	}

	switch verdict.Decision {
	case schemas.DecideNextAction:
		if verdict.Action == nil {
			return nil, fmt.Errorf("verdict NEXT_ACTION is missing the 'action' object")
		}
		if err := verdict.Action.Validate(); err != nil {
			return nil, fmt.Errorf("verdict carries an invalid action: %w", err)
		}
	case schemas.DecideComplete:
		if verdict.Summary == "" {
			verdict.Summary = "goal achieved"
		}
	case schemas.DecideUnrecoverable:
		if verdict.Reason == "" {
			verdict.Reason = "no reason given"
		}
	case "":
		return nil, fmt.Errorf("LLM response missing required 'decision' field after successful JSON parsing")
	default:
		return nil, fmt.Errorf("unknown decision %q in LLM response", verdict.Decision)
	}

	return &verdict, nil
}
