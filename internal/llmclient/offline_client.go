package llmclient

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// offlineVerdict is what the planner receives when no provider is usable: a
// well-formed verdict that ends the task honestly instead of inventing steps.
const offlineVerdict = `{"decision":"UNRECOVERABLE","reason":"offline mode: no LLM API key is configured","thought":"No completion provider is available."}`

// OfflineClient is a deterministic stand-in used when no API key is
// configured. It returns a fixed completion for every request, which by
// default is a verdict declining the goal.
type OfflineClient struct {
	response string
	logger   *zap.Logger
}

var _ schemas.LLMClient = (*OfflineClient)(nil)

// NewOfflineClient builds an offline client. An empty response selects the
// default declining verdict.
func NewOfflineClient(response string, logger *zap.Logger) *OfflineClient {
	if response == "" {
		response = offlineVerdict
	}
	return &OfflineClient{
		response: response,
		logger:   logger.Named("llm_client.offline"),
	}
}

// Generate returns the canned completion.
func (c *OfflineClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.logger.Debug("Offline completion served", zap.String("tier", string(req.Tier)))
	return c.response, nil
}

// Close implements schemas.LLMClient.
func (c *OfflineClient) Close() error { return nil }
