package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deskpilot/api/schemas"
	"github.com/xkilldash9x/deskpilot/internal/config"
)

// NewClient creates an LLMClient for a single model configuration.
func NewClient(cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(cfg, logger)
	case config.ProviderAnthropic:
		return NewAnthropicClient(cfg, logger)
	case config.ProviderOffline:
		return NewOfflineClient("", logger), nil
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: %q. Supported: [%s %s %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderAnthropic, config.ProviderOffline)
	}
}

// NewRouterFromConfig builds the two-tier router from the LLM configuration.
// Models without an API key degrade to the offline client with a warning, so
// the binary stays runnable without credentials.
func NewRouterFromConfig(cfg config.LLMConfig, logger *zap.Logger) (*Router, error) {
	build := func(name string) (schemas.LLMClient, error) {
		mc, ok := cfg.ModelFor(name)
		if !ok {
			return nil, fmt.Errorf("llm model %q is not defined in llm.models", name)
		}
		if mc.Provider != config.ProviderOffline && mc.APIKey == "" {
			logger.Warn("No API key configured for model; falling back to offline responses",
				zap.String("model", name), zap.String("provider", string(mc.Provider)))
			return NewOfflineClient("", logger), nil
		}
		return NewClient(mc, logger)
	}

	fast, err := build(cfg.DefaultFastModel)
	if err != nil {
		return nil, fmt.Errorf("building fast tier client: %w", err)
	}
	powerful, err := build(cfg.DefaultPowerfulModel)
	if err != nil {
		fast.Close()
		return nil, fmt.Errorf("building powerful tier client: %w", err)
	}

	return NewRouter(logger, fast, powerful)
}
