package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/site2rag/internal/common"
)

// NewProvider resolves the configured provider. An explicit llm.model
// override wins, with the provider detected from the model name prefix;
// otherwise llm.default_provider decides.
func NewProvider(ctx context.Context, config *common.Config, logger arbor.ILogger) (Provider, error) {
	provider := config.LLM.DefaultProvider
	if config.LLM.Model != "" {
		provider = detectProvider(config.LLM.Model)
		applyModelOverride(config, provider)
	}

	switch provider {
	case common.LLMProviderClaude:
		return NewClaudeProvider(&config.Claude, logger)
	case common.LLMProviderGemini:
		return NewGeminiProvider(ctx, &config.Gemini, logger)
	case common.LLMProviderOllama, "":
		return NewOllamaProvider(&config.Ollama, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

// detectProvider maps a model name to its provider by prefix.
func detectProvider(model string) common.LLMProvider {
	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "claude"):
		return common.LLMProviderClaude
	case strings.HasPrefix(lower, "gemini"):
		return common.LLMProviderGemini
	default:
		return common.LLMProviderOllama
	}
}

func applyModelOverride(config *common.Config, provider common.LLMProvider) {
	switch provider {
	case common.LLMProviderClaude:
		config.Claude.Model = config.LLM.Model
	case common.LLMProviderGemini:
		config.Gemini.Model = config.LLM.Model
	default:
		config.Ollama.Model = config.LLM.Model
	}
}
