package factory

import (
	"analytics-chat-be/internal/config"
	"analytics-chat-be/pkg/llm"
	"analytics-chat-be/pkg/llm/anthropic"
	"analytics-chat-be/pkg/llm/ollama"
	"analytics-chat-be/pkg/llm/openai"
	"fmt"
)

func NewLLMProvider(cfg config.AIConfig) (llm.LLMProvider, error) {
	switch cfg.LLMProvider {
	case "ollama":
		baseURL := cfg.OllamaBaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, cfg.LLMModel, cfg.MaxTokens, cfg.RequestTimeout), nil
	case "anthropic":
		return anthropic.NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.LLMModel, cfg.MaxTokens, cfg.RequestTimeout), nil
	case "openai", "azure-openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%s provider requires OPENAI_API_KEY", cfg.LLMProvider)
		}
		return openai.NewProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.LLMModel, cfg.MaxTokens, cfg.RequestTimeout), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}
}
