package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/finqa/finqa/internal/config"
)

// New builds the configured provider wrapped in the retry policy.
func New(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (LanguageModel, error) {
	var (
		provider LanguageModel
		err      error
	)
	switch cfg.Provider {
	case config.LLMProviderOpenAI:
		provider, err = NewOpenAI(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		})
	case config.LLMProviderGemini:
		provider, err = NewGemini(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			BaseURL:     cfg.BaseURL,
		})
	case config.LLMProviderOllama:
		provider, err = NewOllama(ctx, OllamaConfig{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s model: %w", cfg.Provider, err)
	}
	return WithRetry(provider, RetryConfig{
		MaxRetries:     cfg.MaxRetries,
		AttemptTimeout: cfg.Timeout,
		Backoff:        cfg.RetryBackoff,
	}, logger), nil
}
