package service

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/interview-eval-api/internal/config"
	"github.com/noah-isme/interview-eval-api/pkg/ai"
)

// NewProvider builds the LLM provider selected in the configuration.
func NewProvider(cfg config.AIConfig, httpClient *http.Client, logger zerolog.Logger) (ai.Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		return ai.NewOpenAIProvider(ai.OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.BaseURL,
			HTTPClient: httpClient,
			Logger:     logger,
		})
	case "anthropic":
		return ai.NewAnthropicProvider(ai.AnthropicConfig{
			APIKey:     cfg.AnthropicAPIKey,
			BaseURL:    cfg.BaseURL,
			HTTPClient: httpClient,
			Logger:     logger,
		})
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
}

// NewEvaluatorFromConfig wires a provider and the evaluation orchestrator.
func NewEvaluatorFromConfig(cfg config.AIConfig, httpClient *http.Client, logger zerolog.Logger) (*ai.Evaluator, error) {
	provider, err := NewProvider(cfg, httpClient, logger)
	if err != nil {
		return nil, err
	}

	return ai.NewEvaluator(provider, ai.EvaluatorConfig{
		Model:          cfg.Model,
		ModelVersion:   cfg.ModelVersion,
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
		AttemptTimeout: cfg.AttemptTimeout,
		MaxRetries:     cfg.MaxRetries,
		Limits: ai.TextLimits{
			MaxFeedbackLength: cfg.FeedbackMaxLength,
			MaxTipsLength:     cfg.TipsMaxLength,
		},
		Logger: logger,
	})
}
