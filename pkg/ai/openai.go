package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OpenAIConfig defines configuration options for the OpenAI provider.
// BaseURL points the client at any OpenAI-compatible endpoint (Ollama, vLLM, LM Studio).
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// OpenAIProvider implements Provider against the chat completion API.
type OpenAIProvider struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIProvider builds a provider using the supplied configuration.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		config.HTTPClient = cfg.HTTPClient
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/interview-eval-api/pkg/ai/openai"),
		logger: logger.With().Str("component", "openai_provider").Logger(),
	}, nil
}

// Name identifies the provider in metrics and metadata.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Call sends the prompts as a system/user message pair and requests a JSON object response.
func (p *OpenAIProvider) Call(parent context.Context, systemPrompt, userPrompt string, cfg CallConfig) (ProviderResponse, error) {
	ctx, span := p.tracer.Start(parent, "openai.call", trace.WithAttributes(
		attribute.String("model", cfg.Model),
	))
	defer span.End()

	request := openai.ChatCompletionRequest{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}
	if topP, ok := cfg.Extra["top_p"]; ok {
		request.TopP = float32(topP)
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, request)
	aiProviderDuration.WithLabelValues(p.Name(), cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		providerErr := &ProviderError{Provider: p.Name(), StatusCode: openAIStatusCode(err), Err: err}
		span.RecordError(providerErr)
		span.SetStatus(codes.Error, providerErr.Error())
		return ProviderResponse{}, providerErr
	}

	if len(resp.Choices) == 0 {
		providerErr := &ProviderError{Provider: p.Name(), Err: errors.New("no choices returned")}
		span.RecordError(providerErr)
		span.SetStatus(codes.Error, providerErr.Error())
		return ProviderResponse{}, providerErr
	}

	choice := resp.Choices[0]
	span.SetAttributes(attribute.Int("usage.total_tokens", resp.Usage.TotalTokens))
	p.logger.Debug().Str("model", cfg.Model).Int("content_length", len(choice.Message.Content)).Msg("chat completion received")

	return ProviderResponse{
		Content: strings.TrimSpace(choice.Message.Content),
		Usage: &TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: string(choice.FinishReason),
	}, nil
}

func openAIStatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
