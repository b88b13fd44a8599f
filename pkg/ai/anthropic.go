package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AnthropicConfig configures the Anthropic messages provider.
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// AnthropicProvider implements Provider against the Anthropic messages API.
type AnthropicProvider struct {
	client anthropic.Client
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewAnthropicProvider constructs a provider. SDK retries are disabled because the
// Evaluator owns the retry budget.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		tracer: otel.Tracer("github.com/noah-isme/interview-eval-api/pkg/ai/anthropic"),
		logger: logger.With().Str("component", "anthropic_provider").Logger(),
	}, nil
}

// Name identifies the provider in metrics and metadata.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Call sends the system prompt in the dedicated system field and the user prompt as the only message.
func (p *AnthropicProvider) Call(parent context.Context, systemPrompt, userPrompt string, cfg CallConfig) (ProviderResponse, error) {
	ctx, span := p.tracer.Start(parent, "anthropic.call", trace.WithAttributes(
		attribute.String("model", cfg.Model),
	))
	defer span.End()

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(cfg.Model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(float64(cfg.Temperature)),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if topK, ok := cfg.Extra["top_k"]; ok {
		params.TopK = anthropic.Int(int64(topK))
	}

	start := time.Now()
	resp, err := p.client.Messages.New(ctx, params)
	aiProviderDuration.WithLabelValues(p.Name(), cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		providerErr := &ProviderError{Provider: p.Name(), StatusCode: anthropicStatusCode(err), Err: err}
		span.RecordError(providerErr)
		span.SetStatus(codes.Error, providerErr.Error())
		return ProviderResponse{}, providerErr
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			content.WriteString(text.Text)
		}
	}
	if content.Len() == 0 {
		providerErr := &ProviderError{Provider: p.Name(), Err: errors.New("no text content returned")}
		span.RecordError(providerErr)
		span.SetStatus(codes.Error, providerErr.Error())
		return ProviderResponse{}, providerErr
	}

	input := int(resp.Usage.InputTokens)
	output := int(resp.Usage.OutputTokens)
	span.SetAttributes(attribute.Int("usage.total_tokens", input+output))
	p.logger.Debug().Str("model", cfg.Model).Int("content_length", content.Len()).Msg("message received")

	return ProviderResponse{
		Content: strings.TrimSpace(content.String()),
		Usage: &TokenUsage{
			PromptTokens:     input,
			CompletionTokens: output,
			TotalTokens:      input + output,
		},
		FinishReason: string(resp.StopReason),
	}, nil
}

func anthropicStatusCode(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
