package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Feedback returned with the zero-score default result.
const (
	FallbackFeedback = "We're sorry, your answer could not be evaluated automatically right now. It has been recorded with a score of 0."
	FallbackTips     = "Please try submitting again later or ask your interviewer for a manual review."
)

// DefaultAttemptTimeout bounds a single provider call.
const DefaultAttemptTimeout = 30 * time.Second

// EvaluatorConfig configures the evaluation orchestrator.
type EvaluatorConfig struct {
	Model          string
	ModelVersion   string
	Temperature    float32
	MaxTokens      int
	Extra          map[string]float64
	AttemptTimeout time.Duration
	MaxRetries     int // 0 means a single attempt; negative selects DefaultMaxRetries
	Limits         TextLimits
	Logger         zerolog.Logger
}

// Evaluator drives prompt construction, provider calls, recovery, validation and the
// retry state machine. It is safe for concurrent use; every Evaluate call keeps its
// own state.
type Evaluator struct {
	provider Provider
	cfg      EvaluatorConfig
	tracer   trace.Tracer
	logger   zerolog.Logger
	now      func() time.Time
}

// NewEvaluator wraps provider with the per-attempt timeout and applies config defaults.
func NewEvaluator(provider Provider, cfg EvaluatorConfig) (*Evaluator, error) {
	if provider == nil {
		return nil, fmt.Errorf("evaluation provider is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("evaluation model is required")
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 800
	}
	if cfg.ModelVersion == "" {
		cfg.ModelVersion = cfg.Model
	}
	cfg.Limits = cfg.Limits.withDefaults()

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &Evaluator{
		provider: WithTimeout(provider, cfg.AttemptTimeout),
		cfg:      cfg,
		tracer:   otel.Tracer("github.com/noah-isme/interview-eval-api/pkg/ai/evaluator"),
		logger:   logger.With().Str("component", "evaluator").Str("provider", provider.Name()).Logger(),
		now:      time.Now,
	}, nil
}

// MaxRetries returns the configured retry budget.
func (e *Evaluator) MaxRetries() int {
	return e.cfg.MaxRetries
}

// AttemptTimeout returns the configured per-attempt deadline.
func (e *Evaluator) AttemptTimeout() time.Duration {
	return e.cfg.AttemptTimeout
}

// attemptResult is what a single attempt hands to the strategy selector.
type attemptResult struct {
	outcome    AttemptOutcome
	validation ValidationOutcome
	usage      *TokenUsage
	step       RecoveryStep
	err        error
}

// evaluationRun accumulates state for exactly one Evaluate call.
type evaluationRun struct {
	start      time.Time
	retryCount int
	usage      *TokenUsage
	warnings   []string
	lastErr    error
}

func (r *evaluationRun) record(result attemptResult) {
	if result.usage != nil {
		total := *result.usage
		if r.usage != nil {
			total = r.usage.Add(*result.usage)
		}
		r.usage = &total
	}
	if result.err != nil {
		r.lastErr = result.err
	}
}

// Evaluate grades the answer. It never returns an error: LLM-side failures are absorbed
// into the retry budget and, once exhausted, into a zero-score result with Success false.
func (e *Evaluator) Evaluate(parent context.Context, input EvaluationInput) Evaluation {
	ctx, span := e.tracer.Start(parent, "evaluation.run", trace.WithAttributes(
		attribute.String("model", e.cfg.Model),
		attribute.Int("max_retries", e.cfg.MaxRetries),
	))
	defer span.End()

	run := &evaluationRun{start: e.now()}

	if err := input.Rubric.Validate(); err != nil {
		run.warnings = append(run.warnings, fmt.Sprintf("rubric: %v; default rubric applied", err))
		input.Rubric = DefaultRubric()
	}

	variant := PromptFull
loop:
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			run.lastErr = err
			break
		}
		run.retryCount = attempt

		result := e.attempt(ctx, input, variant, attempt)
		run.record(result)

		if err := ctx.Err(); err != nil && result.outcome != OutcomeValid {
			run.lastErr = err
			break
		}

		decision := DetermineRecoveryStrategy(result.outcome, attempt, e.cfg.MaxRetries)
		switch decision.Strategy {
		case StrategyAccept:
			evaluation := e.success(run, result.validation)
			span.SetAttributes(
				attribute.Int("retry_count", run.retryCount),
				attribute.Int("final_score", evaluation.Data.FinalScore),
			)
			return evaluation
		case StrategyRetry:
			e.logger.Warn().Err(result.err).Int("attempt", attempt+1).Str("next_prompt", string(decision.Variant)).Msg("evaluation attempt failed, retrying")
			variant = decision.Variant
		case StrategyUseDefault:
			break loop
		}
	}

	evaluation := e.fallback(run)
	span.SetStatus(codes.Error, evaluation.Error)
	span.SetAttributes(attribute.Int("retry_count", run.retryCount))
	return evaluation
}

func (e *Evaluator) attempt(parent context.Context, input EvaluationInput, variant PromptVariant, attempt int) attemptResult {
	ctx, span := e.tracer.Start(parent, "evaluation.attempt", trace.WithAttributes(
		attribute.Int("attempt", attempt+1),
		attribute.String("prompt_variant", string(variant)),
	))
	defer span.End()

	result := e.runAttempt(ctx, input, variant, attempt)
	aiAttempts.WithLabelValues(e.provider.Name(), string(result.outcome)).Inc()
	span.SetAttributes(attribute.String("outcome", string(result.outcome)))
	if result.err != nil {
		span.RecordError(result.err)
		span.SetStatus(codes.Error, string(result.outcome))
	}
	return result
}

func (e *Evaluator) runAttempt(ctx context.Context, input EvaluationInput, variant PromptVariant, attempt int) attemptResult {
	prompt := BuildPrompt(input, variant)
	resp, err := e.provider.Call(ctx, prompt.System, prompt.User, CallConfig{
		Model:       e.cfg.Model,
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
		Extra:       e.cfg.Extra,
	})
	if err != nil {
		return attemptResult{
			outcome: OutcomeProviderError,
			err:     &EvaluationError{Kind: KindProvider, Attempt: attempt, Err: err},
		}
	}

	parsed, step, err := RecoverJSON(resp.Content)
	if err != nil {
		e.logger.Debug().Int("attempt", attempt+1).Int("content_length", len(resp.Content)).Str("finish_reason", resp.FinishReason).Msg("provider output not recoverable")
		return attemptResult{
			outcome: OutcomeParseFailure,
			usage:   resp.Usage,
			err:     &EvaluationError{Kind: KindMalformedOutput, Attempt: attempt, Err: err},
		}
	}

	validation := ValidateScores(parsed, input.Rubric, e.cfg.Limits)
	for _, warning := range validation.Warnings {
		aiRepairs.WithLabelValues(string(warning.Kind)).Inc()
	}
	if !validation.IsValid {
		return attemptResult{
			outcome:    OutcomeFieldErrors,
			validation: validation,
			usage:      resp.Usage,
			step:       step,
			err:        &EvaluationError{Kind: KindFieldValidation, Attempt: attempt, Err: issuesError(validation.Errors)},
		}
	}

	e.logger.Debug().Int("attempt", attempt+1).Str("recovery_step", step.String()).Bool("repaired", validation.WasRepaired).Msg("evaluation attempt accepted")
	return attemptResult{
		outcome:    OutcomeValid,
		validation: validation,
		usage:      resp.Usage,
		step:       step,
	}
}

func (e *Evaluator) success(run *evaluationRun, validation ValidationOutcome) Evaluation {
	metadata := e.metadata(run)
	metadata.Repaired = validation.WasRepaired
	for _, warning := range validation.Warnings {
		metadata.Warnings = append(metadata.Warnings, warning.String())
	}

	return Evaluation{
		Success:  true,
		Data:     validation.Data,
		Metadata: metadata,
	}
}

func (e *Evaluator) fallback(run *evaluationRun) Evaluation {
	reason := "retries_exhausted"
	message := "evaluation failed"
	if run.lastErr != nil {
		message = run.lastErr.Error()
		switch {
		case errors.Is(run.lastErr, context.Canceled), errors.Is(run.lastErr, context.DeadlineExceeded):
			reason = "cancelled"
		case IsKind(run.lastErr, KindProvider):
			reason = string(KindProvider)
		case IsKind(run.lastErr, KindMalformedOutput):
			reason = string(KindMalformedOutput)
		case IsKind(run.lastErr, KindFieldValidation):
			reason = string(KindFieldValidation)
		}
	}
	aiFallbacks.WithLabelValues(reason).Inc()

	metadata := e.metadata(run)
	e.logger.Error().Str("reason", reason).Int("retry_count", run.retryCount).Str("error", message).Msg("evaluation exhausted, returning default result")

	return Evaluation{
		Success:  false,
		Data:     DefaultResult(),
		Metadata: metadata,
		Error:    message,
	}
}

func (e *Evaluator) metadata(run *evaluationRun) EvaluationMetadata {
	elapsed := e.now().Sub(run.start)
	aiDuration.WithLabelValues(e.cfg.Model).Observe(elapsed.Seconds())

	return EvaluationMetadata{
		ModelUsed:        e.cfg.Model,
		ModelVersion:     e.cfg.ModelVersion,
		Provider:         e.provider.Name(),
		Timestamp:        run.start.UTC(),
		ProcessingTimeMs: elapsed.Milliseconds(),
		TokenUsage:       run.usage,
		RetryCount:       run.retryCount,
		Warnings:         append([]string(nil), run.warnings...),
	}
}

// DefaultResult is the deterministic zero-score result used after retries are exhausted.
func DefaultResult() EvaluationResult {
	return EvaluationResult{
		FinalScore:      0,
		OverallFeedback: FallbackFeedback,
		ImprovementTips: FallbackTips,
	}
}

func issuesError(issues []ValidationIssue) error {
	parts := make([]string, 0, len(issues))
	for _, issue := range issues {
		parts = append(parts, issue.String())
	}
	return errors.New(strings.Join(parts, "; "))
}
