package ai

// DefaultMaxRetries is the retry budget after the first attempt (three attempts in total).
const DefaultMaxRetries = 2

// AttemptOutcome classifies what happened during one attempt.
type AttemptOutcome string

// Attempt outcomes.
const (
	OutcomeValid         AttemptOutcome = "valid"
	OutcomeProviderError AttemptOutcome = "provider_error"
	OutcomeParseFailure  AttemptOutcome = "parse_failure"
	OutcomeFieldErrors   AttemptOutcome = "field_errors"
)

// Strategy is the decision taken after an attempt.
type Strategy string

// Recovery strategies.
const (
	StrategyAccept     Strategy = "accept"
	StrategyRetry      Strategy = "retry"
	StrategyUseDefault Strategy = "use_default"
)

// Decision is the transition out of the validate state.
// Variant is only meaningful when Strategy is StrategyRetry.
type Decision struct {
	Strategy Strategy
	Variant  PromptVariant
}

// DetermineRecoveryStrategy decides whether to accept, retry with a given prompt variant,
// or fall back to the default result. retryCount is the number of retries already spent.
//
// Total parse failures and provider errors retry the full prompt once before simplifying;
// field-level errors go straight to the fallback prompt.
func DetermineRecoveryStrategy(outcome AttemptOutcome, retryCount, maxRetries int) Decision {
	if outcome == OutcomeValid {
		return Decision{Strategy: StrategyAccept}
	}
	if retryCount >= maxRetries {
		return Decision{Strategy: StrategyUseDefault}
	}

	switch outcome {
	case OutcomeParseFailure, OutcomeProviderError:
		if retryCount == 0 {
			return Decision{Strategy: StrategyRetry, Variant: PromptFull}
		}
		return Decision{Strategy: StrategyRetry, Variant: PromptFallback}
	case OutcomeFieldErrors:
		return Decision{Strategy: StrategyRetry, Variant: PromptFallback}
	default:
		return Decision{Strategy: StrategyUseDefault}
	}
}
