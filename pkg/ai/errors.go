package ai

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed evaluation attempt.
type ErrorKind string

// Attempt failure kinds. All three are retryable and absorbed by the Evaluator.
const (
	KindProvider        ErrorKind = "provider"
	KindMalformedOutput ErrorKind = "malformed_output"
	KindFieldValidation ErrorKind = "field_validation"
)

// ErrMalformedOutput is returned when no JSON object can be recovered from provider text.
var ErrMalformedOutput = errors.New("no json object could be recovered from provider output")

// ErrAttemptTimeout is returned when a provider call exceeds the per-attempt deadline.
var ErrAttemptTimeout = errors.New("provider call exceeded attempt timeout")

// ProviderError wraps transport failures and non-2xx responses from an LLM backend.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider returned status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s provider call failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// EvaluationError records why a single attempt did not produce an acceptable result.
type EvaluationError struct {
	Kind    ErrorKind
	Attempt int
	Err     error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation attempt %d failed (%s): %v", e.Attempt+1, e.Kind, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an EvaluationError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return evalErr.Kind == kind
	}
	return false
}
