package ai

import (
	"context"
	"time"
)

type timeoutProvider struct {
	next    Provider
	timeout time.Duration
}

type callResult struct {
	resp ProviderResponse
	err  error
}

// WithTimeout races every call of next against a per-call deadline. A call that
// exceeds it fails with a *ProviderError wrapping ErrAttemptTimeout; cancellation of
// the caller's context is returned as the context error.
func WithTimeout(next Provider, timeout time.Duration) Provider {
	if timeout <= 0 {
		return next
	}
	return &timeoutProvider{next: next, timeout: timeout}
}

func (p *timeoutProvider) Name() string {
	return p.next.Name()
}

func (p *timeoutProvider) Call(parent context.Context, systemPrompt, userPrompt string, cfg CallConfig) (ProviderResponse, error) {
	ctx, cancel := context.WithTimeout(parent, p.timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		resp, err := p.next.Call(ctx, systemPrompt, userPrompt, cfg)
		done <- callResult{resp: resp, err: err}
	}()

	select {
	case result := <-done:
		if result.err != nil && ctx.Err() != nil {
			return ProviderResponse{}, p.deadlineError(parent)
		}
		return result.resp, result.err
	case <-ctx.Done():
		return ProviderResponse{}, p.deadlineError(parent)
	}
}

func (p *timeoutProvider) deadlineError(parent context.Context) error {
	if parentErr := parent.Err(); parentErr != nil {
		return parentErr
	}
	return &ProviderError{Provider: p.next.Name(), Err: ErrAttemptTimeout}
}
