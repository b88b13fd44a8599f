package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type scriptedReply struct {
	content string
	err     error
	block   bool
}

type scriptedProvider struct {
	mu      sync.Mutex
	replies []scriptedReply
	prompts []string
	calls   int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Call(ctx context.Context, systemPrompt, userPrompt string, cfg CallConfig) (ProviderResponse, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.prompts = append(p.prompts, systemPrompt)
	reply := p.replies[len(p.replies)-1]
	if idx < len(p.replies) {
		reply = p.replies[idx]
	}
	p.mu.Unlock()

	if reply.block {
		<-ctx.Done()
		return ProviderResponse{}, ctx.Err()
	}
	if reply.err != nil {
		return ProviderResponse{}, reply.err
	}
	return ProviderResponse{
		Content: reply.content,
		Usage:   &TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func newTestEvaluator(t *testing.T, provider Provider, timeout time.Duration) *Evaluator {
	t.Helper()
	evaluator, err := NewEvaluator(provider, EvaluatorConfig{
		Model:          "test-model",
		ModelVersion:   "test-model-2024",
		AttemptTimeout: timeout,
		MaxRetries:     DefaultMaxRetries,
		Logger:         zerolog.Nop(),
	})
	require.NoError(t, err)
	return evaluator
}

func TestEvaluatorHappyPath(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{{content: canonicalJSON}}}
	evaluator := newTestEvaluator(t, provider, time.Second)

	result := evaluator.Evaluate(context.Background(), sampleInput())

	require.True(t, result.Success)
	require.Empty(t, result.Error)
	require.Equal(t, 0, result.Metadata.RetryCount)
	require.Equal(t, 7, result.Data.FinalScore)
	require.Equal(t, "test-model", result.Metadata.ModelUsed)
	require.Equal(t, "test-model-2024", result.Metadata.ModelVersion)
	require.Equal(t, "scripted", result.Metadata.Provider)
	require.NotNil(t, result.Metadata.TokenUsage)
	require.Equal(t, 15, result.Metadata.TokenUsage.TotalTokens)
	require.False(t, result.Metadata.Timestamp.IsZero())
	require.Equal(t, 1, provider.calls)
}

func TestEvaluatorClampsWithoutRetry(t *testing.T) {
	reply := `{"concept_accuracy":7,"example_usage":2,"edge_cases":1,"clarity":1,"final_score":11,"overall_feedback":"ok","improvement_tips":"ok"}`
	provider := &scriptedProvider{replies: []scriptedReply{{content: reply}}}
	evaluator := newTestEvaluator(t, provider, time.Second)

	result := evaluator.Evaluate(context.Background(), sampleInput())

	require.True(t, result.Success)
	require.True(t, result.Metadata.Repaired)
	require.NotEmpty(t, result.Metadata.Warnings)
	require.Equal(t, 4, result.Data.ConceptAccuracy)
	require.Equal(t, 8, result.Data.FinalScore)
	require.Equal(t, 1, provider.calls)
}

func TestEvaluatorRecoversFencedOutput(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{{content: "Sure! Here is the result:\n```json\n" + canonicalJSON + "\n```"}}}
	evaluator := newTestEvaluator(t, provider, time.Second)

	result := evaluator.Evaluate(context.Background(), sampleInput())

	require.True(t, result.Success)
	require.Equal(t, 0, result.Metadata.RetryCount)
	require.Equal(t, 7, result.Data.FinalScore)
}

func TestEvaluatorParseFailureRetriesFullThenFallback(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{
		{content: "I am unable to comply."},
		{content: "still not json"},
		{content: canonicalJSON},
	}}
	evaluator := newTestEvaluator(t, provider, time.Second)
	input := sampleInput()

	result := evaluator.Evaluate(context.Background(), input)

	require.True(t, result.Success)
	require.Equal(t, 2, result.Metadata.RetryCount)
	require.Equal(t, 45, result.Metadata.TokenUsage.TotalTokens)
	require.Len(t, provider.prompts, 3)
	require.Equal(t, BuildFullPrompt(input).System, provider.prompts[0])
	require.Equal(t, BuildFullPrompt(input).System, provider.prompts[1])
	require.Equal(t, BuildFallbackPrompt(input).System, provider.prompts[2])
}

func TestEvaluatorFieldErrorsGoStraightToFallbackPrompt(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{
		{content: `{"concept_accuracy":"high","overall_feedback":"ok"}`},
		{content: canonicalJSON},
	}}
	evaluator := newTestEvaluator(t, provider, time.Second)
	input := sampleInput()

	result := evaluator.Evaluate(context.Background(), input)

	require.True(t, result.Success)
	require.Equal(t, 1, result.Metadata.RetryCount)
	require.Equal(t, BuildFallbackPrompt(input).System, provider.prompts[1])
}

func TestEvaluatorExhaustionOnTimeouts(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{{block: true}}}
	evaluator := newTestEvaluator(t, provider, 20*time.Millisecond)

	result := evaluator.Evaluate(context.Background(), sampleInput())

	require.False(t, result.Success)
	require.Equal(t, DefaultMaxRetries, result.Metadata.RetryCount)
	require.Equal(t, DefaultMaxRetries+1, provider.calls)
	require.Equal(t, DefaultResult(), result.Data)
	require.Equal(t, 0, result.Data.Sum())
	require.Equal(t, 0, result.Data.FinalScore)
	require.Contains(t, result.Error, ErrAttemptTimeout.Error())
	require.Nil(t, result.Metadata.TokenUsage)
}

func TestEvaluatorExhaustionOnProviderErrors(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{{err: &ProviderError{Provider: "scripted", StatusCode: 503, Err: errors.New("overloaded")}}}}
	evaluator := newTestEvaluator(t, provider, time.Second)

	result := evaluator.Evaluate(context.Background(), sampleInput())

	require.False(t, result.Success)
	require.Equal(t, DefaultMaxRetries, result.Metadata.RetryCount)
	require.Contains(t, result.Error, "503")
	require.Equal(t, FallbackFeedback, result.Data.OverallFeedback)
}

func TestEvaluatorStopsOnCallerCancellation(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{{block: true}}}
	evaluator := newTestEvaluator(t, provider, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	result := evaluator.Evaluate(ctx, sampleInput())

	require.Less(t, time.Since(start), 5*time.Second)
	require.False(t, result.Success)
	require.Equal(t, 1, provider.calls)
	require.Equal(t, 0, result.Data.FinalScore)
	require.Contains(t, result.Error, context.Canceled.Error())
}

func TestEvaluatorAlreadyCancelledMakesNoCalls(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{{content: canonicalJSON}}}
	evaluator := newTestEvaluator(t, provider, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := evaluator.Evaluate(ctx, sampleInput())

	require.False(t, result.Success)
	require.Equal(t, 0, provider.calls)
}

func TestEvaluatorInvalidRubricFallsBackToDefault(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{{content: canonicalJSON}}}
	evaluator := newTestEvaluator(t, provider, time.Second)

	input := sampleInput()
	input.Rubric = Rubric{}

	result := evaluator.Evaluate(context.Background(), input)

	require.True(t, result.Success)
	require.Equal(t, 7, result.Data.FinalScore)
	require.NotEmpty(t, result.Metadata.Warnings)
}

func TestEvaluatorConcurrentCallsAreIsolated(t *testing.T) {
	evaluator := newTestEvaluator(t, &scriptedProvider{replies: []scriptedReply{{content: canonicalJSON}}}, time.Second)

	var wg sync.WaitGroup
	results := make([]Evaluation, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			input := sampleInput()
			input.UserAnswer = fmt.Sprintf("answer %d", i)
			results[i] = evaluator.Evaluate(context.Background(), input)
		}(i)
	}
	wg.Wait()

	for _, result := range results {
		require.True(t, result.Success)
		require.Equal(t, 0, result.Metadata.RetryCount)
		require.Equal(t, 15, result.Metadata.TokenUsage.TotalTokens)
	}
}

func TestNewEvaluatorValidatesConfig(t *testing.T) {
	_, err := NewEvaluator(nil, EvaluatorConfig{Model: "m"})
	require.Error(t, err)

	_, err = NewEvaluator(&scriptedProvider{}, EvaluatorConfig{})
	require.Error(t, err)

	evaluator, err := NewEvaluator(&scriptedProvider{}, EvaluatorConfig{Model: "m", MaxRetries: -1})
	require.NoError(t, err)
	require.Equal(t, DefaultMaxRetries, evaluator.MaxRetries())
	require.Equal(t, DefaultAttemptTimeout, evaluator.AttemptTimeout())
}

func TestEvaluatorZeroRetriesMakesOneAttempt(t *testing.T) {
	provider := &scriptedProvider{replies: []scriptedReply{{content: "not json"}}}
	evaluator, err := NewEvaluator(provider, EvaluatorConfig{Model: "m", MaxRetries: 0, Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.Equal(t, 0, evaluator.MaxRetries())

	result := evaluator.Evaluate(context.Background(), sampleInput())
	require.False(t, result.Success)
	require.Equal(t, 1, provider.calls)
	require.Equal(t, 0, result.Metadata.RetryCount)
	require.Equal(t, DefaultResult(), result.Data)
}
