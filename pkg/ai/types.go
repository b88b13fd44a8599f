package ai

import (
	"context"
	"fmt"
	"time"
)

// Criterion names one of the four rubric dimensions.
type Criterion string

// Rubric criteria, in scoring order.
const (
	CriterionConceptAccuracy Criterion = "concept_accuracy"
	CriterionExampleUsage    Criterion = "example_usage"
	CriterionEdgeCases       Criterion = "edge_cases"
	CriterionClarity         Criterion = "clarity"
)

// RubricTotal is the sum every rubric's max scores must reach.
const RubricTotal = 10

// Criteria lists the rubric criteria in the order they are scored and rendered.
var Criteria = []Criterion{
	CriterionConceptAccuracy,
	CriterionExampleUsage,
	CriterionEdgeCases,
	CriterionClarity,
}

// CriterionRule bounds a single criterion.
type CriterionRule struct {
	MaxScore int    `json:"max_score" yaml:"max_score"`
	Weight   string `json:"weight" yaml:"weight"`
}

// Rubric holds the per-criterion bounds for a question.
type Rubric struct {
	ConceptAccuracy CriterionRule `json:"concept_accuracy" yaml:"concept_accuracy"`
	ExampleUsage    CriterionRule `json:"example_usage" yaml:"example_usage"`
	EdgeCases       CriterionRule `json:"edge_cases" yaml:"edge_cases"`
	Clarity         CriterionRule `json:"clarity" yaml:"clarity"`
}

// DefaultRubric returns the canonical 4/3/2/1 rubric.
func DefaultRubric() Rubric {
	return Rubric{
		ConceptAccuracy: CriterionRule{MaxScore: 4, Weight: "Correctness and depth of the core concept"},
		ExampleUsage:    CriterionRule{MaxScore: 3, Weight: "Use of concrete, relevant examples"},
		EdgeCases:       CriterionRule{MaxScore: 2, Weight: "Awareness of edge cases and trade-offs"},
		Clarity:         CriterionRule{MaxScore: 1, Weight: "Structure and clarity of communication"},
	}
}

// Rule returns the rule configured for the given criterion.
func (r Rubric) Rule(c Criterion) CriterionRule {
	switch c {
	case CriterionConceptAccuracy:
		return r.ConceptAccuracy
	case CriterionExampleUsage:
		return r.ExampleUsage
	case CriterionEdgeCases:
		return r.EdgeCases
	case CriterionClarity:
		return r.Clarity
	default:
		return CriterionRule{}
	}
}

// Max returns the upper bound for the given criterion.
func (r Rubric) Max(c Criterion) int {
	return r.Rule(c).MaxScore
}

// Total sums the criterion max scores.
func (r Rubric) Total() int {
	total := 0
	for _, c := range Criteria {
		total += r.Max(c)
	}
	return total
}

// Validate reports whether the rubric is usable for scoring.
func (r Rubric) Validate() error {
	for _, c := range Criteria {
		if r.Max(c) < 0 {
			return fmt.Errorf("rubric %s max_score must not be negative", c)
		}
	}
	if total := r.Total(); total != RubricTotal {
		return fmt.Errorf("rubric max scores must sum to %d, got %d", RubricTotal, total)
	}
	return nil
}

// EvaluationInput contains everything the evaluator needs to grade an answer.
type EvaluationInput struct {
	QuestionText string
	IdealAnswer  string
	Rubric       Rubric
	UserAnswer   string
}

// CriterionScores carries the four per-criterion integer scores.
type CriterionScores struct {
	ConceptAccuracy int `json:"concept_accuracy"`
	ExampleUsage    int `json:"example_usage"`
	EdgeCases       int `json:"edge_cases"`
	Clarity         int `json:"clarity"`
}

// Get returns the score for the given criterion.
func (s CriterionScores) Get(c Criterion) int {
	switch c {
	case CriterionConceptAccuracy:
		return s.ConceptAccuracy
	case CriterionExampleUsage:
		return s.ExampleUsage
	case CriterionEdgeCases:
		return s.EdgeCases
	case CriterionClarity:
		return s.Clarity
	default:
		return 0
	}
}

// Set stores the score for the given criterion.
func (s *CriterionScores) Set(c Criterion, value int) {
	switch c {
	case CriterionConceptAccuracy:
		s.ConceptAccuracy = value
	case CriterionExampleUsage:
		s.ExampleUsage = value
	case CriterionEdgeCases:
		s.EdgeCases = value
	case CriterionClarity:
		s.Clarity = value
	}
}

// Sum adds up the four criterion scores.
func (s CriterionScores) Sum() int {
	return s.ConceptAccuracy + s.ExampleUsage + s.EdgeCases + s.Clarity
}

// EvaluationResult is the validated, bounded outcome of an evaluation.
// FinalScore always equals Scores.Sum().
type EvaluationResult struct {
	CriterionScores
	FinalScore      int    `json:"final_score"`
	OverallFeedback string `json:"overall_feedback"`
	ImprovementTips string `json:"improvement_tips"`
}

// TokenUsage reports provider token consumption.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates usage across attempts.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// CallConfig carries the per-call generation settings.
type CallConfig struct {
	Model       string
	Temperature float32
	MaxTokens   int
	// Extra holds provider-specific tuning, e.g. "top_p".
	Extra map[string]float64
}

// ProviderResponse is the raw text returned by a provider.
type ProviderResponse struct {
	Content      string
	Usage        *TokenUsage
	FinishReason string
}

// Provider is a uniform interface over heterogeneous LLM backends.
type Provider interface {
	Name() string
	Call(ctx context.Context, systemPrompt, userPrompt string, cfg CallConfig) (ProviderResponse, error)
}

// EvaluationMetadata is attached to every evaluation, successful or not.
type EvaluationMetadata struct {
	ModelUsed        string      `json:"model_used"`
	ModelVersion     string      `json:"model_version"`
	Provider         string      `json:"provider"`
	Timestamp        time.Time   `json:"timestamp"`
	ProcessingTimeMs int64       `json:"processing_time_ms"`
	TokenUsage       *TokenUsage `json:"token_usage,omitempty"`
	RetryCount       int         `json:"retry_count"`
	Repaired         bool        `json:"repaired"`
	Warnings         []string    `json:"warnings,omitempty"`
}

// Evaluation is the always-well-formed result returned by the orchestrator.
// When Success is false, Data holds the zero-score default and Error explains why.
type Evaluation struct {
	Success  bool               `json:"success"`
	Data     EvaluationResult   `json:"data"`
	Metadata EvaluationMetadata `json:"metadata"`
	Error    string             `json:"error,omitempty"`
}
