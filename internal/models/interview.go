package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/interview-eval-api/pkg/ai"
)

// Question is an interview question with its reference answer and scoring rubric.
// Rubric max scores are fixed when the question is authored.
type Question struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	Slug                  string    `gorm:"size:128;uniqueIndex;not null" json:"slug"`
	Category              string    `gorm:"size:64;index" json:"category"`
	Text                  string    `gorm:"type:text;not null" json:"text"`
	IdealAnswer           string    `gorm:"type:text;not null" json:"-"`
	ConceptAccuracyMax    int       `gorm:"not null;default:4" json:"concept_accuracy_max"`
	ConceptAccuracyWeight string    `gorm:"size:255" json:"concept_accuracy_weight"`
	ExampleUsageMax       int       `gorm:"not null;default:3" json:"example_usage_max"`
	ExampleUsageWeight    string    `gorm:"size:255" json:"example_usage_weight"`
	EdgeCasesMax          int       `gorm:"not null;default:2" json:"edge_cases_max"`
	EdgeCasesWeight       string    `gorm:"size:255" json:"edge_cases_weight"`
	ClarityMax            int       `gorm:"not null;default:1" json:"clarity_max"`
	ClarityWeight         string    `gorm:"size:255" json:"clarity_weight"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Rubric builds the evaluation rubric from the stored columns. Unset max scores fall back
// to the default rubric as a whole so the four bounds always sum to the rubric total.
func (q Question) Rubric() ai.Rubric {
	defaults := ai.DefaultRubric()
	if q.ConceptAccuracyMax == 0 && q.ExampleUsageMax == 0 && q.EdgeCasesMax == 0 && q.ClarityMax == 0 {
		return defaults
	}

	rubric := ai.Rubric{
		ConceptAccuracy: ai.CriterionRule{MaxScore: q.ConceptAccuracyMax, Weight: weightOr(q.ConceptAccuracyWeight, defaults.ConceptAccuracy.Weight)},
		ExampleUsage:    ai.CriterionRule{MaxScore: q.ExampleUsageMax, Weight: weightOr(q.ExampleUsageWeight, defaults.ExampleUsage.Weight)},
		EdgeCases:       ai.CriterionRule{MaxScore: q.EdgeCasesMax, Weight: weightOr(q.EdgeCasesWeight, defaults.EdgeCases.Weight)},
		Clarity:         ai.CriterionRule{MaxScore: q.ClarityMax, Weight: weightOr(q.ClarityWeight, defaults.Clarity.Weight)},
	}
	if rubric.Validate() != nil {
		return defaults
	}
	return rubric
}

// ApplyRubric copies rubric bounds and weights onto the question columns.
func (q *Question) ApplyRubric(rubric ai.Rubric) {
	q.ConceptAccuracyMax, q.ConceptAccuracyWeight = rubric.ConceptAccuracy.MaxScore, rubric.ConceptAccuracy.Weight
	q.ExampleUsageMax, q.ExampleUsageWeight = rubric.ExampleUsage.MaxScore, rubric.ExampleUsage.Weight
	q.EdgeCasesMax, q.EdgeCasesWeight = rubric.EdgeCases.MaxScore, rubric.EdgeCases.Weight
	q.ClarityMax, q.ClarityWeight = rubric.Clarity.MaxScore, rubric.Clarity.Weight
}

func weightOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

const (
	// SessionStatusInProgress marks a session still accepting answers.
	SessionStatusInProgress = "in_progress"
	// SessionStatusCompleted marks a closed session.
	SessionStatusCompleted = "completed"
)

// InterviewSession groups a candidate's answers. TotalScore is only ever changed by an
// atomic increment alongside an answer insert.
type InterviewSession struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     string    `gorm:"size:64;index;not null" json:"user_id"`
	Title      string    `gorm:"size:255" json:"title"`
	Status     string    `gorm:"size:32;not null;default:in_progress" json:"status"`
	TotalScore int       `gorm:"not null;default:0" json:"total_score"`
	Answers    []Answer  `gorm:"foreignKey:SessionID" json:"answers,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsCompleted reports whether the session is closed for new answers.
func (s InterviewSession) IsCompleted() bool {
	return s.Status == SessionStatusCompleted
}

const (
	// AnswerStatusEvaluated marks an answer scored by the evaluator.
	AnswerStatusEvaluated = "evaluated"
	// AnswerStatusFallback marks an answer stored with the default zero score.
	AnswerStatusFallback = "fallback"
)

// Answer is the persisted evaluation of one candidate answer. At most one row exists per
// (session, question).
type Answer struct {
	ID               uint                                   `gorm:"primaryKey" json:"id"`
	SessionID        uint                                   `gorm:"not null;uniqueIndex:idx_answer_session_question" json:"session_id"`
	QuestionID       uint                                   `gorm:"not null;uniqueIndex:idx_answer_session_question" json:"question_id"`
	UserAnswer       string                                 `gorm:"type:text;not null" json:"user_answer"`
	LLMScore         datatypes.JSONType[ai.CriterionScores] `json:"llm_score"`
	FinalScore       int                                    `gorm:"not null" json:"final_score"`
	Feedback         string                                 `gorm:"type:text" json:"feedback"`
	ImprovementTips  string                                 `gorm:"type:text" json:"improvement_tips"`
	EvaluationStatus string                                 `gorm:"size:32;not null" json:"evaluation_status"`
	RetryCount       int                                    `json:"retry_count"`
	Model            string                                 `gorm:"size:128" json:"model"`
	Metadata         datatypes.JSONMap                      `json:"metadata"`
	CreatedAt        time.Time                              `json:"created_at"`
}

// Evaluated reports whether the answer received a real evaluation.
func (a Answer) Evaluated() bool {
	return a.EvaluationStatus == AnswerStatusEvaluated
}
