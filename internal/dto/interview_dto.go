package dto

import (
	"time"

	"github.com/noah-isme/interview-eval-api/internal/models"
	"github.com/noah-isme/interview-eval-api/pkg/ai"
)

// SessionCreateRequest starts a new interview session.
type SessionCreateRequest struct {
	Title string `json:"title" validate:"omitempty,max=255"`
}

// AnswerSubmitRequest carries a candidate answer for evaluation.
type AnswerSubmitRequest struct {
	SessionID  uint   `json:"-" validate:"required,gt=0"`
	QuestionID uint   `json:"question_id" validate:"required,gt=0"`
	UserAnswer string `json:"user_answer" validate:"required,min=1,max=10000"`
}

// ScoreBreakdown exposes the per-criterion scores of an answer.
type ScoreBreakdown struct {
	ConceptAccuracy int `json:"concept_accuracy"`
	ExampleUsage    int `json:"example_usage"`
	EdgeCases       int `json:"edge_cases"`
	Clarity         int `json:"clarity"`
}

// EvaluationMetadataResponse is the client-facing subset of evaluation metadata.
type EvaluationMetadataResponse struct {
	ModelUsed        string         `json:"model_used"`
	ModelVersion     string         `json:"model_version"`
	Timestamp        time.Time      `json:"timestamp"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	TokenUsage       *ai.TokenUsage `json:"token_usage,omitempty"`
	RetryCount       int            `json:"retry_count"`
	Repaired         bool           `json:"repaired"`
}

// AnswerEvaluationResponse has the same shape whether the evaluation succeeded or fell back.
type AnswerEvaluationResponse struct {
	AnswerID   uint                       `json:"answer_id"`
	SessionID  uint                       `json:"session_id"`
	QuestionID uint                       `json:"question_id"`
	Success    bool                       `json:"success"`
	Score      int                        `json:"score"`
	Feedback   string                     `json:"feedback"`
	Tips       string                     `json:"tips"`
	Breakdown  ScoreBreakdown             `json:"breakdown"`
	Metadata   EvaluationMetadataResponse `json:"metadata"`
	TotalScore int                        `json:"total_score"`
}

// NewScoreBreakdown converts criterion scores to a DTO.
func NewScoreBreakdown(scores ai.CriterionScores) ScoreBreakdown {
	return ScoreBreakdown{
		ConceptAccuracy: scores.ConceptAccuracy,
		ExampleUsage:    scores.ExampleUsage,
		EdgeCases:       scores.EdgeCases,
		Clarity:         scores.Clarity,
	}
}

// NewAnswerEvaluationResponse builds the response for a freshly evaluated answer.
func NewAnswerEvaluationResponse(answer models.Answer, evaluation ai.Evaluation, totalScore int) AnswerEvaluationResponse {
	return AnswerEvaluationResponse{
		AnswerID:   answer.ID,
		SessionID:  answer.SessionID,
		QuestionID: answer.QuestionID,
		Success:    evaluation.Success,
		Score:      answer.FinalScore,
		Feedback:   answer.Feedback,
		Tips:       answer.ImprovementTips,
		Breakdown:  NewScoreBreakdown(answer.LLMScore.Data()),
		Metadata: EvaluationMetadataResponse{
			ModelUsed:        evaluation.Metadata.ModelUsed,
			ModelVersion:     evaluation.Metadata.ModelVersion,
			Timestamp:        evaluation.Metadata.Timestamp,
			ProcessingTimeMs: evaluation.Metadata.ProcessingTimeMs,
			TokenUsage:       evaluation.Metadata.TokenUsage,
			RetryCount:       evaluation.Metadata.RetryCount,
			Repaired:         evaluation.Metadata.Repaired,
		},
		TotalScore: totalScore,
	}
}

// AnswerSummary describes a stored answer inside a session summary.
type AnswerSummary struct {
	ID               uint           `json:"id"`
	QuestionID       uint           `json:"question_id"`
	Score            int            `json:"score"`
	Feedback         string         `json:"feedback"`
	Tips             string         `json:"tips"`
	Breakdown        ScoreBreakdown `json:"breakdown"`
	EvaluationStatus string         `json:"evaluation_status"`
	RetryCount       int            `json:"retry_count"`
	CreatedAt        time.Time      `json:"created_at"`
}

// NewAnswerSummary converts a stored answer.
func NewAnswerSummary(answer models.Answer) AnswerSummary {
	return AnswerSummary{
		ID:               answer.ID,
		QuestionID:       answer.QuestionID,
		Score:            answer.FinalScore,
		Feedback:         answer.Feedback,
		Tips:             answer.ImprovementTips,
		Breakdown:        NewScoreBreakdown(answer.LLMScore.Data()),
		EvaluationStatus: answer.EvaluationStatus,
		RetryCount:       answer.RetryCount,
		CreatedAt:        answer.CreatedAt,
	}
}

// SessionSummaryResponse aggregates a session and its answers.
type SessionSummaryResponse struct {
	ID          uint            `json:"id"`
	Title       string          `json:"title"`
	Status      string          `json:"status"`
	TotalScore  int             `json:"total_score"`
	Answered    int             `json:"answered"`
	MaxPossible int             `json:"max_possible"`
	Answers     []AnswerSummary `json:"answers"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewSessionSummaryResponse builds a summary from the session and its answers.
func NewSessionSummaryResponse(session models.InterviewSession, answers []models.Answer) SessionSummaryResponse {
	summaries := make([]AnswerSummary, 0, len(answers))
	for _, answer := range answers {
		summaries = append(summaries, NewAnswerSummary(answer))
	}

	return SessionSummaryResponse{
		ID:          session.ID,
		Title:       session.Title,
		Status:      session.Status,
		TotalScore:  session.TotalScore,
		Answered:    len(answers),
		MaxPossible: len(answers) * ai.RubricTotal,
		Answers:     summaries,
		CreatedAt:   session.CreatedAt,
	}
}

// SessionResponse is returned when a session is created.
type SessionResponse struct {
	ID         uint      `json:"id"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	TotalScore int       `json:"total_score"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewSessionResponse converts a session model.
func NewSessionResponse(session models.InterviewSession) SessionResponse {
	return SessionResponse{
		ID:         session.ID,
		Title:      session.Title,
		Status:     session.Status,
		TotalScore: session.TotalScore,
		CreatedAt:  session.CreatedAt,
	}
}

// QuestionResponse exposes a question without its reference answer.
type QuestionResponse struct {
	ID       uint      `json:"id"`
	Slug     string    `json:"slug"`
	Category string    `json:"category"`
	Text     string    `json:"text"`
	Rubric   ai.Rubric `json:"rubric"`
}

// NewQuestionResponse converts a question model.
func NewQuestionResponse(question models.Question) QuestionResponse {
	return QuestionResponse{
		ID:       question.ID,
		Slug:     question.Slug,
		Category: question.Category,
		Text:     question.Text,
		Rubric:   question.Rubric(),
	}
}

// RubricRequest is the authoring form of a rubric.
type RubricRequest struct {
	ConceptAccuracy CriterionRuleRequest `json:"concept_accuracy" yaml:"concept_accuracy"`
	ExampleUsage    CriterionRuleRequest `json:"example_usage" yaml:"example_usage"`
	EdgeCases       CriterionRuleRequest `json:"edge_cases" yaml:"edge_cases"`
	Clarity         CriterionRuleRequest `json:"clarity" yaml:"clarity"`
}

// CriterionRuleRequest bounds one criterion.
type CriterionRuleRequest struct {
	MaxScore int    `json:"max_score" yaml:"max_score" validate:"gte=0,lte=10"`
	Weight   string `json:"weight,omitempty" yaml:"weight,omitempty" validate:"omitempty,max=255"`
}

// ToRubric converts the request to the evaluation rubric.
func (r RubricRequest) ToRubric() ai.Rubric {
	return ai.Rubric{
		ConceptAccuracy: ai.CriterionRule{MaxScore: r.ConceptAccuracy.MaxScore, Weight: r.ConceptAccuracy.Weight},
		ExampleUsage:    ai.CriterionRule{MaxScore: r.ExampleUsage.MaxScore, Weight: r.ExampleUsage.Weight},
		EdgeCases:       ai.CriterionRule{MaxScore: r.EdgeCases.MaxScore, Weight: r.EdgeCases.Weight},
		Clarity:         ai.CriterionRule{MaxScore: r.Clarity.MaxScore, Weight: r.Clarity.Weight},
	}
}

// QuestionSeedRequest describes one question in a seed payload.
type QuestionSeedRequest struct {
	Slug        string         `json:"slug" validate:"required,max=128"`
	Category    string         `json:"category" validate:"omitempty,max=64"`
	Text        string         `json:"text" validate:"required"`
	IdealAnswer string         `json:"ideal_answer" validate:"required"`
	Rubric      *RubricRequest `json:"rubric" validate:"omitempty"`
}

// QuestionSeedBatchRequest is the payload of the seed endpoint.
type QuestionSeedBatchRequest struct {
	Questions []QuestionSeedRequest `json:"questions" validate:"required,min=1,dive"`
}

// SeedReport summarizes a seeding run.
type SeedReport struct {
	Seeded int      `json:"seeded"`
	Slugs  []string `json:"slugs"`
}

// AnswerEvaluatedEvent is broadcast after an answer has been stored.
type AnswerEvaluatedEvent struct {
	Event      string         `json:"event"`
	SessionID  uint           `json:"session_id"`
	QuestionID uint           `json:"question_id"`
	AnswerID   uint           `json:"answer_id"`
	Success    bool           `json:"success"`
	Score      int            `json:"score"`
	TotalScore int            `json:"total_score"`
	Breakdown  ScoreBreakdown `json:"breakdown"`
	OccurredAt time.Time      `json:"occurred_at"`
}
