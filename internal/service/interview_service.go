package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/interview-eval-api/internal/dto"
	"github.com/noah-isme/interview-eval-api/internal/models"
	"github.com/noah-isme/interview-eval-api/internal/observability"
	"github.com/noah-isme/interview-eval-api/internal/repository"
	"github.com/noah-isme/interview-eval-api/pkg/ai"
)

var (
	// ErrSessionNotFound indicates the interview session does not exist.
	ErrSessionNotFound = errors.New("interview session not found")
	// ErrSessionForbidden indicates the caller does not own the session.
	ErrSessionForbidden = errors.New("interview session belongs to another user")
	// ErrSessionCompleted indicates the session no longer accepts answers.
	ErrSessionCompleted = errors.New("interview session is completed")
	// ErrQuestionNotFound indicates the question does not exist.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAnswerAlreadySubmitted indicates the question was already answered in the session.
	ErrAnswerAlreadySubmitted = errors.New("question already answered in this session")
	// ErrEvaluationInFlight indicates another submission for the same question is being evaluated.
	ErrEvaluationInFlight = errors.New("an evaluation for this question is already in progress")
	// ErrEvaluatorUnavailable indicates no evaluation provider is configured.
	ErrEvaluatorUnavailable = errors.New("answer evaluation is not configured")
	// ErrEmptyAnswer indicates the answer contained only whitespace.
	ErrEmptyAnswer = errors.New("answer is empty")
)

// AnswerEvaluator grades a single answer. *ai.Evaluator satisfies it.
type AnswerEvaluator interface {
	Evaluate(ctx context.Context, input ai.EvaluationInput) ai.Evaluation
	MaxRetries() int
	AttemptTimeout() time.Duration
}

// Viewer identifies the caller of a read operation.
type Viewer struct {
	UserID string
	Role   string
}

func (v Viewer) canReview() bool {
	return v.Role == "interviewer" || v.Role == "admin"
}

// InterviewService manages sessions and runs the answer submission pipeline.
type InterviewService interface {
	StartSession(ctx context.Context, userID string, req dto.SessionCreateRequest) (dto.SessionResponse, error)
	GetSummary(ctx context.Context, viewer Viewer, sessionID uint) (dto.SessionSummaryResponse, error)
	GetQuestion(ctx context.Context, questionID uint) (dto.QuestionResponse, error)
	AuthorizeSession(ctx context.Context, viewer Viewer, sessionID uint) error
	SubmitAnswer(ctx context.Context, userID string, req dto.AnswerSubmitRequest) (dto.AnswerEvaluationResponse, error)
}

// InterviewServiceConfig carries the optional collaborators of the service.
type InterviewServiceConfig struct {
	Cache    *redis.Client
	CacheTTL time.Duration
	Events   EvaluationEvents
}

type interviewService struct {
	sessions  repository.InterviewSessionRepository
	questions repository.QuestionRepository
	answers   repository.AnswerRepository
	evaluator AnswerEvaluator
	validator *validator.Validate
	cache     *redis.Client
	cacheTTL  time.Duration
	events    EvaluationEvents
	sanitizer *bluemonday.Policy
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// NewInterviewService constructs the interview service. evaluator may be nil when no
// provider is configured; submissions then fail with ErrEvaluatorUnavailable.
func NewInterviewService(sessions repository.InterviewSessionRepository, questions repository.QuestionRepository, answers repository.AnswerRepository, evaluator AnswerEvaluator, validate *validator.Validate, cfg InterviewServiceConfig, logger zerolog.Logger) InterviewService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	return &interviewService{
		sessions:  sessions,
		questions: questions,
		answers:   answers,
		evaluator: evaluator,
		validator: validate,
		cache:     cfg.Cache,
		cacheTTL:  cfg.CacheTTL,
		events:    cfg.Events,
		sanitizer: bluemonday.StrictPolicy(),
		tracer:    otel.Tracer("github.com/noah-isme/interview-eval-api/internal/service/interview"),
		logger:    logger.With().Str("component", "interview_service").Logger(),
	}
}

func (s *interviewService) StartSession(ctx context.Context, userID string, req dto.SessionCreateRequest) (dto.SessionResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return dto.SessionResponse{}, ErrSessionForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return dto.SessionResponse{}, err
	}

	session := models.InterviewSession{
		UserID: userID,
		Title:  s.plainTitle(req.Title),
		Status: models.SessionStatusInProgress,
	}
	if err := s.sessions.Create(ctx, &session); err != nil {
		return dto.SessionResponse{}, err
	}

	s.logger.Info().Uint("session_id", session.ID).Str("user_id", userID).Msg("interview session started")
	return dto.NewSessionResponse(session), nil
}

func (s *interviewService) GetSummary(ctx context.Context, viewer Viewer, sessionID uint) (dto.SessionSummaryResponse, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return dto.SessionSummaryResponse{}, err
	}
	if session.UserID != viewer.UserID && !viewer.canReview() {
		return dto.SessionSummaryResponse{}, ErrSessionForbidden
	}

	cacheKey := summaryCacheKey(sessionID)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.SessionSummaryResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Uint("session_id", sessionID).Msg("session summary cache hit")
				return response, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read session summary cache")
		}
	}

	answers, err := s.answers.ListBySession(ctx, sessionID)
	if err != nil {
		return dto.SessionSummaryResponse{}, err
	}

	response := dto.NewSessionSummaryResponse(session, answers)

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store session summary cache")
			}
		}
	}

	return response, nil
}

func (s *interviewService) GetQuestion(ctx context.Context, questionID uint) (dto.QuestionResponse, error) {
	question, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.QuestionResponse{}, ErrQuestionNotFound
		}
		return dto.QuestionResponse{}, err
	}
	return dto.NewQuestionResponse(question), nil
}

func (s *interviewService) AuthorizeSession(ctx context.Context, viewer Viewer, sessionID uint) error {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != viewer.UserID && !viewer.canReview() {
		return ErrSessionForbidden
	}
	return nil
}

// SubmitAnswer validates preconditions, evaluates the answer and stores it with an atomic
// session increment. LLM failures never surface as errors; they are stored as a zero score.
func (s *interviewService) SubmitAnswer(ctx context.Context, userID string, req dto.AnswerSubmitRequest) (dto.AnswerEvaluationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.AnswerEvaluationResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "interview.submit_answer", trace.WithAttributes(
		attribute.Int("session_id", int(req.SessionID)),
		attribute.Int("question_id", int(req.QuestionID)),
	))
	defer span.End()

	response, err := s.submit(ctx, userID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.AnswerEvaluationResponse{}, err
	}

	span.SetAttributes(
		attribute.Bool("evaluation.success", response.Success),
		attribute.Int("evaluation.score", response.Score),
	)
	return response, nil
}

func (s *interviewService) submit(ctx context.Context, userID string, req dto.AnswerSubmitRequest) (dto.AnswerEvaluationResponse, error) {
	session, err := s.loadSession(ctx, req.SessionID)
	if err != nil {
		return dto.AnswerEvaluationResponse{}, err
	}
	if session.UserID != userID {
		return dto.AnswerEvaluationResponse{}, ErrSessionForbidden
	}
	if session.IsCompleted() {
		return dto.AnswerEvaluationResponse{}, ErrSessionCompleted
	}

	question, err := s.questions.GetByID(ctx, req.QuestionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AnswerEvaluationResponse{}, ErrQuestionNotFound
		}
		return dto.AnswerEvaluationResponse{}, err
	}

	exists, err := s.answers.Exists(ctx, session.ID, question.ID)
	if err != nil {
		return dto.AnswerEvaluationResponse{}, err
	}
	if exists {
		return dto.AnswerEvaluationResponse{}, ErrAnswerAlreadySubmitted
	}

	if s.evaluator == nil {
		return dto.AnswerEvaluationResponse{}, ErrEvaluatorUnavailable
	}

	release, err := s.acquireInFlight(ctx, session.ID, question.ID)
	if err != nil {
		return dto.AnswerEvaluationResponse{}, err
	}
	defer release()

	// graded and stored verbatim
	cleanAnswer := strings.TrimSpace(req.UserAnswer)
	if cleanAnswer == "" {
		return dto.AnswerEvaluationResponse{}, ErrEmptyAnswer
	}

	evaluation := s.evaluator.Evaluate(ctx, ai.EvaluationInput{
		QuestionText: question.Text,
		IdealAnswer:  question.IdealAnswer,
		Rubric:       question.Rubric(),
		UserAnswer:   cleanAnswer,
	})
	if err := ctx.Err(); err != nil {
		// the caller went away; nothing is persisted for an aborted evaluation
		return dto.AnswerEvaluationResponse{}, err
	}

	answer := s.buildAnswer(session.ID, question.ID, cleanAnswer, evaluation)
	total, err := s.answers.CreateWithScore(ctx, &answer)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateAnswer) {
			return dto.AnswerEvaluationResponse{}, ErrAnswerAlreadySubmitted
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AnswerEvaluationResponse{}, ErrSessionNotFound
		}
		return dto.AnswerEvaluationResponse{}, fmt.Errorf("store answer: %w", err)
	}

	observability.AnswersSubmitted().WithLabelValues(answer.EvaluationStatus).Inc()
	s.invalidateSummary(ctx, session.ID)

	response := dto.NewAnswerEvaluationResponse(answer, evaluation, total)
	if s.events != nil {
		s.events.Publish(ctx, dto.AnswerEvaluatedEvent{
			Event:      EventAnswerEvaluated,
			SessionID:  session.ID,
			QuestionID: question.ID,
			AnswerID:   answer.ID,
			Success:    evaluation.Success,
			Score:      answer.FinalScore,
			TotalScore: total,
			Breakdown:  response.Breakdown,
			OccurredAt: time.Now().UTC(),
		})
	}

	logEvent := s.logger.Info()
	if !evaluation.Success {
		logEvent = s.logger.Warn().Str("evaluation_error", evaluation.Error)
	}
	logEvent.
		Uint("session_id", session.ID).
		Uint("question_id", question.ID).
		Int("score", answer.FinalScore).
		Int("total_score", total).
		Int("retry_count", evaluation.Metadata.RetryCount).
		Msg("answer evaluated")

	return response, nil
}

func (s *interviewService) buildAnswer(sessionID, questionID uint, userAnswer string, evaluation ai.Evaluation) models.Answer {
	status := models.AnswerStatusEvaluated
	if !evaluation.Success {
		status = models.AnswerStatusFallback
	}

	metadata := datatypes.JSONMap{
		"provider":           evaluation.Metadata.Provider,
		"model_version":      evaluation.Metadata.ModelVersion,
		"processing_time_ms": evaluation.Metadata.ProcessingTimeMs,
		"repaired":           evaluation.Metadata.Repaired,
		"evaluated_at":       evaluation.Metadata.Timestamp,
	}
	if evaluation.Metadata.TokenUsage != nil {
		metadata["total_tokens"] = evaluation.Metadata.TokenUsage.TotalTokens
	}
	if len(evaluation.Metadata.Warnings) > 0 {
		metadata["warnings"] = evaluation.Metadata.Warnings
	}
	if evaluation.Error != "" {
		metadata["error"] = evaluation.Error
	}

	return models.Answer{
		SessionID:        sessionID,
		QuestionID:       questionID,
		UserAnswer:       userAnswer,
		LLMScore:         datatypes.NewJSONType(evaluation.Data.CriterionScores),
		FinalScore:       evaluation.Data.FinalScore,
		Feedback:         evaluation.Data.OverallFeedback,
		ImprovementTips:  evaluation.Data.ImprovementTips,
		EvaluationStatus: status,
		RetryCount:       evaluation.Metadata.RetryCount,
		Model:            evaluation.Metadata.ModelUsed,
		Metadata:         metadata,
	}
}

// plainTitle strips markup from a session title and decodes the entities the policy
// leaves behind, so "Q&A" stays "Q&A".
func (s *interviewService) plainTitle(title string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(title)))
}

// acquireInFlight takes a short-lived Redis lock so two concurrent submissions for the
// same (session, question) do not both pay for an evaluation. Without Redis the unique
// index on answers is the only guard.
func (s *interviewService) acquireInFlight(ctx context.Context, sessionID, questionID uint) (func(), error) {
	noop := func() {}
	if s.cache == nil {
		return noop, nil
	}

	key := inFlightKey(sessionID, questionID)
	ttl := time.Duration(s.evaluator.MaxRetries()+1)*s.evaluator.AttemptTimeout() + 10*time.Second

	acquired, err := s.cache.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to acquire evaluation guard, continuing without it")
		return noop, nil
	}
	if !acquired {
		return nil, ErrEvaluationInFlight
	}

	return func() {
		if err := s.cache.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to release evaluation guard")
		}
	}, nil
}

func (s *interviewService) invalidateSummary(ctx context.Context, sessionID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, summaryCacheKey(sessionID)).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("session_id", sessionID).Msg("failed to invalidate session summary cache")
	}
}

func (s *interviewService) loadSession(ctx context.Context, sessionID uint) (models.InterviewSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.InterviewSession{}, ErrSessionNotFound
		}
		return models.InterviewSession{}, err
	}
	return session, nil
}

func summaryCacheKey(sessionID uint) string {
	return fmt.Sprintf("interview:session:%d:summary", sessionID)
}

func inFlightKey(sessionID, questionID uint) string {
	return fmt.Sprintf("interview:inflight:%d:%d", sessionID, questionID)
}
