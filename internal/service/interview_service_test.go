package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/interview-eval-api/internal/dto"
	"github.com/noah-isme/interview-eval-api/internal/models"
	"github.com/noah-isme/interview-eval-api/internal/repository"
	"github.com/noah-isme/interview-eval-api/pkg/ai"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type stubEvaluator struct {
	mu     sync.Mutex
	result ai.Evaluation
	inputs []ai.EvaluationInput
}

func (s *stubEvaluator) Evaluate(ctx context.Context, input ai.EvaluationInput) ai.Evaluation {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, input)
	return s.result
}

func (s *stubEvaluator) MaxRetries() int { return 2 }

func (s *stubEvaluator) AttemptTimeout() time.Duration { return time.Second }

func (s *stubEvaluator) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inputs)
}

func successfulEvaluation() ai.Evaluation {
	scores := ai.CriterionScores{ConceptAccuracy: 3, ExampleUsage: 2, EdgeCases: 1, Clarity: 1}
	return ai.Evaluation{
		Success: true,
		Data: ai.EvaluationResult{
			CriterionScores: scores,
			FinalScore:      scores.Sum(),
			OverallFeedback: "Solid explanation of chan<- T & <-chan T",
			ImprovementTips: "Mention buffered channels",
		},
		Metadata: ai.EvaluationMetadata{
			ModelUsed: "stub-model",
			Provider:  "stub",
			Timestamp: time.Now().UTC(),
		},
	}
}

type interviewFixture struct {
	db        *gorm.DB
	redis     *redis.Client
	miniredis *miniredis.Miniredis
	evaluator *stubEvaluator
	events    EvaluationEvents
	service   InterviewService
	session   models.InterviewSession
	question  models.Question
}

func setupInterviewService(t *testing.T) *interviewFixture {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name)), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Question{}, &models.InterviewSession{}, &models.Answer{}))

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := repository.NewInterviewSessionRepository(db)
	questions := repository.NewQuestionRepository(db)
	answers := repository.NewAnswerRepository(db)

	question := models.Question{Slug: "go-channels", Text: "Explain Go channels", IdealAnswer: "Typed conduits between goroutines"}
	question.ApplyRubric(ai.DefaultRubric())
	_, err = questions.UpsertBatch(context.Background(), []models.Question{question})
	require.NoError(t, err)
	require.NoError(t, db.Where("slug = ?", "go-channels").First(&question).Error)

	session := models.InterviewSession{UserID: "user-1", Title: "Go basics"}
	require.NoError(t, sessions.Create(context.Background(), &session))

	evaluator := &stubEvaluator{result: successfulEvaluation()}
	events := NewEvaluationEvents(nil, "", nil, testLogger())

	svc := NewInterviewService(sessions, questions, answers, evaluator, validator.New(), InterviewServiceConfig{
		Cache:    client,
		CacheTTL: time.Minute,
		Events:   events,
	}, testLogger())

	return &interviewFixture{
		db:        db,
		redis:     client,
		miniredis: server,
		evaluator: evaluator,
		events:    events,
		service:   svc,
		session:   session,
		question:  question,
	}
}

func (f *interviewFixture) submit(userID, answer string) (dto.AnswerEvaluationResponse, error) {
	return f.service.SubmitAnswer(context.Background(), userID, dto.AnswerSubmitRequest{
		SessionID:  f.session.ID,
		QuestionID: f.question.ID,
		UserAnswer: answer,
	})
}

func TestInterviewServiceSubmitAnswerPersistsAndPublishes(t *testing.T) {
	f := setupInterviewService(t)

	updates, cancel := f.events.Subscribe(f.session.ID)
	defer cancel()

	require.NoError(t, f.miniredis.Set(summaryCacheKey(f.session.ID), "stale"))

	resp, err := f.submit("user-1", "Channels let goroutines communicate")
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, 7, resp.Score)
	require.Equal(t, 7, resp.TotalScore)
	require.Equal(t, "Solid explanation of chan<- T & <-chan T", resp.Feedback)
	require.Equal(t, dto.ScoreBreakdown{ConceptAccuracy: 3, ExampleUsage: 2, EdgeCases: 1, Clarity: 1}, resp.Breakdown)
	require.Equal(t, "stub-model", resp.Metadata.ModelUsed)

	require.Equal(t, 1, f.evaluator.calls())
	input := f.evaluator.inputs[0]
	require.Equal(t, "Explain Go channels", input.QuestionText)
	require.Equal(t, ai.DefaultRubric(), input.Rubric)

	var session models.InterviewSession
	require.NoError(t, f.db.First(&session, f.session.ID).Error)
	require.Equal(t, 7, session.TotalScore)

	require.False(t, f.miniredis.Exists(summaryCacheKey(f.session.ID)))
	require.False(t, f.miniredis.Exists(inFlightKey(f.session.ID, f.question.ID)))

	select {
	case event := <-updates:
		require.Equal(t, EventAnswerEvaluated, event.Event)
		require.Equal(t, resp.AnswerID, event.AnswerID)
		require.Equal(t, 7, event.TotalScore)
	case <-time.After(time.Second):
		t.Fatal("expected evaluation event")
	}
}

func TestInterviewServiceGradesAndStoresAnswerVerbatim(t *testing.T) {
	f := setupInterviewService(t)
	const raw = "Use a map[string]List<String> when x < y && it's non-nil"
	f.evaluator.result.Data.ImprovementTips = "Compare with Map<K, V> & mention nil maps"

	resp, err := f.submit("user-1", "  "+raw+"\n")
	require.NoError(t, err)

	require.Equal(t, 1, f.evaluator.calls())
	require.Equal(t, raw, f.evaluator.inputs[0].UserAnswer)

	var answer models.Answer
	require.NoError(t, f.db.Where("session_id = ?", f.session.ID).First(&answer).Error)
	require.Equal(t, raw, answer.UserAnswer)
	require.Equal(t, "Solid explanation of chan<- T & <-chan T", answer.Feedback)
	require.Equal(t, "Compare with Map<K, V> & mention nil maps", answer.ImprovementTips)
	require.Equal(t, answer.ImprovementTips, resp.Tips)
}

func TestInterviewServiceStoresFallbackWithoutError(t *testing.T) {
	f := setupInterviewService(t)
	f.evaluator.result = ai.Evaluation{
		Success: false,
		Data:    ai.DefaultResult(),
		Error:   "evaluation failed after 3 attempts",
		Metadata: ai.EvaluationMetadata{
			ModelUsed:  "stub-model",
			RetryCount: 2,
		},
	}

	resp, err := f.submit("user-1", "I am not sure")
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Equal(t, 0, resp.Score)
	require.Equal(t, 0, resp.TotalScore)
	require.Equal(t, 2, resp.Metadata.RetryCount)

	var answer models.Answer
	require.NoError(t, f.db.Where("session_id = ?", f.session.ID).First(&answer).Error)
	require.Equal(t, models.AnswerStatusFallback, answer.EvaluationStatus)
	require.False(t, answer.Evaluated())
	require.Equal(t, "evaluation failed after 3 attempts", answer.Metadata["error"])
}

func TestInterviewServiceRejectsSecondAnswer(t *testing.T) {
	f := setupInterviewService(t)

	_, err := f.submit("user-1", "first")
	require.NoError(t, err)

	_, err = f.submit("user-1", "second")
	require.ErrorIs(t, err, ErrAnswerAlreadySubmitted)
	require.Equal(t, 1, f.evaluator.calls())

	var session models.InterviewSession
	require.NoError(t, f.db.First(&session, f.session.ID).Error)
	require.Equal(t, 7, session.TotalScore)
}

func TestInterviewServiceSubmitPreconditions(t *testing.T) {
	f := setupInterviewService(t)
	ctx := context.Background()

	_, err := f.submit("someone-else", "answer")
	require.ErrorIs(t, err, ErrSessionForbidden)

	_, err = f.service.SubmitAnswer(ctx, "user-1", dto.AnswerSubmitRequest{SessionID: 999, QuestionID: f.question.ID, UserAnswer: "answer"})
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.service.SubmitAnswer(ctx, "user-1", dto.AnswerSubmitRequest{SessionID: f.session.ID, QuestionID: 999, UserAnswer: "answer"})
	require.ErrorIs(t, err, ErrQuestionNotFound)

	_, err = f.service.SubmitAnswer(ctx, "user-1", dto.AnswerSubmitRequest{SessionID: f.session.ID, QuestionID: f.question.ID})
	require.Error(t, err)
	var validationErrs validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)

	_, err = f.submit("user-1", " \n\t ")
	require.ErrorIs(t, err, ErrEmptyAnswer)

	require.NoError(t, f.db.Model(&models.InterviewSession{}).Where("id = ?", f.session.ID).Update("status", models.SessionStatusCompleted).Error)
	_, err = f.submit("user-1", "answer")
	require.ErrorIs(t, err, ErrSessionCompleted)

	require.Zero(t, f.evaluator.calls())
}

func TestInterviewServiceInFlightGuard(t *testing.T) {
	f := setupInterviewService(t)

	require.NoError(t, f.miniredis.Set(inFlightKey(f.session.ID, f.question.ID), "1"))

	_, err := f.submit("user-1", "answer")
	require.ErrorIs(t, err, ErrEvaluationInFlight)
	require.Zero(t, f.evaluator.calls())

	f.miniredis.Del(inFlightKey(f.session.ID, f.question.ID))
	_, err = f.submit("user-1", "answer")
	require.NoError(t, err)
}

func TestInterviewServiceWithoutEvaluator(t *testing.T) {
	f := setupInterviewService(t)
	svc := NewInterviewService(
		repository.NewInterviewSessionRepository(f.db),
		repository.NewQuestionRepository(f.db),
		repository.NewAnswerRepository(f.db),
		nil,
		validator.New(),
		InterviewServiceConfig{},
		testLogger(),
	)

	_, err := svc.SubmitAnswer(context.Background(), "user-1", dto.AnswerSubmitRequest{
		SessionID:  f.session.ID,
		QuestionID: f.question.ID,
		UserAnswer: "answer",
	})
	require.ErrorIs(t, err, ErrEvaluatorUnavailable)
}

func TestInterviewServiceSummaryCachingAndAccess(t *testing.T) {
	f := setupInterviewService(t)
	ctx := context.Background()

	_, err := f.submit("user-1", "answer")
	require.NoError(t, err)

	summary, err := f.service.GetSummary(ctx, Viewer{UserID: "user-1", Role: "candidate"}, f.session.ID)
	require.NoError(t, err)
	require.Equal(t, 7, summary.TotalScore)
	require.Equal(t, 1, summary.Answered)
	require.Equal(t, 10, summary.MaxPossible)
	require.Len(t, summary.Answers, 1)
	require.True(t, f.miniredis.Exists(summaryCacheKey(f.session.ID)))

	// rows changed behind the cache are not visible until invalidation
	require.NoError(t, f.db.Model(&models.InterviewSession{}).Where("id = ?", f.session.ID).Update("title", "renamed").Error)
	cached, err := f.service.GetSummary(ctx, Viewer{UserID: "reviewer", Role: "interviewer"}, f.session.ID)
	require.NoError(t, err)
	require.Equal(t, "Go basics", cached.Title)

	_, err = f.service.GetSummary(ctx, Viewer{UserID: "user-2", Role: "candidate"}, f.session.ID)
	require.ErrorIs(t, err, ErrSessionForbidden)

	_, err = f.service.GetSummary(ctx, Viewer{UserID: "user-1"}, 999)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestInterviewServiceStartSessionAndQuestion(t *testing.T) {
	f := setupInterviewService(t)
	ctx := context.Background()

	session, err := f.service.StartSession(ctx, "user-9", dto.SessionCreateRequest{Title: "<i>Backend</i> Q&A loop"})
	require.NoError(t, err)
	require.NotZero(t, session.ID)
	require.Equal(t, "Backend Q&A loop", session.Title)
	require.Equal(t, models.SessionStatusInProgress, session.Status)

	_, err = f.service.StartSession(ctx, "", dto.SessionCreateRequest{})
	require.ErrorIs(t, err, ErrSessionForbidden)

	question, err := f.service.GetQuestion(ctx, f.question.ID)
	require.NoError(t, err)
	require.Equal(t, "go-channels", question.Slug)
	require.Equal(t, 10, question.Rubric.Total())

	_, err = f.service.GetQuestion(ctx, 999)
	require.ErrorIs(t, err, ErrQuestionNotFound)

	require.NoError(t, f.service.AuthorizeSession(ctx, Viewer{UserID: "user-1"}, f.session.ID))
	require.ErrorIs(t, f.service.AuthorizeSession(ctx, Viewer{UserID: "user-2"}, f.session.ID), ErrSessionForbidden)
	require.NoError(t, f.service.AuthorizeSession(ctx, Viewer{UserID: "admin", Role: "admin"}, f.session.ID))
}
