package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/interview-eval-api/internal/dto"
	"github.com/noah-isme/interview-eval-api/internal/models"
	"github.com/noah-isme/interview-eval-api/internal/repository"
	"github.com/noah-isme/interview-eval-api/pkg/ai"
)

var (
	// ErrSeedDisabled indicates the seeding tools are disabled by configuration.
	ErrSeedDisabled = errors.New("seeding is disabled")
	// ErrSeedUnauthorized indicates the provided token is invalid.
	ErrSeedUnauthorized = errors.New("invalid seed token")
	// ErrInvalidRubric indicates a seeded rubric whose bounds do not sum to the rubric total.
	ErrInvalidRubric = errors.New("invalid rubric")
	// ErrDuplicateSeedSlug indicates the same slug appears twice in one seed payload.
	ErrDuplicateSeedSlug = errors.New("duplicate question slug in seed payload")
)

// SeedService loads the question bank.
type SeedService interface {
	SeedQuestions(ctx context.Context, token string, req dto.QuestionSeedBatchRequest) (dto.SeedReport, error)
}

type seedService struct {
	questionRepo repository.QuestionRepository
	validator    *validator.Validate
	enabled      bool
	token        string
	logger       zerolog.Logger
}

// NewSeedService constructs a seeding service.
func NewSeedService(questionRepo repository.QuestionRepository, validate *validator.Validate, enabled bool, token string, logger zerolog.Logger) SeedService {
	return &seedService{
		questionRepo: questionRepo,
		validator:    validate,
		enabled:      enabled,
		token:        token,
		logger:       logger.With().Str("component", "seed_service").Logger(),
	}
}

func (s *seedService) SeedQuestions(ctx context.Context, token string, req dto.QuestionSeedBatchRequest) (dto.SeedReport, error) {
	if !s.enabled {
		return dto.SeedReport{}, ErrSeedDisabled
	}
	if !s.validateToken(token) {
		return dto.SeedReport{}, ErrSeedUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return dto.SeedReport{}, err
	}

	questions, err := normalizeQuestions(req.Questions)
	if err != nil {
		return dto.SeedReport{}, err
	}

	affected, err := s.questionRepo.UpsertBatch(ctx, questions)
	if err != nil {
		return dto.SeedReport{}, err
	}

	slugs := make([]string, 0, len(questions))
	for _, question := range questions {
		slugs = append(slugs, question.Slug)
	}

	s.logger.Info().Int64("affected", affected).Int("questions", len(questions)).Msg("questions seeded")
	return dto.SeedReport{Seeded: len(questions), Slugs: slugs}, nil
}

func (s *seedService) validateToken(token string) bool {
	expected := strings.TrimSpace(s.token)
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(token))) == 1
}

func normalizeQuestions(items []dto.QuestionSeedRequest) ([]models.Question, error) {
	seen := make(map[string]struct{}, len(items))
	questions := make([]models.Question, 0, len(items))

	for _, item := range items {
		slug := strings.ToLower(strings.TrimSpace(item.Slug))
		slug = strings.ReplaceAll(slug, " ", "-")
		if _, dup := seen[slug]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateSeedSlug, slug)
		}
		seen[slug] = struct{}{}

		rubric := ai.DefaultRubric()
		if item.Rubric != nil {
			rubric = item.Rubric.ToRubric()
			if err := rubric.Validate(); err != nil {
				return nil, fmt.Errorf("%w for %q: %v", ErrInvalidRubric, slug, err)
			}
		}

		question := models.Question{
			Slug:        slug,
			Category:    strings.TrimSpace(item.Category),
			Text:        strings.TrimSpace(item.Text),
			IdealAnswer: strings.TrimSpace(item.IdealAnswer),
		}
		question.ApplyRubric(rubric)
		questions = append(questions, question)
	}

	return questions, nil
}
