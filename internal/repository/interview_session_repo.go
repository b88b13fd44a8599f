package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/interview-eval-api/internal/models"
)

// InterviewSessionRepository persists interview sessions.
type InterviewSessionRepository interface {
	Create(ctx context.Context, session *models.InterviewSession) error
	GetByID(ctx context.Context, id uint) (models.InterviewSession, error)
}

type interviewSessionRepository struct {
	db *gorm.DB
}

// NewInterviewSessionRepository instantiates the repository.
func NewInterviewSessionRepository(db *gorm.DB) InterviewSessionRepository {
	return &interviewSessionRepository{db: db}
}

func (r *interviewSessionRepository) Create(ctx context.Context, session *models.InterviewSession) error {
	if session.Status == "" {
		session.Status = models.SessionStatusInProgress
	}
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *interviewSessionRepository) GetByID(ctx context.Context, id uint) (models.InterviewSession, error) {
	var session models.InterviewSession
	if err := r.db.WithContext(ctx).First(&session, id).Error; err != nil {
		return models.InterviewSession{}, err
	}
	return session, nil
}
