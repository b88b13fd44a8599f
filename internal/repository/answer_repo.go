package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/interview-eval-api/internal/models"
)

// ErrDuplicateAnswer is returned when an answer already exists for the session and question.
var ErrDuplicateAnswer = errors.New("answer already exists for session and question")

// AnswerRepository persists evaluated answers together with the session aggregate.
type AnswerRepository interface {
	Exists(ctx context.Context, sessionID, questionID uint) (bool, error)
	CreateWithScore(ctx context.Context, answer *models.Answer) (int, error)
	ListBySession(ctx context.Context, sessionID uint) ([]models.Answer, error)
}

type answerRepository struct {
	db *gorm.DB
}

// NewAnswerRepository instantiates the repository.
func NewAnswerRepository(db *gorm.DB) AnswerRepository {
	return &answerRepository{db: db}
}

func (r *answerRepository) Exists(ctx context.Context, sessionID, questionID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Answer{}).
		Where("session_id = ? AND question_id = ?", sessionID, questionID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateWithScore inserts the answer and adds its final score to the session total in a
// single transaction. The increment is done in SQL so concurrent answers for the same
// session never lose updates. It returns the session total after the increment.
func (r *answerRepository) CreateWithScore(ctx context.Context, answer *models.Answer) (int, error) {
	var total int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(answer).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateAnswer
			}
			return err
		}

		result := tx.Model(&models.InterviewSession{}).
			Where("id = ?", answer.SessionID).
			UpdateColumn("total_score", gorm.Expr("total_score + ?", answer.FinalScore))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return tx.Model(&models.InterviewSession{}).
			Select("total_score").
			Where("id = ?", answer.SessionID).
			Scan(&total).Error
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *answerRepository) ListBySession(ctx context.Context, sessionID uint) ([]models.Answer, error) {
	var answers []models.Answer
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&answers).Error; err != nil {
		return nil, err
	}
	return answers, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") || strings.Contains(message, "duplicate key")
}
