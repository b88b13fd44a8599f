package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/interview-eval-api/internal/models"
)

// QuestionRepository provides access to the question bank.
type QuestionRepository interface {
	GetByID(ctx context.Context, id uint) (models.Question, error)
	UpsertBatch(ctx context.Context, questions []models.Question) (int64, error)
}

type questionRepository struct {
	db *gorm.DB
}

// NewQuestionRepository instantiates the repository.
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) GetByID(ctx context.Context, id uint) (models.Question, error) {
	var question models.Question
	if err := r.db.WithContext(ctx).First(&question, id).Error; err != nil {
		return models.Question{}, err
	}
	return question, nil
}

func (r *questionRepository) UpsertBatch(ctx context.Context, questions []models.Question) (int64, error) {
	if len(questions) == 0 {
		return 0, nil
	}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"category", "text", "ideal_answer",
			"concept_accuracy_max", "concept_accuracy_weight",
			"example_usage_max", "example_usage_weight",
			"edge_cases_max", "edge_cases_weight",
			"clarity_max", "clarity_weight",
			"updated_at",
		}),
	})

	result := tx.Create(&questions)
	return result.RowsAffected, result.Error
}
