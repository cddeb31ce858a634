package repository

import (
	"time"

	"github.com/docquery/docquery/app/models"
	"gorm.io/gorm"
)

// questionRepository implements the QuestionRepository interface
type questionRepository struct {
	db *gorm.DB
}

// NewQuestionRepository creates a new question repository instance
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) Create(question *models.Question) error {
	return r.db.Create(question).Error
}

func (r *questionRepository) GetByID(id uint) (*models.Question, error) {
	var question models.Question
	err := r.db.First(&question, id).Error
	if err != nil {
		return nil, err
	}
	return &question, nil
}

func (r *questionRepository) ListByUserID(userID uint, offset, limit int) ([]models.Question, error) {
	var questions []models.Question
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&questions).Error
	return questions, err
}

func (r *questionRepository) ListByDocumentID(userID, documentID uint, offset, limit int) ([]models.Question, error) {
	var questions []models.Question
	err := r.db.Where("user_id = ? AND document_id = ?", userID, documentID).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&questions).Error
	return questions, err
}

func (r *questionRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Question{}).Count(&count).Error
	return count, err
}

// usageEventRepository implements the UsageEventRepository interface
type usageEventRepository struct {
	db *gorm.DB
}

// NewUsageEventRepository creates a new usage event repository instance
func NewUsageEventRepository(db *gorm.DB) UsageEventRepository {
	return &usageEventRepository{db: db}
}

func (r *usageEventRepository) Record(event *models.UsageEvent) error {
	return r.db.Create(event).Error
}

func (r *usageEventRepository) CountByTypeSince(usageType string, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.UsageEvent{}).
		Where("type = ? AND created_at >= ?", usageType, since).Count(&count).Error
	return count, err
}
