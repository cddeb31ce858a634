package repository

import (
	"github.com/docquery/docquery/app/models"
	"gorm.io/gorm"
)

// documentRepository implements the DocumentRepository interface
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new document repository instance
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(doc *models.Document) error {
	return r.db.Create(doc).Error
}

func (r *documentRepository) GetByID(id uint) (*models.Document, error) {
	var doc models.Document
	err := r.db.First(&doc, id).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) GetByUUID(uuid string) (*models.Document, error) {
	var doc models.Document
	err := r.db.Where("uuid = ?", uuid).First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) ListByUserID(userID uint, offset, limit int) ([]models.Document, error) {
	var docs []models.Document
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&docs).Error
	return docs, err
}

// ListVisible returns the user's own documents plus public ones.
func (r *documentRepository) ListVisible(userID uint, offset, limit int) ([]models.Document, error) {
	var docs []models.Document
	err := r.db.Where("user_id = ? OR is_public = ?", userID, true).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&docs).Error
	return docs, err
}

func (r *documentRepository) Update(doc *models.Document) error {
	return r.db.Save(doc).Error
}

func (r *documentRepository) Delete(id uint) error {
	return r.db.Delete(&models.Document{}, id).Error
}

func (r *documentRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Document{}).Count(&count).Error
	return count, err
}

func (r *documentRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Document{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
