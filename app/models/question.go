package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Question stores one user question against a document together with the
// assistant's answer.
type Question struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	DocumentID uint      `gorm:"not null;index" json:"document_id"`
	Content    string    `gorm:"type:text;not null" json:"content" validate:"required,min=1"`
	Answer     string    `gorm:"type:longtext" json:"answer"`
	Model      string    `gorm:"type:varchar(100);default:''" json:"model,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (q *Question) Validate() error {
	v := validator.New()

	return v.Struct(q)
}
