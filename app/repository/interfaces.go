package repository

import (
	"time"

	"github.com/docquery/docquery/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	CreateWithSubscription(user *models.User, sub *models.Subscription) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByActivationToken(token string) (*models.User, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
	Search(query string) ([]models.User, error)
	GetWithSubscriptions(offset, limit int) ([]UserWithSubscription, error)
}

// SubscriptionRepository defines the interface for subscription state and
// usage-counter operations. IncrementUsage is the single atomic
// check-and-increment primitive; there is deliberately no separate
// "set counter" mutation.
type SubscriptionRepository interface {
	Create(sub *models.Subscription) error
	GetByUserID(userID uint) (*models.Subscription, error)
	GetByExternalBillingID(externalBillingID string) (*models.Subscription, error)
	Update(sub *models.Subscription) error
	// IncrementUsage performs a conditional single-statement increment of the
	// counter for resourceType. It succeeds only while the subscription is
	// ACTIVE, unexpired and under its limit (or unlimited). Returns false
	// without mutation when the condition does not hold.
	IncrementUsage(userID uint, resourceType string, now time.Time) (bool, error)
	// ResetUsage zeroes both counters and advances validUntil, but only when
	// the stored validUntil still matches expiredAt. Returns false when the
	// guard fails (already reset by a concurrent run).
	ResetUsage(userID uint, expiredAt time.Time, nextValidUntil time.Time) (bool, error)
	// ListExpiredActive returns ACTIVE subscriptions whose validUntil has
	// elapsed as of now.
	ListExpiredActive(now time.Time) ([]models.Subscription, error)
	CountByPlanAndStatus() ([]PlanStatusCount, error)
}

// DocumentRepository defines the interface for document operations
type DocumentRepository interface {
	Create(doc *models.Document) error
	GetByID(id uint) (*models.Document, error)
	GetByUUID(uuid string) (*models.Document, error)
	ListByUserID(userID uint, offset, limit int) ([]models.Document, error)
	ListVisible(userID uint, offset, limit int) ([]models.Document, error)
	Update(doc *models.Document) error
	Delete(id uint) error
	Count() (int64, error)
	CountByUserID(userID uint) (int64, error)
}

// QuestionRepository defines the interface for question operations
type QuestionRepository interface {
	Create(question *models.Question) error
	GetByID(id uint) (*models.Question, error)
	ListByUserID(userID uint, offset, limit int) ([]models.Question, error)
	ListByDocumentID(userID, documentID uint, offset, limit int) ([]models.Question, error)
	Count() (int64, error)
}

// UsageEventRepository records quota-consuming actions for the admin
// dashboard. Enforcement does not depend on this table.
type UsageEventRepository interface {
	Record(event *models.UsageEvent) error
	CountByTypeSince(usageType string, since time.Time) (int64, error)
}

// SettingRepository defines the interface for settings operations
type SettingRepository interface {
	Get(key string) (*models.Setting, error)
	Set(key, value, settingType string) error
	All() ([]models.Setting, error)
}

// UserWithSubscription pairs a user with their subscription for admin listings.
type UserWithSubscription struct {
	User         models.User          `json:"user"`
	Subscription *models.Subscription `json:"subscription"`
}

// PlanStatusCount is one row of the per-plan/status breakdown used by the
// admin revenue dashboard.
type PlanStatusCount struct {
	Plan   string `json:"plan"`
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// Repositories contains all repository instances
type Repositories struct {
	User         UserRepository
	Subscription SubscriptionRepository
	Document     DocumentRepository
	Question     QuestionRepository
	UsageEvent   UsageEventRepository
	Setting      SettingRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Subscription: NewSubscriptionRepository(db),
		Document:     NewDocumentRepository(db),
		Question:     NewQuestionRepository(db),
		UsageEvent:   NewUsageEventRepository(db),
		Setting:      NewSettingRepository(db),
	}
}
