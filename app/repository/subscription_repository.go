package repository

import (
	"fmt"
	"time"

	"github.com/docquery/docquery/app/models"
	"gorm.io/gorm"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// Create creates a new subscription row
func (r *subscriptionRepository) Create(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

// GetByUserID retrieves the subscription for a user
func (r *subscriptionRepository) GetByUserID(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("user_id = ?", userID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByExternalBillingID resolves a payment-provider subscription reference
// to the local subscription row.
func (r *subscriptionRepository) GetByExternalBillingID(externalBillingID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("external_billing_id = ?", externalBillingID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Update saves changes to an existing subscription
func (r *subscriptionRepository) Update(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

// IncrementUsage is the single-statement check-and-increment. The WHERE
// clause carries the full admission condition so concurrent requests for the
// same user can never push a counter past its limit: the database applies
// the row update atomically, and a request that loses the race simply
// matches zero rows.
func (r *subscriptionRepository) IncrementUsage(userID uint, resourceType string, now time.Time) (bool, error) {
	var usedColumn, limitColumn string
	switch resourceType {
	case models.UsageTypeDocument:
		usedColumn, limitColumn = "documents_used", "documents_limit"
	case models.UsageTypeQuestion:
		usedColumn, limitColumn = "questions_used", "questions_limit"
	default:
		return false, fmt.Errorf("unknown resource type %q", resourceType)
	}

	tx := r.db.Model(&models.Subscription{}).
		Where("user_id = ? AND status = ? AND valid_until > ?", userID, models.SubscriptionStatusActive, now).
		Where(fmt.Sprintf("(%s = ? OR %s < %s)", limitColumn, usedColumn, limitColumn), models.UnlimitedQuota).
		UpdateColumn(usedColumn, gorm.Expr(usedColumn+" + 1"))
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// ResetUsage zeroes the counters and rolls validUntil forward, guarded by the
// previously observed validUntil. A concurrent or repeated sweep sees zero
// rows affected and treats the reset as already done.
func (r *subscriptionRepository) ResetUsage(userID uint, expiredAt time.Time, nextValidUntil time.Time) (bool, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("user_id = ? AND status = ? AND valid_until = ?", userID, models.SubscriptionStatusActive, expiredAt).
		UpdateColumns(map[string]interface{}{
			"documents_used": 0,
			"questions_used": 0,
			"valid_until":    nextValidUntil,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// ListExpiredActive returns ACTIVE subscriptions whose billing period has
// elapsed, oldest first.
func (r *subscriptionRepository) ListExpiredActive(now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("status = ? AND valid_until <= ?", models.SubscriptionStatusActive, now).
		Order("valid_until ASC").Find(&subs).Error
	return subs, err
}

// CountByPlanAndStatus returns the per-plan/status subscription breakdown
func (r *subscriptionRepository) CountByPlanAndStatus() ([]PlanStatusCount, error) {
	var rows []PlanStatusCount
	err := r.db.Model(&models.Subscription{}).
		Select("plan, status, COUNT(*) as count").
		Group("plan, status").
		Order("plan, status").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return rows, nil
}
