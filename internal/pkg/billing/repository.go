package billing

import (
	"time"

	"github.com/docquery/docquery/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	GetSubscriptionByUserID(userID uint) (*models.Subscription, error)
	GetSubscriptionByExternalID(externalBillingID string) (*models.Subscription, error)
	CreateSubscription(sub *models.Subscription) error
	SaveSubscription(sub *models.Subscription) error
	FindActivePlanMapping(provider, providerPlanRef string) (*models.BillingPlanMapping, error)
	UpsertPlanMapping(mapping *models.BillingPlanMapping) error
	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	ReclaimWebhookEvent(id uint, event *models.BillingWebhookEvent) (bool, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetSubscriptionByUserID(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("user_id = ?", userID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetSubscriptionByExternalID(externalBillingID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("external_billing_id = ?", externalBillingID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) CreateSubscription(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *gormRepository) SaveSubscription(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

func (r *gormRepository) FindActivePlanMapping(provider, providerPlanRef string) (*models.BillingPlanMapping, error) {
	var m models.BillingPlanMapping
	err := r.db.
		Where("provider = ? AND provider_plan_ref = ? AND is_active = ?", provider, providerPlanRef, true).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) UpsertPlanMapping(mapping *models.BillingPlanMapping) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_plan_ref"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"internal_plan",
			"is_active",
			"updated_at",
		}),
	}).Create(mapping).Error; err != nil {
		return err
	}

	return r.db.Where("provider = ? AND provider_plan_ref = ?", mapping.Provider, mapping.ProviderPlanRef).
		First(mapping).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

// ReclaimWebhookEvent hands the dedupe slot of an unverified delivery to a
// verified retry of the same event id. The guard on signature_valid keeps
// concurrent retries from reclaiming the row twice.
func (r *gormRepository) ReclaimWebhookEvent(id uint, event *models.BillingWebhookEvent) (bool, error) {
	tx := r.db.Model(&models.BillingWebhookEvent{}).
		Where("id = ? AND signature_valid = ?", id, false).
		Updates(map[string]interface{}{
			"event_type":       event.EventType,
			"event_time":       event.EventTime,
			"payload_json":     event.PayloadJSON,
			"signature_valid":  true,
			"processed_at":     nil,
			"processing_error": "",
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
