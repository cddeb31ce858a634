package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/docquery/docquery/app/models"
	"github.com/docquery/docquery/internal/pkg/env"
	"github.com/docquery/docquery/internal/pkg/plans"
	"gorm.io/gorm"
)

var (
	// ErrNoSubscription signals a user row without a subscription row. This
	// violates the registration invariant and must never be papered over
	// with a fabricated default record.
	ErrNoSubscription = errors.New("no subscription found for user")

	// ErrUnknownSubscription means a webhook referenced a provider
	// subscription id no local record carries. Ignorable for the caller.
	ErrUnknownSubscription = errors.New("no local subscription for provider reference")

	// ErrStaleEvent marks an out-of-order webhook older than the last
	// applied event for the same subscription.
	ErrStaleEvent = errors.New("webhook event older than last applied event")

	// ErrInvalidPlan is returned for plan names outside the catalog.
	ErrInvalidPlan = errors.New("invalid subscription plan")

	// ErrProviderUnavailable wraps payment-provider call failures. The
	// triggering operation must not have mutated local state.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)

// ProviderClient is the outbound payment-provider surface the service needs.
type ProviderClient interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
	CancelSubscription(ctx context.Context, subscriptionID, reason string) error
}

// Service owns subscription state transitions: upgrades, cancellation and
// webhook-driven status changes.
type Service struct {
	repo   Repository
	paypal ProviderClient
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, paypal ProviderClient) *Service {
	return &Service{repo: repo, paypal: paypal}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, paypal ProviderClient) *Service {
	return NewService(NewRepository(db), paypal)
}

// GetSubscription returns the user's subscription. A missing row is a
// data-integrity error, not a default.
func (s *Service) GetSubscription(ctx context.Context, userID uint) (*models.Subscription, error) {
	_ = ctx
	if userID == 0 {
		return nil, errors.New("user_id is required")
	}
	sub, err := s.repo.GetSubscriptionByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSubscription
		}
		return nil, err
	}
	return sub, nil
}

// Upgrade moves a user onto a new plan: catalog limits are applied, the
// status becomes ACTIVE and the billing window restarts. Consumed usage is
// preserved across the plan change. Creates the row when registration
// predates the subscription table.
func (s *Service) Upgrade(ctx context.Context, userID uint, newPlan, externalBillingID string) (*models.Subscription, error) {
	_ = ctx
	if userID == 0 {
		return nil, errors.New("user_id is required")
	}
	if !models.ValidPlan(strings.ToUpper(strings.TrimSpace(newPlan))) {
		return nil, ErrInvalidPlan
	}
	plan := plans.Normalize(newPlan)
	entry, err := plans.Lookup(plan)
	if err != nil {
		return nil, ErrInvalidPlan
	}

	now := time.Now()
	sub, err := s.repo.GetSubscriptionByUserID(userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		sub = &models.Subscription{UserID: userID}
		sub.Plan = plan
		sub.Status = models.SubscriptionStatusActive
		sub.DocumentsLimit = entry.DocumentsLimit
		sub.QuestionsLimit = entry.QuestionsLimit
		sub.ValidUntil = now.Add(models.BillingPeriod)
		sub.ExternalBillingID = strings.TrimSpace(externalBillingID)
		if err := s.repo.CreateSubscription(sub); err != nil {
			return nil, err
		}
		return sub, nil
	}

	sub.Plan = plan
	sub.Status = models.SubscriptionStatusActive
	sub.DocumentsLimit = entry.DocumentsLimit
	sub.QuestionsLimit = entry.QuestionsLimit
	sub.ValidUntil = now.Add(models.BillingPeriod)
	if ref := strings.TrimSpace(externalBillingID); ref != "" {
		sub.ExternalBillingID = ref
	}
	if err := s.repo.SaveSubscription(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Cancel terminates the current subscription term. The provider-side cancel
// runs first and the local mutation only happens after it succeeds, so a
// provider failure leaves everything untouched and retryable.
func (s *Service) Cancel(ctx context.Context, userID uint) (*models.Subscription, error) {
	sub, err := s.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	if sub.ExternalBillingID != "" && s.paypal != nil {
		if err := s.paypal.CancelSubscription(ctx, sub.ExternalBillingID, "user requested cancellation"); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
	}

	freeEntry, err := plans.Lookup(models.PlanFree)
	if err != nil {
		return nil, err
	}

	sub.Status = models.SubscriptionStatusCancelled
	sub.Plan = models.PlanFree
	sub.DocumentsLimit = freeEntry.DocumentsLimit
	sub.QuestionsLimit = freeEntry.QuestionsLimit
	sub.ValidUntil = time.Now()
	if err := s.repo.SaveSubscription(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// ResolveMappedPlan resolves a provider plan reference to an internal plan.
// Unmapped references fall back to FREE so an unknown PayPal plan id never
// grants paid limits.
func (s *Service) ResolveMappedPlan(ctx context.Context, provider, providerPlanRef string) (string, error) {
	_ = ctx
	p := strings.ToLower(strings.TrimSpace(provider))
	ref := strings.TrimSpace(providerPlanRef)
	if p == "" || ref == "" {
		return models.PlanFree, nil
	}
	m, err := s.repo.FindActivePlanMapping(p, ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.PlanFree, nil
		}
		return "", err
	}
	return plans.Normalize(m.InternalPlan), nil
}

// ApplyWebhookEvent maps one normalized provider event onto the subscription
// state machine. Callers are responsible for signature verification and
// event-id deduplication; this method additionally rejects events older than
// the last applied one so out-of-order delivery cannot roll state backwards.
func (s *Service) ApplyWebhookEvent(ctx context.Context, event WebhookEvent) (*models.Subscription, error) {
	if strings.TrimSpace(event.SubscriptionID) == "" {
		return nil, ErrUnknownSubscription
	}

	sub, err := s.repo.GetSubscriptionByExternalID(event.SubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownSubscription
		}
		return nil, err
	}

	if sub.LastEventAt != nil && !event.EventTime.IsZero() && event.EventTime.Before(*sub.LastEventAt) {
		return nil, ErrStaleEvent
	}

	switch event.EventType {
	case EventSubscriptionActivated, EventSubscriptionCreated:
		plan, err := s.ResolveMappedPlan(ctx, event.Provider, event.PlanRef)
		if err != nil {
			return nil, err
		}
		entry, err := plans.Lookup(plan)
		if err != nil {
			return nil, err
		}
		sub.Status = models.SubscriptionStatusActive
		sub.Plan = plan
		sub.DocumentsLimit = entry.DocumentsLimit
		sub.QuestionsLimit = entry.QuestionsLimit
		if !sub.ValidUntil.After(time.Now()) {
			sub.ValidUntil = time.Now().Add(models.BillingPeriod)
		}

	case EventSubscriptionCancelled:
		freeEntry, err := plans.Lookup(models.PlanFree)
		if err != nil {
			return nil, err
		}
		sub.Status = models.SubscriptionStatusCancelled
		sub.Plan = models.PlanFree
		sub.DocumentsLimit = freeEntry.DocumentsLimit
		sub.QuestionsLimit = freeEntry.QuestionsLimit

	case EventSubscriptionSuspended:
		if sub.Status == models.SubscriptionStatusActive {
			sub.Status = models.SubscriptionStatusSuspended
		}

	case EventPaymentFailed:
		if sub.Status == models.SubscriptionStatusActive {
			sub.Status = models.SubscriptionStatusPaymentFailed
		}

	case EventSaleCompleted:
		// Successful charge after suspension or a failed attempt restores
		// entitlement.
		if sub.Status == models.SubscriptionStatusSuspended || sub.Status == models.SubscriptionStatusPaymentFailed {
			sub.Status = models.SubscriptionStatusActive
		}

	default:
		log.Printf("billing: ignoring unhandled webhook event type %q", event.EventType)
		return sub, nil
	}

	if !event.EventTime.IsZero() {
		t := event.EventTime
		sub.LastEventAt = &t
	}
	if err := s.repo.SaveSubscription(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// RecordWebhookEvent persists webhook payloads idempotently. The bool result
// reports whether this delivery claimed the event id and must be processed.
// A row stored by a delivery that failed signature verification never
// reached the state machine, so a verified retry of the same event id takes
// over its slot instead of being absorbed as a duplicate.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		EventTime:       in.EventTime,
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	created, stored, err := s.repo.CreateWebhookEventIfNotExists(event)
	if err != nil || created || !event.SignatureValid || stored.SignatureValid {
		return created, stored, err
	}

	reclaimed, err := s.repo.ReclaimWebhookEvent(stored.ID, event)
	if err != nil {
		return false, nil, err
	}
	if !reclaimed {
		return false, stored, nil
	}
	event.ID = stored.ID
	return true, event, nil
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// NextBillingTime asks the provider for the next charge date. Best effort;
// callers tolerate a nil result.
func (s *Service) NextBillingTime(ctx context.Context, sub *models.Subscription) *time.Time {
	if s.paypal == nil || sub == nil || sub.ExternalBillingID == "" {
		return nil
	}
	remote, err := s.paypal.GetSubscription(ctx, sub.ExternalBillingID)
	if err != nil {
		log.Printf("billing: failed to fetch provider subscription %s: %v", sub.ExternalBillingID, err)
		return nil
	}
	return remote.NextBillingTime
}

// SeedPlanMappings registers the provider plan references configured via
// environment so webhooks can translate plan ids without manual setup.
func (s *Service) SeedPlanMappings(ctx context.Context) error {
	_ = ctx
	seeds := map[string]string{
		env.GetEnv("PAYPAL_PRO_PLAN_ID", ""):        models.PlanProfessional,
		env.GetEnv("PAYPAL_ENTERPRISE_PLAN_ID", ""): models.PlanEnterprise,
	}
	for ref, plan := range seeds {
		if ref == "" {
			continue
		}
		m := &models.BillingPlanMapping{
			Provider:        models.BillingProviderPayPal,
			ProviderPlanRef: ref,
			InternalPlan:    plan,
			IsActive:        true,
		}
		if err := s.repo.UpsertPlanMapping(m); err != nil {
			return fmt.Errorf("failed to seed plan mapping %s -> %s: %w", ref, plan, err)
		}
	}
	return nil
}
