package quota

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/docquery/docquery/app/models"
	"github.com/docquery/docquery/app/repository"
	"github.com/docquery/docquery/internal/pkg/plans"
	"gorm.io/gorm"
)

var (
	// ErrNoSubscription means a user exists without a subscription row.
	// Registration guarantees the row, so this is a data-integrity fault and
	// is never silently replaced with a default FREE record.
	ErrNoSubscription = errors.New("no subscription found for user")

	// ErrQuotaExceeded is the expected "limit reached" condition. It is
	// surfaced to the user as an upgrade prompt, not logged as an error.
	ErrQuotaExceeded = errors.New("usage limit reached")

	// ErrSubscriptionInactive covers expired, cancelled, suspended and
	// payment-failed subscriptions.
	ErrSubscriptionInactive = errors.New("subscription expired or inactive")

	// ErrUnknownResource is returned for resource types outside the meter.
	ErrUnknownResource = errors.New("unknown resource type")
)

// Status is the result of a quota check.
type Status struct {
	Allowed   bool   `json:"allowed"`
	Remaining int    `json:"remaining"`
	Limit     int    `json:"limit"`
	Used      int    `json:"used"`
	Reason    string `json:"reason,omitempty"`
}

// Ledger enforces per-user usage quotas against the subscription record.
// Admission and increment are one conditional database statement, so
// concurrent requests for the same user can never overrun a limit.
type Ledger struct {
	subs   repository.SubscriptionRepository
	events repository.UsageEventRepository
	now    func() time.Time
}

// NewLedger creates a usage ledger over the given repositories. The events
// repository may be nil; usage is then still enforced but not audited.
func NewLedger(subs repository.SubscriptionRepository, events repository.UsageEventRepository) *Ledger {
	return &Ledger{subs: subs, events: events, now: time.Now}
}

// CheckQuota reports whether one more unit of resourceType would be admitted
// for the user. Read-only; RecordUsage re-checks atomically.
func (l *Ledger) CheckQuota(ctx context.Context, userID uint, resourceType string) (Status, error) {
	_ = ctx
	if !models.ValidUsageType(resourceType) {
		return Status{}, ErrUnknownResource
	}

	sub, err := l.subs.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Status{}, ErrNoSubscription
		}
		return Status{}, err
	}

	used, limit := counters(sub, resourceType)
	status := Status{
		Remaining: models.Remaining(used, limit),
		Limit:     limit,
		Used:      used,
	}

	if !sub.IsActive(l.now()) {
		status.Reason = "subscription expired or inactive"
		return status, nil
	}
	if !plans.IsUnlimited(limit) && used >= limit {
		status.Reason = "limit reached"
		return status, nil
	}
	status.Allowed = true
	return status, nil
}

// RecordUsage consumes one unit of resourceType. The underlying increment is
// a single conditional UPDATE; when it matches no row the denial is
// classified by a follow-up read. On success the refreshed subscription is
// returned.
func (l *Ledger) RecordUsage(ctx context.Context, userID uint, resourceType string) (*models.Subscription, error) {
	_ = ctx
	if !models.ValidUsageType(resourceType) {
		return nil, ErrUnknownResource
	}

	now := l.now()
	ok, err := l.subs.IncrementUsage(userID, resourceType, now)
	if err != nil {
		return nil, err
	}

	if !ok {
		sub, err := l.subs.GetByUserID(userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNoSubscription
			}
			return nil, err
		}
		if !sub.IsActive(now) {
			return nil, ErrSubscriptionInactive
		}
		return nil, ErrQuotaExceeded
	}

	if l.events != nil {
		if err := l.events.Record(&models.UsageEvent{UserID: userID, Type: resourceType}); err != nil {
			// Enforcement already happened; the audit trail is best effort.
			log.Printf("quota: failed to record usage event for user %d: %v", userID, err)
		}
	}

	sub, err := l.subs.GetByUserID(userID)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func counters(sub *models.Subscription, resourceType string) (used, limit int) {
	if resourceType == models.UsageTypeDocument {
		return sub.DocumentsUsed, sub.DocumentsLimit
	}
	return sub.QuestionsUsed, sub.QuestionsLimit
}
