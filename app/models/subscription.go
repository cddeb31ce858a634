package models

import "time"

const (
	PlanFree         = "FREE"
	PlanProfessional = "PROFESSIONAL"
	PlanEnterprise   = "ENTERPRISE"
)

const (
	SubscriptionStatusActive        = "ACTIVE"
	SubscriptionStatusCancelled     = "CANCELLED"
	SubscriptionStatusSuspended     = "SUSPENDED"
	SubscriptionStatusPaymentFailed = "PAYMENT_FAILED"
)

// UnlimitedQuota is the sentinel limit value meaning "no cap". Every quota
// comparison must special-case it before comparing counters.
const UnlimitedQuota = -1

// BillingPeriod is the rolling window after which usage counters reset.
const BillingPeriod = 30 * 24 * time.Hour

// Subscription is the per-user billing state: exactly one row per user,
// created at registration and never hard-deleted. Counters only move forward
// except through the periodic reset.
type Subscription struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	UserID            uint       `gorm:"not null;uniqueIndex" json:"user_id"`
	Plan              string     `gorm:"type:varchar(20);not null;default:'FREE';index" json:"plan"`
	Status            string     `gorm:"type:varchar(20);not null;default:'ACTIVE';index" json:"status"`
	DocumentsLimit    int        `gorm:"not null;default:3" json:"documents_limit"`
	QuestionsLimit    int        `gorm:"not null;default:20" json:"questions_limit"`
	DocumentsUsed     int        `gorm:"not null;default:0" json:"documents_used"`
	QuestionsUsed     int        `gorm:"not null;default:0" json:"questions_used"`
	ValidUntil        time.Time  `gorm:"not null;index" json:"valid_until"`
	ExternalBillingID string     `gorm:"type:varchar(191);default:null;index" json:"external_billing_id,omitempty"`
	LastEventAt       *time.Time `gorm:"type:timestamp;default:null" json:"-"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsActive reports whether the subscription entitles further usage.
func (s *Subscription) IsActive(now time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.ValidUntil.After(now)
}

// Remaining returns the remaining allowance for a counter/limit pair.
// Unlimited plans report the sentinel.
func Remaining(used, limit int) int {
	if limit == UnlimitedQuota {
		return UnlimitedQuota
	}
	if rem := limit - used; rem > 0 {
		return rem
	}
	return 0
}

// ValidPlan reports whether the given plan name is a known tier.
func ValidPlan(plan string) bool {
	switch plan {
	case PlanFree, PlanProfessional, PlanEnterprise:
		return true
	default:
		return false
	}
}

// ValidSubscriptionStatus reports whether the given status is part of the
// subscription state machine.
func ValidSubscriptionStatus(status string) bool {
	switch status {
	case SubscriptionStatusActive, SubscriptionStatusCancelled,
		SubscriptionStatusSuspended, SubscriptionStatusPaymentFailed:
		return true
	default:
		return false
	}
}
