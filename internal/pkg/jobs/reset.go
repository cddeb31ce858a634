package jobs

import (
	"context"
	"log"
	"time"

	"github.com/docquery/docquery/app/models"
	"github.com/docquery/docquery/app/repository"
)

// ResetResult summarizes one sweep over expired active subscriptions.
type ResetResult struct {
	Scanned int `json:"scanned"`
	Reset   int `json:"reset"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// UsageResetJob rolls expired active subscriptions into their next billing
// window: counters back to zero, valid_until advanced by whole billing
// periods. The per-row reset is a compare-and-set on the observed
// valid_until, so concurrent sweeps and webhook transitions cannot double
// apply it.
type UsageResetJob struct {
	subs repository.SubscriptionRepository
	now  func() time.Time
}

// NewUsageResetJob creates the periodic usage reset job.
func NewUsageResetJob(subs repository.SubscriptionRepository) *UsageResetJob {
	return &UsageResetJob{subs: subs, now: time.Now}
}

// Run performs one sweep. Individual row failures are counted and logged but
// do not abort the remaining rows.
func (j *UsageResetJob) Run(ctx context.Context) (ResetResult, error) {
	_ = ctx
	now := j.now()

	expired, err := j.subs.ListExpiredActive(now)
	if err != nil {
		return ResetResult{}, err
	}

	result := ResetResult{Scanned: len(expired)}
	for _, sub := range expired {
		next := nextValidUntil(sub.ValidUntil, now)
		ok, err := j.subs.ResetUsage(sub.UserID, sub.ValidUntil, next)
		if err != nil {
			result.Failed++
			log.Printf("jobs: usage reset failed for user %d: %v", sub.UserID, err)
			continue
		}
		if !ok {
			// Another sweep or a webhook moved the row since we listed it.
			result.Skipped++
			continue
		}
		result.Reset++
	}
	return result, nil
}

// nextValidUntil advances validUntil by whole billing periods until it lies
// in the future, so a long-dormant subscription catches up in one sweep.
func nextValidUntil(validUntil, now time.Time) time.Time {
	next := validUntil.Add(models.BillingPeriod)
	for !next.After(now) {
		next = next.Add(models.BillingPeriod)
	}
	return next
}
