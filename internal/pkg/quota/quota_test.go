package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/docquery/docquery/app/models"
	"github.com/docquery/docquery/app/repository"
	"gorm.io/gorm"
)

// fakeSubscriptionRepo is an in-memory SubscriptionRepository with the same
// atomicity contract as the SQL implementation: IncrementUsage checks and
// mutates under one lock.
type fakeSubscriptionRepo struct {
	mu   sync.Mutex
	subs map[uint]*models.Subscription
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{subs: make(map[uint]*models.Subscription)}
}

func (f *fakeSubscriptionRepo) Create(sub *models.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *sub
	f.subs[sub.UserID] = &cp
	return nil
}

func (f *fakeSubscriptionRepo) GetByUserID(userID uint) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeSubscriptionRepo) GetByExternalBillingID(id string) (*models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		if sub.ExternalBillingID == id {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeSubscriptionRepo) Update(sub *models.Subscription) error {
	return f.Create(sub)
}

func (f *fakeSubscriptionRepo) IncrementUsage(userID uint, resourceType string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[userID]
	if !ok {
		return false, nil
	}
	if sub.Status != models.SubscriptionStatusActive || !sub.ValidUntil.After(now) {
		return false, nil
	}
	switch resourceType {
	case models.UsageTypeDocument:
		if sub.DocumentsLimit != models.UnlimitedQuota && sub.DocumentsUsed >= sub.DocumentsLimit {
			return false, nil
		}
		sub.DocumentsUsed++
	case models.UsageTypeQuestion:
		if sub.QuestionsLimit != models.UnlimitedQuota && sub.QuestionsUsed >= sub.QuestionsLimit {
			return false, nil
		}
		sub.QuestionsUsed++
	default:
		return false, errors.New("unknown resource type")
	}
	return true, nil
}

func (f *fakeSubscriptionRepo) ResetUsage(userID uint, expiredAt, nextValidUntil time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[userID]
	if !ok || sub.Status != models.SubscriptionStatusActive || !sub.ValidUntil.Equal(expiredAt) {
		return false, nil
	}
	sub.DocumentsUsed = 0
	sub.QuestionsUsed = 0
	sub.ValidUntil = nextValidUntil
	return true, nil
}

func (f *fakeSubscriptionRepo) ListExpiredActive(now time.Time) ([]models.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Subscription
	for _, sub := range f.subs {
		if sub.Status == models.SubscriptionStatusActive && !sub.ValidUntil.After(now) {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (f *fakeSubscriptionRepo) CountByPlanAndStatus() ([]repository.PlanStatusCount, error) {
	return nil, nil
}

func activeSub(userID uint, docsLimit, docsUsed, qLimit, qUsed int) *models.Subscription {
	return &models.Subscription{
		UserID:         userID,
		Plan:           models.PlanFree,
		Status:         models.SubscriptionStatusActive,
		DocumentsLimit: docsLimit,
		DocumentsUsed:  docsUsed,
		QuestionsLimit: qLimit,
		QuestionsUsed:  qUsed,
		ValidUntil:     time.Now().Add(24 * time.Hour),
	}
}

func TestCheckQuotaAllows(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	repo.Create(activeSub(1, 3, 1, 20, 0))
	ledger := NewLedger(repo, nil)

	status, err := ledger.CheckQuota(context.Background(), 1, models.UsageTypeDocument)
	if err != nil {
		t.Fatalf("CheckQuota returned error: %v", err)
	}
	if !status.Allowed || status.Remaining != 2 {
		t.Fatalf("expected allowed with 2 remaining, got allowed=%v remaining=%d", status.Allowed, status.Remaining)
	}
}

func TestCheckQuotaDeniesAtLimit(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	repo.Create(activeSub(1, 3, 3, 20, 0))
	ledger := NewLedger(repo, nil)

	status, err := ledger.CheckQuota(context.Background(), 1, models.UsageTypeDocument)
	if err != nil {
		t.Fatalf("CheckQuota returned error: %v", err)
	}
	if status.Allowed || status.Remaining != 0 {
		t.Fatalf("expected denial with 0 remaining, got allowed=%v remaining=%d", status.Allowed, status.Remaining)
	}
}

func TestCheckQuotaUnlimitedSentinel(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	repo.Create(activeSub(1, models.UnlimitedQuota, 10000, models.UnlimitedQuota, 10000))
	ledger := NewLedger(repo, nil)

	status, err := ledger.CheckQuota(context.Background(), 1, models.UsageTypeQuestion)
	if err != nil {
		t.Fatalf("CheckQuota returned error: %v", err)
	}
	if !status.Allowed || status.Remaining != models.UnlimitedQuota {
		t.Fatalf("expected unlimited plan to allow, got allowed=%v remaining=%d", status.Allowed, status.Remaining)
	}
}

func TestCheckQuotaDeniesInactive(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	sub := activeSub(1, 3, 0, 20, 0)
	sub.Status = models.SubscriptionStatusPaymentFailed
	repo.Create(sub)
	ledger := NewLedger(repo, nil)

	status, err := ledger.CheckQuota(context.Background(), 1, models.UsageTypeQuestion)
	if err != nil {
		t.Fatalf("CheckQuota returned error: %v", err)
	}
	if status.Allowed {
		t.Fatalf("expected inactive subscription to deny regardless of counters")
	}
}

func TestCheckQuotaDeniesExpired(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	sub := activeSub(1, 3, 0, 20, 0)
	sub.ValidUntil = time.Now().Add(-time.Hour)
	repo.Create(sub)
	ledger := NewLedger(repo, nil)

	status, err := ledger.CheckQuota(context.Background(), 1, models.UsageTypeDocument)
	if err != nil {
		t.Fatalf("CheckQuota returned error: %v", err)
	}
	if status.Allowed {
		t.Fatalf("expected expired subscription to deny regardless of counters")
	}
}

func TestCheckQuotaMissingSubscriptionIsFatal(t *testing.T) {
	ledger := NewLedger(newFakeSubscriptionRepo(), nil)

	_, err := ledger.CheckQuota(context.Background(), 42, models.UsageTypeDocument)
	if !errors.Is(err, ErrNoSubscription) {
		t.Fatalf("expected ErrNoSubscription, got %v", err)
	}
}

func TestRecordUsageAtLimitKeepsCounter(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	repo.Create(activeSub(1, 3, 3, 20, 0))
	ledger := NewLedger(repo, nil)

	_, err := ledger.RecordUsage(context.Background(), 1, models.UsageTypeDocument)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}

	sub, err := repo.GetByUserID(1)
	if err != nil {
		t.Fatalf("GetByUserID returned error: %v", err)
	}
	if sub.DocumentsUsed != 3 {
		t.Fatalf("counter mutated on denied usage: got %d, want 3", sub.DocumentsUsed)
	}
}

func TestRecordUsageInactiveClassified(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	sub := activeSub(1, 3, 0, 20, 0)
	sub.Status = models.SubscriptionStatusSuspended
	repo.Create(sub)
	ledger := NewLedger(repo, nil)

	_, err := ledger.RecordUsage(context.Background(), 1, models.UsageTypeQuestion)
	if !errors.Is(err, ErrSubscriptionInactive) {
		t.Fatalf("expected ErrSubscriptionInactive, got %v", err)
	}
}

func TestRecordUsageConcurrentNeverOverruns(t *testing.T) {
	const attempts = 25
	const slots = 5

	repo := newFakeSubscriptionRepo()
	repo.Create(activeSub(1, 3, 0, slots, 0))
	ledger := NewLedger(repo, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.RecordUsage(context.Background(), 1, models.UsageTypeQuestion); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != slots {
		t.Fatalf("expected exactly %d successful increments, got %d", slots, successes)
	}
	sub, _ := repo.GetByUserID(1)
	if sub.QuestionsUsed != slots {
		t.Fatalf("counter overrun: used=%d, limit=%d", sub.QuestionsUsed, slots)
	}
}

func TestRecordUsageReturnsUpdatedCounters(t *testing.T) {
	repo := newFakeSubscriptionRepo()
	repo.Create(activeSub(1, 3, 0, 20, 4))
	ledger := NewLedger(repo, nil)

	sub, err := ledger.RecordUsage(context.Background(), 1, models.UsageTypeQuestion)
	if err != nil {
		t.Fatalf("RecordUsage returned error: %v", err)
	}
	if sub.QuestionsUsed != 5 {
		t.Fatalf("expected refreshed counter 5, got %d", sub.QuestionsUsed)
	}
}
