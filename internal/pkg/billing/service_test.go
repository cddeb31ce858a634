package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docquery/docquery/app/models"
	"gorm.io/gorm"
)

type fakeRepo struct {
	subsByUser     map[uint]*models.Subscription
	subsByExternal map[string]*models.Subscription
	mappings       map[string]string
	events         map[string]*models.BillingWebhookEvent
	nextEventID    uint
	processed      map[uint]string
	saveCalls      int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		subsByUser:     make(map[uint]*models.Subscription),
		subsByExternal: make(map[string]*models.Subscription),
		mappings:       make(map[string]string),
		events:         make(map[string]*models.BillingWebhookEvent),
		processed:      make(map[uint]string),
	}
}

func (f *fakeRepo) put(sub *models.Subscription) {
	f.subsByUser[sub.UserID] = sub
	if sub.ExternalBillingID != "" {
		f.subsByExternal[sub.ExternalBillingID] = sub
	}
}

func (f *fakeRepo) GetSubscriptionByUserID(userID uint) (*models.Subscription, error) {
	sub, ok := f.subsByUser[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeRepo) GetSubscriptionByExternalID(id string) (*models.Subscription, error) {
	sub, ok := f.subsByExternal[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeRepo) CreateSubscription(sub *models.Subscription) error {
	f.put(sub)
	return nil
}

func (f *fakeRepo) SaveSubscription(sub *models.Subscription) error {
	f.saveCalls++
	f.put(sub)
	return nil
}

func (f *fakeRepo) FindActivePlanMapping(provider, ref string) (*models.BillingPlanMapping, error) {
	plan, ok := f.mappings[provider+"/"+ref]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &models.BillingPlanMapping{Provider: provider, ProviderPlanRef: ref, InternalPlan: plan, IsActive: true}, nil
}

func (f *fakeRepo) UpsertPlanMapping(m *models.BillingPlanMapping) error {
	f.mappings[m.Provider+"/"+m.ProviderPlanRef] = m.InternalPlan
	return nil
}

func (f *fakeRepo) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	key := event.Provider + "/" + event.ProviderEventID
	if stored, ok := f.events[key]; ok {
		cp := *stored
		return false, &cp, nil
	}
	f.nextEventID++
	event.ID = f.nextEventID
	cp := *event
	f.events[key] = &cp
	return true, event, nil
}

func (f *fakeRepo) ReclaimWebhookEvent(id uint, event *models.BillingWebhookEvent) (bool, error) {
	for _, stored := range f.events {
		if stored.ID != id || stored.SignatureValid {
			continue
		}
		stored.EventType = event.EventType
		stored.EventTime = event.EventTime
		stored.PayloadJSON = event.PayloadJSON
		stored.SignatureValid = true
		stored.ProcessedAt = nil
		stored.ProcessingError = ""
		return true, nil
	}
	return false, nil
}

func (f *fakeRepo) MarkWebhookProcessed(id uint, processingError string) error {
	f.processed[id] = processingError
	return nil
}

type fakeProvider struct {
	cancelErr   error
	cancelCalls []string
	remote      *ProviderSubscription
}

func (p *fakeProvider) GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error) {
	if p.remote == nil {
		return nil, errors.New("not found")
	}
	return p.remote, nil
}

func (p *fakeProvider) CancelSubscription(ctx context.Context, id, reason string) error {
	p.cancelCalls = append(p.cancelCalls, id)
	return p.cancelErr
}

func proSub(userID uint, externalID string) *models.Subscription {
	return &models.Subscription{
		UserID:            userID,
		Plan:              models.PlanProfessional,
		Status:            models.SubscriptionStatusActive,
		DocumentsLimit:    25,
		QuestionsLimit:    100,
		DocumentsUsed:     7,
		QuestionsUsed:     42,
		ValidUntil:        time.Now().Add(10 * 24 * time.Hour),
		ExternalBillingID: externalID,
	}
}

func TestGetSubscriptionMissingRowIsFatal(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	_, err := svc.GetSubscription(context.Background(), 7)
	if !errors.Is(err, ErrNoSubscription) {
		t.Fatalf("expected ErrNoSubscription, got %v", err)
	}
}

func TestUpgradeCreatesMissingRow(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil)

	before := time.Now()
	sub, err := svc.Upgrade(context.Background(), 1, models.PlanProfessional, "I-NEW")
	if err != nil {
		t.Fatalf("Upgrade returned error: %v", err)
	}
	if sub.Status != models.SubscriptionStatusActive {
		t.Fatalf("expected ACTIVE, got %s", sub.Status)
	}
	if sub.DocumentsLimit != 25 || sub.QuestionsLimit != 100 {
		t.Fatalf("catalog limits not applied: %d/%d", sub.DocumentsLimit, sub.QuestionsLimit)
	}
	want := before.Add(models.BillingPeriod)
	if sub.ValidUntil.Before(want.Add(-time.Minute)) || sub.ValidUntil.After(want.Add(time.Minute)) {
		t.Fatalf("valid_until not one billing period out: %v", sub.ValidUntil)
	}
}

func TestUpgradePreservesUsageCounters(t *testing.T) {
	repo := newFakeRepo()
	sub := proSub(1, "I-123")
	sub.Plan = models.PlanFree
	sub.DocumentsLimit = 3
	sub.QuestionsLimit = 20
	sub.DocumentsUsed = 2
	sub.QuestionsUsed = 15
	repo.put(sub)
	svc := NewService(repo, nil)

	got, err := svc.Upgrade(context.Background(), 1, models.PlanEnterprise, "")
	if err != nil {
		t.Fatalf("Upgrade returned error: %v", err)
	}
	if got.DocumentsUsed != 2 || got.QuestionsUsed != 15 {
		t.Fatalf("usage counters reset on upgrade: %d/%d", got.DocumentsUsed, got.QuestionsUsed)
	}
	if got.DocumentsLimit != models.UnlimitedQuota || got.QuestionsLimit != models.UnlimitedQuota {
		t.Fatalf("enterprise limits not applied: %d/%d", got.DocumentsLimit, got.QuestionsLimit)
	}
	if got.ExternalBillingID != "I-123" {
		t.Fatalf("blank external id overwrote existing reference: %q", got.ExternalBillingID)
	}
}

func TestUpgradeRejectsUnknownPlan(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	if _, err := svc.Upgrade(context.Background(), 1, "PLATINUM", ""); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
}

func TestCancelProviderFailureLeavesStateUntouched(t *testing.T) {
	repo := newFakeRepo()
	repo.put(proSub(1, "I-123"))
	provider := &fakeProvider{cancelErr: errors.New("gateway timeout")}
	svc := NewService(repo, provider)

	_, err := svc.Cancel(context.Background(), 1)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	sub, _ := repo.GetSubscriptionByUserID(1)
	if sub.Status != models.SubscriptionStatusActive || sub.Plan != models.PlanProfessional {
		t.Fatalf("local state mutated despite provider failure: %s/%s", sub.Status, sub.Plan)
	}
}

func TestCancelDowngradesToFreeLimits(t *testing.T) {
	repo := newFakeRepo()
	repo.put(proSub(1, "I-123"))
	provider := &fakeProvider{}
	svc := NewService(repo, provider)

	sub, err := svc.Cancel(context.Background(), 1)
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if len(provider.cancelCalls) != 1 || provider.cancelCalls[0] != "I-123" {
		t.Fatalf("provider cancel not called for I-123: %v", provider.cancelCalls)
	}
	if sub.Status != models.SubscriptionStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", sub.Status)
	}
	if sub.Plan != models.PlanFree || sub.DocumentsLimit != 3 || sub.QuestionsLimit != 20 {
		t.Fatalf("free limits not applied: %s %d/%d", sub.Plan, sub.DocumentsLimit, sub.QuestionsLimit)
	}
	if sub.ValidUntil.After(time.Now().Add(time.Minute)) {
		t.Fatalf("term not ended: %v", sub.ValidUntil)
	}
}

func TestApplyWebhookEventUnknownSubscription(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	_, err := svc.ApplyWebhookEvent(context.Background(), WebhookEvent{
		EventType:      EventSubscriptionCancelled,
		SubscriptionID: "I-GHOST",
		EventTime:      time.Now(),
	})
	if !errors.Is(err, ErrUnknownSubscription) {
		t.Fatalf("expected ErrUnknownSubscription, got %v", err)
	}
}

func TestApplyWebhookEventRejectsStale(t *testing.T) {
	repo := newFakeRepo()
	sub := proSub(1, "I-123")
	last := time.Now()
	sub.LastEventAt = &last
	repo.put(sub)
	svc := NewService(repo, nil)

	_, err := svc.ApplyWebhookEvent(context.Background(), WebhookEvent{
		EventType:      EventSubscriptionCancelled,
		SubscriptionID: "I-123",
		EventTime:      last.Add(-time.Hour),
	})
	if !errors.Is(err, ErrStaleEvent) {
		t.Fatalf("expected ErrStaleEvent, got %v", err)
	}
	got, _ := repo.GetSubscriptionByUserID(1)
	if got.Status != models.SubscriptionStatusActive {
		t.Fatalf("stale event mutated state: %s", got.Status)
	}
}

func TestApplyWebhookEventActivatedAppliesMappedPlan(t *testing.T) {
	repo := newFakeRepo()
	sub := proSub(1, "I-123")
	sub.Plan = models.PlanFree
	sub.Status = models.SubscriptionStatusPaymentFailed
	sub.DocumentsLimit = 3
	sub.QuestionsLimit = 20
	repo.put(sub)
	repo.mappings["paypal/P-PRO-PLAN"] = models.PlanProfessional
	svc := NewService(repo, nil)

	got, err := svc.ApplyWebhookEvent(context.Background(), WebhookEvent{
		Provider:       models.BillingProviderPayPal,
		EventType:      EventSubscriptionActivated,
		SubscriptionID: "I-123",
		PlanRef:        "P-PRO-PLAN",
		EventTime:      time.Now(),
	})
	if err != nil {
		t.Fatalf("ApplyWebhookEvent returned error: %v", err)
	}
	if got.Status != models.SubscriptionStatusActive || got.Plan != models.PlanProfessional {
		t.Fatalf("activation not applied: %s/%s", got.Status, got.Plan)
	}
	if got.DocumentsLimit != 25 || got.QuestionsLimit != 100 {
		t.Fatalf("mapped plan limits not applied: %d/%d", got.DocumentsLimit, got.QuestionsLimit)
	}
	if got.LastEventAt == nil {
		t.Fatalf("LastEventAt not advanced")
	}
}

func TestApplyWebhookEventCancelledDowngrades(t *testing.T) {
	repo := newFakeRepo()
	repo.put(proSub(1, "I-123"))
	svc := NewService(repo, nil)

	got, err := svc.ApplyWebhookEvent(context.Background(), WebhookEvent{
		EventType:      EventSubscriptionCancelled,
		SubscriptionID: "I-123",
		EventTime:      time.Now(),
	})
	if err != nil {
		t.Fatalf("ApplyWebhookEvent returned error: %v", err)
	}
	if got.Status != models.SubscriptionStatusCancelled || got.Plan != models.PlanFree {
		t.Fatalf("cancellation not applied: %s/%s", got.Status, got.Plan)
	}
	if got.DocumentsLimit != 3 || got.QuestionsLimit != 20 {
		t.Fatalf("free limits not applied: %d/%d", got.DocumentsLimit, got.QuestionsLimit)
	}
}

func TestApplyWebhookEventSuspendAndRecover(t *testing.T) {
	repo := newFakeRepo()
	repo.put(proSub(1, "I-123"))
	svc := NewService(repo, nil)

	got, err := svc.ApplyWebhookEvent(context.Background(), WebhookEvent{
		EventType:      EventSubscriptionSuspended,
		SubscriptionID: "I-123",
		EventTime:      time.Now(),
	})
	if err != nil {
		t.Fatalf("suspend returned error: %v", err)
	}
	if got.Status != models.SubscriptionStatusSuspended {
		t.Fatalf("expected SUSPENDED, got %s", got.Status)
	}

	got, err = svc.ApplyWebhookEvent(context.Background(), WebhookEvent{
		EventType:      EventSaleCompleted,
		SubscriptionID: "I-123",
		EventTime:      time.Now(),
	})
	if err != nil {
		t.Fatalf("sale completed returned error: %v", err)
	}
	if got.Status != models.SubscriptionStatusActive {
		t.Fatalf("successful charge did not restore entitlement: %s", got.Status)
	}
	if got.Plan != models.PlanProfessional {
		t.Fatalf("recovery changed plan: %s", got.Plan)
	}
}

func TestApplyWebhookEventPaymentFailed(t *testing.T) {
	repo := newFakeRepo()
	repo.put(proSub(1, "I-123"))
	svc := NewService(repo, nil)

	got, err := svc.ApplyWebhookEvent(context.Background(), WebhookEvent{
		EventType:      EventPaymentFailed,
		SubscriptionID: "I-123",
		EventTime:      time.Now(),
	})
	if err != nil {
		t.Fatalf("ApplyWebhookEvent returned error: %v", err)
	}
	if got.Status != models.SubscriptionStatusPaymentFailed {
		t.Fatalf("expected PAYMENT_FAILED, got %s", got.Status)
	}
}

func TestApplyWebhookEventIgnoresUnknownType(t *testing.T) {
	repo := newFakeRepo()
	repo.put(proSub(1, "I-123"))
	svc := NewService(repo, nil)

	got, err := svc.ApplyWebhookEvent(context.Background(), WebhookEvent{
		EventType:      "BILLING.SUBSCRIPTION.UPDATED",
		SubscriptionID: "I-123",
		EventTime:      time.Now(),
	})
	if err != nil {
		t.Fatalf("unknown event type should be ignored, got %v", err)
	}
	if got.Status != models.SubscriptionStatusActive {
		t.Fatalf("unknown event mutated state: %s", got.Status)
	}
	if repo.saveCalls != 0 {
		t.Fatalf("unknown event persisted changes")
	}
}

func TestRecordWebhookEventDeduplicates(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	in := WebhookEventInput{
		Provider:        "PayPal",
		ProviderEventID: "WH-1",
		EventType:       EventSubscriptionActivated,
		PayloadJSON:     `{"id":"WH-1"}`,
		SignatureValid:  true,
	}

	created, first, err := svc.RecordWebhookEvent(context.Background(), in)
	if err != nil || !created {
		t.Fatalf("first delivery: created=%v err=%v", created, err)
	}
	created, second, err := svc.RecordWebhookEvent(context.Background(), in)
	if err != nil {
		t.Fatalf("second delivery returned error: %v", err)
	}
	if created {
		t.Fatalf("duplicate delivery reported as new")
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate resolved to a different row: %d vs %d", second.ID, first.ID)
	}
}

func TestRecordWebhookEventVerifiedRetryReclaimsUnverifiedSlot(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	// A delivery that failed signature verification must not hold the
	// dedupe slot. This also covers a forged body sent with a guessed
	// event id before the genuine event arrives.
	created, first, err := svc.RecordWebhookEvent(context.Background(), WebhookEventInput{
		Provider:        "paypal",
		ProviderEventID: "WH-RETRY-1",
		EventType:       EventSubscriptionCancelled,
		PayloadJSON:     `{"forged":true}`,
		SignatureValid:  false,
	})
	if err != nil || !created {
		t.Fatalf("unverified delivery: created=%v err=%v", created, err)
	}

	genuine := WebhookEventInput{
		Provider:        "paypal",
		ProviderEventID: "WH-RETRY-1",
		EventType:       EventSubscriptionCancelled,
		PayloadJSON:     `{"id":"WH-RETRY-1"}`,
		SignatureValid:  true,
	}
	created, second, err := svc.RecordWebhookEvent(context.Background(), genuine)
	if err != nil {
		t.Fatalf("verified retry returned error: %v", err)
	}
	if !created {
		t.Fatalf("verified retry was absorbed as a duplicate")
	}
	if second.ID != first.ID {
		t.Fatalf("retry claimed a different row: %d vs %d", second.ID, first.ID)
	}
	if second.PayloadJSON != genuine.PayloadJSON {
		t.Fatalf("reclaimed row kept the unverified payload: %s", second.PayloadJSON)
	}

	created, _, err = svc.RecordWebhookEvent(context.Background(), genuine)
	if err != nil {
		t.Fatalf("verified replay returned error: %v", err)
	}
	if created {
		t.Fatalf("verified replay after reclaim reported as new")
	}
}

func TestRecordWebhookEventUnverifiedReplayStaysUnclaimed(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	in := WebhookEventInput{
		Provider:        "paypal",
		ProviderEventID: "WH-RETRY-2",
		PayloadJSON:     `{"forged":true}`,
		SignatureValid:  false,
	}

	if created, _, err := svc.RecordWebhookEvent(context.Background(), in); err != nil || !created {
		t.Fatalf("unverified delivery: created=%v err=%v", created, err)
	}
	created, stored, err := svc.RecordWebhookEvent(context.Background(), in)
	if err != nil {
		t.Fatalf("unverified replay returned error: %v", err)
	}
	if created {
		t.Fatalf("unverified replay claimed the slot")
	}
	if stored.SignatureValid {
		t.Fatalf("unverified replay flipped the stored row to verified")
	}
}

func TestRecordWebhookEventHashFallback(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)
	payload := `{"event_type":"PAYMENT.SALE.COMPLETED"}`

	created, _, err := svc.RecordWebhookEvent(context.Background(), WebhookEventInput{
		Provider:    "paypal",
		PayloadJSON: payload,
	})
	if err != nil || !created {
		t.Fatalf("first delivery: created=%v err=%v", created, err)
	}
	created, _, err = svc.RecordWebhookEvent(context.Background(), WebhookEventInput{
		Provider:    "paypal",
		PayloadJSON: payload,
	})
	if err != nil {
		t.Fatalf("second delivery returned error: %v", err)
	}
	if created {
		t.Fatalf("identical payload without event id not deduplicated")
	}
}

func TestResolveMappedPlanFallsBackToFree(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	plan, err := svc.ResolveMappedPlan(context.Background(), "paypal", "P-UNKNOWN")
	if err != nil {
		t.Fatalf("ResolveMappedPlan returned error: %v", err)
	}
	if plan != models.PlanFree {
		t.Fatalf("unmapped reference should fall back to FREE, got %s", plan)
	}
}
