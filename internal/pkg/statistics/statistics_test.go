package statistics

import (
	"testing"

	"github.com/docquery/docquery/app/models"
	"github.com/docquery/docquery/app/repository"
)

func TestComputeRevenueCountsOnlyActivePaidPlans(t *testing.T) {
	counts := []repository.PlanStatusCount{
		{Plan: models.PlanFree, Status: models.SubscriptionStatusActive, Count: 100},
		{Plan: models.PlanProfessional, Status: models.SubscriptionStatusActive, Count: 10},
		{Plan: models.PlanEnterprise, Status: models.SubscriptionStatusActive, Count: 2},
		{Plan: models.PlanProfessional, Status: models.SubscriptionStatusCancelled, Count: 5},
		{Plan: models.PlanProfessional, Status: models.SubscriptionStatusPaymentFailed, Count: 3},
	}

	data := ComputeRevenue(counts)

	if data.PayingUsers != 12 {
		t.Fatalf("expected 12 paying users, got %d", data.PayingUsers)
	}
	want := 29.99*10 + 99.99*2
	if data.MonthlyRevenue < want-0.001 || data.MonthlyRevenue > want+0.001 {
		t.Fatalf("expected MRR %.2f, got %.2f", want, data.MonthlyRevenue)
	}
	if data.PlanCounts[models.PlanFree] != 100 {
		t.Fatalf("free users missing from distribution: %+v", data.PlanCounts)
	}
	if data.PlanCounts[models.PlanProfessional] != 10 {
		t.Fatalf("cancelled rows leaked into active distribution: %+v", data.PlanCounts)
	}
}

func TestComputeRevenueEmpty(t *testing.T) {
	data := ComputeRevenue(nil)
	if data.MonthlyRevenue != 0 || data.PayingUsers != 0 {
		t.Fatalf("expected zero revenue for empty input, got %+v", data)
	}
}
