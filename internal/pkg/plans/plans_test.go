package plans

import (
	"testing"

	"github.com/docquery/docquery/app/models"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		plan     string
		wantDocs int
		wantQs   int
	}{
		{plan: "FREE", wantDocs: 3, wantQs: 20},
		{plan: "PROFESSIONAL", wantDocs: 25, wantQs: 100},
		{plan: "ENTERPRISE", wantDocs: models.UnlimitedQuota, wantQs: models.UnlimitedQuota},
		{plan: "professional", wantDocs: 25, wantQs: 100},
	}

	for _, tt := range tests {
		entry, err := Lookup(tt.plan)
		if err != nil {
			t.Fatalf("Lookup(%q) returned error: %v", tt.plan, err)
		}
		if entry.DocumentsLimit != tt.wantDocs || entry.QuestionsLimit != tt.wantQs {
			t.Fatalf("Lookup(%q) = {docs: %d, questions: %d}, want {%d, %d}",
				tt.plan, entry.DocumentsLimit, entry.QuestionsLimit, tt.wantDocs, tt.wantQs)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "FREE", want: models.PlanFree},
		{in: " enterprise ", want: models.PlanEnterprise},
		{in: "invalid", want: models.PlanFree},
		{in: "", want: models.PlanFree},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRank(t *testing.T) {
	if Rank(models.PlanFree) >= Rank(models.PlanProfessional) {
		t.Fatalf("expected professional to outrank free")
	}
	if Rank(models.PlanProfessional) >= Rank(models.PlanEnterprise) {
		t.Fatalf("expected enterprise to outrank professional")
	}
}

func TestEnterpriseIsUnlimited(t *testing.T) {
	entry, err := Lookup(models.PlanEnterprise)
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if !IsUnlimited(entry.DocumentsLimit) || !IsUnlimited(entry.QuestionsLimit) {
		t.Fatalf("expected enterprise limits to be unlimited, got docs=%d questions=%d",
			entry.DocumentsLimit, entry.QuestionsLimit)
	}
}

func TestAllOrderedByRank(t *testing.T) {
	entries := All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 catalog entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if Rank(entries[i-1].Plan) >= Rank(entries[i].Plan) {
			t.Fatalf("catalog entries not ordered by rank at index %d", i)
		}
	}
}
