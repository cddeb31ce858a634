package plans

import (
	"errors"
	"strings"

	"github.com/docquery/docquery/app/models"
)

// CatalogEntry describes one subscription tier: price and monthly quotas.
// Limits use models.UnlimitedQuota (-1) for "no cap".
type CatalogEntry struct {
	Plan           string  `json:"plan"`
	Name           string  `json:"name"`
	MonthlyPrice   float64 `json:"monthly_price"`
	DocumentsLimit int     `json:"documents_limit"`
	QuestionsLimit int     `json:"questions_limit"`
}

var ErrUnknownPlan = errors.New("unknown plan")

// catalog is the static tier definition. Limits are immutable constants for
// a given plan version.
var catalog = map[string]CatalogEntry{
	models.PlanFree: {
		Plan:           models.PlanFree,
		Name:           "Free",
		MonthlyPrice:   0,
		DocumentsLimit: 3,
		QuestionsLimit: 20,
	},
	models.PlanProfessional: {
		Plan:           models.PlanProfessional,
		Name:           "Professional",
		MonthlyPrice:   29.99,
		DocumentsLimit: 25,
		QuestionsLimit: 100,
	},
	models.PlanEnterprise: {
		Plan:           models.PlanEnterprise,
		Name:           "Enterprise",
		MonthlyPrice:   99.99,
		DocumentsLimit: models.UnlimitedQuota,
		QuestionsLimit: models.UnlimitedQuota,
	},
}

// Lookup returns the catalog entry for a plan. Pure lookup, no side effects.
func Lookup(plan string) (CatalogEntry, error) {
	entry, ok := catalog[Normalize(plan)]
	if !ok {
		return CatalogEntry{}, ErrUnknownPlan
	}
	return entry, nil
}

// All returns the catalog entries ordered by rank, cheapest first.
func All() []CatalogEntry {
	return []CatalogEntry{
		catalog[models.PlanFree],
		catalog[models.PlanProfessional],
		catalog[models.PlanEnterprise],
	}
}

// Normalize maps arbitrary plan spellings onto the canonical enum. Unknown
// values normalize to FREE, matching the billing plan-mapping fallback.
func Normalize(plan string) string {
	switch strings.ToUpper(strings.TrimSpace(plan)) {
	case models.PlanProfessional:
		return models.PlanProfessional
	case models.PlanEnterprise:
		return models.PlanEnterprise
	default:
		return models.PlanFree
	}
}

// Rank orders plans for upgrade/downgrade comparisons.
func Rank(plan string) int {
	switch Normalize(plan) {
	case models.PlanEnterprise:
		return 2
	case models.PlanProfessional:
		return 1
	default:
		return 0
	}
}

// IsUnlimited reports whether a limit value is the unlimited sentinel.
func IsUnlimited(limit int) bool {
	return limit == models.UnlimitedQuota
}
