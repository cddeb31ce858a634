package billing

import (
	"context"
	"fmt"
	"log"
	"math"

	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/docquery/docquery/app/models"
	"github.com/docquery/docquery/internal/pkg/env"
	"github.com/docquery/docquery/internal/pkg/plans"
)

// StripeService mirrors the plan catalog into Stripe product/price objects
// and keeps the price-id -> internal-plan mapping table current. The service
// is nil when STRIPE_SECRET_KEY is not configured.
type StripeService struct {
	repo Repository
	sc   *client.API
}

// NewStripeFromEnv returns a configured service or nil when the key is missing.
func NewStripeFromEnv(repo Repository) *StripeService {
	key := env.GetEnv("STRIPE_SECRET_KEY", "")
	if key == "" {
		return nil
	}
	sc := &client.API{}
	sc.Init(key, nil)
	return &StripeService{repo: repo, sc: sc}
}

// SyncCatalog ensures every paid catalog plan has a Stripe product with a
// matching monthly price, and records the price id in the plan mapping table.
// Free plans need no Stripe objects.
func (s *StripeService) SyncCatalog(ctx context.Context) error {
	_ = ctx
	for _, entry := range plans.All() {
		if entry.MonthlyPrice == 0 {
			continue
		}

		productID, err := s.ensureProduct(entry)
		if err != nil {
			return fmt.Errorf("stripe product sync for %s: %w", entry.Plan, err)
		}
		priceID, err := s.ensurePrice(entry, productID)
		if err != nil {
			return fmt.Errorf("stripe price sync for %s: %w", entry.Plan, err)
		}

		mapping := &models.BillingPlanMapping{
			Provider:        models.BillingProviderStripe,
			ProviderPlanRef: priceID,
			InternalPlan:    entry.Plan,
			IsActive:        true,
		}
		if err := s.repo.UpsertPlanMapping(mapping); err != nil {
			return fmt.Errorf("stripe mapping for %s: %w", entry.Plan, err)
		}
		log.Printf("billing: stripe catalog synced plan=%s product=%s price=%s", entry.Plan, productID, priceID)
	}
	return nil
}

func (s *StripeService) ensureProduct(entry plans.CatalogEntry) (string, error) {
	params := &stripe.ProductSearchParams{
		SearchParams: stripe.SearchParams{Query: fmt.Sprintf("active:'true' AND name:'%s'", entry.Name)},
	}
	iter := s.sc.Products.Search(params)
	for iter.Next() {
		return iter.Product().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", err
	}

	prod, err := s.sc.Products.New(&stripe.ProductParams{Name: stripe.String(entry.Name)})
	if err != nil {
		return "", err
	}
	return prod.ID, nil
}

func (s *StripeService) ensurePrice(entry plans.CatalogEntry, productID string) (string, error) {
	amount := int64(math.Round(entry.MonthlyPrice * 100))

	listParams := &stripe.PriceListParams{Product: stripe.String(productID), Active: stripe.Bool(true)}
	iter := s.sc.Prices.List(listParams)
	for iter.Next() {
		p := iter.Price()
		if p.UnitAmount == amount && p.Recurring != nil && p.Recurring.Interval == stripe.PriceRecurringIntervalMonth {
			return p.ID, nil
		}
	}
	if err := iter.Err(); err != nil {
		return "", err
	}

	price, err := s.sc.Prices.New(&stripe.PriceParams{
		Product:    stripe.String(productID),
		UnitAmount: stripe.Int64(amount),
		Currency:   stripe.String(string(stripe.CurrencyUSD)),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
		},
	})
	if err != nil {
		return "", err
	}
	return price.ID, nil
}
