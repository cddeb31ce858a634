package billing

import "time"

// PayPal webhook event types the adapter maps onto subscription state
// transitions. Anything else is persisted and ignored.
const (
	EventSubscriptionActivated = "BILLING.SUBSCRIPTION.ACTIVATED"
	EventSubscriptionCreated   = "BILLING.SUBSCRIPTION.CREATED"
	EventSubscriptionCancelled = "BILLING.SUBSCRIPTION.CANCELLED"
	EventSubscriptionSuspended = "BILLING.SUBSCRIPTION.SUSPENDED"
	EventPaymentFailed         = "BILLING.SUBSCRIPTION.PAYMENT.FAILED"
	EventSaleCompleted         = "PAYMENT.SALE.COMPLETED"
)

// WebhookEvent is the normalized provider event the service applies to the
// subscription state machine.
type WebhookEvent struct {
	Provider       string
	EventID        string
	EventType      string
	EventTime      time.Time
	SubscriptionID string // provider subscription reference (resource.id)
	PlanRef        string // provider plan reference (resource.plan_id)
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	EventTime       *time.Time
	PayloadJSON     string
	SignatureValid  bool
}

// ProviderSubscription is the provider-side view of a subscription returned
// by the payment API.
type ProviderSubscription struct {
	ID              string
	Status          string
	PlanID          string
	NextBillingTime *time.Time
}
