package billing

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/docquery/docquery/app/models"
)

// paypalWebhookPayload mirrors the subset of the PayPal webhook envelope the
// adapter needs.
type paypalWebhookPayload struct {
	ID         string `json:"id"`
	EventType  string `json:"event_type"`
	CreateTime string `json:"create_time"`
	Resource   struct {
		ID     string `json:"id"`
		PlanID string `json:"plan_id"`
		// PAYMENT.SALE.COMPLETED carries the subscription id here instead.
		BillingAgreementID string `json:"billing_agreement_id"`
	} `json:"resource"`
}

// ParsePayPalWebhookEvent extracts the normalized event from a raw PayPal
// webhook body.
func ParsePayPalWebhookEvent(raw []byte) (WebhookEvent, error) {
	var payload paypalWebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return WebhookEvent{}, err
	}
	if strings.TrimSpace(payload.EventType) == "" {
		return WebhookEvent{}, errors.New("webhook payload missing event_type")
	}

	event := WebhookEvent{
		Provider:       models.BillingProviderPayPal,
		EventID:        strings.TrimSpace(payload.ID),
		EventType:      strings.TrimSpace(payload.EventType),
		SubscriptionID: strings.TrimSpace(payload.Resource.ID),
		PlanRef:        strings.TrimSpace(payload.Resource.PlanID),
	}
	if event.EventType == EventSaleCompleted && payload.Resource.BillingAgreementID != "" {
		event.SubscriptionID = strings.TrimSpace(payload.Resource.BillingAgreementID)
	}
	if t, err := time.Parse(time.RFC3339, payload.CreateTime); err == nil {
		event.EventTime = t
	}
	return event, nil
}

// IsSubscriptionEvent reports whether the adapter maps the event type onto a
// state transition.
func IsSubscriptionEvent(eventType string) bool {
	switch eventType {
	case EventSubscriptionActivated, EventSubscriptionCreated,
		EventSubscriptionCancelled, EventSubscriptionSuspended,
		EventPaymentFailed, EventSaleCompleted:
		return true
	default:
		return false
	}
}
