package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/docquery/docquery/app/models"
	"github.com/docquery/docquery/internal/pkg/billing"
	"github.com/docquery/docquery/internal/pkg/database"
	"github.com/docquery/docquery/internal/pkg/env"
)

// HandlePayPalWebhook ingests PayPal billing notifications. The flow is
// verify signature, persist the delivery idempotently, then apply the state
// transition. Duplicate deliveries and out-of-order events are absorbed
// without touching subscription state.
func HandlePayPalWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	eventID := firstHeaderValue(c, "Paypal-Transmission-Id", "PayPal-Transmission-Id")

	svc := billing.NewServiceFromDB(database.GetDB(), billing.PayPalProviderFromEnv())
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	signatureValid := verifyPayPalSignature(ctx, c, rawBody)

	parsed, parseErr := billing.ParsePayPalWebhookEvent(rawBody)
	if parseErr == nil && parsed.EventID != "" {
		eventID = parsed.EventID
	}

	var eventTime *time.Time
	if parseErr == nil && !parsed.EventTime.IsZero() {
		t := parsed.EventTime
		eventTime = &t
	}
	created, stored, err := svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.BillingProviderPayPal,
		ProviderEventID: eventID,
		EventType:       parsed.EventType,
		EventTime:       eventTime,
		PayloadJSON:     string(rawBody),
		SignatureValid:  signatureValid,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !signatureValid {
		// The delivery is kept for audit but never holds the dedupe slot; a
		// verified retry of the same event id reclaims the row and is
		// processed normally.
		if created {
			_ = svc.MarkWebhookProcessed(ctx, stored.ID, errors.New("invalid webhook signature"))
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}
	if !created {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	if parseErr != nil {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, parseErr)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}
	if !billing.IsSubscriptionEvent(parsed.EventType) {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, nil)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	if _, err := svc.ApplyWebhookEvent(ctx, parsed); err != nil {
		switch {
		case errors.Is(err, billing.ErrUnknownSubscription):
			// No local record references this provider subscription; ack so
			// PayPal stops retrying.
			_ = svc.MarkWebhookProcessed(ctx, stored.ID, err)
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
		case errors.Is(err, billing.ErrStaleEvent):
			_ = svc.MarkWebhookProcessed(ctx, stored.ID, err)
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "stale": true})
		default:
			log.Printf("paypal webhook %s failed: %v", eventID, err)
			_ = svc.MarkWebhookProcessed(ctx, stored.ID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_apply_failed"})
		}
	}

	_ = svc.MarkWebhookProcessed(ctx, stored.ID, nil)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// verifyPayPalSignature prefers PayPal's remote verification API when a
// webhook id is configured and falls back to the shared-secret HMAC check
// used in self-hosted setups.
func verifyPayPalSignature(ctx context.Context, c *fiber.Ctx, rawBody []byte) bool {
	if env.GetEnv("PAYPAL_WEBHOOK_ID", "") != "" {
		client := billing.NewPayPalClientFromEnv()
		if client != nil {
			ok, err := client.VerifyWebhookSignatureRemote(ctx, billing.WebhookVerificationInput{
				TransmissionID:   firstHeaderValue(c, "Paypal-Transmission-Id", "PayPal-Transmission-Id"),
				TransmissionTime: firstHeaderValue(c, "Paypal-Transmission-Time", "PayPal-Transmission-Time"),
				TransmissionSig:  firstHeaderValue(c, "Paypal-Transmission-Sig", "PayPal-Transmission-Sig"),
				CertURL:          firstHeaderValue(c, "Paypal-Cert-Url", "PayPal-Cert-Url"),
				AuthAlgo:         firstHeaderValue(c, "Paypal-Auth-Algo", "PayPal-Auth-Algo"),
				RawBody:          rawBody,
			})
			if err != nil {
				log.Printf("paypal remote signature verification failed: %v", err)
				return false
			}
			return ok
		}
	}

	secret := env.GetEnv("PAYPAL_WEBHOOK_SECRET", "")
	signature := strings.TrimSpace(c.Get("X-Webhook-Signature"))
	return billing.VerifyWebhookSignature(rawBody, signature, secret)
}
