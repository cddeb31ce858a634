package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/docquery/docquery/app/models"
	"github.com/docquery/docquery/app/repository"
	"github.com/docquery/docquery/internal/pkg/billing"
	"github.com/docquery/docquery/internal/pkg/database"
	"github.com/docquery/docquery/internal/pkg/plans"
	"github.com/docquery/docquery/internal/pkg/quota"
	"github.com/docquery/docquery/internal/pkg/session"
	"github.com/docquery/docquery/internal/pkg/usercontext"
)

type upgradeRequest struct {
	Plan              string `json:"plan"`
	ExternalBillingID string `json:"external_billing_id"`
}

// HandleGetPlans returns the public plan catalog.
func HandleGetPlans(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"plans": plans.All()})
}

// HandleGetSubscription returns the caller's subscription including the
// provider-side next billing date when available.
func HandleGetSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	svc := billing.NewServiceFromDB(database.GetDB(), billing.PayPalProviderFromEnv())
	sub, err := svc.GetSubscription(c.Context(), userCtx.UserID)
	if err != nil {
		if errors.Is(err, billing.ErrNoSubscription) {
			return jsonError(c, fiber.StatusInternalServerError, "data_integrity", "subscription record missing")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to load subscription")
	}

	resp := fiber.Map{"subscription": sub}
	if next := svc.NextBillingTime(c.Context(), sub); next != nil {
		resp["next_billing_time"] = next
	}
	return c.JSON(resp)
}

// HandleGetUsage reports both usage meters for the caller.
func HandleGetUsage(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	factory := repository.GetGlobalFactory()
	ledger := quota.NewLedger(factory.GetSubscriptionRepository(), factory.GetUsageEventRepository())

	docs, err := ledger.CheckQuota(c.Context(), userCtx.UserID, models.UsageTypeDocument)
	if err != nil {
		return usageError(c, err)
	}
	questions, err := ledger.CheckQuota(c.Context(), userCtx.UserID, models.UsageTypeQuestion)
	if err != nil {
		return usageError(c, err)
	}

	return c.JSON(fiber.Map{
		"documents": docs,
		"questions": questions,
	})
}

type recordUsageRequest struct {
	Type string `json:"type"`
}

// HandleRecordUsage consumes one quota slot of the given type and returns
// the updated counters. Denials are reported with the same status codes the
// document and question endpoints use.
func HandleRecordUsage(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req recordUsageRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "malformed JSON body")
	}
	usageType := strings.ToLower(strings.TrimSpace(req.Type))
	if !models.ValidUsageType(usageType) {
		return jsonError(c, fiber.StatusUnprocessableEntity, "invalid_type", "type must be question or document")
	}

	factory := repository.GetGlobalFactory()
	ledger := quota.NewLedger(factory.GetSubscriptionRepository(), factory.GetUsageEventRepository())
	sub, err := ledger.RecordUsage(c.Context(), userCtx.UserID, usageType)
	if err != nil {
		return quotaError(c, err)
	}

	return c.JSON(fiber.Map{
		"documents_used":      sub.DocumentsUsed,
		"documents_remaining": models.Remaining(sub.DocumentsUsed, sub.DocumentsLimit),
		"questions_used":      sub.QuestionsUsed,
		"questions_remaining": models.Remaining(sub.QuestionsUsed, sub.QuestionsLimit),
	})
}

// HandleUpgradeSubscription moves the caller onto a new plan. The billing
// window restarts and already consumed usage carries over unchanged.
func HandleUpgradeSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req upgradeRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "malformed JSON body")
	}

	svc := billing.NewServiceFromDB(database.GetDB(), billing.PayPalProviderFromEnv())
	sub, err := svc.Upgrade(c.Context(), userCtx.UserID, req.Plan, strings.TrimSpace(req.ExternalBillingID))
	if err != nil {
		if errors.Is(err, billing.ErrInvalidPlan) {
			return jsonError(c, fiber.StatusUnprocessableEntity, "invalid_plan", "unknown subscription plan")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to change plan")
	}

	_ = session.SetSessionValue(c, usercontext.KeyUserPlan, sub.Plan)
	return c.JSON(fiber.Map{"subscription": sub})
}

// HandleCancelSubscription cancels the provider subscription first and only
// then downgrades locally, so a provider outage leaves the account unchanged.
func HandleCancelSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	svc := billing.NewServiceFromDB(database.GetDB(), billing.PayPalProviderFromEnv())
	sub, err := svc.Cancel(c.Context(), userCtx.UserID)
	if err != nil {
		if errors.Is(err, billing.ErrProviderUnavailable) {
			return jsonError(c, fiber.StatusBadGateway, "provider_unavailable", "payment provider did not accept the cancellation, nothing was changed")
		}
		if errors.Is(err, billing.ErrNoSubscription) {
			return jsonError(c, fiber.StatusInternalServerError, "data_integrity", "subscription record missing")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to cancel subscription")
	}

	_ = session.SetSessionValue(c, usercontext.KeyUserPlan, sub.Plan)
	return c.JSON(fiber.Map{"subscription": sub})
}

func usageError(c *fiber.Ctx, err error) error {
	if errors.Is(err, quota.ErrNoSubscription) {
		return jsonError(c, fiber.StatusInternalServerError, "data_integrity", "subscription record missing")
	}
	return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to load usage")
}
