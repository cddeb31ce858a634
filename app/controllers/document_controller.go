package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docquery/docquery/app/models"
	"github.com/docquery/docquery/app/repository"
	"github.com/docquery/docquery/internal/pkg/quota"
	"github.com/docquery/docquery/internal/pkg/usercontext"
)

type documentRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	IsPublic bool   `json:"is_public"`
}

// HandleCreateDocument stores a new document. The quota slot is consumed by
// an atomic increment before the row is written; a denied increment means no
// state changed at all.
func HandleCreateDocument(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req documentRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "malformed JSON body")
	}

	doc := &models.Document{
		UUID:     uuid.New().String(),
		UserID:   userCtx.UserID,
		Title:    strings.TrimSpace(req.Title),
		Content:  req.Content,
		IsPublic: req.IsPublic,
	}
	if err := doc.Validate(); err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	}

	factory := repository.GetGlobalFactory()
	ledger := quota.NewLedger(factory.GetSubscriptionRepository(), factory.GetUsageEventRepository())

	sub, err := ledger.RecordUsage(c.Context(), userCtx.UserID, models.UsageTypeDocument)
	if err != nil {
		return quotaError(c, err)
	}

	if err := factory.GetDocumentRepository().Create(doc); err != nil {
		// The quota slot stays consumed; counters only move forward.
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to store document")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"document":            doc,
		"documents_remaining": models.Remaining(sub.DocumentsUsed, sub.DocumentsLimit),
	})
}

// HandleListDocuments returns the caller's documents, newest first.
func HandleListDocuments(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	offset, limit := getPagination(c)

	docs, err := repository.GetGlobalFactory().GetDocumentRepository().ListByUserID(userCtx.UserID, offset, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to list documents")
	}
	return c.JSON(fiber.Map{"documents": docs})
}

// HandleGetDocument returns one document. Owners see their own documents;
// anyone logged in sees public ones.
func HandleGetDocument(c *fiber.Ctx) error {
	doc, err := loadVisibleDocument(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"document": doc})
}

// HandleUpdateDocument edits title, content or visibility. Owner only;
// editing an existing document consumes no quota.
func HandleUpdateDocument(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	doc, err := findOwnedDocument(c, userCtx.UserID)
	if err != nil {
		return err
	}

	var req documentRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "malformed JSON body")
	}

	if title := strings.TrimSpace(req.Title); title != "" {
		doc.Title = title
	}
	if req.Content != "" {
		doc.Content = req.Content
	}
	doc.IsPublic = req.IsPublic
	if err := doc.Validate(); err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	}

	if err := repository.GetGlobalFactory().GetDocumentRepository().Update(doc); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to update document")
	}
	return c.JSON(fiber.Map{"document": doc})
}

// HandleDeleteDocument soft-deletes a document. The consumed quota slot is
// not refunded; counters only reset at the billing period boundary.
func HandleDeleteDocument(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	doc, err := findOwnedDocument(c, userCtx.UserID)
	if err != nil {
		return err
	}

	if err := repository.GetGlobalFactory().GetDocumentRepository().Delete(doc.ID); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to delete document")
	}
	return c.JSON(fiber.Map{"ok": true})
}

func findOwnedDocument(c *fiber.Ctx, userID uint) (*models.Document, error) {
	docUUID := strings.TrimSpace(c.Params("uuid"))
	if docUUID == "" {
		return nil, jsonError(c, fiber.StatusBadRequest, "invalid_request", "document uuid is required")
	}

	doc, err := repository.GetGlobalFactory().GetDocumentRepository().GetByUUID(docUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, jsonError(c, fiber.StatusNotFound, "not_found", "document not found")
		}
		return nil, jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to load document")
	}
	if doc.UserID != userID {
		// Same response as not-found so ownership cannot be probed.
		return nil, jsonError(c, fiber.StatusNotFound, "not_found", "document not found")
	}
	return doc, nil
}

func loadVisibleDocument(c *fiber.Ctx) (*models.Document, error) {
	userCtx := usercontext.GetUserContext(c)
	docUUID := strings.TrimSpace(c.Params("uuid"))
	if docUUID == "" {
		return nil, jsonError(c, fiber.StatusBadRequest, "invalid_request", "document uuid is required")
	}

	doc, err := repository.GetGlobalFactory().GetDocumentRepository().GetByUUID(docUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, jsonError(c, fiber.StatusNotFound, "not_found", "document not found")
		}
		return nil, jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to load document")
	}
	if doc.UserID != userCtx.UserID && !doc.IsPublic {
		return nil, jsonError(c, fiber.StatusNotFound, "not_found", "document not found")
	}
	return doc, nil
}

func quotaError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, quota.ErrQuotaExceeded):
		return jsonError(c, fiber.StatusPaymentRequired, "quota_exceeded", "plan limit reached, upgrade to continue")
	case errors.Is(err, quota.ErrSubscriptionInactive):
		return jsonError(c, fiber.StatusForbidden, "subscription_inactive", "subscription is expired or inactive")
	case errors.Is(err, quota.ErrNoSubscription):
		return jsonError(c, fiber.StatusInternalServerError, "data_integrity", "subscription record missing")
	default:
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to record usage")
	}
}
