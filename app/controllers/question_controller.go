package controllers

import (
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/docquery/docquery/app/models"
	"github.com/docquery/docquery/app/repository"
	"github.com/docquery/docquery/internal/pkg/assistant"
	"github.com/docquery/docquery/internal/pkg/quota"
	"github.com/docquery/docquery/internal/pkg/usercontext"
)

var assistantService *assistant.Service

// InitializeQuestionController wires the assistant used for answering.
func InitializeQuestionController(svc *assistant.Service) {
	assistantService = svc
}

type askRequest struct {
	DocumentUUID string `json:"document_uuid"`
	Question     string `json:"question"`
}

// HandleAskQuestion answers a question about one document. The question slot
// is charged at admission; an assistant failure afterwards does not refund
// it, the counter only ever moves forward within a billing period.
func HandleAskQuestion(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req askRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "malformed JSON body")
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", "question is required")
	}

	factory := repository.GetGlobalFactory()
	doc, err := factory.GetDocumentRepository().GetByUUID(strings.TrimSpace(req.DocumentUUID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "document not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to load document")
	}
	if doc.UserID != userCtx.UserID && !doc.IsPublic {
		return jsonError(c, fiber.StatusNotFound, "not_found", "document not found")
	}

	// A disabled assistant is rejected before any quota is charged.
	if assistantService == nil || !models.GetAssistantConfig().Enabled {
		return jsonError(c, fiber.StatusServiceUnavailable, "assistant_disabled", "the assistant is currently disabled")
	}

	ledger := quota.NewLedger(factory.GetSubscriptionRepository(), factory.GetUsageEventRepository())
	sub, err := ledger.RecordUsage(c.Context(), userCtx.UserID, models.UsageTypeQuestion)
	if err != nil {
		return quotaError(c, err)
	}

	answer, err := assistantService.Answer(c.Context(), doc, question)
	if err != nil {
		if errors.Is(err, assistant.ErrDisabled) {
			return jsonError(c, fiber.StatusServiceUnavailable, "assistant_disabled", "the assistant is currently disabled")
		}
		log.Printf("assistant failed for user %d on document %s: %v", userCtx.UserID, doc.UUID, err)
		return jsonError(c, fiber.StatusBadGateway, "assistant_unavailable", "the assistant could not answer, the question slot stays consumed")
	}

	q := &models.Question{
		UserID:     userCtx.UserID,
		DocumentID: doc.ID,
		Content:    question,
		Answer:     answer,
		Model:      models.GetAssistantConfig().Model,
	}
	if err := factory.GetQuestionRepository().Create(q); err != nil {
		log.Printf("failed to persist question for user %d: %v", userCtx.UserID, err)
	}

	return c.JSON(fiber.Map{
		"question":            q,
		"questions_remaining": models.Remaining(sub.QuestionsUsed, sub.QuestionsLimit),
	})
}

// HandleListQuestions returns the caller's question history, optionally
// filtered to one document via ?document_id=.
func HandleListQuestions(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	offset, limit := getPagination(c)
	repo := repository.GetGlobalFactory().GetQuestionRepository()

	if raw := c.Query("document_id"); raw != "" {
		docID, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return jsonError(c, fiber.StatusBadRequest, "invalid_request", "document_id must be numeric")
		}
		questions, err := repo.ListByDocumentID(userCtx.UserID, uint(docID), offset, limit)
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to list questions")
		}
		return c.JSON(fiber.Map{"questions": questions})
	}

	questions, err := repo.ListByUserID(userCtx.UserID, offset, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to list questions")
	}
	return c.JSON(fiber.Map{"questions": questions})
}
