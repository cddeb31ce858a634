package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/docquery/docquery/app/models"
	"github.com/docquery/docquery/app/repository"
	"github.com/docquery/docquery/internal/pkg/database"
	"github.com/docquery/docquery/internal/pkg/statistics"
)

var adminRepos *repository.Repositories

// InitializeAdminController wires the repositories used by the admin API.
func InitializeAdminController() {
	adminRepos = repository.GetGlobalFactory().GetRepositories()
}

// HandleAdminDashboard returns the cached platform counters.
func HandleAdminDashboard(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"statistics": statistics.GetStatisticsData()})
}

// HandleAdminUsers lists users with their subscriptions. ?q= switches to a
// name/email search without subscription join.
func HandleAdminUsers(c *fiber.Ctx) error {
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		users, err := adminRepos.User.Search(q)
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "user search failed")
		}
		return c.JSON(fiber.Map{"users": users})
	}

	offset, limit := getPagination(c)
	users, err := adminRepos.User.GetWithSubscriptions(offset, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to list users")
	}
	total, err := adminRepos.User.Count()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to count users")
	}
	return c.JSON(fiber.Map{"users": users, "total": total})
}

// HandleAdminRevenue returns the plan distribution and derived MRR.
func HandleAdminRevenue(c *fiber.Ctx) error {
	counts, err := adminRepos.Subscription.CountByPlanAndStatus()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to aggregate subscriptions")
	}
	return c.JSON(fiber.Map{"revenue": statistics.ComputeRevenue(counts)})
}

// HandleAdminGetAssistantConfig returns the active assistant configuration.
func HandleAdminGetAssistantConfig(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"config": models.GetAssistantConfig()})
}

// HandleAdminUpdateAssistantConfig validates, persists and hot-swaps the
// assistant configuration. Running requests finish with the old config.
func HandleAdminUpdateAssistantConfig(c *fiber.Ctx) error {
	var cfg models.AssistantConfig
	if err := c.BodyParser(&cfg); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "malformed JSON body")
	}

	if err := models.SaveAssistantConfig(database.GetDB(), &cfg); err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	}
	return c.JSON(fiber.Map{"config": models.GetAssistantConfig()})
}
