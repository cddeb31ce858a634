package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/docquery/docquery/app/repository"
	"github.com/docquery/docquery/internal/pkg/jobs"
	"github.com/docquery/docquery/internal/pkg/statistics"
)

// HandleCronUsageReset runs one usage-reset sweep on demand. The in-process
// scheduler runs the same job; this endpoint exists for external cron
// runners and operational re-runs. The sweep is idempotent, an overlapping
// run resets nothing twice.
func HandleCronUsageReset(c *fiber.Ctx) error {
	job := jobs.NewUsageResetJob(repository.GetGlobalFactory().GetSubscriptionRepository())

	result, err := job.Run(c.Context())
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "usage reset sweep failed")
	}

	// The sweep changes counters across many accounts; force the next
	// dashboard read to recount instead of serving stale cache.
	statistics.ResetCacheUpdateTimer()

	return c.JSON(fiber.Map{"ok": true, "result": result})
}
