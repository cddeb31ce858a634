package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/docquery/docquery/app/controllers"
	"github.com/docquery/docquery/internal/pkg/constants"
	"github.com/docquery/docquery/internal/pkg/middleware"
	"github.com/docquery/docquery/internal/pkg/session"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	// Initialize admin controller with repositories
	controllers.InitializeAdminController()

	// Billing provider webhooks (signature-verified in the controller, no
	// session required)
	app.Post(constants.PayPalWebhookRoute, controllers.HandlePayPalWebhook)

	// Internal job trigger for external cron runners
	app.Post(constants.CronResetRoute, middleware.RequireCronSecret, controllers.HandleCronUsageReset)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
