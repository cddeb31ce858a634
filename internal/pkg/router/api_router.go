package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/docquery/docquery/app/controllers"
	"github.com/docquery/docquery/internal/pkg/env"
	"github.com/docquery/docquery/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max: env.GetEnvInt("API_RATE_LIMIT", 60),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "DocQuery API",
		})
	})

	v1 := api.Group("/v1")

	// Auth
	auth := v1.Group("/auth")
	auth.Post("/register", controllers.HandleAuthRegister)
	auth.Post("/login", controllers.HandleAuthLogin)
	auth.Get("/activate", controllers.HandleAuthActivate)
	auth.Post("/logout", middleware.RequireAuth, controllers.HandleAuthLogout)
	auth.Get("/me", middleware.RequireAuth, controllers.HandleAuthMe)

	// Plans and subscription
	v1.Get("/plans", controllers.HandleGetPlans)
	sub := v1.Group("/subscription", middleware.RequireAuth)
	sub.Get("/", controllers.HandleGetSubscription)
	sub.Get("/usage", controllers.HandleGetUsage)
	sub.Post("/usage", controllers.HandleRecordUsage)
	sub.Post("/upgrade", controllers.HandleUpgradeSubscription)
	sub.Post("/cancel", controllers.HandleCancelSubscription)

	// Documents
	docs := v1.Group("/documents", middleware.RequireAuth)
	docs.Post("/", controllers.HandleCreateDocument)
	docs.Get("/", controllers.HandleListDocuments)
	docs.Get("/:uuid", controllers.HandleGetDocument)
	docs.Put("/:uuid", controllers.HandleUpdateDocument)
	docs.Delete("/:uuid", controllers.HandleDeleteDocument)

	// Questions
	questions := v1.Group("/questions", middleware.RequireAuth)
	questions.Post("/", controllers.HandleAskQuestion)
	questions.Get("/", controllers.HandleListQuestions)

	// Admin back office
	admin := v1.Group("/admin", middleware.RequireAdmin)
	admin.Get("/dashboard", controllers.HandleAdminDashboard)
	admin.Get("/users", controllers.HandleAdminUsers)
	admin.Get("/revenue", controllers.HandleAdminRevenue)
	admin.Get("/assistant-config", controllers.HandleAdminGetAssistantConfig)
	admin.Put("/assistant-config", controllers.HandleAdminUpdateAssistantConfig)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
