package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/docquery/docquery/app/controllers"
	"github.com/docquery/docquery/app/models"
	"github.com/docquery/docquery/app/repository"
	"github.com/docquery/docquery/internal/pkg/assistant"
	"github.com/docquery/docquery/internal/pkg/billing"
	"github.com/docquery/docquery/internal/pkg/cache"
	"github.com/docquery/docquery/internal/pkg/database"
	"github.com/docquery/docquery/internal/pkg/env"
	"github.com/docquery/docquery/internal/pkg/jobs"
	"github.com/docquery/docquery/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())

	if err := models.LoadAssistantConfig(database.GetDB()); err != nil {
		log.Printf("failed to load assistant config, using defaults: %v", err)
	}
	controllers.InitializeQuestionController(assistant.NewServiceFromEnv())

	setupBilling()
	startScheduler()

	// Define possible base paths
	basePaths := []string{
		"./",     // Current directory
		"../",    // From a subdirectory
		"../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024, // 10 MiB, documents are text
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			"admin": env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	return app
}

// setupBilling seeds the provider plan mappings and mirrors the plan catalog
// into Stripe. Both are best effort at startup; webhook processing falls
// back to FREE for unmapped plans.
func setupBilling() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	svc := billing.NewServiceFromDB(database.GetDB(), billing.PayPalProviderFromEnv())
	if err := svc.SeedPlanMappings(ctx); err != nil {
		log.Printf("failed to seed billing plan mappings: %v", err)
	}

	if stripeSvc := billing.NewStripeFromEnv(billing.NewRepository(database.GetDB())); stripeSvc != nil {
		if err := stripeSvc.SyncCatalog(ctx); err != nil {
			log.Printf("failed to sync plan catalog to stripe: %v", err)
		}
	}
}

func startScheduler() {
	reset := jobs.NewUsageResetJob(repository.GetGlobalFactory().GetSubscriptionRepository())
	scheduler, err := jobs.NewScheduler(reset)
	if err != nil {
		log.Fatalf("failed to set up job scheduler: %v", err)
	}
	scheduler.Start()
}
