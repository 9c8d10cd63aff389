package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"lexnexy/config"
	controller "lexnexy/controllers"
	"lexnexy/middleware"
	"lexnexy/routes"
	"lexnexy/utils"
	"lexnexy/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "LEXNEXY: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Error reporting for external collaborator failures
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Structured logger for the fan-out engine and analyzer client
	structuredLogger := logrus.New()
	structuredLogger.SetFormatter(&logrus.JSONFormatter{})

	// Create Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024, // analyzed documents can be large
	})

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Delivery channels and the fan-out engine
	mailer := utils.NewMailer()
	pusher := utils.NewPusher()
	hub := controller.NewNotificationHub(log.New(os.Stdout, "WS: ", log.LstdFlags))
	notifier := utils.NewNotifier(config.DB, structuredLogger, mailer, pusher, hub)

	// Document analysis client
	analyzer := utils.NewAnalyzerClient(structuredLogger)

	// Background sweeps
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deadlineWorker := worker.NewDeadlineWorker(config.DB, notifier, log.New(os.Stdout, "DEADLINE: ", log.LstdFlags))
	go deadlineWorker.Start(ctx)

	retentionWorker := worker.NewRetentionWorker(config.DB, log.New(os.Stdout, "RETENTION: ", log.LstdFlags))
	go retentionWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, notifier, hub, analyzer, mailer)

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
