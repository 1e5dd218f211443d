package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"

	"Bootcamp/internal/app"
	"Bootcamp/internal/config"
	"Bootcamp/internal/handlers"
	"Bootcamp/internal/routes"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	}
	cfg := config.Load()

	log.Printf("🔍 Configuration (%s):", cfg.Server.Env)
	log.Printf("   DB_HOST: '%s'", cfg.Database.Host)
	log.Printf("   JWT_SECRET: '%s'", maskPassword(cfg.JWT.Secret))
	log.Printf("   PAYSTACK_SECRET_KEY: '%s'", maskPassword(cfg.Paystack.SecretKey))
	log.Printf("   CHAIN_RPC_URL: '%s'", cfg.Chain.RPCURL)
	log.Printf("   LOCK_MANAGER_PRIVATE_KEY: '%s'", maskPassword(cfg.Chain.PrivateKey))

	if cfg.JWT.Secret == "" {
		log.Fatal("❌ JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal("❌ Failed to start services:", err)
	}
	defer a.Close()
	log.Println("✅ Database connected and migrated successfully")

	a.StartWorkers(ctx)

	// Create Fiber app
	server := fiber.New(fiber.Config{
		AppName:   "Bootcamp Payments API v1.0",
		BodyLimit: cfg.Server.BodyLimit,
	})

	// Middleware
	server.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	server.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Paystack-Signature",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	server.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to the Bootcamp Payments API",
			"status":  "running",
			"version": "1.0",
		})
	})

	routes.SetupRoutes(server, routes.Handlers{
		Payments:      handlers.NewPaymentHandler(a.Router, a.Paystack),
		Reconcile:     handlers.NewReconcileHandler(a.Reconciler, a.Sweeper, a.Store),
		Notifications: handlers.NewNotificationHandler(a.Store),
		Profiles:      handlers.NewProfileHandler(a.Store),
		JWTSecret:     cfg.JWT.Secret,
	})

	go func() {
		<-ctx.Done()
		log.Println("🛑 Shutting down server...")
		if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("⚠️  Shutdown: %v", err)
		}
	}()

	log.Printf("🚀 Bootcamp server starting on http://localhost:%s", cfg.Server.Port)
	if err := server.Listen(":" + cfg.Server.Port); err != nil {
		log.Printf("❌ Server stopped: %v", err)
	}
}

// Helper function to mask sensitive data in logs
func maskPassword(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + "****" + s[len(s)-2:]
}
