package routes

import (
	"github.com/gofiber/fiber/v2"

	"Bootcamp/internal/handlers"
)

// Handlers bundles everything the API routes dispatch to.
type Handlers struct {
	Payments      *handlers.PaymentHandler
	Reconcile     *handlers.ReconcileHandler
	Notifications *handlers.NotificationHandler
	Profiles      *handlers.ProfileHandler
	JWTSecret     string
}

func SetupRoutes(app *fiber.App, h Handlers) {
	api := app.Group("/api")

	// Health check
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Bootcamp payments API v1.0",
			"status":  "running",
		})
	})

	SetupPaymentRoutes(app, h)
	SetupNotificationRoutes(app, h)
	SetupProfileRoutes(app, h)
	SetupAdminRoutes(app, h)
}
