package routes

import (
	"github.com/gofiber/fiber/v2"

	"Bootcamp/internal/middleware"
)

func SetupAdminRoutes(app *fiber.App, h Handlers) {
	admin := app.Group("/api/admin", middleware.Protected(h.JWTSecret), middleware.AdminOnly())

	// Application overview
	admin.Get("/applications", h.Reconcile.ListApplications)

	// Reconciliation
	admin.Post("/reconcile", h.Reconcile.Reconcile)
	admin.Post("/reconcile/sweep", h.Reconcile.Sweep)

	// Membership keys
	admin.Post("/keys/grant", h.Reconcile.GrantKey)
}
