package routes

import (
	"github.com/gofiber/fiber/v2"

	"Bootcamp/internal/middleware"
)

func SetupNotificationRoutes(app *fiber.App, h Handlers) {
	notifications := app.Group("/api/notifications", middleware.Protected(h.JWTSecret))

	notifications.Get("/", h.Notifications.GetNotifications)
	notifications.Put("/read-all", h.Notifications.MarkAllAsRead)
	notifications.Put("/:id/read", h.Notifications.MarkAsRead)
}
