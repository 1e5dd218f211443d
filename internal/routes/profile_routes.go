package routes

import (
	"github.com/gofiber/fiber/v2"

	"Bootcamp/internal/middleware"
)

func SetupProfileRoutes(app *fiber.App, h Handlers) {
	profile := app.Group("/api/profile", middleware.Protected(h.JWTSecret))

	profile.Get("/", h.Profiles.GetUserProfile)
	profile.Put("/", h.Profiles.UpdateUserProfile)
}
