package routes

import (
	"github.com/gofiber/fiber/v2"

	"Bootcamp/internal/middleware"
)

func SetupPaymentRoutes(app *fiber.App, h Handlers) {
	// Gateway callbacks carry a signature instead of a user token
	webhooks := app.Group("/api/webhooks")
	webhooks.Post("/paystack", h.Payments.PaystackWebhook)

	payment := app.Group("/api/payment", middleware.Protected(h.JWTSecret))
	payment.Post("/initialize", h.Payments.InitializePayment)
	payment.Post("/verify", h.Payments.VerifyPayment)
	payment.Get("/verify/:reference", h.Payments.VerifyByReference)

	applications := app.Group("/api/applications", middleware.Protected(h.JWTSecret))
	applications.Post("/:id/reconcile", h.Reconcile.ReconcileOwnApplication)
}
