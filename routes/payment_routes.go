package routes

import (
	"github.com/anjiri1684/course_market/handlers"
	"github.com/anjiri1684/course_market/middleware"
	"github.com/gofiber/fiber/v2"
)

func PaymentRoutes(app *fiber.App, h *handlers.Handler) {
	api := app.Group("/api/v1")

	// payouts must be registered before the generic provider webhook
	api.Post("/webhooks/paypal/payouts", h.HandlePayoutWebhook)
	api.Post("/webhooks/:provider", h.HandlePaymentWebhook)

	pay := api.Group("/payments", middleware.Protected(h.JWTSecret))
	pay.Post("/:provider/checkout", h.CreateCheckout)
	pay.Post("/:provider/capture", h.CapturePayment)
}
