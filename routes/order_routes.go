package routes

import (
	"github.com/anjiri1684/course_market/handlers"
	"github.com/anjiri1684/course_market/middleware"
	"github.com/gofiber/fiber/v2"
)

func OrderRoutes(app *fiber.App, h *handlers.Handler) {
	api := app.Group("/api/v1")

	orders := api.Group("/orders", middleware.Protected(h.JWTSecret))
	orders.Post("", h.CreateOrder)
	orders.Get("/:orderId", h.GetOrder)
	orders.Post("/:orderId/cancel", h.CancelOrder)

	api.Post("/vouchers/preview", middleware.Protected(h.JWTSecret), h.PreviewVoucher)
}
