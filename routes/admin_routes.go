package routes

import (
	"github.com/anjiri1684/course_market/handlers"
	"github.com/anjiri1684/course_market/middleware"
	"github.com/gofiber/fiber/v2"
)

func AdminRoutes(app *fiber.App, h *handlers.Handler) {
	api := app.Group("/api/v1")

	admin := api.Group("/admin", middleware.Protected(h.JWTSecret), middleware.AdminRequired())
	admin.Get("/withdrawals", h.ListWithdrawalRequests)
	admin.Post("/withdrawals/:id/process", h.ProcessWithdrawalRequest)
}
