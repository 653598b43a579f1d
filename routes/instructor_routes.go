package routes

import (
	"github.com/anjiri1684/course_market/handlers"
	"github.com/anjiri1684/course_market/middleware"
	"github.com/gofiber/fiber/v2"
)

func InstructorRoutes(app *fiber.App, h *handlers.Handler) {
	api := app.Group("/api/v1")

	instructor := api.Group("/instructor", middleware.Protected(h.JWTSecret), middleware.InstructorRequired())
	instructor.Post("/vouchers", h.CreateVoucher)
	instructor.Patch("/vouchers/:voucherId/status", h.SetVoucherStatus)

	instructor.Get("/wallet", h.GetWallet)
	instructor.Get("/wallet/transactions", h.ListWalletTransactions)
	instructor.Put("/payout-account", h.SetPayoutAccount)

	instructor.Post("/withdrawals", h.RequestWithdrawal)
	instructor.Get("/withdrawals", h.GetMyWithdrawals)
	instructor.Post("/withdrawals/:id/cancel", h.CancelWithdrawal)
}
