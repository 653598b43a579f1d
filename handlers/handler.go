package handlers

import (
	"errors"
	"log"

	"github.com/anjiri1684/course_market/apperrors"
	"github.com/anjiri1684/course_market/middleware"
	"github.com/anjiri1684/course_market/services"
	"github.com/anjiri1684/course_market/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handler struct {
	Orders      *services.OrderService
	Payments    *services.PaymentService
	Vouchers    *services.VoucherService
	Wallet      *services.WalletService
	Withdrawals *services.WithdrawalService
	Rates       *services.ExchangeRateService
	Hub         *websocket.Hub
	JWTSecret   string
}

// ErrorHandler renders service errors as {"status":"error","code":..,"message":..}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := apperrors.HTTPStatus(err)
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	message := err.Error()
	if code == fiber.StatusInternalServerError {
		log.Printf("[ERROR] %v | Path: %s | Method: %s", err, c.Path(), c.Method())
		message = "Internal server error"
	}
	return c.Status(code).JSON(fiber.Map{
		"status":  "error",
		"code":    code,
		"message": message,
	})
}

func caller(c *fiber.Ctx) (services.Caller, error) {
	who, err := middleware.CallerFrom(c)
	if err != nil {
		return services.Caller{}, fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired JWT")
	}
	return who, nil
}

func paramID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperrors.Validation("invalid %s", name)
	}
	return id, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.Validation("cannot parse JSON")
	}
	return nil
}
