package handlers

import (
	"github.com/gofiber/fiber/v2"
)

func (h *Handler) GetRates(c *fiber.Ctx) error {
	if h.Rates == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Exchange rates are not configured")
	}
	rates, err := h.Rates.Rates(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"base": "USD", "rates": rates})
}
