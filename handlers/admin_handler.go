package handlers

import (
	"github.com/anjiri1684/course_market/services"
	"github.com/gofiber/fiber/v2"
)

func (h *Handler) ListWithdrawalRequests(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	requests, err := h.Withdrawals.ListPending(c.UserContext(), who, c.Query("status"))
	if err != nil {
		return err
	}
	return c.JSON(requests)
}

func (h *Handler) ProcessWithdrawalRequest(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in services.ProcessWithdrawalInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	w, err := h.Withdrawals.Process(c.UserContext(), who, id, in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Withdrawal request processed", "request": w})
}
