package handlers

import (
	"github.com/anjiri1684/course_market/services"
	"github.com/gofiber/fiber/v2"
)

func (h *Handler) CreateOrder(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	var in services.CreateOrderInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	order, err := h.Orders.CreateOrder(c.UserContext(), who, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}

func (h *Handler) GetOrder(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "orderId")
	if err != nil {
		return err
	}
	order, err := h.Orders.GetOrder(c.UserContext(), who, id)
	if err != nil {
		return err
	}
	return c.JSON(order)
}

func (h *Handler) CancelOrder(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "orderId")
	if err != nil {
		return err
	}
	order, err := h.Orders.CancelOrder(c.UserContext(), who, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Order cancelled", "order": order})
}
