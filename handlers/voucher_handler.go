package handlers

import (
	"github.com/anjiri1684/course_market/models"
	"github.com/anjiri1684/course_market/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type voucherPreviewRequest struct {
	Code      string      `json:"code"`
	CourseIDs []uuid.UUID `json:"course_ids"`
}

func (h *Handler) PreviewVoucher(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	var in voucherPreviewRequest
	if err := parseBody(c, &in); err != nil {
		return err
	}
	res, err := h.Vouchers.PreviewForCourses(c.UserContext(), who, in.Code, in.CourseIDs)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (h *Handler) CreateVoucher(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	var in services.CreateVoucherInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	voucher, err := h.Vouchers.CreateVoucher(c.UserContext(), who, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(voucher)
}

func (h *Handler) SetVoucherStatus(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "voucherId")
	if err != nil {
		return err
	}
	var in struct {
		Status models.VoucherStatus `json:"status"`
	}
	if err := parseBody(c, &in); err != nil {
		return err
	}
	voucher, err := h.Vouchers.SetVoucherStatus(c.UserContext(), who, id, in.Status)
	if err != nil {
		return err
	}
	return c.JSON(voucher)
}
