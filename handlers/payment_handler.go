package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/anjiri1684/course_market/apperrors"
	"github.com/anjiri1684/course_market/payments"
	"github.com/anjiri1684/course_market/services"
	"github.com/gofiber/fiber/v2"
)

func (h *Handler) CreateCheckout(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	var in services.CheckoutInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	res, err := h.Payments.CreateCheckout(c.UserContext(), who, c.Params("provider"), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

type captureRequest struct {
	TransactionID string `json:"transaction_id"`
}

func (h *Handler) CapturePayment(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	var in captureRequest
	if err := parseBody(c, &in); err != nil {
		return err
	}
	res, err := h.Payments.Capture(c.UserContext(), who, c.Params("provider"), in.TransactionID)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// HandlePaymentWebhook answers 200 for processed and ignored events so the
// provider stops redelivering, and 500 for failures it should retry.
func (h *Handler) HandlePaymentWebhook(c *fiber.Ctx) error {
	provider := c.Params("provider")
	res, err := h.Payments.HandleWebhook(c.UserContext(), provider, c.Body(), requestHeaders(c))
	if err != nil {
		return webhookError(c, provider, err)
	}
	return c.JSON(fiber.Map{"status": "success", "already_processed": res.AlreadyProcessed, "order_paid": res.OrderPaid})
}

func (h *Handler) HandlePayoutWebhook(c *fiber.Ctx) error {
	w, err := h.Withdrawals.HandlePayoutWebhook(c.UserContext(), c.Body(), requestHeaders(c))
	if err != nil {
		return webhookError(c, "paypal payouts", err)
	}
	return c.JSON(fiber.Map{"status": "success", "withdrawal_id": w.ID, "withdrawal_status": w.Status})
}

func webhookError(c *fiber.Ctx, source string, err error) error {
	if errors.Is(err, payments.ErrEventIgnored) {
		return c.JSON(fiber.Map{"status": "ignored"})
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindInvalidSignature, apperrors.KindValidation, apperrors.KindNotFound:
		log.Printf("⚠️ Rejected %s webhook: %v", source, err)
		return ErrorHandler(c, err)
	}
	log.Printf("🔥 Failed to process %s webhook: %v", source, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"status":  "error",
		"code":    fiber.StatusInternalServerError,
		"message": "Webhook processing failed",
	})
}

func requestHeaders(c *fiber.Ctx) http.Header {
	headers := make(http.Header)
	for k, values := range c.GetReqHeaders() {
		for _, v := range values {
			headers.Add(k, v)
		}
	}
	return headers
}
