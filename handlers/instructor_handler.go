package handlers

import (
	"strconv"

	"github.com/anjiri1684/course_market/services"
	"github.com/gofiber/fiber/v2"
)

func (h *Handler) GetWallet(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	balance, err := h.Wallet.GetBalance(c.UserContext(), who.UserID)
	if err != nil {
		return err
	}
	return c.JSON(balance)
}

func (h *Handler) ListWalletTransactions(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	res, err := h.Wallet.ListTransactions(c.UserContext(), who.UserID, page, limit)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (h *Handler) RequestWithdrawal(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	var in services.CreateWithdrawalInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	w, err := h.Withdrawals.Create(c.UserContext(), who, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(w)
}

func (h *Handler) CancelWithdrawal(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	w, err := h.Withdrawals.Cancel(c.UserContext(), who, id)
	if err != nil {
		return err
	}
	return c.JSON(w)
}

func (h *Handler) GetMyWithdrawals(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	requests, err := h.Withdrawals.ListMine(c.UserContext(), who)
	if err != nil {
		return err
	}
	return c.JSON(requests)
}

func (h *Handler) SetPayoutAccount(c *fiber.Ctx) error {
	who, err := caller(c)
	if err != nil {
		return err
	}
	var in services.PayoutAccountInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	account, err := h.Withdrawals.SetPayoutAccount(c.UserContext(), who, in)
	if err != nil {
		return err
	}
	return c.JSON(account)
}
