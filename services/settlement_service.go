package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/anjiri1684/course_market/apperrors"
	"github.com/anjiri1684/course_market/models"
	"github.com/anjiri1684/course_market/money"
	"github.com/anjiri1684/course_market/notifications"
	"github.com/anjiri1684/course_market/payments"
	"github.com/anjiri1684/course_market/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EnrollmentSink interface {
	Enroll(tx *gorm.DB, order *models.Order) error
}

type InvoiceSink interface {
	Issue(tx *gorm.DB, order *models.Order) (*models.Invoice, error)
	Deliver(ctx context.Context, invoice *models.Invoice)
}

type NotificationSink interface {
	Notify(ctx context.Context, n notifications.Notification)
}

type SettlementResult struct {
	Payment          *models.Payment `json:"payment"`
	Order            *models.Order   `json:"order,omitempty"`
	OrderPaid        bool            `json:"order_paid"`
	AlreadyProcessed bool            `json:"already_processed"`
}

type SettlementService struct {
	db          *gorm.DB
	locker      utils.Locker
	orders      *OrderService
	vouchers    *VoucherService
	wallet      *WalletService
	enrollments EnrollmentSink
	invoices    InvoiceSink
	notifier    NotificationSink
	background  func(func())
	now         func() time.Time
}

func NewSettlementService(db *gorm.DB, locker utils.Locker, orders *OrderService, vouchers *VoucherService,
	wallet *WalletService, enrollments EnrollmentSink, invoices InvoiceSink, notifier NotificationSink) *SettlementService {
	return &SettlementService{
		db:          db,
		locker:      locker,
		orders:      orders,
		vouchers:    vouchers,
		wallet:      wallet,
		enrollments: enrollments,
		invoices:    invoices,
		notifier:    notifier,
		background:  runInBackground,
		now:         time.Now,
	}
}

// OnPaymentOutcome applies a verified provider outcome. Replays of an outcome
// already applied are no-ops, so providers may redeliver freely.
func (s *SettlementService) OnPaymentOutcome(ctx context.Context, event *payments.NormalizedEvent) (*SettlementResult, error) {
	payment, err := s.findPayment(s.db.WithContext(ctx), event)
	if err != nil {
		return nil, err
	}
	if payment.Status == models.PaymentStatusSuccess {
		return &SettlementResult{Payment: payment, AlreadyProcessed: true}, nil
	}

	unlock, err := s.locker.Lock(ctx, orderLockKey(payment.OrderID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	// From here on the unit of work runs to completion even if the request goes away.
	ctx = context.WithoutCancel(ctx)

	result := &SettlementResult{}
	var invoice *models.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.findPayment(tx.Clauses(clause.Locking{Strength: "UPDATE"}), event)
		if err != nil {
			return err
		}
		result.Payment = payment
		if payment.Status == models.PaymentStatusSuccess {
			result.AlreadyProcessed = true
			return nil
		}

		switch event.Outcome {
		case payments.OutcomePending:
			if payment.Status != models.PaymentStatusInitiated {
				result.AlreadyProcessed = true
				return nil
			}
			return s.setPaymentStatus(tx, payment, models.PaymentStatusPending, event.RawPayload)
		case payments.OutcomeFailed:
			if payment.Status == models.PaymentStatusFailed {
				result.AlreadyProcessed = true
				return nil
			}
			log.Printf("⚠️ Payment %s for order %s failed at %s", payment.ID, payment.OrderID, payment.Provider)
			return s.setPaymentStatus(tx, payment, models.PaymentStatusFailed, event.RawPayload)
		case payments.OutcomeSuccess:
		default:
			return apperrors.Validation("unknown payment outcome %q", event.Outcome)
		}

		if err := s.setPaymentStatus(tx, payment, models.PaymentStatusSuccess, event.RawPayload); err != nil {
			return err
		}

		order, err := s.orders.loadForUpdate(tx, payment.OrderID)
		if err != nil {
			return err
		}
		result.Order = order
		if order.Status != models.OrderStatusPending {
			log.Printf("🔥 Payment %s succeeded for order %s in status %s; no fulfilment, refund %d %s at %s",
				payment.ID, order.ID, order.Status, payment.Amount, payment.Currency, payment.Provider)
			return nil
		}

		if err := s.orders.UpdateStatus(tx, order, models.OrderStatusPaid); err != nil {
			return err
		}
		if err := s.vouchers.Commit(tx, order); err != nil {
			return fmt.Errorf("commit voucher: %w", err)
		}
		for i := range order.Items {
			item := &order.Items[i]
			if item.EntityType != models.EntityCourse {
				continue
			}
			if _, err := s.wallet.CreditSale(tx, order, item); err != nil {
				return fmt.Errorf("credit sale %s: %w", item.ID, err)
			}
		}
		if err := s.enrollments.Enroll(tx, order); err != nil {
			return fmt.Errorf("enroll: %w", err)
		}
		invoice, err = s.invoices.Issue(tx, order)
		if err != nil {
			return fmt.Errorf("issue invoice: %w", err)
		}
		result.OrderPaid = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.OrderPaid {
		log.Printf("✅ Order %s paid through %s", result.Order.ID, result.Payment.Provider)
		order := result.Order
		s.background(func() {
			if s.invoices != nil && invoice != nil {
				s.invoices.Deliver(ctx, invoice)
			}
			if s.notifier != nil {
				s.notifier.Notify(ctx, notifications.Notification{
					UserID:  order.UserID,
					Kind:    notifications.KindOrderPaid,
					Title:   "Payment received",
					Message: fmt.Sprintf("Your payment of %s was received. Your courses are ready.", money.Format(order.TotalAmount, order.Currency)),
					Data:    map[string]any{"order_id": order.ID, "invoice_number": invoiceNumber(invoice)},
				})
			}
		})
	}
	return result, nil
}

func invoiceNumber(inv *models.Invoice) string {
	if inv == nil {
		return ""
	}
	return inv.Number
}

func (s *SettlementService) findPayment(db *gorm.DB, event *payments.NormalizedEvent) (*models.Payment, error) {
	var payment models.Payment
	err := db.Where("provider = ? AND provider_txn_id = ?", event.Provider, event.ProviderTxnID).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("no %s payment for transaction %s", event.Provider, event.ProviderTxnID)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// setPaymentStatus never moves a payment out of SUCCESS.
func (s *SettlementService) setPaymentStatus(tx *gorm.DB, payment *models.Payment, to models.PaymentStatus, raw []byte) error {
	updates := map[string]any{"status": to}
	if len(raw) > 0 {
		updates["raw_payload"] = datatypes.JSON(raw)
	}
	var confirmedAt time.Time
	if to == models.PaymentStatusSuccess {
		confirmedAt = s.now()
		updates["confirmed_at"] = confirmedAt
	}

	res := tx.Model(&models.Payment{}).
		Where("id = ? AND status = ?", payment.ID, payment.Status).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.StateConflict("payment %s changed concurrently", payment.ID)
	}

	payment.Status = to
	if to == models.PaymentStatusSuccess {
		payment.ConfirmedAt = &confirmedAt
	}
	return nil
}
