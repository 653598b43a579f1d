package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/anjiri1684/course_market/apperrors"
	"github.com/anjiri1684/course_market/models"
	"github.com/anjiri1684/course_market/payments"
	"github.com/anjiri1684/course_market/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CheckoutInput struct {
	OrderID       uuid.UUID `json:"order_id"`
	CustomerEmail string    `json:"customer_email" validate:"omitempty,email"`
	PhoneNumber   string    `json:"phone_number"`
}

type CheckoutResult struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	CheckoutID  string    `json:"checkout_id"`
	RedirectURL string    `json:"redirect_url,omitempty"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
}

type PaymentService struct {
	db         *gorm.DB
	providers  payments.Registry
	rates      *ExchangeRateService
	settlement *SettlementService
	locker     utils.Locker
}

func NewPaymentService(db *gorm.DB, providers payments.Registry, rates *ExchangeRateService, settlement *SettlementService, locker utils.Locker) *PaymentService {
	return &PaymentService{db: db, providers: providers, rates: rates, settlement: settlement, locker: locker}
}

// CreateCheckout opens a provider checkout for a PENDING order and records an
// INITIATED payment under the provider's checkout id.
func (s *PaymentService) CreateCheckout(ctx context.Context, caller Caller, providerName string, in CheckoutInput) (*CheckoutResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.OrderID == uuid.Nil {
		return nil, apperrors.Validation("order_id is required")
	}
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}
	order, live, err := s.checkoutableOrder(s.db.WithContext(ctx), in.OrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != caller.UserID {
		return nil, apperrors.Forbidden("order belongs to another user")
	}
	if live != nil {
		if live.Provider == provider.Name() && live.RedirectURL != "" {
			charged, currency := live.ChargedAmount()
			return &CheckoutResult{
				PaymentID:   live.ID,
				CheckoutID:  live.ProviderTxnID,
				RedirectURL: live.RedirectURL,
				Amount:      charged,
				Currency:    currency,
			}, nil
		}
		return nil, liveCheckoutConflict(order.ID, live)
	}

	charge, chargeCurrency := order.TotalAmount, provider.SettlementCurrency(order.Currency)
	var rate decimal.NullDecimal
	if chargeCurrency != order.Currency {
		if s.rates == nil {
			return nil, apperrors.Provider(nil, "no exchange rate source for %s to %s", order.Currency, chargeCurrency)
		}
		converted, r, err := s.rates.Convert(ctx, order.TotalAmount, order.Currency, chargeCurrency)
		if err != nil {
			return nil, err
		}
		if converted <= 0 {
			return nil, apperrors.Validation("order total is too small to charge in %s", chargeCurrency)
		}
		charge, rate = converted, decimal.NullDecimal{Decimal: r, Valid: true}
	}

	email := in.CustomerEmail
	if email == "" {
		var buyer models.User
		if err := s.db.WithContext(ctx).Select("email").First(&buyer, "id = ?", order.UserID).Error; err == nil {
			email = buyer.Email
		}
	}

	session, err := provider.CreateCheckout(ctx, payments.CheckoutRequest{
		OrderID:       order.ID,
		Amount:        charge,
		Currency:      chargeCurrency,
		Description:   orderDescription(order),
		CustomerEmail: email,
		PhoneNumber:   in.PhoneNumber,
	})
	if err != nil {
		return nil, err
	}

	payment := models.Payment{
		OrderID:       order.ID,
		Provider:      provider.Name(),
		ProviderTxnID: session.ProviderCheckoutID,
		Amount:        order.TotalAmount,
		Currency:      order.Currency,
		ExchangeRate:  rate,
		Status:        models.PaymentStatusInitiated,
		RedirectURL:   session.RedirectURL,
	}
	if len(session.RawResponse) > 0 {
		payment.RawPayload = datatypes.JSON(session.RawResponse)
	}
	if rate.Valid {
		payment.ConvertedAmount, payment.ConvertedCurrency = &charge, &chargeCurrency
	}

	unlock, err := s.locker.Lock(ctx, orderLockKey(order.ID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, live, err := s.checkoutableOrder(tx, order.ID)
		if err != nil {
			return err
		}
		if live != nil {
			return liveCheckoutConflict(order.ID, live)
		}
		return tx.Create(&payment).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ %s checkout %s opened for order %s (%d %s)", provider.Name(), session.ProviderCheckoutID, order.ID, charge, chargeCurrency)
	return &CheckoutResult{
		PaymentID:   payment.ID,
		CheckoutID:  session.ProviderCheckoutID,
		RedirectURL: session.RedirectURL,
		Amount:      charge,
		Currency:    chargeCurrency,
	}, nil
}

// checkoutableOrder loads a PENDING order with no successful payment, along
// with its live (INITIATED or PENDING) payment if one is in flight.
func (s *PaymentService) checkoutableOrder(db *gorm.DB, orderID uuid.UUID) (*models.Order, *models.Payment, error) {
	var order models.Order
	err := db.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).First(&order, "id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apperrors.NotFound("order %s not found", orderID)
	}
	if err != nil {
		return nil, nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, nil, apperrors.StateConflict("order %s is %s, checkout needs PENDING", order.ID, order.Status)
	}

	var open []models.Payment
	err = db.Where("order_id = ? AND status IN ?", order.ID, []models.PaymentStatus{
		models.PaymentStatusInitiated, models.PaymentStatusPending, models.PaymentStatusSuccess,
	}).Order("created_at DESC").Find(&open).Error
	if err != nil {
		return nil, nil, err
	}
	var live *models.Payment
	for i := range open {
		if open[i].Status == models.PaymentStatusSuccess {
			return nil, nil, apperrors.StateConflict("order %s already has a successful payment", order.ID)
		}
		if live == nil {
			live = &open[i]
		}
	}
	return &order, live, nil
}

func liveCheckoutConflict(orderID uuid.UUID, live *models.Payment) error {
	return apperrors.StateConflict("order %s already has a %s checkout in progress", orderID, live.Provider)
}

func orderDescription(order *models.Order) string {
	titles := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		titles = append(titles, item.Title)
	}
	desc := strings.Join(titles, ", ")
	if desc == "" || len(desc) > 120 {
		desc = fmt.Sprintf("Order %s", order.ID)
	}
	return desc
}

// HandleWebhook verifies a provider callback and settles it. Verified events the
// engine does not act on return payments.ErrEventIgnored.
func (s *PaymentService) HandleWebhook(ctx context.Context, providerName string, payload []byte, headers http.Header) (*SettlementResult, error) {
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}
	event, err := provider.VerifyWebhook(ctx, payload, headers)
	if err != nil {
		return nil, err
	}
	return s.settlement.OnPaymentOutcome(ctx, event)
}

// Capture asks the provider to finalize a charge. A payment already SUCCESS is
// returned as is without calling the provider.
func (s *PaymentService) Capture(ctx context.Context, caller Caller, providerName, txnID string) (*SettlementResult, error) {
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(txnID) == "" {
		return nil, apperrors.Validation("transaction_id is required")
	}

	var payment models.Payment
	err = s.db.WithContext(ctx).Where("provider = ? AND provider_txn_id = ?", provider.Name(), txnID).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("no %s payment for transaction %s", provider.Name(), txnID)
	}
	if err != nil {
		return nil, err
	}

	var order models.Order
	if err := s.db.WithContext(ctx).Select("id", "user_id").First(&order, "id = ?", payment.OrderID).Error; err != nil {
		return nil, err
	}
	if order.UserID != caller.UserID && !caller.IsAdmin() {
		return nil, apperrors.Forbidden("payment belongs to another user")
	}
	if payment.Status == models.PaymentStatusSuccess {
		return &SettlementResult{Payment: &payment, AlreadyProcessed: true}, nil
	}

	captured, err := provider.Capture(ctx, txnID)
	if err != nil {
		return nil, err
	}
	return s.settlement.OnPaymentOutcome(ctx, &payments.NormalizedEvent{
		Provider:      provider.Name(),
		ProviderTxnID: txnID,
		Outcome:       captured.Outcome,
		EventType:     "capture",
		RawPayload:    captured.RawResponse,
	})
}
