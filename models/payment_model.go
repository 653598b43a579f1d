package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentProvider string

const (
	ProviderStripe PaymentProvider = "stripe"
	ProviderPayPal PaymentProvider = "paypal"
	ProviderMpesa  PaymentProvider = "mpesa"
)

type PaymentStatus string

const (
	PaymentStatusInitiated PaymentStatus = "INITIATED"
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusSuccess   PaymentStatus = "SUCCESS"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

type Payment struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	Provider      PaymentProvider `gorm:"size:20;not null;uniqueIndex:idx_payments_provider_txn" json:"provider"`
	ProviderTxnID string          `gorm:"size:255;not null;uniqueIndex:idx_payments_provider_txn" json:"provider_txn_id"`
	Amount        int64           `gorm:"not null" json:"amount"`
	Currency      string          `gorm:"size:3;not null" json:"currency"`

	ConvertedAmount   *int64              `json:"converted_amount,omitempty"`
	ConvertedCurrency *string             `gorm:"size:3" json:"converted_currency,omitempty"`
	ExchangeRate      decimal.NullDecimal `gorm:"type:numeric(24,12)" json:"exchange_rate"`

	Status      PaymentStatus  `gorm:"size:20;not null;index" json:"status"`
	RedirectURL string         `gorm:"size:1024" json:"redirect_url,omitempty"`
	RawPayload  datatypes.JSON `json:"-"`
	ConfirmedAt *time.Time     `json:"confirmed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// ChargedAmount is what the provider is asked to collect.
func (p Payment) ChargedAmount() (int64, string) {
	if p.ConvertedAmount != nil && p.ConvertedCurrency != nil {
		return *p.ConvertedAmount, *p.ConvertedCurrency
	}
	return p.Amount, p.Currency
}
