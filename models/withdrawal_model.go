package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "PENDING"
	WithdrawalApproved   WithdrawalStatus = "APPROVED"
	WithdrawalProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalRejected   WithdrawalStatus = "REJECTED"
	WithdrawalCompleted  WithdrawalStatus = "COMPLETED"
	WithdrawalFailed     WithdrawalStatus = "FAILED"
)

func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalRejected || s == WithdrawalCompleted || s == WithdrawalFailed
}

type WithdrawalRequest struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	InstructorID uuid.UUID `gorm:"type:uuid;not null;index" json:"instructor_id"`

	Amount           int64           `gorm:"not null" json:"amount"`
	Currency         string          `gorm:"size:3;not null" json:"currency"`
	OriginalAmount   int64           `gorm:"not null" json:"original_amount"`
	OriginalCurrency string          `gorm:"size:3;not null" json:"original_currency"`
	ExchangeRate     decimal.Decimal `gorm:"type:numeric(24,12);not null" json:"exchange_rate"`

	Status        WithdrawalStatus `gorm:"size:20;not null;index" json:"status"`
	PayoutMethod  string           `gorm:"size:30;not null" json:"payout_method"`
	BankInfo      datatypes.JSON   `json:"bank_info"`
	PayoutBatchID *string          `gorm:"size:255;uniqueIndex" json:"payout_batch_id,omitempty"`
	PayoutItemID  *string          `gorm:"size:255" json:"payout_item_id,omitempty"`
	AdminNote     *string          `gorm:"type:text" json:"admin_note,omitempty"`
	FailureReason *string          `gorm:"type:text" json:"failure_reason,omitempty"`
	ProcessedAt   *time.Time       `json:"processed_at,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (w *WithdrawalRequest) BeforeCreate(tx *gorm.DB) error {
	ensureID(&w.ID)
	return nil
}

type PayoutAccount struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	InstructorID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"instructor_id"`
	Method       string    `gorm:"size:30;not null" json:"method"`
	PayPalEmail  string    `gorm:"column:paypal_email;size:255" json:"paypal_email"`
	AccountName  string    `gorm:"size:255" json:"account_name"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *PayoutAccount) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
