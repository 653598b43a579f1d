package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InstructorBalance struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	InstructorID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"instructor_id"`
	AvailableBalance int64     `gorm:"not null;default:0;check:available_balance >= 0" json:"available_balance"`
	PendingBalance   int64     `gorm:"not null;default:0;check:pending_balance >= 0" json:"pending_balance"`
	Currency         string    `gorm:"size:3;not null" json:"currency"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *InstructorBalance) BeforeCreate(tx *gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

type TransactionType string

const (
	TransactionSale             TransactionType = "SALE"
	TransactionWithdrawal       TransactionType = "WITHDRAWAL"
	TransactionWithdrawalRefund TransactionType = "WITHDRAWAL_REFUND"
)

type InstructorTransaction struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	InstructorID uuid.UUID       `gorm:"type:uuid;not null;index" json:"instructor_id"`
	Type         TransactionType `gorm:"size:20;not null;uniqueIndex:idx_instructor_txn_ref" json:"type"`
	Amount       int64           `gorm:"not null" json:"amount"`
	BalanceAfter int64           `gorm:"not null" json:"balance_after"`
	ReferenceID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_instructor_txn_ref" json:"reference_id"`
	Currency     string          `gorm:"size:3;not null" json:"currency"`
	Description  string          `gorm:"size:255" json:"description"`
	CreatedAt    time.Time       `gorm:"index" json:"created_at"`
}

func (t *InstructorTransaction) BeforeCreate(tx *gorm.DB) error {
	ensureID(&t.ID)
	return nil
}
