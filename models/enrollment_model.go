package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Enrollment struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_enrollment_entity" json:"user_id"`
	EntityType EntityType `gorm:"size:20;not null;uniqueIndex:idx_enrollment_entity" json:"entity_type"`
	EntityID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_enrollment_entity" json:"entity_id"`
	OrderID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"order_id"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (e *Enrollment) BeforeCreate(tx *gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

type InvoiceLine struct {
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Discount  int64  `json:"discount"`
	Total     int64  `json:"total"`
}

type Invoice struct {
	ID           uuid.UUID                        `gorm:"type:uuid;primaryKey" json:"id"`
	Number       string                           `gorm:"size:32;not null;uniqueIndex" json:"number"`
	OrderID      uuid.UUID                        `gorm:"type:uuid;not null;uniqueIndex" json:"order_id"`
	UserID       uuid.UUID                        `gorm:"type:uuid;not null;index" json:"user_id"`
	BillingName  string                           `gorm:"size:255" json:"billing_name"`
	BillingEmail string                           `gorm:"size:255" json:"billing_email"`
	Currency     string                           `gorm:"size:3;not null" json:"currency"`
	Subtotal     int64                            `gorm:"not null" json:"subtotal"`
	Discount     int64                            `gorm:"not null" json:"discount"`
	Total        int64                            `gorm:"not null" json:"total"`
	Lines        datatypes.JSONSlice[InvoiceLine] `json:"lines"`
	PDFURL       *string                          `gorm:"size:1024" json:"pdf_url,omitempty"`
	IssuedAt     time.Time                        `gorm:"not null" json:"issued_at"`
}

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
