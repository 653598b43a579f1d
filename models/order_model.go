package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusFailed    OrderStatus = "FAILED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

type EntityType string

const (
	EntityCourse       EntityType = "COURSE"
	EntitySubscription EntityType = "SUBSCRIPTION"
	EntityBundle       EntityType = "BUNDLE"
)

func (t EntityType) Valid() bool {
	switch t {
	case EntityCourse, EntitySubscription, EntityBundle:
		return true
	}
	return false
}

type Order struct {
	ID             uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID   `gorm:"type:uuid;not null;index" json:"user_id"`
	Status         OrderStatus `gorm:"size:20;not null;index" json:"status"`
	SubtotalAmount int64       `gorm:"not null" json:"subtotal_amount"`
	DiscountAmount int64       `gorm:"not null;default:0" json:"discount_amount"`
	TotalAmount    int64       `gorm:"not null" json:"total_amount"`
	Currency       string      `gorm:"size:3;not null" json:"currency"`
	VoucherID      *uuid.UUID  `gorm:"type:uuid" json:"voucher_id,omitempty"`
	VoucherCode    *string     `gorm:"size:50" json:"voucher_code,omitempty"`
	PaidAt         *time.Time  `json:"paid_at,omitempty"`

	Items    []OrderItem `gorm:"foreignKey:OrderID" json:"items"`
	Payments []Payment   `gorm:"foreignKey:OrderID" json:"payments,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

type OrderItem struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"order_id"`
	Position       int        `gorm:"not null" json:"position"`
	EntityType     EntityType `gorm:"size:20;not null" json:"entity_type"`
	EntityID       uuid.UUID  `gorm:"type:uuid;not null" json:"entity_id"`
	Title          string     `gorm:"size:255" json:"title"`
	InstructorID   *uuid.UUID `gorm:"type:uuid;index" json:"instructor_id,omitempty"`
	Quantity       int        `gorm:"not null" json:"quantity"`
	UnitPrice      int64      `gorm:"not null" json:"unit_price"`
	DiscountAmount int64      `gorm:"not null;default:0" json:"discount_amount"`

	CreatedAt time.Time `json:"created_at"`
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// LineTotal is unit price times quantity, before any discount.
func (i OrderItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// NetTotal is the line total after the item's voucher discount.
func (i OrderItem) NetTotal() int64 {
	return i.LineTotal() - i.DiscountAmount
}
