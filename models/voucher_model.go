package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VoucherScope string

const (
	VoucherScopeAllInstructorCourses VoucherScope = "ALL_INSTRUCTOR_COURSES"
	VoucherScopeSpecificCourses      VoucherScope = "SPECIFIC_COURSES"
)

type DiscountType string

const (
	DiscountPercentage  DiscountType = "PERCENTAGE"
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
)

type VoucherStatus string

const (
	VoucherStatusActive   VoucherStatus = "ACTIVE"
	VoucherStatusInactive VoucherStatus = "INACTIVE"
)

type Voucher struct {
	ID                uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	Code              string        `gorm:"size:50;not null;uniqueIndex" json:"code"`
	InstructorID      uuid.UUID     `gorm:"type:uuid;not null;index" json:"instructor_id"`
	Scope             VoucherScope  `gorm:"size:30;not null" json:"scope"`
	DiscountType      DiscountType  `gorm:"size:20;not null" json:"discount_type"`
	DiscountValue     int64         `gorm:"not null" json:"discount_value"`
	MaxDiscountAmount *int64        `json:"max_discount_amount,omitempty"`
	MinOrderAmount    int64         `gorm:"not null;default:0" json:"min_order_amount"`
	UsageLimit        *int          `json:"usage_limit,omitempty"`
	UsagePerUser      *int          `json:"usage_per_user,omitempty"`
	UsedCount         int           `gorm:"not null;default:0" json:"used_count"`
	StartsAt          *time.Time    `json:"starts_at,omitempty"`
	EndsAt            *time.Time    `json:"ends_at,omitempty"`
	Status            VoucherStatus `gorm:"size:20;not null;index" json:"status"`

	Courses []VoucherCourse `gorm:"foreignKey:VoucherID" json:"courses,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (v *Voucher) BeforeCreate(tx *gorm.DB) error {
	ensureID(&v.ID)
	return nil
}

type VoucherCourse struct {
	VoucherID uuid.UUID `gorm:"type:uuid;primaryKey" json:"voucher_id"`
	CourseID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"course_id"`
}

type VoucherUsage struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	VoucherID      uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_voucher_usage_order" json:"voucher_id"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	OrderID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_voucher_usage_order" json:"order_id"`
	DiscountAmount int64     `gorm:"not null" json:"discount_amount"`
	CreatedAt      time.Time `json:"created_at"`
}

func (u *VoucherUsage) BeforeCreate(tx *gorm.DB) error {
	ensureID(&u.ID)
	return nil
}
