package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Course struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title        string    `gorm:"size:255;not null" json:"title"`
	InstructorID uuid.UUID `gorm:"type:uuid;not null;index" json:"instructor_id"`
	Price        int64     `gorm:"not null" json:"price"`
	Currency     string    `gorm:"size:3;not null" json:"currency"`
	IsActive     bool      `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Course) BeforeCreate(tx *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

type Bundle struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name     string    `gorm:"size:255;not null" json:"name"`
	Price    int64     `gorm:"not null" json:"price"`
	Currency string    `gorm:"size:3;not null" json:"currency"`
	IsActive bool      `gorm:"default:true" json:"is_active"`

	Courses []Course `gorm:"many2many:bundle_courses;" json:"courses,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Bundle) BeforeCreate(tx *gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

type SubscriptionPlan struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	Price        int64     `gorm:"not null" json:"price"`
	Currency     string    `gorm:"size:3;not null" json:"currency"`
	DurationDays int       `gorm:"not null" json:"duration_days"`
	IsActive     bool      `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *SubscriptionPlan) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
