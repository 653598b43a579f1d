package services

import (
	"context"
	"errors"

	"github.com/anjiri1684/course_market/apperrors"
	"github.com/anjiri1684/course_market/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CatalogItem is the price snapshot an order line freezes.
type CatalogItem struct {
	EntityType   models.EntityType
	EntityID     uuid.UUID
	Title        string
	InstructorID *uuid.UUID
	Price        int64
	Currency     string
	DurationDays int
}

// Catalog is owned by the course subsystem; the engine only reads prices from it.
type Catalog interface {
	Lookup(ctx context.Context, entityType models.EntityType, id uuid.UUID) (*CatalogItem, error)
}

type GormCatalog struct {
	db *gorm.DB
}

func NewGormCatalog(db *gorm.DB) *GormCatalog {
	return &GormCatalog{db: db}
}

func (c *GormCatalog) Lookup(ctx context.Context, entityType models.EntityType, id uuid.UUID) (*CatalogItem, error) {
	db := c.db.WithContext(ctx)
	switch entityType {
	case models.EntityCourse:
		var course models.Course
		if err := db.Where("id = ? AND is_active = ?", id, true).First(&course).Error; err != nil {
			return nil, lookupError(err, "course", id)
		}
		instructor := course.InstructorID
		return &CatalogItem{
			EntityType: entityType, EntityID: course.ID, Title: course.Title,
			InstructorID: &instructor, Price: course.Price, Currency: course.Currency,
		}, nil
	case models.EntityBundle:
		var bundle models.Bundle
		if err := db.Where("id = ? AND is_active = ?", id, true).First(&bundle).Error; err != nil {
			return nil, lookupError(err, "bundle", id)
		}
		return &CatalogItem{
			EntityType: entityType, EntityID: bundle.ID, Title: bundle.Name,
			Price: bundle.Price, Currency: bundle.Currency,
		}, nil
	case models.EntitySubscription:
		var plan models.SubscriptionPlan
		if err := db.Where("id = ? AND is_active = ?", id, true).First(&plan).Error; err != nil {
			return nil, lookupError(err, "subscription plan", id)
		}
		return &CatalogItem{
			EntityType: entityType, EntityID: plan.ID, Title: plan.Name,
			Price: plan.Price, Currency: plan.Currency, DurationDays: plan.DurationDays,
		}, nil
	}
	return nil, apperrors.Validation("unknown entity type %q", entityType)
}

func lookupError(err error, what string, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound("%s %s not found", what, id)
	}
	return err
}
