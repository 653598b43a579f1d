package services

import (
	"time"

	"github.com/anjiri1684/course_market/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormEnrollmentSink grants access for every line of a paid order. Bundles
// also enroll the buyer in each of their courses; subscriptions get an expiry.
type GormEnrollmentSink struct {
	now func() time.Time
}

func NewGormEnrollmentSink() *GormEnrollmentSink {
	return &GormEnrollmentSink{now: time.Now}
}

func (s *GormEnrollmentSink) Enroll(tx *gorm.DB, order *models.Order) error {
	for _, item := range order.Items {
		enrollment := models.Enrollment{
			UserID:     order.UserID,
			EntityType: item.EntityType,
			EntityID:   item.EntityID,
			OrderID:    order.ID,
		}

		switch item.EntityType {
		case models.EntitySubscription:
			var plan models.SubscriptionPlan
			if err := tx.Select("duration_days").First(&plan, "id = ?", item.EntityID).Error; err != nil {
				return err
			}
			expires := s.now().AddDate(0, 0, plan.DurationDays*item.Quantity)
			enrollment.ExpiresAt = &expires
			if err := s.upsert(tx, &enrollment, "expires_at", "order_id"); err != nil {
				return err
			}
		case models.EntityBundle:
			if err := s.upsert(tx, &enrollment); err != nil {
				return err
			}
			var courseIDs []uuid.UUID
			if err := tx.Table("bundle_courses").Where("bundle_id = ?", item.EntityID).Pluck("course_id", &courseIDs).Error; err != nil {
				return err
			}
			for _, courseID := range courseIDs {
				course := models.Enrollment{UserID: order.UserID, EntityType: models.EntityCourse, EntityID: courseID, OrderID: order.ID}
				if err := s.upsert(tx, &course); err != nil {
					return err
				}
			}
		default:
			if err := s.upsert(tx, &enrollment); err != nil {
				return err
			}
		}
	}
	return nil
}

// upsert skips existing enrollments, or refreshes the given columns on them.
func (s *GormEnrollmentSink) upsert(tx *gorm.DB, e *models.Enrollment, refresh ...string) error {
	conflict := clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "entity_type"}, {Name: "entity_id"}},
	}
	if len(refresh) == 0 {
		conflict.DoNothing = true
	} else {
		conflict.DoUpdates = clause.AssignmentColumns(refresh)
	}
	return tx.Clauses(conflict).Create(e).Error
}
