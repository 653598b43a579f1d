package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/anjiri1684/course_market/apperrors"
	"github.com/anjiri1684/course_market/models"
	"github.com/anjiri1684/course_market/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ItemDiscount struct {
	Index    int       `json:"index"`
	EntityID uuid.UUID `json:"entity_id"`
	Amount   int64     `json:"amount"`
}

// VoucherResult is never an error for business rule failures; Valid=false carries the reason.
type VoucherResult struct {
	Valid         bool           `json:"valid"`
	Reason        string         `json:"reason,omitempty"`
	VoucherID     uuid.UUID      `json:"voucher_id,omitempty"`
	Code          string         `json:"code,omitempty"`
	TotalDiscount int64          `json:"total_discount"`
	Items         []ItemDiscount `json:"items,omitempty"`
}

func rejected(reason string) *VoucherResult {
	return &VoucherResult{Valid: false, Reason: reason}
}

type VoucherService struct {
	db      *gorm.DB
	catalog Catalog
	now     func() time.Time
}

func NewVoucherService(db *gorm.DB, catalog Catalog) *VoucherService {
	return &VoucherService{db: db, catalog: catalog, now: time.Now}
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ApplyToItems computes per-item discounts for the caller's candidate lines.
func (s *VoucherService) ApplyToItems(ctx context.Context, caller Caller, code string, items []models.OrderItem) (*VoucherResult, error) {
	code = NormalizeCode(code)
	if code == "" {
		return rejected("voucher code is empty"), nil
	}

	var voucher models.Voucher
	err := s.db.WithContext(ctx).Preload("Courses").
		Where("code = ? AND status = ?", code, models.VoucherStatusActive).
		Where("(usage_limit IS NULL OR used_count < usage_limit)").
		First(&voucher).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rejected("voucher not found or no longer available"), nil
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	if voucher.StartsAt != nil && now.Before(*voucher.StartsAt) {
		return rejected("voucher is not active yet"), nil
	}
	if voucher.EndsAt != nil && now.After(*voucher.EndsAt) {
		return rejected("voucher has expired"), nil
	}

	if voucher.UsagePerUser != nil {
		var used int64
		err := s.db.WithContext(ctx).Model(&models.VoucherUsage{}).
			Where("voucher_id = ? AND user_id = ?", voucher.ID, caller.UserID).
			Count(&used).Error
		if err != nil {
			return nil, err
		}
		if used >= int64(*voucher.UsagePerUser) {
			return rejected("you have already used this voucher the maximum number of times"), nil
		}
	}

	eligible := make([]int, 0, len(items))
	var eligibleTotal int64
	for i, item := range items {
		if voucherCovers(&voucher, item) {
			eligible = append(eligible, i)
			eligibleTotal += item.LineTotal()
		}
	}
	if len(eligible) == 0 {
		return rejected("voucher does not apply to any item in the cart"), nil
	}
	if eligibleTotal < voucher.MinOrderAmount {
		return rejected("order does not reach the voucher minimum amount"), nil
	}

	result := &VoucherResult{Valid: true, VoucherID: voucher.ID, Code: voucher.Code}
	for _, i := range eligible {
		amount := discountFor(&voucher, items[i].LineTotal())
		if amount <= 0 {
			continue
		}
		result.Items = append(result.Items, ItemDiscount{Index: i, EntityID: items[i].EntityID, Amount: amount})
		result.TotalDiscount += amount
	}
	return result, nil
}

func voucherCovers(v *models.Voucher, item models.OrderItem) bool {
	if item.EntityType != models.EntityCourse || item.InstructorID == nil || *item.InstructorID != v.InstructorID {
		return false
	}
	if v.Scope == models.VoucherScopeAllInstructorCourses {
		return true
	}
	for _, c := range v.Courses {
		if c.CourseID == item.EntityID {
			return true
		}
	}
	return false
}

// discountFor never exceeds price, so a discounted line is never negative.
func discountFor(v *models.Voucher, price int64) int64 {
	var d int64
	switch v.DiscountType {
	case models.DiscountPercentage:
		d = money.Percent(price, decimal.NewFromInt(v.DiscountValue))
		if v.MaxDiscountAmount != nil && d > *v.MaxDiscountAmount {
			d = *v.MaxDiscountAmount
		}
	case models.DiscountFixedAmount:
		d = v.DiscountValue
	}
	return min(d, price)
}

// PreviewForCourses prices the given courses from the catalog and applies code to them.
func (s *VoucherService) PreviewForCourses(ctx context.Context, caller Caller, code string, courseIDs []uuid.UUID) (*VoucherResult, error) {
	if len(courseIDs) == 0 {
		return nil, apperrors.Validation("course_ids must not be empty")
	}
	items := make([]models.OrderItem, 0, len(courseIDs))
	for i, id := range courseIDs {
		snap, err := s.catalog.Lookup(ctx, models.EntityCourse, id)
		if err != nil {
			return nil, err
		}
		items = append(items, models.OrderItem{
			Position: i, EntityType: models.EntityCourse, EntityID: snap.EntityID,
			Title: snap.Title, InstructorID: snap.InstructorID, Quantity: 1, UnitPrice: snap.Price,
		})
	}
	return s.ApplyToItems(ctx, caller, code, items)
}

// Commit records the order's redemption once it is paid. The usage count is
// re-read inside tx; losing the last-slot race is logged, not refused.
func (s *VoucherService) Commit(tx *gorm.DB, order *models.Order) error {
	if order.VoucherID == nil || order.DiscountAmount == 0 {
		return nil
	}

	var voucher models.Voucher
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&voucher, "id = ?", *order.VoucherID).Error; err != nil {
		return err
	}
	if voucher.UsageLimit != nil && voucher.UsedCount >= *voucher.UsageLimit {
		log.Printf("⚠️ Voucher %s over-redeemed by order %s (%d/%d)", voucher.Code, order.ID, voucher.UsedCount+1, *voucher.UsageLimit)
	}
	if voucher.UsagePerUser != nil {
		var used int64
		if err := tx.Model(&models.VoucherUsage{}).Where("voucher_id = ? AND user_id = ?", voucher.ID, order.UserID).Count(&used).Error; err != nil {
			return err
		}
		if used >= int64(*voucher.UsagePerUser) {
			log.Printf("⚠️ Voucher %s used %d times by user %s, limit %d", voucher.Code, used+1, order.UserID, *voucher.UsagePerUser)
		}
	}

	usage := models.VoucherUsage{
		VoucherID:      voucher.ID,
		UserID:         order.UserID,
		OrderID:        order.ID,
		DiscountAmount: order.DiscountAmount,
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "voucher_id"}, {Name: "order_id"}},
		DoNothing: true,
	}).Create(&usage)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}
	return tx.Model(&models.Voucher{}).Where("id = ?", voucher.ID).
		Update("used_count", gorm.Expr("used_count + 1")).Error
}

type CreateVoucherInput struct {
	Code              string               `json:"code" validate:"required,min=3,max=50"`
	Scope             models.VoucherScope  `json:"scope" validate:"required,oneof=ALL_INSTRUCTOR_COURSES SPECIFIC_COURSES"`
	DiscountType      models.DiscountType  `json:"discount_type" validate:"required,oneof=PERCENTAGE FIXED_AMOUNT"`
	DiscountValue     int64                `json:"discount_value" validate:"gt=0"`
	MaxDiscountAmount *int64               `json:"max_discount_amount" validate:"omitempty,gt=0"`
	MinOrderAmount    int64                `json:"min_order_amount" validate:"gte=0"`
	UsageLimit        *int                 `json:"usage_limit" validate:"omitempty,gt=0"`
	UsagePerUser      *int                 `json:"usage_per_user" validate:"omitempty,gt=0"`
	StartsAt          *time.Time           `json:"starts_at"`
	EndsAt            *time.Time           `json:"ends_at"`
	CourseIDs         []uuid.UUID          `json:"course_ids"`
	Status            models.VoucherStatus `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE"`
}

func (s *VoucherService) CreateVoucher(ctx context.Context, caller Caller, in CreateVoucherInput) (*models.Voucher, error) {
	if !caller.IsInstructor() {
		return nil, apperrors.Forbidden("only instructors can create vouchers")
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.DiscountType == models.DiscountPercentage && in.DiscountValue > 100 {
		return nil, apperrors.Validation("percentage discount cannot exceed 100")
	}
	if in.StartsAt != nil && in.EndsAt != nil && !in.EndsAt.After(*in.StartsAt) {
		return nil, apperrors.Validation("ends_at must be after starts_at")
	}
	if in.Scope == models.VoucherScopeSpecificCourses && len(in.CourseIDs) == 0 {
		return nil, apperrors.Validation("SPECIFIC_COURSES vouchers need at least one course")
	}

	voucher := models.Voucher{
		Code:              NormalizeCode(in.Code),
		InstructorID:      caller.UserID,
		Scope:             in.Scope,
		DiscountType:      in.DiscountType,
		DiscountValue:     in.DiscountValue,
		MaxDiscountAmount: in.MaxDiscountAmount,
		MinOrderAmount:    in.MinOrderAmount,
		UsageLimit:        in.UsageLimit,
		UsagePerUser:      in.UsagePerUser,
		StartsAt:          in.StartsAt,
		EndsAt:            in.EndsAt,
		Status:            in.Status,
	}
	if voucher.Status == "" {
		voucher.Status = models.VoucherStatusActive
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.Voucher{}).Where("code = ?", voucher.Code).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return apperrors.StateConflict("voucher code %s already exists", voucher.Code)
		}

		if voucher.Scope == models.VoucherScopeSpecificCourses {
			var owned int64
			err := tx.Model(&models.Course{}).
				Where("id IN ? AND instructor_id = ?", in.CourseIDs, caller.UserID).
				Count(&owned).Error
			if err != nil {
				return err
			}
			if owned != int64(len(uniqueIDs(in.CourseIDs))) {
				return apperrors.Forbidden("vouchers can only cover your own courses")
			}
			for _, id := range uniqueIDs(in.CourseIDs) {
				voucher.Courses = append(voucher.Courses, models.VoucherCourse{CourseID: id})
			}
		}
		return tx.Create(&voucher).Error
	})
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

func (s *VoucherService) SetVoucherStatus(ctx context.Context, caller Caller, voucherID uuid.UUID, status models.VoucherStatus) (*models.Voucher, error) {
	if status != models.VoucherStatusActive && status != models.VoucherStatusInactive {
		return nil, apperrors.Validation("unknown voucher status %q", status)
	}
	var voucher models.Voucher
	if err := s.db.WithContext(ctx).First(&voucher, "id = ?", voucherID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("voucher %s not found", voucherID)
		}
		return nil, err
	}
	if voucher.InstructorID != caller.UserID && !caller.IsAdmin() {
		return nil, apperrors.Forbidden("voucher belongs to another instructor")
	}
	if err := s.db.WithContext(ctx).Model(&voucher).Update("status", status).Error; err != nil {
		return nil, err
	}
	voucher.Status = status
	return &voucher, nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
