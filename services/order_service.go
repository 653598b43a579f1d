package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/anjiri1684/course_market/apperrors"
	"github.com/anjiri1684/course_market/models"
	"github.com/anjiri1684/course_market/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderItemInput struct {
	EntityType models.EntityType `json:"entity_type" validate:"required"`
	EntityID   uuid.UUID         `json:"entity_id"`
	Quantity   int               `json:"quantity" validate:"gt=0"`
}

type CreateOrderInput struct {
	Items       []OrderItemInput `json:"items" validate:"required,min=1,dive"`
	VoucherCode string           `json:"voucher_code" validate:"max=50"`
}

type OrderService struct {
	db       *gorm.DB
	catalog  Catalog
	vouchers *VoucherService
	locker   utils.Locker
	currency string
	now      func() time.Time
}

func NewOrderService(db *gorm.DB, catalog Catalog, vouchers *VoucherService, locker utils.Locker, currency string) *OrderService {
	return &OrderService{db: db, catalog: catalog, vouchers: vouchers, locker: locker, currency: currency, now: time.Now}
}

// CreateOrder prices every line from the catalog; client prices are never read.
func (s *OrderService) CreateOrder(ctx context.Context, caller Caller, in CreateOrderInput) (*models.Order, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(in.Items))
	items := make([]models.OrderItem, 0, len(in.Items))
	for i, line := range in.Items {
		if !line.EntityType.Valid() {
			return nil, apperrors.Validation("unknown entity type %q", line.EntityType)
		}
		if line.EntityID == uuid.Nil {
			return nil, apperrors.Validation("item %d has no entity_id", i)
		}
		key := string(line.EntityType) + ":" + line.EntityID.String()
		if _, dup := seen[key]; dup {
			return nil, apperrors.Validation("%s %s appears more than once", line.EntityType, line.EntityID)
		}
		seen[key] = struct{}{}

		snap, err := s.catalog.Lookup(ctx, line.EntityType, line.EntityID)
		if err != nil {
			return nil, err
		}
		if snap.Price <= 0 {
			return nil, apperrors.Validation("%s %s has no price", line.EntityType, line.EntityID)
		}
		if snap.Currency != s.currency {
			return nil, apperrors.Validation("%s %s is priced in %s, orders are in %s", line.EntityType, line.EntityID, snap.Currency, s.currency)
		}
		items = append(items, models.OrderItem{
			Position:     i,
			EntityType:   line.EntityType,
			EntityID:     snap.EntityID,
			Title:        snap.Title,
			InstructorID: snap.InstructorID,
			Quantity:     line.Quantity,
			UnitPrice:    snap.Price,
		})
	}

	order := models.Order{UserID: caller.UserID, Status: models.OrderStatusPending, Currency: s.currency}
	if in.VoucherCode != "" {
		res, err := s.vouchers.ApplyToItems(ctx, caller, in.VoucherCode, items)
		if err != nil {
			return nil, err
		}
		if !res.Valid {
			return nil, apperrors.Validation("voucher %s cannot be applied: %s", NormalizeCode(in.VoucherCode), res.Reason)
		}
		for _, d := range res.Items {
			items[d.Index].DiscountAmount = d.Amount
		}
		voucherID, code := res.VoucherID, res.Code
		order.VoucherID, order.VoucherCode = &voucherID, &code
	}
	order.Items = items
	order.Recalculate()
	if err := order.CheckTotals(); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	log.Printf("✅ Order %s created for user %s: %d %s", order.ID, order.UserID, order.TotalAmount, order.Currency)
	return &order, nil
}

// GetOrder is visible to its owner and to admins.
func (s *OrderService) GetOrder(ctx context.Context, caller Caller, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("Payments").
		First(&order, "id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("order %s not found", orderID)
	}
	if err != nil {
		return nil, err
	}
	if order.UserID != caller.UserID && !caller.IsAdmin() {
		return nil, apperrors.Forbidden("order belongs to another user")
	}
	return &order, nil
}

func (s *OrderService) CancelOrder(ctx context.Context, caller Caller, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.GetOrder(ctx, caller, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != caller.UserID {
		return nil, apperrors.Forbidden("only the buyer can cancel an order")
	}

	unlock, err := s.locker.Lock(ctx, orderLockKey(order.ID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.UpdateStatus(tx, order, models.OrderStatusCancelled)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateStatus is the only writer of order status. The WHERE on the current
// status makes concurrent transitions from the same state exclusive.
func (s *OrderService) UpdateStatus(tx *gorm.DB, order *models.Order, to models.OrderStatus) error {
	from := order.Status
	if err := models.CheckTransition(from, to); err != nil {
		return err
	}

	updates := map[string]any{"status": to}
	var paidAt time.Time
	if to == models.OrderStatusPaid {
		paidAt = s.now()
		updates["paid_at"] = paidAt
	}
	res := tx.Model(&models.Order{}).Where("id = ? AND status = ?", order.ID, from).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var current models.Order
		if err := tx.Select("status").First(&current, "id = ?", order.ID).Error; err != nil {
			return err
		}
		return apperrors.InvalidTransition("order", current.Status, to)
	}

	order.Status = to
	if to == models.OrderStatusPaid {
		order.PaidAt = &paidAt
	}
	return nil
}

// loadForUpdate reads the order with its items inside tx.
func (s *OrderService) loadForUpdate(tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, "id = ?", orderID).Error
	if err != nil {
		return nil, err
	}
	if err := tx.Where("order_id = ?", order.ID).Order("position").Find(&order.Items).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// ExpireStale closes PENDING orders older than olderThan. Orders whose last
// attempt failed become FAILED, the rest CANCELLED. An order with a payment
// started after the cutoff is left alone.
func (s *OrderService) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)

	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("status = ? AND created_at < ?", models.OrderStatusPending, cutoff).
		Limit(500).Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		changed, err := s.expireOne(ctx, id, cutoff)
		if err != nil {
			log.Printf("🔥 Failed to expire order %s: %v", id, err)
			continue
		}
		if changed {
			expired++
		}
	}
	return expired, nil
}

func (s *OrderService) expireOne(ctx context.Context, orderID uuid.UUID, cutoff time.Time) (bool, error) {
	unlock, err := s.locker.Lock(ctx, orderLockKey(orderID))
	if err != nil {
		return false, err
	}
	defer unlock()

	changed := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.loadForUpdate(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusPending {
			return nil
		}

		var live int64
		err = tx.Model(&models.Payment{}).
			Where("order_id = ? AND status IN ? AND created_at >= ?", orderID,
				[]models.PaymentStatus{models.PaymentStatusInitiated, models.PaymentStatusPending}, cutoff).
			Count(&live).Error
		if err != nil {
			return err
		}
		if live > 0 {
			return nil
		}

		var failed int64
		err = tx.Model(&models.Payment{}).
			Where("order_id = ? AND status = ?", orderID, models.PaymentStatusFailed).
			Count(&failed).Error
		if err != nil {
			return err
		}

		to := models.OrderStatusCancelled
		if failed > 0 {
			to = models.OrderStatusFailed
		}
		if err := s.UpdateStatus(tx, order, to); err != nil {
			return err
		}
		changed = true
		return nil
	})
	return changed, err
}
