package models

import (
	"slices"

	"github.com/anjiri1684/course_market/apperrors"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusPaid, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusPaid:    {OrderStatusRefunded},
}

func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	return slices.Contains(orderTransitions[s], to)
}

func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

// CheckTransition returns a state conflict naming both ends when from -> to is illegal.
func CheckTransition(from, to OrderStatus) error {
	if !from.CanTransitionTo(to) {
		return apperrors.InvalidTransition("order", from, to)
	}
	return nil
}

// Recalculate derives subtotal, discount and total from the items.
func (o *Order) Recalculate() {
	var subtotal, discount int64
	for _, item := range o.Items {
		subtotal += item.LineTotal()
		discount += item.DiscountAmount
	}
	o.SubtotalAmount = subtotal
	o.DiscountAmount = discount
	o.TotalAmount = subtotal - discount
}

// CheckTotals enforces total = sum(unit*qty) - discount and total > 0.
func (o *Order) CheckTotals() error {
	var subtotal, discount int64
	for _, item := range o.Items {
		if item.Quantity <= 0 || item.UnitPrice <= 0 {
			return apperrors.Validation("item %s must have positive quantity and price", item.EntityID)
		}
		if item.DiscountAmount < 0 || item.DiscountAmount > item.LineTotal() {
			return apperrors.Validation("item %s discount out of range", item.EntityID)
		}
		subtotal += item.LineTotal()
		discount += item.DiscountAmount
	}
	if o.SubtotalAmount != subtotal || o.DiscountAmount != discount || o.TotalAmount != subtotal-discount {
		return apperrors.Validation("order totals do not match its items")
	}
	if o.TotalAmount <= 0 {
		return apperrors.Validation("order total must be positive")
	}
	return nil
}
