// Package cartrule implements voucher (cart rule) discounts.
package cartrule

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported cart rule discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a fixed monetary discount capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
	// DiscountFreeLowest removes the cost of the cheapest unit in the cart.
	DiscountFreeLowest DiscountType = "free_lowest"
)

var (
	// ErrNotApplicable is returned when the cart does not satisfy the rule's
	// minimum item requirement.
	ErrNotApplicable = errors.New("cart rule not applicable")
	// ErrExpired is returned when a rule is outside its validity window.
	ErrExpired = errors.New("cart rule expired")
	// ErrUsageLimitReached is returned when a rule has exhausted its uses.
	ErrUsageLimitReached = errors.New("cart rule usage limit reached")
)

// Rule is a voucher attached to a cart.
type Rule struct {
	ID           int64
	Code         string
	Name         string
	DiscountType DiscountType
	Value        decimal.Decimal
	MinItems     int
	ValidFrom    *time.Time
	ValidUntil   *time.Time
	MaxUses      int
	Uses         int
	// MaxDiscount caps the computed amount when positive.
	MaxDiscount decimal.Decimal
}

// Active reports whether the rule can be used at the given moment.
func (r *Rule) Active(now time.Time) error {
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return ErrExpired
	}
	if r.ValidUntil != nil && now.After(*r.ValidUntil) {
		return ErrExpired
	}
	if r.MaxUses > 0 && r.Uses >= r.MaxUses {
		return ErrUsageLimitReached
	}
	return nil
}

// Discount holds the computed discount amount and a human-readable description.
type Discount struct {
	Amount      decimal.Decimal
	Description string
}

// Item is a priced cart line used for discount calculation.
type Item struct {
	ProductID int64
	Price     decimal.Decimal
	Quantity  int
}
