package cart

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-orders/internal/domain/cartrule"
)

var hundred = decimal.NewFromInt(100)

// Calculator computes the price breakdown of a cart in one currency.
type Calculator interface {
	Calculate(c *Cart, items []Item, currency string) (Statistics, error)
}

// StandardCalculator prices carts from variant prices, delivery method fees
// and active cart rules.
type StandardCalculator struct {
	now func() time.Time
}

// NewStandardCalculator returns a StandardCalculator using the wall clock.
func NewStandardCalculator() *StandardCalculator {
	return &StandardCalculator{now: time.Now}
}

// Calculate implements Calculator. Gift items are free and excluded from
// discount computation.
func (calc *StandardCalculator) Calculate(c *Cart, items []Item, currency string) (Statistics, error) {
	var stats Statistics

	lines := make([]cartrule.Item, 0, len(items))
	for _, item := range items {
		if item.IsGift {
			continue
		}
		price, ok := item.Price(currency)
		if !ok {
			return Statistics{}, &MissingPriceError{VariantID: item.VariantID, Currency: currency}
		}
		lines = append(lines, cartrule.Item{
			ProductID: item.ProductID,
			Price:     price,
			Quantity:  item.Quantity,
		})
	}
	stats.ProductsPrice = cartrule.Subtotal(lines).Round(2)

	now := calc.now()
	for _, rule := range c.Rules {
		if rule.Active(now) != nil {
			continue
		}
		discount, err := cartrule.Apply(&rule, lines)
		if err != nil {
			if errors.Is(err, cartrule.ErrNotApplicable) {
				continue
			}
			return Statistics{}, errors.Wrapf(err, "apply rule %s", rule.Code)
		}
		stats.Rules = append(stats.Rules, AppliedRule{Rule: rule, Discount: discount.Amount})
		stats.TotalDiscount = stats.TotalDiscount.Add(discount.Amount)
	}
	stats.TotalDiscount = decimal.Min(stats.TotalDiscount, stats.ProductsPrice)

	if dm := c.DeliveryMethod; dm != nil {
		stats.DeliveryPrice = dm.Price
		if c.Assembly {
			stats.AssemblyPrice = dm.AssemblyPrice
		}
		if c.FullDelivery {
			stats.FullDeliveryPrice = dm.FullDeliveryPrice
		}
	}

	stats.TotalPrice = stats.ProductsPrice.
		Sub(stats.TotalDiscount).
		Add(stats.DeliveryPrice).
		Add(stats.AssemblyPrice).
		Add(stats.FullDeliveryPrice).
		Round(2)

	if pm := c.PaymentMethod; pm != nil && pm.DepositPercent.IsPositive() {
		stats.Deposit = stats.TotalPrice.Mul(pm.DepositPercent).Div(hundred).Round(2)
	}

	return stats, nil
}
