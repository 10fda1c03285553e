package cart

import (
	"context"

	"github.com/go-faster/errors"
)

// Service prepares carts for order placement.
type Service struct {
	carts      Repository
	calculator Calculator
}

// NewService creates a cart Service.
func NewService(carts Repository, calculator Calculator) *Service {
	return &Service{carts: carts, calculator: calculator}
}

// Checkout loads the cart, checks it can be ordered and calculates its
// statistics in the given currency.
func (s *Service) Checkout(ctx context.Context, cartID int64, currency string) (*Snapshot, error) {
	c, items, err := s.carts.Get(ctx, cartID, currency)
	if err != nil {
		return nil, err
	}

	switch {
	case c.OrderID != nil:
		return nil, ErrAlreadyOrdered
	case len(items) == 0:
		return nil, ErrEmpty
	case c.DeliveryMethod == nil:
		return nil, ErrMissingDeliveryMethod
	case c.PaymentMethod == nil:
		return nil, ErrMissingPaymentMethod
	}

	stats, err := s.calculator.Calculate(c, items, currency)
	if err != nil {
		return nil, errors.Wrap(err, "calculate statistics")
	}

	return &Snapshot{Cart: c, Items: items, Statistics: stats}, nil
}
