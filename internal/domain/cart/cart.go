// Package cart reads server-side shopping carts and prices them for checkout.
package cart

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-orders/internal/domain/cartrule"
)

// PersonalPickup is the delivery method code for in-store pickup.
const PersonalPickup = "personal_pickup"

var (
	// ErrEmpty is returned when a cart has no items.
	ErrEmpty = errors.New("cart is empty")
	// ErrAlreadyOrdered is returned when a cart was already converted to an order.
	ErrAlreadyOrdered = errors.New("cart already ordered")
	// ErrMissingDeliveryMethod is returned when no delivery method was chosen.
	ErrMissingDeliveryMethod = errors.New("delivery method required")
	// ErrMissingPaymentMethod is returned when no payment method was chosen.
	ErrMissingPaymentMethod = errors.New("payment method required")
	// ErrMissingDeliveryPrice is returned when the chosen delivery method has
	// no price in the requested currency.
	ErrMissingDeliveryPrice = errors.New("delivery method has no price in currency")
)

// NotFoundError indicates a requested cart does not exist.
type NotFoundError struct {
	CartID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cart %d not found", e.CartID)
}

// MissingPriceError indicates a cart item has no price in the requested
// currency.
type MissingPriceError struct {
	VariantID int64
	Currency  string
}

func (e *MissingPriceError) Error() string {
	return fmt.Sprintf("variant %d has no price in %s", e.VariantID, e.Currency)
}

// Address is a postal address captured in the checkout form.
type Address struct {
	Name    string `json:"name"`
	Company string `json:"company,omitempty"`
	Street  string `json:"street"`
	City    string `json:"city"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
	Phone   string `json:"phone,omitempty"`
}

// DeliveryMethod carries delivery prices already resolved to one currency.
type DeliveryMethod struct {
	ID                int64
	Code              string
	Price             decimal.Decimal
	AssemblyPrice     decimal.Decimal
	FullDeliveryPrice decimal.Decimal
}

// PaymentMethod describes how the customer pays.
type PaymentMethod struct {
	ID     int64
	Code   string
	Online bool
	// DepositPercent is the share of the total paid upfront; zero means the
	// whole amount.
	DepositPercent decimal.Decimal
}

// Cart is the checkout state of a customer's basket.
type Cart struct {
	ID              int64
	CustomerID      *int64
	Email           string
	Phone           string
	Note            string
	Assembly        bool
	FullDelivery    bool
	DeliveryMethod  *DeliveryMethod
	PaymentMethod   *PaymentMethod
	BillingAddress  *Address
	DeliveryAddress *Address
	Rules           []cartrule.Rule
	OrderID         *int64
}

// Item is a single cart line.
type Item struct {
	ID               int64
	ProductID        int64
	VariantID        int64
	Quantity         int
	SurfaceFinishID  *int64
	ClothID          *int64
	GlassID          *int64
	WeightCategoryID *int64
	IsGift           bool
	// Prices holds the variant unit price per currency code.
	Prices map[string]decimal.Decimal
}

// Price returns the unit price of the item in the given currency.
func (i Item) Price(currency string) (decimal.Decimal, bool) {
	p, ok := i.Prices[currency]
	return p, ok
}

// AppliedRule is a cart rule together with the discount it granted.
type AppliedRule struct {
	Rule     cartrule.Rule
	Discount decimal.Decimal
}

// Statistics is the finished price breakdown of a cart.
type Statistics struct {
	ProductsPrice     decimal.Decimal
	TotalDiscount     decimal.Decimal
	DeliveryPrice     decimal.Decimal
	AssemblyPrice     decimal.Decimal
	FullDeliveryPrice decimal.Decimal
	TotalPrice        decimal.Decimal
	Deposit           decimal.Decimal
	Rules             []AppliedRule
}

// Snapshot is a loaded cart with its items and computed statistics.
type Snapshot struct {
	Cart       *Cart
	Items      []Item
	Statistics Statistics
}

// Repository loads carts. DeliveryMethod prices are resolved to currency;
// a method without a price in currency fails with ErrMissingDeliveryPrice.
type Repository interface {
	Get(ctx context.Context, id int64, currency string) (*Cart, []Item, error)
}
