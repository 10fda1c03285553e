package order

import (
	"context"
	"crypto/subtle"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-orders/internal/domain/locale"
)

// StatusNew is the status code of freshly placed orders.
const StatusNew = "new"

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrIndexTaken is returned by Repository.Create when another order
	// already holds the generated index.
	ErrIndexTaken = errors.New("order index already taken")
)

// Address is a billing or delivery address stored with the order.
type Address struct {
	Name    string `json:"name"`
	Company string `json:"company,omitempty"`
	Street  string `json:"street"`
	City    string `json:"city"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
	Phone   string `json:"phone,omitempty"`
}

// Order is a placed order with its pricing snapshot.
type Order struct {
	ID         int64
	Index      string
	Hash       string
	Locale     locale.Locale
	CustomerID *int64
	CreatedAt  time.Time
	StatusCode string

	DeliveryMethodID   int64
	DeliveryMethodCode string
	PaymentMethodID    int64
	PaymentMethodCode  string
	PaymentOnline      bool

	Email        string
	Phone        string
	Note         string
	Assembly     bool
	FullDelivery bool

	BillingAddress  *Address
	DeliveryAddress *Address

	ProductsPrice      decimal.Decimal
	TotalDiscount      decimal.Decimal
	DeliveryPrice      decimal.Decimal
	AssemblyPrice      decimal.Decimal
	FullDeliveryPrice  decimal.Decimal
	TotalDeliveryPrice decimal.Decimal
	TotalPrice         decimal.Decimal
	Deposit            decimal.Decimal

	Items    []Item
	Vouchers []Voucher
}

// Item is an ordered line.
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
	SinglePrice      decimal.Decimal
	TotalPrice       decimal.Decimal
}

// Voucher records a cart rule applied to the order.
type Voucher struct {
	ID         int64
	CartRuleID int64
	Code       string
	Discount   decimal.Decimal
}

// VerifyHash reports whether h matches the order's secure hash.
func (o *Order) VerifyHash(h string) bool {
	return subtle.ConstantTimeCompare([]byte(o.Hash), []byte(h)) == 1
}

// AggregateID returns the order id as a string.
func (o *Order) AggregateID() string {
	return strconv.FormatInt(o.ID, 10)
}

// newSecureHash returns a random token that authorizes anonymous access to
// the order (status page, payment return).
func newSecureHash() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Translated is a coded entity with its name in the order locale. Name
// falls back to Code when no translation exists.
type Translated struct {
	ID   int64
	Code string
	Name string
}

// Image is a variant image.
type Image struct {
	Path     string
	Position int
}

// Parameter is a localized variant parameter, e.g. Width: 120 cm.
type Parameter struct {
	Name  string
	Value string
}

// Product is the catalog product of an ordered item.
type Product struct {
	ID       int64
	Code     string
	Name     string
	Category *Translated
}

// Variant is the catalog variant of an ordered item.
type Variant struct {
	ID           int64
	Code         string
	Availability *Translated
	Images       []Image
	Parameters   []Parameter
}

// ItemDetail is an ordered line joined with its catalog data.
type ItemDetail struct {
	Item
	Product        Product
	Variant        Variant
	SurfaceFinish  *Translated
	Cloth          *Translated
	Glass          *Translated
	WeightCategory *Translated
}

// Detail is the full read model of an order.
type Detail struct {
	Order          *Order
	Status         Translated
	DeliveryMethod Translated
	PaymentMethod  Translated
	Items          []ItemDetail
}

// Repository persists and loads orders.
type Repository interface {
	// LastIndexSince returns the highest index of orders created at or after
	// since, or "" when there are none.
	LastIndexSince(ctx context.Context, since time.Time) (string, error)
	// Create stores the order with its items and vouchers, increments the
	// use counter of every applied cart rule and marks the cart as ordered,
	// all in one transaction. It fills in the generated ids. A rule that ran
	// out of uses fails with cartrule.ErrUsageLimitReached.
	Create(ctx context.Context, o *Order, cartID int64) error
	FindByID(ctx context.Context, id int64) (*Detail, error)
	FindByIndex(ctx context.Context, index string) (*Detail, error)
}
