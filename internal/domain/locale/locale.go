// Package locale describes storefront locales and their billing currency.
package locale

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a locale code is not configured.
var ErrNotFound = errors.New("locale not found")

// Currency is an ISO 4217 currency.
type Currency struct {
	Code    string
	Numeric int
}

// GPWebPayIdentifier returns the identifier the payment gateway uses for the
// currency, which is the ISO 4217 numeric code.
func (c Currency) GPWebPayIdentifier() int {
	return c.Numeric
}

// Locale is a storefront language/market pair, e.g. cs / cs_CZ / CZK.
type Locale struct {
	Code     string
	ICU      string
	Currency Currency
}

// Repository looks up configured locales.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Locale, error)
}
