// Package handler exposes the order service over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront-orders/internal/domain/locale"
	"github.com/xenking/storefront-orders/internal/domain/order"
	"github.com/xenking/storefront-orders/internal/domain/payment"
	"github.com/xenking/storefront-orders/pkg/httpmiddleware"
)

// OrderService is the part of *order.Service used by the handlers.
type OrderService interface {
	PlaceOrder(ctx context.Context, cartID int64, loc *locale.Locale) (*order.Order, error)
	GetByIndex(ctx context.Context, index string) (*order.Detail, error)
	GetOnlineOperation(o *order.Order) payment.Operation
}

// Config holds non-dependency handler settings.
type Config struct {
	// DefaultLocale is used when a request has no locale query parameter.
	DefaultLocale string
	// MerchantNumber is the GP WebPay merchant the payment params are for.
	MerchantNumber string
}

// Handler serves the storefront order API.
type Handler struct {
	orders  OrderService
	locales locale.Repository
	cfg     Config
}

// New creates a Handler.
func New(cfg Config, orders OrderService, locales locale.Repository) *Handler {
	return &Handler{
		orders:  orders,
		locales: locales,
		cfg:     cfg,
	}
}

// Register mounts the API routes on mux. Every route requires auth;
// order placement is additionally rate limited.
func (h *Handler) Register(mux *http.ServeMux, auth, placeLimit httpmiddleware.Middleware) {
	mux.Handle("POST /api/carts/{cartID}/orders",
		httpmiddleware.Wrap(http.HandlerFunc(h.PlaceOrder), auth, placeLimit))
	mux.Handle("GET /api/orders/{index}",
		httpmiddleware.Wrap(http.HandlerFunc(h.GetOrder), auth))
	mux.Handle("GET /api/orders/{index}/payment",
		httpmiddleware.Wrap(http.HandlerFunc(h.GetPayment), auth))
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
