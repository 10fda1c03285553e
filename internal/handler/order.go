package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-orders/internal/domain/cart"
	"github.com/xenking/storefront-orders/internal/domain/cartrule"
	"github.com/xenking/storefront-orders/internal/domain/locale"
	"github.com/xenking/storefront-orders/internal/domain/order"
	"github.com/xenking/storefront-orders/internal/wire"
	"github.com/xenking/storefront-orders/pkg/httpmiddleware"
)

// PlaceOrder handles POST /api/carts/{cartID}/orders?locale=.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cartID, err := strconv.ParseInt(r.PathValue("cartID"), 10, 64)
	if err != nil || cartID <= 0 {
		httpmiddleware.WriteError(w, http.StatusBadRequest, "invalid cart id")
		return
	}

	code := r.URL.Query().Get("locale")
	if code == "" {
		code = h.cfg.DefaultLocale
	}
	loc, err := h.locales.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, locale.ErrNotFound) {
			httpmiddleware.WriteError(w, http.StatusBadRequest, "unknown locale "+strconv.Quote(code))
			return
		}
		h.internalError(w, r, err)
		return
	}

	o, err := h.orders.PlaceOrder(ctx, cartID, loc)
	if err != nil {
		h.placeOrderError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("order", func(e *jx.Encoder) { wire.EncodeOrder(e, o) })
			if o.PaymentOnline {
				e.Field("payment", func(e *jx.Encoder) {
					wire.EncodeOperation(e, h.orders.GetOnlineOperation(o), h.cfg.MerchantNumber)
				})
			}
		})
	})
}

func (h *Handler) placeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound     *cart.NotFoundError
		missingPrice *cart.MissingPriceError
	)
	switch {
	case errors.As(err, &notFound):
		httpmiddleware.WriteError(w, http.StatusNotFound, notFound.Error())
	case errors.Is(err, cart.ErrAlreadyOrdered):
		httpmiddleware.WriteError(w, http.StatusConflict, cart.ErrAlreadyOrdered.Error())
	case errors.Is(err, cart.ErrEmpty):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, cart.ErrEmpty.Error())
	case errors.Is(err, cart.ErrMissingDeliveryMethod):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, cart.ErrMissingDeliveryMethod.Error())
	case errors.Is(err, cart.ErrMissingPaymentMethod):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, cart.ErrMissingPaymentMethod.Error())
	case errors.Is(err, cart.ErrMissingDeliveryPrice):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, cart.ErrMissingDeliveryPrice.Error())
	case errors.Is(err, cartrule.ErrUsageLimitReached):
		httpmiddleware.WriteError(w, http.StatusConflict, cartrule.ErrUsageLimitReached.Error())
	case errors.As(err, &missingPrice):
		httpmiddleware.WriteError(w, http.StatusUnprocessableEntity, missingPrice.Error())
	default:
		h.internalError(w, r, err)
	}
}

// findOrder loads the order by path index and checks the hash query
// parameter. It writes the error response and returns nil on failure.
// A hash mismatch looks exactly like a missing order.
func (h *Handler) findOrder(w http.ResponseWriter, r *http.Request) *order.Detail {
	d, err := h.orders.GetByIndex(r.Context(), r.PathValue("index"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			httpmiddleware.WriteError(w, http.StatusNotFound, order.ErrNotFound.Error())
			return nil
		}
		h.internalError(w, r, err)
		return nil
	}
	if !d.Order.VerifyHash(r.URL.Query().Get("hash")) {
		httpmiddleware.WriteError(w, http.StatusNotFound, order.ErrNotFound.Error())
		return nil
	}
	return d
}

// GetOrder handles GET /api/orders/{index}?hash=.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	d := h.findOrder(w, r)
	if d == nil {
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { wire.EncodeDetail(e, d) })
}

// GetPayment handles GET /api/orders/{index}/payment?hash=.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	d := h.findOrder(w, r)
	if d == nil {
		return
	}
	if !d.Order.PaymentOnline {
		httpmiddleware.WriteError(w, http.StatusConflict, "order is not paid online")
		return
	}
	op := h.orders.GetOnlineOperation(d.Order)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		wire.EncodeOperation(e, op, h.cfg.MerchantNumber)
	})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	zctx.From(r.Context()).Error("Request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal error")
}
