// Package order places orders from carts and serves them back.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront-orders/internal/domain/cart"
	"github.com/xenking/storefront-orders/internal/domain/locale"
	"github.com/xenking/storefront-orders/internal/domain/payment"
	"github.com/xenking/storefront-orders/internal/events"
)

const (
	instrumentationName = "github.com/xenking/storefront-orders/internal/domain/order"
	maxIndexAttempts    = 3
)

// Checkouter prepares a cart snapshot for placement.
type Checkouter interface {
	Checkout(ctx context.Context, cartID int64, currency string) (*cart.Snapshot, error)
}

// PaymentLinker builds the storefront URL the gateway returns to.
type PaymentLinker interface {
	PaymentReturn(index, hash, icu string) string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTracerProvider sets the tracer provider used for spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider sets the meter provider used for the placement counter.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter(instrumentationName) }
}

// Service encapsulates order placement and retrieval.
type Service struct {
	carts     Checkouter
	orders    Repository
	publisher events.Publisher
	links     PaymentLinker

	now    func() time.Time
	tracer trace.Tracer
	meter  metric.Meter
	placed metric.Int64Counter
}

// NewService creates an order Service.
func NewService(
	carts Checkouter,
	orders Repository,
	publisher events.Publisher,
	links PaymentLinker,
	opts ...Option,
) *Service {
	s := &Service{
		carts:     carts,
		orders:    orders,
		publisher: publisher,
		links:     links,
		now:       time.Now,
		tracer:    otel.GetTracerProvider().Tracer(instrumentationName),
		meter:     otel.GetMeterProvider().Meter(instrumentationName),
	}
	for _, o := range opts {
		o(s)
	}

	placed, err := s.meter.Int64Counter("orders.placed",
		metric.WithDescription("Number of placed orders"),
	)
	if err != nil {
		placed = noop.Int64Counter{}
	}
	s.placed = placed

	return s
}

// PlaceOrder converts the cart into a persisted order priced in the locale
// currency and publishes an order.updated event.
func (s *Service) PlaceOrder(ctx context.Context, cartID int64, loc *locale.Locale) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "PlaceOrder",
		trace.WithAttributes(
			attribute.Int64("cart.id", cartID),
			attribute.String("locale", loc.Code),
		),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	snap, err := s.carts.Checkout(ctx, cartID, loc.Currency.Code)
	if err != nil {
		return nil, errors.Wrap(err, "checkout cart")
	}
	c := snap.Cart

	o := &Order{
		Locale:     *loc,
		CreatedAt:  s.now(),
		Hash:       newSecureHash(),
		CustomerID: c.CustomerID,
		StatusCode: StatusNew,

		DeliveryMethodID:   c.DeliveryMethod.ID,
		DeliveryMethodCode: c.DeliveryMethod.Code,
		PaymentMethodID:    c.PaymentMethod.ID,
		PaymentMethodCode:  c.PaymentMethod.Code,
		PaymentOnline:      c.PaymentMethod.Online,
	}
	s.SaveAddresses(o, c)
	hydrateFromCart(o, c)
	applyStatistics(o, snap.Statistics)

	for _, applied := range snap.Statistics.Rules {
		o.Vouchers = append(o.Vouchers, Voucher{
			CartRuleID: applied.Rule.ID,
			Code:       applied.Rule.Code,
			Discount:   applied.Discount,
		})
	}

	for _, ci := range snap.Items {
		item, err := newItem(ci, loc.Currency.Code)
		if err != nil {
			return nil, err
		}
		o.Items = append(o.Items, item)
	}

	if err := s.create(ctx, o, cartID); err != nil {
		return nil, err
	}
	s.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("locale", loc.Code)))
	span.SetAttributes(attribute.String("order.index", o.Index))

	lg := zctx.From(ctx)
	lg.Info("Order placed",
		zap.Int64("order_id", o.ID),
		zap.String("index", o.Index),
		zap.Int64("cart_id", cartID),
		zap.Stringer("total", o.TotalPrice),
	)

	// The order is committed at this point; a failed notification must not
	// turn a placed order into an error for the customer.
	if err := s.UpdateOrder(ctx, o.ID); err != nil {
		lg.Error("Publish order update", zap.Int64("order_id", o.ID), zap.Error(err))
	}

	return o, nil
}

// create allocates an index and stores the order, retrying when a
// concurrent placement took the same index.
func (s *Service) create(ctx context.Context, o *Order, cartID int64) error {
	for attempt := 1; ; attempt++ {
		index, err := s.GenerateIndex(ctx)
		if err != nil {
			return errors.Wrap(err, "generate index")
		}
		o.Index = index

		err = s.orders.Create(ctx, o, cartID)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrIndexTaken) && attempt < maxIndexAttempts:
			zctx.From(ctx).Warn("Order index taken, retrying",
				zap.String("index", index),
				zap.Int("attempt", attempt),
			)
		case errors.Is(err, cart.ErrAlreadyOrdered):
			return err
		default:
			return errors.Wrap(err, "create order")
		}
	}
}

// UpdateOrder reloads the order and publishes its current state.
func (s *Service) UpdateOrder(ctx context.Context, id int64) error {
	d, err := s.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, NewUpdatedEvent(d)); err != nil {
		return errors.Wrap(err, "publish")
	}
	return nil
}

// SaveAddresses copies the cart addresses onto orders of known customers.
// The delivery address is skipped for personal pickup.
func (s *Service) SaveAddresses(o *Order, c *cart.Cart) {
	if o.CustomerID == nil {
		return
	}
	if c.BillingAddress != nil {
		a := Address(*c.BillingAddress)
		o.BillingAddress = &a
	}
	pickup := c.DeliveryMethod != nil && c.DeliveryMethod.Code == cart.PersonalPickup
	if !pickup && c.DeliveryAddress != nil {
		a := Address(*c.DeliveryAddress)
		o.DeliveryAddress = &a
	}
}

// GenerateIndex returns the next free index for the current month.
func (s *Service) GenerateIndex(ctx context.Context) (string, error) {
	now := s.now()
	last, err := s.orders.LastIndexSince(ctx, MonthStart(now))
	if err != nil {
		return "", errors.Wrap(err, "last index")
	}
	return NextIndex(now, last), nil
}

// GetOrder returns the order detail by id.
func (s *Service) GetOrder(ctx context.Context, id int64) (*Detail, error) {
	d, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %d", id)
	}
	return d, nil
}

// GetByIndex returns the order detail by its human-readable index.
func (s *Service) GetByIndex(ctx context.Context, index string) (*Detail, error) {
	d, err := s.orders.FindByIndex(ctx, index)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", index)
	}
	return d, nil
}

// GetOnlineOperation builds the gateway operation paying the order deposit,
// or the whole total when the order has no deposit.
func (s *Service) GetOnlineOperation(o *Order) payment.Operation {
	amount := o.Deposit
	if amount.IsZero() {
		amount = o.TotalPrice
	}
	// Unix seconds: operations built for one order within the same second
	// share a number and the gateway rejects the second one.
	return payment.Operation{
		OrderNumber: s.now().Unix(),
		Amount:      amount,
		Currency:    o.Locale.Currency.GPWebPayIdentifier(),
		ResponseURL: s.links.PaymentReturn(o.Index, o.Hash, o.Locale.ICU),
	}
}

func hydrateFromCart(o *Order, c *cart.Cart) {
	o.Email = c.Email
	o.Phone = c.Phone
	o.Note = c.Note
	o.Assembly = c.Assembly
	o.FullDelivery = c.FullDelivery
}

func applyStatistics(o *Order, st cart.Statistics) {
	o.ProductsPrice = st.ProductsPrice
	o.TotalDiscount = st.TotalDiscount

	o.DeliveryPrice = st.DeliveryPrice
	o.TotalDeliveryPrice = st.DeliveryPrice
	if o.Assembly {
		o.AssemblyPrice = st.AssemblyPrice
		o.TotalDeliveryPrice = o.TotalDeliveryPrice.Add(o.AssemblyPrice)
	}
	if o.FullDelivery {
		o.FullDeliveryPrice = st.FullDeliveryPrice
		o.TotalDeliveryPrice = o.TotalDeliveryPrice.Add(o.FullDeliveryPrice)
	}

	o.TotalPrice = st.TotalPrice
	o.Deposit = st.Deposit
}

func newItem(ci cart.Item, currency string) (Item, error) {
	item := Item{
		ProductID:        ci.ProductID,
		VariantID:        ci.VariantID,
		Quantity:         ci.Quantity,
		SurfaceFinishID:  ci.SurfaceFinishID,
		ClothID:          ci.ClothID,
		GlassID:          ci.GlassID,
		WeightCategoryID: ci.WeightCategoryID,
		IsGift:           ci.IsGift,
	}
	if !item.IsGift {
		price, ok := ci.Price(currency)
		if !ok {
			return Item{}, &cart.MissingPriceError{VariantID: ci.VariantID, Currency: currency}
		}
		item.SinglePrice = price
	}
	item.TotalPrice = item.SinglePrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
	return item, nil
}
