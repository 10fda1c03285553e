// Package app wires the API server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-orders/internal/domain/cart"
	"github.com/xenking/storefront-orders/internal/domain/order"
	"github.com/xenking/storefront-orders/internal/domain/payment"
	"github.com/xenking/storefront-orders/internal/events"
	"github.com/xenking/storefront-orders/internal/handler"
	"github.com/xenking/storefront-orders/internal/outbox"
	"github.com/xenking/storefront-orders/internal/storage/postgres"
	"github.com/xenking/storefront-orders/pkg/health"
	"github.com/xenking/storefront-orders/pkg/httpmiddleware"
)

const serviceName = "storefront-orders"

// Run creates all dependencies, serves HTTP, relays the outbox and shuts
// everything down when ctx is cancelled.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories.
	locales := postgres.NewLocaleRepository(pool)
	carts := postgres.NewCartRepository(pool)
	orders := postgres.NewOrderRepository(pool)
	apikeys := postgres.NewAPIKeyRepository(pool)
	outboxRepo := postgres.NewOutboxRepository(pool)

	// Events.
	bus := events.NewBus()
	bus.Subscribe(order.EventUpdated, events.HandlerFunc(logOrderUpdated))
	bus.Subscribe(order.EventUpdated, outbox.NewSubscriber(outboxRepo, cfg.Kafka.Topic))

	// Domain services.
	links, err := payment.NewLinkGenerator(cfg.StorefrontURL)
	if err != nil {
		return errors.Wrap(err, "storefront url")
	}
	cartService := cart.NewService(carts, cart.NewStandardCalculator())
	orderService := order.NewService(cartService, orders, bus, links,
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	)

	// HTTP.
	h := handler.New(handler.Config{
		DefaultLocale:  cfg.DefaultLocale,
		MerchantNumber: cfg.GPWebPay.MerchantNumber,
	}, orderService, locales)
	limiter := httpmiddleware.NewLimiter(httpmiddleware.RateLimitConfig{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux, handler.APIKeyAuth(apikeys, []byte(cfg.APIKeyPepper)), limiter.Middleware())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument(serviceName, m),
			httpmiddleware.LogRequests(),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		limiter.RunPruner(gctx)
		return nil
	})

	if len(cfg.Kafka.Brokers) > 0 {
		writer := outbox.NewWriter(cfg.Kafka.Brokers)
		defer func() {
			if err := writer.Close(); err != nil {
				lg.Error("Close kafka writer", zap.Error(err))
			}
		}()
		relay := outbox.NewRelay(outboxRepo, writer, cfg.Kafka.Interval, cfg.Kafka.Batch)
		g.Go(func() error { return relay.Run(gctx) })
	} else {
		lg.Info("Outbox relay disabled: no kafka brokers configured")
	}

	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})

	g.Go(func() error {
		healthSvc.SetReady(true)
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}

func logOrderUpdated(ctx context.Context, ev events.Event) error {
	updated, ok := ev.(order.UpdatedEvent)
	if !ok {
		return errors.Errorf("unexpected event %T", ev)
	}
	o := updated.Detail.Order
	zctx.From(ctx).Info("Order updated",
		zap.String("event_id", updated.EventID()),
		zap.Int64("order_id", o.ID),
		zap.String("index", o.Index),
		zap.String("status", o.StatusCode),
		zap.Stringer("total", o.TotalPrice),
		zap.Int("items", len(o.Items)),
	)
	return nil
}
