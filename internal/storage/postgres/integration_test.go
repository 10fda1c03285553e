//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/storefront-orders/internal/domain/auth"
	"github.com/xenking/storefront-orders/internal/domain/cart"
	"github.com/xenking/storefront-orders/internal/domain/cartrule"
	"github.com/xenking/storefront-orders/internal/domain/locale"
	"github.com/xenking/storefront-orders/internal/domain/order"
	"github.com/xenking/storefront-orders/internal/domain/payment"
	"github.com/xenking/storefront-orders/internal/events"
	"github.com/xenking/storefront-orders/internal/outbox"
	"github.com/xenking/storefront-orders/internal/storage/postgres"
)

const ordersTopic = "storefront.orders"

var pool *pgxpool.Pool

const seedSQL = `
INSERT INTO locales VALUES ('cs', 'cs_CZ', 'CZK', 203), ('en', 'en_GB', 'EUR', 978);
INSERT INTO order_statuses (id, code) VALUES (1, 'new');
INSERT INTO translations VALUES ('order_status', 1, 'cs', 'Nová');
INSERT INTO delivery_methods (id, code) VALUES (1, 'personal_pickup'), (2, 'courier');
INSERT INTO delivery_method_prices VALUES (1, 'CZK', 0, 0, 0), (2, 'CZK', 490, 990, 1490);
INSERT INTO payment_methods (id, code, online, deposit_percent) VALUES (1, 'cash', FALSE, 0), (2, 'card', TRUE, 30);
INSERT INTO translations VALUES ('payment_method', 2, 'cs', 'Karta');
INSERT INTO categories (id, code) VALUES (1, 'tables');
INSERT INTO surface_finishes (id, code) VALUES (1, 'oil');
INSERT INTO translations VALUES ('surface_finish', 1, 'cs', 'Olej');
INSERT INTO cloths (id, code) VALUES (1, 'velvet');
INSERT INTO products (id, code, category_id, removed) VALUES (1, 'table', 1, FALSE), (2, 'sofa', 1, TRUE);
INSERT INTO translations VALUES ('product', 1, 'cs', 'Stůl');
INSERT INTO product_variants (id, product_id, code, removed) VALUES (1, 1, 'table-160', FALSE), (2, 2, 'sofa-red', TRUE);
INSERT INTO variant_prices VALUES (1, 'CZK', 1000), (2, 'CZK', 500);
INSERT INTO images (id, path) VALUES (1, 'table/b.jpg'), (2, 'table/a.jpg');
INSERT INTO variant_images VALUES (1, 1, 1), (1, 2, 0);
INSERT INTO parameters (id, code) VALUES (1, 'width');
INSERT INTO parameter_values (id, parameter_id, code) VALUES (1, 1, '160 cm');
INSERT INTO variant_parameters (variant_id, parameter_id, value_id) VALUES (1, 1, 1);
INSERT INTO cart_rules (id, code, name, discount_type, value) VALUES
	(1, 'WELCOME10', 'Welcome', 'percentage', 10),
	(2, 'PARTNER', 'Partner', 'fixed', 100);
UPDATE cart_rules SET active = FALSE WHERE code = 'PARTNER';
INSERT INTO carts (id, customer_id, email, assembly, delivery_method_id, payment_method_id, billing_address, delivery_address) VALUES
	(1, 7, 'a@example.com', TRUE, 2, 2, '{"name":"A","street":"S 1","city":"Praha","zip":"11000","country":"CZ"}', '{"name":"A","street":"D 2","city":"Brno","zip":"60200","country":"CZ"}'),
	(2, NULL, 'b@example.com', FALSE, 1, 1, NULL, NULL),
	(3, NULL, 'c@example.com', FALSE, NULL, 1, NULL, NULL);
INSERT INTO cart_items (cart_id, product_id, variant_id, quantity, surface_finish_id, cloth_id) VALUES
	(1, 1, 1, 2, 1, 1), (1, 2, 2, 1, NULL, NULL), (2, 1, 1, 1, NULL, NULL), (3, 1, 1, 1, NULL, NULL);
INSERT INTO cart_applied_rules VALUES (1, 1);
SELECT setval(pg_get_serial_sequence('carts', 'id'), 3);
SELECT setval(pg_get_serial_sequence('cart_rules', 'id'), 2);
`

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "shop",
				"POSTGRES_PASSWORD": "shop",
				"POSTGRES_DB":       "shop",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Printf("start postgres: %v", err)
		return 1
	}
	defer func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	host, err := ctr.Host(ctx)
	if err != nil {
		log.Printf("host: %v", err)
		return 1
	}
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Printf("mapped port: %v", err)
		return 1
	}

	dsn := fmt.Sprintf("postgres://shop:shop@%s:%s/shop?sslmode=disable", host, port.Port())
	if pool, err = postgres.NewPool(ctx, dsn); err != nil {
		log.Printf("pool: %v", err)
		return 1
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		log.Printf("migrations: %v", err)
		return 1
	}
	if _, err := pool.Exec(ctx, seedSQL); err != nil {
		log.Printf("seed: %v", err)
		return 1
	}

	return m.Run()
}

func newOrderService(t *testing.T) *order.Service {
	t.Helper()

	links, err := payment.NewLinkGenerator("https://shop.test")
	require.NoError(t, err)

	bus := events.NewBus()
	bus.Subscribe(order.EventUpdated, outbox.NewSubscriber(postgres.NewOutboxRepository(pool), ordersTopic))

	carts := cart.NewService(postgres.NewCartRepository(pool), cart.NewStandardCalculator())
	return order.NewService(carts, postgres.NewOrderRepository(pool), bus, links)
}

func czLocale(t *testing.T) *locale.Locale {
	t.Helper()
	loc, err := postgres.NewLocaleRepository(pool).FindByCode(context.Background(), "cs")
	require.NoError(t, err)
	return loc
}

func TestLocaleRepository(t *testing.T) {
	loc := czLocale(t)
	assert.Equal(t, "cs_CZ", loc.ICU)
	assert.Equal(t, locale.Currency{Code: "CZK", Numeric: 203}, loc.Currency)

	_, err := postgres.NewLocaleRepository(pool).FindByCode(context.Background(), "xx")
	require.ErrorIs(t, err, locale.ErrNotFound)
}

func TestCartRepository(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewCartRepository(pool)

	c, items, err := repo.Get(ctx, 1, "CZK")
	require.NoError(t, err)
	require.NotNil(t, c.DeliveryMethod)
	assert.Equal(t, "courier", c.DeliveryMethod.Code)
	assert.True(t, decimal.NewFromInt(990).Equal(c.DeliveryMethod.AssemblyPrice))
	require.NotNil(t, c.PaymentMethod)
	assert.True(t, c.PaymentMethod.Online)
	require.NotNil(t, c.BillingAddress)
	assert.Equal(t, "Praha", c.BillingAddress.City)
	require.Len(t, c.Rules, 1)
	assert.Equal(t, "WELCOME10", c.Rules[0].Code)
	require.Len(t, items, 2)
	price, ok := items[0].Price("CZK")
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(1000).Equal(price))

	c, _, err = repo.Get(ctx, 3, "CZK")
	require.NoError(t, err)
	assert.Nil(t, c.DeliveryMethod)

	// Delivery methods are only priced in CZK.
	_, _, err = repo.Get(ctx, 2, "EUR")
	require.ErrorIs(t, err, cart.ErrMissingDeliveryPrice)

	_, _, err = repo.Get(ctx, 404, "CZK")
	var nf *cart.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, int64(404), nf.CartID)
}

func TestPlaceOrder(t *testing.T) {
	ctx := context.Background()
	svc := newOrderService(t)
	loc := czLocale(t)

	o, err := svc.PlaceOrder(ctx, 1, loc)
	require.NoError(t, err)
	assert.NotZero(t, o.ID)
	assert.True(t, strings.HasPrefix(o.Index, time.Now().Format("0601")), o.Index)
	require.Len(t, o.Vouchers, 1)
	assert.NotZero(t, o.Vouchers[0].ID)

	t.Run("Detail", func(t *testing.T) {
		d, err := svc.GetByIndex(ctx, o.Index)
		require.NoError(t, err)
		assert.Equal(t, o.ID, d.Order.ID)
		assert.Equal(t, "Nová", d.Status.Name)
		assert.Equal(t, "courier", d.DeliveryMethod.Name)
		assert.Equal(t, "Karta", d.PaymentMethod.Name)
		require.NotNil(t, d.Order.DeliveryAddress)
		assert.Equal(t, "Brno", d.Order.DeliveryAddress.City)

		// The removed sofa is stored with the order but hidden from the detail.
		require.Len(t, d.Items, 1)
		item := d.Items[0]
		assert.Equal(t, "Stůl", item.Product.Name)
		assert.Equal(t, 2, item.Quantity)
		require.Len(t, item.Variant.Images, 2)
		assert.Equal(t, "table/a.jpg", item.Variant.Images[0].Path)
		require.Len(t, item.Variant.Parameters, 1)
		assert.Equal(t, order.Parameter{Name: "width", Value: "160 cm"}, item.Variant.Parameters[0])

		// Untranslated entities are named by their code.
		require.NotNil(t, item.Product.Category)
		assert.Equal(t, order.Translated{ID: 1, Code: "tables", Name: "tables"}, *item.Product.Category)
		require.NotNil(t, item.SurfaceFinish)
		assert.Equal(t, order.Translated{ID: 1, Code: "oil", Name: "Olej"}, *item.SurfaceFinish)
		require.NotNil(t, item.Cloth)
		assert.Equal(t, order.Translated{ID: 1, Code: "velvet", Name: "velvet"}, *item.Cloth)
		assert.Nil(t, item.Glass)

		require.Len(t, d.Order.Vouchers, 1)
		assert.Equal(t, "WELCOME10", d.Order.Vouchers[0].Code)
	})

	t.Run("RuleUses", func(t *testing.T) {
		var uses int
		require.NoError(t, pool.QueryRow(ctx, `SELECT uses FROM cart_rules WHERE code = 'WELCOME10'`).Scan(&uses))
		assert.Equal(t, 1, uses)
	})

	t.Run("Outbox", func(t *testing.T) {
		pending, err := postgres.NewOutboxRepository(pool).FetchPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, ordersTopic, pending[0].Topic)
		assert.Equal(t, o.Index, pending[0].Key)
		assert.Contains(t, string(pending[0].Payload), o.Index)

		require.NoError(t, postgres.NewOutboxRepository(pool).MarkSent(ctx, pending[0].ID))
		pending, err = postgres.NewOutboxRepository(pool).FetchPending(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("AlreadyOrdered", func(t *testing.T) {
		_, err := svc.PlaceOrder(ctx, 1, loc)
		require.ErrorIs(t, err, cart.ErrAlreadyOrdered)
	})

	t.Run("MissingDeliveryMethod", func(t *testing.T) {
		_, err := svc.PlaceOrder(ctx, 3, loc)
		require.ErrorIs(t, err, cart.ErrMissingDeliveryMethod)
	})

	t.Run("NextIndex", func(t *testing.T) {
		next, err := svc.PlaceOrder(ctx, 2, loc)
		require.NoError(t, err)
		assert.Equal(t, order.NextIndex(time.Now(), o.Index), next.Index)
		assert.Nil(t, next.BillingAddress)
	})
}

func TestOrderRepositoryCreateConflicts(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewOrderRepository(pool)
	loc := czLocale(t)

	_, err := pool.Exec(ctx, `INSERT INTO carts (id, email, delivery_method_id, payment_method_id)
		VALUES (10, 'x@example.com', 1, 1), (11, 'y@example.com', 1, 1)`)
	require.NoError(t, err)

	newOrder := func(index string) *order.Order {
		return &order.Order{
			Index:            index,
			Hash:             "hash",
			Locale:           *loc,
			StatusCode:       order.StatusNew,
			CreatedAt:        time.Date(1999, time.December, 1, 12, 0, 0, 0, time.UTC),
			DeliveryMethodID: 1,
			PaymentMethodID:  1,
			Items: []order.Item{{
				ProductID:   1,
				VariantID:   1,
				Quantity:    1,
				SinglePrice: decimal.NewFromInt(1000),
				TotalPrice:  decimal.NewFromInt(1000),
			}},
		}
	}

	require.NoError(t, repo.Create(ctx, newOrder("9912000001"), 10))
	require.ErrorIs(t, repo.Create(ctx, newOrder("9912000001"), 11), order.ErrIndexTaken)
	require.ErrorIs(t, repo.Create(ctx, newOrder("9912000002"), 10), cart.ErrAlreadyOrdered)

	// Both failures rolled back, so the second index is still free.
	_, err = repo.FindByIndex(ctx, "9912000002")
	require.ErrorIs(t, err, order.ErrNotFound)
	require.NoError(t, repo.Create(ctx, newOrder("9912000002"), 11))
}

func TestOrderRepositoryCreateUsageLimit(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewOrderRepository(pool)
	loc := czLocale(t)

	_, err := pool.Exec(ctx, `INSERT INTO cart_rules (id, code, name, discount_type, value, max_uses)
		VALUES (20, 'ONCE', 'Once', 'fixed', 50, 1)`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO carts (id, email, delivery_method_id, payment_method_id)
		VALUES (20, 'p@example.com', 1, 1), (21, 'q@example.com', 1, 1)`)
	require.NoError(t, err)

	// Both carts were priced while the rule still had a use left.
	newOrder := func(index string) *order.Order {
		return &order.Order{
			Index:            index,
			Hash:             "hash",
			Locale:           *loc,
			StatusCode:       order.StatusNew,
			CreatedAt:        time.Date(1998, time.November, 1, 12, 0, 0, 0, time.UTC),
			DeliveryMethodID: 1,
			PaymentMethodID:  1,
			Items: []order.Item{{
				ProductID:   1,
				VariantID:   1,
				Quantity:    1,
				SinglePrice: decimal.NewFromInt(1000),
				TotalPrice:  decimal.NewFromInt(1000),
			}},
			Vouchers: []order.Voucher{{CartRuleID: 20, Code: "ONCE", Discount: decimal.NewFromInt(50)}},
		}
	}

	require.NoError(t, repo.Create(ctx, newOrder("9811000001"), 20))
	require.ErrorIs(t, repo.Create(ctx, newOrder("9811000002"), 21), cartrule.ErrUsageLimitReached)

	var uses int
	require.NoError(t, pool.QueryRow(ctx, `SELECT uses FROM cart_rules WHERE id = 20`).Scan(&uses))
	assert.Equal(t, 1, uses)

	var orderID *int64
	require.NoError(t, pool.QueryRow(ctx, `SELECT order_id FROM carts WHERE id = 21`).Scan(&orderID))
	assert.Nil(t, orderID, "cart stays open after the rollback")
	_, err = repo.FindByIndex(ctx, "9811000002")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestCartRuleRepositoryCloneFromTemplate(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewCartRuleRepository(pool)

	n, err := repo.CloneFromTemplate(ctx, "PARTNER", []string{"PARTNERAAA01", "PARTNERAAA02"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.CloneFromTemplate(ctx, "PARTNER", []string{"PARTNERAAA02", "PARTNERAAA03"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var (
		active  bool
		maxUses int
		kind    string
	)
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT active, max_uses, discount_type FROM cart_rules WHERE code = 'PARTNERAAA01'`,
	).Scan(&active, &maxUses, &kind))
	assert.True(t, active)
	assert.Equal(t, 1, maxUses)
	assert.Equal(t, "fixed", kind)

	_, err = repo.CloneFromTemplate(ctx, "MISSING", []string{"X"})
	require.ErrorIs(t, err, postgres.ErrTemplateNotFound)
}

func TestAPIKeyRepository(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewAPIKeyRepository(pool)
	hash := auth.HashKeyHex("secret", []byte("pepper"))

	require.NoError(t, repo.Upsert(ctx, auth.APIKeyInfo{ID: "bff", KeyHash: hash, Name: "BFF", Scopes: []string{"orders"}}))

	info, err := repo.FindByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "bff", info.ID)
	assert.Equal(t, []string{"orders"}, info.Scopes)

	_, err = repo.FindByHash(ctx, auth.HashKeyHex("other", []byte("pepper")))
	require.Error(t, err)
}
