package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-orders/internal/domain/cart"
	"github.com/xenking/storefront-orders/internal/domain/cartrule"
)

const (
	getCartSQL = `SELECT c.id, c.customer_id, c.email, c.phone, c.note,
		c.assembly, c.full_delivery, c.billing_address, c.delivery_address, c.order_id,
		dm.id, dm.code, dmp.price, dmp.assembly_price, dmp.full_delivery_price,
		pm.id, pm.code, pm.online, pm.deposit_percent
	FROM carts c
	LEFT JOIN delivery_methods dm ON dm.id = c.delivery_method_id
	LEFT JOIN delivery_method_prices dmp
		ON dmp.delivery_method_id = dm.id AND dmp.currency_code = $2
	LEFT JOIN payment_methods pm ON pm.id = c.payment_method_id
	WHERE c.id = $1`

	listCartItemsSQL = `SELECT id, product_id, variant_id, quantity, surface_finish_id,
		cloth_id, glass_id, weight_category_id, is_gift
	FROM cart_items WHERE cart_id = $1 ORDER BY id`

	listVariantPricesSQL = `SELECT variant_id, currency_code, price
	FROM variant_prices WHERE variant_id = ANY($1)`

	listCartRulesSQL = `SELECT r.id, r.code, r.name, r.discount_type, r.value, r.min_items,
		r.valid_from, r.valid_until, r.max_uses, r.uses, r.max_discount
	FROM cart_applied_rules car
	JOIN cart_rules r ON r.id = car.cart_rule_id
	WHERE car.cart_id = $1 AND r.active = TRUE
	ORDER BY r.id`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get loads the cart with its items, variant prices and applied rules.
// Delivery prices are resolved for currency.
func (r *CartRepository) Get(ctx context.Context, id int64, currency string) (*cart.Cart, []cart.Item, error) {
	c, err := r.getCart(ctx, id, currency)
	if err != nil {
		return nil, nil, err
	}

	items, err := r.listItems(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if c.Rules, err = r.listRules(ctx, id); err != nil {
		return nil, nil, err
	}

	return c, items, nil
}

func (r *CartRepository) getCart(ctx context.Context, id int64, currency string) (*cart.Cart, error) {
	var (
		c                           cart.Cart
		dmID, pmID                  *int64
		dmCode, pmCode              *string
		dmPrice, dmAssembly, dmFull decimal.NullDecimal
		pmOnline                    *bool
		pmDeposit                   decimal.NullDecimal
	)
	err := r.pool.QueryRow(ctx, getCartSQL, id, currency).Scan(
		&c.ID, &c.CustomerID, &c.Email, &c.Phone, &c.Note,
		&c.Assembly, &c.FullDelivery, &c.BillingAddress, &c.DeliveryAddress, &c.OrderID,
		&dmID, &dmCode, &dmPrice, &dmAssembly, &dmFull,
		&pmID, &pmCode, &pmOnline, &pmDeposit,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &cart.NotFoundError{CartID: id}
		}
		return nil, errors.Wrapf(err, "get cart %d", id)
	}

	if dmID != nil {
		if !dmPrice.Valid {
			return nil, errors.Wrapf(cart.ErrMissingDeliveryPrice, "delivery method %s in %s", deref(dmCode), currency)
		}
		c.DeliveryMethod = &cart.DeliveryMethod{
			ID:                *dmID,
			Code:              deref(dmCode),
			Price:             dmPrice.Decimal,
			AssemblyPrice:     dmAssembly.Decimal,
			FullDeliveryPrice: dmFull.Decimal,
		}
	}
	if pmID != nil {
		c.PaymentMethod = &cart.PaymentMethod{
			ID:             *pmID,
			Code:           deref(pmCode),
			Online:         pmOnline != nil && *pmOnline,
			DepositPercent: pmDeposit.Decimal,
		}
	}
	return &c, nil
}

func (r *CartRepository) listItems(ctx context.Context, cartID int64) ([]cart.Item, error) {
	rows, err := r.pool.Query(ctx, listCartItemsSQL, cartID)
	if err != nil {
		return nil, errors.Wrapf(err, "list items of cart %d", cartID)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Item, error) {
		var it cart.Item
		err := row.Scan(
			&it.ID, &it.ProductID, &it.VariantID, &it.Quantity, &it.SurfaceFinishID,
			&it.ClothID, &it.GlassID, &it.WeightCategoryID, &it.IsGift,
		)
		return it, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan items of cart %d", cartID)
	}
	if len(items) == 0 {
		return nil, nil
	}

	variantIDs := make([]int64, len(items))
	for i, it := range items {
		variantIDs[i] = it.VariantID
	}
	prices, err := r.variantPrices(ctx, variantIDs)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Prices = prices[items[i].VariantID]
	}
	return items, nil
}

func (r *CartRepository) variantPrices(ctx context.Context, variantIDs []int64) (map[int64]map[string]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, listVariantPricesSQL, variantIDs)
	if err != nil {
		return nil, errors.Wrap(err, "list variant prices")
	}
	defer rows.Close()

	prices := make(map[int64]map[string]decimal.Decimal, len(variantIDs))
	for rows.Next() {
		var (
			variantID int64
			currency  string
			price     decimal.Decimal
		)
		if err := rows.Scan(&variantID, &currency, &price); err != nil {
			return nil, errors.Wrap(err, "scan variant price")
		}
		if prices[variantID] == nil {
			prices[variantID] = make(map[string]decimal.Decimal)
		}
		prices[variantID][currency] = price
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list variant prices")
	}
	return prices, nil
}

func (r *CartRepository) listRules(ctx context.Context, cartID int64) ([]cartrule.Rule, error) {
	rows, err := r.pool.Query(ctx, listCartRulesSQL, cartID)
	if err != nil {
		return nil, errors.Wrapf(err, "list rules of cart %d", cartID)
	}
	rules, err := pgx.CollectRows(rows, scanCartRule)
	if err != nil {
		return nil, errors.Wrapf(err, "scan rules of cart %d", cartID)
	}
	return rules, nil
}

func scanCartRule(row pgx.CollectableRow) (cartrule.Rule, error) {
	var (
		rule         cartrule.Rule
		discountType string
	)
	err := row.Scan(
		&rule.ID, &rule.Code, &rule.Name, &discountType, &rule.Value, &rule.MinItems,
		&rule.ValidFrom, &rule.ValidUntil, &rule.MaxUses, &rule.Uses, &rule.MaxDiscount,
	)
	rule.DiscountType = cartrule.DiscountType(discountType)
	return rule, err
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
