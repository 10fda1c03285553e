package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-orders/internal/domain/cart"
	"github.com/xenking/storefront-orders/internal/domain/cartrule"
	"github.com/xenking/storefront-orders/internal/domain/order"
)

const (
	lastIndexSinceSQL = `SELECT index FROM orders
	WHERE created_at >= $1
	ORDER BY length(index) DESC, index DESC
	LIMIT 1`

	insertOrderSQL = `INSERT INTO orders (
		index, hash, locale, customer_id, status_id,
		delivery_method_id, payment_method_id,
		email, phone, note, assembly, full_delivery,
		billing_address, delivery_address,
		products_price, total_discount, delivery_price, assembly_price,
		full_delivery_price, total_delivery_price, total_price, deposit,
		created_at
	) VALUES (
		$1, $2, $3, $4, (SELECT id FROM order_statuses WHERE code = $5),
		$6, $7,
		$8, $9, $10, $11, $12,
		$13, $14,
		$15, $16, $17, $18,
		$19, $20, $21, $22,
		$23
	) RETURNING id`

	insertVoucherSQL = `INSERT INTO order_vouchers (order_id, cart_rule_id, discount)
	VALUES ($1, $2, $3) RETURNING id`

	// The limit is checked again under the row lock; the rule read during
	// checkout may be stale.
	increaseRuleUsesSQL = `UPDATE cart_rules SET uses = uses + 1
	WHERE id = $1 AND (max_uses = 0 OR uses < max_uses)`

	insertItemSQL = `INSERT INTO order_items (
		order_id, product_id, variant_id, quantity,
		surface_finish_id, cloth_id, glass_id, weight_category_id,
		is_gift, single_price, total_price
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`

	markCartOrderedSQL = `UPDATE carts SET order_id = $2, ordered_at = $3
	WHERE id = $1 AND order_id IS NULL`

	selectOrderSQL = `SELECT o.id, o.index, o.hash,
		l.code, l.icu, l.currency_code, l.currency_numeric,
		o.customer_id, o.created_at,
		COALESCE(s.id, 0), COALESCE(s.code, ''), COALESCE(ts.name, s.code, ''),
		COALESCE(dm.id, 0), COALESCE(dm.code, ''), COALESCE(tdm.name, dm.code, ''),
		COALESCE(pm.id, 0), COALESCE(pm.code, ''), COALESCE(tpm.name, pm.code, ''),
		COALESCE(pm.online, FALSE),
		o.email, o.phone, o.note, o.assembly, o.full_delivery,
		o.billing_address, o.delivery_address,
		o.products_price, o.total_discount, o.delivery_price, o.assembly_price,
		o.full_delivery_price, o.total_delivery_price, o.total_price, o.deposit
	FROM orders o
	JOIN locales l ON l.code = o.locale
	LEFT JOIN order_statuses s ON s.id = o.status_id
	LEFT JOIN translations ts
		ON ts.entity = 'order_status' AND ts.entity_id = s.id AND ts.locale = o.locale
	LEFT JOIN delivery_methods dm ON dm.id = o.delivery_method_id
	LEFT JOIN translations tdm
		ON tdm.entity = 'delivery_method' AND tdm.entity_id = dm.id AND tdm.locale = o.locale
	LEFT JOIN payment_methods pm ON pm.id = o.payment_method_id
	LEFT JOIN translations tpm
		ON tpm.entity = 'payment_method' AND tpm.entity_id = pm.id AND tpm.locale = o.locale`

	getOrderByIDSQL    = selectOrderSQL + ` WHERE o.id = $1`
	getOrderByIndexSQL = selectOrderSQL + ` WHERE o.index = $1`

	// Items of removed products or variants are not part of the read model.
	listOrderItemsSQL = `SELECT i.id, i.product_id, i.variant_id, i.quantity,
		i.surface_finish_id, i.cloth_id, i.glass_id, i.weight_category_id,
		i.is_gift, i.single_price, i.total_price,
		p.code, COALESCE(tp.name, p.code),
		p.category_id, COALESCE(c.code, ''), COALESCE(tc.name, c.code, ''),
		v.code, v.availability_id, COALESCE(a.code, ''), COALESCE(ta.name, a.code, ''),
		COALESCE(sf.code, ''), COALESCE(tsf.name, sf.code, ''),
		COALESCE(cl.code, ''), COALESCE(tcl.name, cl.code, ''),
		COALESCE(gl.code, ''), COALESCE(tgl.name, gl.code, ''),
		COALESCE(wc.code, ''), COALESCE(twc.name, wc.code, '')
	FROM order_items i
	JOIN products p ON p.id = i.product_id AND p.removed = FALSE
	JOIN product_variants v ON v.id = i.variant_id AND v.removed = FALSE
	LEFT JOIN translations tp
		ON tp.entity = 'product' AND tp.entity_id = p.id AND tp.locale = $2
	LEFT JOIN categories c ON c.id = p.category_id
	LEFT JOIN translations tc
		ON tc.entity = 'category' AND tc.entity_id = c.id AND tc.locale = $2
	LEFT JOIN availabilities a ON a.id = v.availability_id
	LEFT JOIN translations ta
		ON ta.entity = 'availability' AND ta.entity_id = a.id AND ta.locale = $2
	LEFT JOIN surface_finishes sf ON sf.id = i.surface_finish_id
	LEFT JOIN translations tsf
		ON tsf.entity = 'surface_finish' AND tsf.entity_id = sf.id AND tsf.locale = $2
	LEFT JOIN cloths cl ON cl.id = i.cloth_id
	LEFT JOIN translations tcl
		ON tcl.entity = 'cloth' AND tcl.entity_id = cl.id AND tcl.locale = $2
	LEFT JOIN glasses gl ON gl.id = i.glass_id
	LEFT JOIN translations tgl
		ON tgl.entity = 'glass' AND tgl.entity_id = gl.id AND tgl.locale = $2
	LEFT JOIN weight_categories wc ON wc.id = i.weight_category_id
	LEFT JOIN translations twc
		ON twc.entity = 'weight_category' AND twc.entity_id = wc.id AND twc.locale = $2
	WHERE i.order_id = $1
	ORDER BY i.id`

	listVariantImagesSQL = `SELECT vi.variant_id, img.path, vi.position
	FROM variant_images vi
	JOIN images img ON img.id = vi.image_id
	WHERE vi.variant_id = ANY($1)
	ORDER BY vi.variant_id, vi.position`

	listVariantParametersSQL = `SELECT vp.variant_id,
		COALESCE(tpar.name, par.code),
		COALESCE(tval.name, pv.code, '')
	FROM variant_parameters vp
	JOIN parameters par ON par.id = vp.parameter_id
	LEFT JOIN parameter_values pv ON pv.id = vp.value_id
	LEFT JOIN translations tpar
		ON tpar.entity = 'parameter' AND tpar.entity_id = par.id AND tpar.locale = $2
	LEFT JOIN translations tval
		ON tval.entity = 'parameter_value' AND tval.entity_id = pv.id AND tval.locale = $2
	WHERE vp.variant_id = ANY($1)
	ORDER BY vp.variant_id, vp.id`

	listOrderVouchersSQL = `SELECT ov.id, ov.cart_rule_id, r.code, ov.discount
	FROM order_vouchers ov
	JOIN cart_rules r ON r.id = ov.cart_rule_id
	WHERE ov.order_id = $1
	ORDER BY ov.id`
)

const orderIndexConstraint = "orders_index_key"

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// LastIndexSince returns the highest index created at or after since. Longer
// indexes sort first so that sequences past 999 stay ordered.
func (r *OrderRepository) LastIndexSince(ctx context.Context, since time.Time) (string, error) {
	var index string
	err := r.pool.QueryRow(ctx, lastIndexSinceSQL, since).Scan(&index)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", errors.Wrap(err, "last order index")
	}
	return index, nil
}

// Create persists the order, its vouchers and items and marks the cart
// ordered in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, cartID int64) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insertOrderSQL,
			o.Index, o.Hash, o.Locale.Code, o.CustomerID, o.StatusCode,
			o.DeliveryMethodID, o.PaymentMethodID,
			o.Email, o.Phone, o.Note, o.Assembly, o.FullDelivery,
			o.BillingAddress, o.DeliveryAddress,
			o.ProductsPrice, o.TotalDiscount, o.DeliveryPrice, o.AssemblyPrice,
			o.FullDeliveryPrice, o.TotalDeliveryPrice, o.TotalPrice, o.Deposit,
			o.CreatedAt,
		).Scan(&o.ID)
		if err != nil {
			if isUniqueViolation(err, orderIndexConstraint) {
				return order.ErrIndexTaken
			}
			return errors.Wrap(err, "insert order")
		}

		for i := range o.Vouchers {
			v := &o.Vouchers[i]
			if err := tx.QueryRow(ctx, insertVoucherSQL, o.ID, v.CartRuleID, v.Discount).Scan(&v.ID); err != nil {
				return errors.Wrapf(err, "insert voucher %s", v.Code)
			}
			tag, err := tx.Exec(ctx, increaseRuleUsesSQL, v.CartRuleID)
			if err != nil {
				return errors.Wrapf(err, "increase uses of cart rule %d", v.CartRuleID)
			}
			if tag.RowsAffected() == 0 {
				return errors.Wrapf(cartrule.ErrUsageLimitReached, "cart rule %s", v.Code)
			}
		}

		if err := insertItems(ctx, tx, o); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, markCartOrderedSQL, cartID, o.ID, o.CreatedAt)
		if err != nil {
			return errors.Wrapf(err, "mark cart %d ordered", cartID)
		}
		if tag.RowsAffected() == 0 {
			return cart.ErrAlreadyOrdered
		}
		return nil
	})
}

func insertItems(ctx context.Context, tx pgx.Tx, o *order.Order) error {
	if len(o.Items) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for _, it := range o.Items {
		b.Queue(insertItemSQL,
			o.ID, it.ProductID, it.VariantID, it.Quantity,
			it.SurfaceFinishID, it.ClothID, it.GlassID, it.WeightCategoryID,
			it.IsGift, it.SinglePrice, it.TotalPrice,
		)
	}

	br := tx.SendBatch(ctx, b)
	for i := range o.Items {
		if err := br.QueryRow().Scan(&o.Items[i].ID); err != nil {
			_ = br.Close()
			return errors.Wrapf(err, "insert item of variant %d", o.Items[i].VariantID)
		}
	}
	if err := br.Close(); err != nil {
		return errors.Wrap(err, "insert items")
	}
	return nil
}

// FindByID returns order.ErrNotFound when no order has the id.
func (r *OrderRepository) FindByID(ctx context.Context, id int64) (*order.Detail, error) {
	return r.find(ctx, getOrderByIDSQL, id)
}

// FindByIndex returns order.ErrNotFound when no order has the index.
func (r *OrderRepository) FindByIndex(ctx context.Context, index string) (*order.Detail, error) {
	return r.find(ctx, getOrderByIndexSQL, index)
}

func (r *OrderRepository) find(ctx context.Context, query string, key any) (*order.Detail, error) {
	d, err := r.header(ctx, query, key)
	if err != nil {
		return nil, err
	}
	o := d.Order

	if d.Items, err = r.items(ctx, o.ID, o.Locale.Code); err != nil {
		return nil, err
	}
	o.Items = make([]order.Item, len(d.Items))
	for i := range d.Items {
		o.Items[i] = d.Items[i].Item
	}

	if o.Vouchers, err = r.vouchers(ctx, o.ID); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *OrderRepository) header(ctx context.Context, query string, key any) (*order.Detail, error) {
	var (
		o order.Order
		d = order.Detail{Order: &o}
	)
	err := r.pool.QueryRow(ctx, query, key).Scan(
		&o.ID, &o.Index, &o.Hash,
		&o.Locale.Code, &o.Locale.ICU, &o.Locale.Currency.Code, &o.Locale.Currency.Numeric,
		&o.CustomerID, &o.CreatedAt,
		&d.Status.ID, &d.Status.Code, &d.Status.Name,
		&d.DeliveryMethod.ID, &d.DeliveryMethod.Code, &d.DeliveryMethod.Name,
		&d.PaymentMethod.ID, &d.PaymentMethod.Code, &d.PaymentMethod.Name,
		&o.PaymentOnline,
		&o.Email, &o.Phone, &o.Note, &o.Assembly, &o.FullDelivery,
		&o.BillingAddress, &o.DeliveryAddress,
		&o.ProductsPrice, &o.TotalDiscount, &o.DeliveryPrice, &o.AssemblyPrice,
		&o.FullDeliveryPrice, &o.TotalDeliveryPrice, &o.TotalPrice, &o.Deposit,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %v", key)
	}

	o.StatusCode = d.Status.Code
	o.DeliveryMethodID = d.DeliveryMethod.ID
	o.DeliveryMethodCode = d.DeliveryMethod.Code
	o.PaymentMethodID = d.PaymentMethod.ID
	o.PaymentMethodCode = d.PaymentMethod.Code
	return &d, nil
}

func (r *OrderRepository) items(ctx context.Context, orderID int64, loc string) ([]order.ItemDetail, error) {
	rows, err := r.pool.Query(ctx, listOrderItemsSQL, orderID, loc)
	if err != nil {
		return nil, errors.Wrapf(err, "list items of order %d", orderID)
	}
	items, err := pgx.CollectRows(rows, scanItemDetail)
	if err != nil {
		return nil, errors.Wrapf(err, "scan items of order %d", orderID)
	}
	if len(items) == 0 {
		return nil, nil
	}

	variantIDs := make([]int64, 0, len(items))
	for _, it := range items {
		variantIDs = append(variantIDs, it.VariantID)
	}
	images, err := r.images(ctx, variantIDs)
	if err != nil {
		return nil, err
	}
	params, err := r.parameters(ctx, variantIDs, loc)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Variant.Images = images[items[i].VariantID]
		items[i].Variant.Parameters = params[items[i].VariantID]
	}
	return items, nil
}

func scanItemDetail(row pgx.CollectableRow) (order.ItemDetail, error) {
	var (
		it                         order.ItemDetail
		categoryID, availabilityID *int64
		category, availability     [2]string
		finish, cloth, glass, wcat [2]string
	)
	err := row.Scan(
		&it.ID, &it.ProductID, &it.VariantID, &it.Quantity,
		&it.SurfaceFinishID, &it.ClothID, &it.GlassID, &it.WeightCategoryID,
		&it.IsGift, &it.SinglePrice, &it.TotalPrice,
		&it.Product.Code, &it.Product.Name,
		&categoryID, &category[0], &category[1],
		&it.Variant.Code, &availabilityID, &availability[0], &availability[1],
		&finish[0], &finish[1], &cloth[0], &cloth[1],
		&glass[0], &glass[1], &wcat[0], &wcat[1],
	)
	if err != nil {
		return it, err
	}

	it.Product.ID = it.ProductID
	it.Variant.ID = it.VariantID
	it.Product.Category = translated(categoryID, category)
	it.Variant.Availability = translated(availabilityID, availability)
	it.SurfaceFinish = translated(it.SurfaceFinishID, finish)
	it.Cloth = translated(it.ClothID, cloth)
	it.Glass = translated(it.GlassID, glass)
	it.WeightCategory = translated(it.WeightCategoryID, wcat)
	return it, nil
}

// translated builds a Translated from a nullable id and its (code, name)
// pair.
func translated(id *int64, codeName [2]string) *order.Translated {
	if id == nil {
		return nil
	}
	return &order.Translated{ID: *id, Code: codeName[0], Name: codeName[1]}
}

func (r *OrderRepository) images(ctx context.Context, variantIDs []int64) (map[int64][]order.Image, error) {
	rows, err := r.pool.Query(ctx, listVariantImagesSQL, variantIDs)
	if err != nil {
		return nil, errors.Wrap(err, "list variant images")
	}
	defer rows.Close()

	images := make(map[int64][]order.Image)
	for rows.Next() {
		var (
			variantID int64
			img       order.Image
		)
		if err := rows.Scan(&variantID, &img.Path, &img.Position); err != nil {
			return nil, errors.Wrap(err, "scan variant image")
		}
		images[variantID] = append(images[variantID], img)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list variant images")
	}
	return images, nil
}

func (r *OrderRepository) parameters(ctx context.Context, variantIDs []int64, loc string) (map[int64][]order.Parameter, error) {
	rows, err := r.pool.Query(ctx, listVariantParametersSQL, variantIDs, loc)
	if err != nil {
		return nil, errors.Wrap(err, "list variant parameters")
	}
	defer rows.Close()

	params := make(map[int64][]order.Parameter)
	for rows.Next() {
		var (
			variantID int64
			p         order.Parameter
		)
		if err := rows.Scan(&variantID, &p.Name, &p.Value); err != nil {
			return nil, errors.Wrap(err, "scan variant parameter")
		}
		params[variantID] = append(params[variantID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list variant parameters")
	}
	return params, nil
}

func (r *OrderRepository) vouchers(ctx context.Context, orderID int64) ([]order.Voucher, error) {
	rows, err := r.pool.Query(ctx, listOrderVouchersSQL, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "list vouchers of order %d", orderID)
	}
	vouchers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Voucher, error) {
		var v order.Voucher
		err := row.Scan(&v.ID, &v.CartRuleID, &v.Code, &v.Discount)
		return v, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan vouchers of order %d", orderID)
	}
	return vouchers, nil
}
