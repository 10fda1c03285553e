// Package wire encodes order read models as JSON with jx.
//
// Money amounts are written as strings with two decimal places so that
// clients never see binary floating point values.
package wire

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-orders/internal/domain/order"
	"github.com/xenking/storefront-orders/internal/domain/payment"
)

// Money writes d as a fixed two-decimal string.
func Money(e *jx.Encoder, d decimal.Decimal) {
	e.Str(d.StringFixed(2))
}

func optInt64(e *jx.Encoder, v *int64) {
	if v == nil {
		e.Null()
		return
	}
	e.Int64(*v)
}

func translated(e *jx.Encoder, t *order.Translated) {
	if t == nil {
		e.Null()
		return
	}
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(t.ID) })
		if t.Code != "" {
			e.Field("code", func(e *jx.Encoder) { e.Str(t.Code) })
		}
		e.Field("name", func(e *jx.Encoder) { e.Str(t.Name) })
	})
}

func address(e *jx.Encoder, a *order.Address) {
	if a == nil {
		e.Null()
		return
	}
	e.Obj(func(e *jx.Encoder) {
		e.Field("name", func(e *jx.Encoder) { e.Str(a.Name) })
		if a.Company != "" {
			e.Field("company", func(e *jx.Encoder) { e.Str(a.Company) })
		}
		e.Field("street", func(e *jx.Encoder) { e.Str(a.Street) })
		e.Field("city", func(e *jx.Encoder) { e.Str(a.City) })
		e.Field("zip", func(e *jx.Encoder) { e.Str(a.Zip) })
		e.Field("country", func(e *jx.Encoder) { e.Str(a.Country) })
		if a.Phone != "" {
			e.Field("phone", func(e *jx.Encoder) { e.Str(a.Phone) })
		}
	})
}

// orderFields writes the fields shared by the order summary and detail.
func orderFields(e *jx.Encoder, o *order.Order) {
	e.Field("id", func(e *jx.Encoder) { e.Int64(o.ID) })
	e.Field("index", func(e *jx.Encoder) { e.Str(o.Index) })
	e.Field("hash", func(e *jx.Encoder) { e.Str(o.Hash) })
	e.Field("locale", func(e *jx.Encoder) { e.Str(o.Locale.Code) })
	e.Field("currency", func(e *jx.Encoder) { e.Str(o.Locale.Currency.Code) })
	e.Field("created_at", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
	e.Field("customer_id", func(e *jx.Encoder) { optInt64(e, o.CustomerID) })
	e.Field("email", func(e *jx.Encoder) { e.Str(o.Email) })
	e.Field("phone", func(e *jx.Encoder) { e.Str(o.Phone) })
	e.Field("note", func(e *jx.Encoder) { e.Str(o.Note) })
	e.Field("assembly", func(e *jx.Encoder) { e.Bool(o.Assembly) })
	e.Field("full_delivery", func(e *jx.Encoder) { e.Bool(o.FullDelivery) })
	e.Field("billing_address", func(e *jx.Encoder) { address(e, o.BillingAddress) })
	e.Field("delivery_address", func(e *jx.Encoder) { address(e, o.DeliveryAddress) })
	e.Field("prices", func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("products", func(e *jx.Encoder) { Money(e, o.ProductsPrice) })
			e.Field("discount", func(e *jx.Encoder) { Money(e, o.TotalDiscount) })
			e.Field("delivery", func(e *jx.Encoder) { Money(e, o.DeliveryPrice) })
			e.Field("assembly", func(e *jx.Encoder) { Money(e, o.AssemblyPrice) })
			e.Field("full_delivery", func(e *jx.Encoder) { Money(e, o.FullDeliveryPrice) })
			e.Field("total_delivery", func(e *jx.Encoder) { Money(e, o.TotalDeliveryPrice) })
			e.Field("total", func(e *jx.Encoder) { Money(e, o.TotalPrice) })
			e.Field("deposit", func(e *jx.Encoder) { Money(e, o.Deposit) })
		})
	})
	e.Field("vouchers", func(e *jx.Encoder) {
		e.ArrStart()
		for _, v := range o.Vouchers {
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Int64(v.ID) })
				e.Field("cart_rule_id", func(e *jx.Encoder) { e.Int64(v.CartRuleID) })
				e.Field("code", func(e *jx.Encoder) { e.Str(v.Code) })
				e.Field("discount", func(e *jx.Encoder) { Money(e, v.Discount) })
			})
		}
		e.ArrEnd()
	})
}

// EncodeOrder writes the summary of a freshly placed order.
func EncodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		orderFields(e, o)
		e.Field("status", func(e *jx.Encoder) { e.Str(o.StatusCode) })
		e.Field("delivery_method", func(e *jx.Encoder) { e.Str(o.DeliveryMethodCode) })
		e.Field("payment_method", func(e *jx.Encoder) { e.Str(o.PaymentMethodCode) })
		e.Field("payment_online", func(e *jx.Encoder) { e.Bool(o.PaymentOnline) })
		e.Field("items", func(e *jx.Encoder) {
			e.ArrStart()
			for _, it := range o.Items {
				e.Obj(func(e *jx.Encoder) { itemFields(e, it) })
			}
			e.ArrEnd()
		})
	})
}

func itemFields(e *jx.Encoder, it order.Item) {
	e.Field("id", func(e *jx.Encoder) { e.Int64(it.ID) })
	e.Field("product_id", func(e *jx.Encoder) { e.Int64(it.ProductID) })
	e.Field("variant_id", func(e *jx.Encoder) { e.Int64(it.VariantID) })
	e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
	e.Field("is_gift", func(e *jx.Encoder) { e.Bool(it.IsGift) })
	e.Field("single_price", func(e *jx.Encoder) { Money(e, it.SinglePrice) })
	e.Field("total_price", func(e *jx.Encoder) { Money(e, it.TotalPrice) })
}

// EncodeDetail writes the full localized read model of an order.
func EncodeDetail(e *jx.Encoder, d *order.Detail) {
	e.Obj(func(e *jx.Encoder) {
		orderFields(e, d.Order)
		e.Field("status", func(e *jx.Encoder) { translated(e, &d.Status) })
		e.Field("delivery_method", func(e *jx.Encoder) { translated(e, &d.DeliveryMethod) })
		e.Field("payment_method", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Int64(d.PaymentMethod.ID) })
				e.Field("code", func(e *jx.Encoder) { e.Str(d.PaymentMethod.Code) })
				e.Field("name", func(e *jx.Encoder) { e.Str(d.PaymentMethod.Name) })
				e.Field("online", func(e *jx.Encoder) { e.Bool(d.Order.PaymentOnline) })
			})
		})
		e.Field("items", func(e *jx.Encoder) {
			e.ArrStart()
			for i := range d.Items {
				itemDetail(e, &d.Items[i])
			}
			e.ArrEnd()
		})
	})
}

func itemDetail(e *jx.Encoder, it *order.ItemDetail) {
	e.Obj(func(e *jx.Encoder) {
		itemFields(e, it.Item)
		e.Field("product", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Int64(it.Product.ID) })
				e.Field("code", func(e *jx.Encoder) { e.Str(it.Product.Code) })
				e.Field("name", func(e *jx.Encoder) { e.Str(it.Product.Name) })
				e.Field("category", func(e *jx.Encoder) { translated(e, it.Product.Category) })
			})
		})
		e.Field("variant", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Int64(it.Variant.ID) })
				e.Field("code", func(e *jx.Encoder) { e.Str(it.Variant.Code) })
				e.Field("availability", func(e *jx.Encoder) { translated(e, it.Variant.Availability) })
				e.Field("images", func(e *jx.Encoder) {
					e.ArrStart()
					for _, img := range it.Variant.Images {
						e.Obj(func(e *jx.Encoder) {
							e.Field("path", func(e *jx.Encoder) { e.Str(img.Path) })
							e.Field("position", func(e *jx.Encoder) { e.Int(img.Position) })
						})
					}
					e.ArrEnd()
				})
				e.Field("parameters", func(e *jx.Encoder) {
					e.ArrStart()
					for _, p := range it.Variant.Parameters {
						e.Obj(func(e *jx.Encoder) {
							e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
							e.Field("value", func(e *jx.Encoder) { e.Str(p.Value) })
						})
					}
					e.ArrEnd()
				})
			})
		})
		e.Field("surface_finish", func(e *jx.Encoder) { translated(e, it.SurfaceFinish) })
		e.Field("cloth", func(e *jx.Encoder) { translated(e, it.Cloth) })
		e.Field("glass", func(e *jx.Encoder) { translated(e, it.Glass) })
		e.Field("weight_category", func(e *jx.Encoder) { translated(e, it.WeightCategory) })
	})
}

// EncodeOperation writes a gateway operation together with its ordered
// request parameters.
func EncodeOperation(e *jx.Encoder, op payment.Operation, merchantNumber string) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("order_number", func(e *jx.Encoder) { e.Int64(op.OrderNumber) })
		e.Field("amount", func(e *jx.Encoder) { Money(e, op.Amount) })
		e.Field("amount_minor", func(e *jx.Encoder) { e.Int64(op.AmountMinor()) })
		e.Field("currency", func(e *jx.Encoder) { e.Int(op.Currency) })
		e.Field("url", func(e *jx.Encoder) { e.Str(op.ResponseURL) })
		e.Field("params", func(e *jx.Encoder) {
			e.ArrStart()
			for _, p := range op.Params(merchantNumber) {
				e.Obj(func(e *jx.Encoder) {
					e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
					e.Field("value", func(e *jx.Encoder) { e.Str(p.Value) })
				})
			}
			e.ArrEnd()
		})
	})
}

// EncodeUpdatedEvent writes the envelope of an order.updated event.
func EncodeUpdatedEvent(e *jx.Encoder, ev order.UpdatedEvent) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(ev.EventID()) })
		e.Field("type", func(e *jx.Encoder) { e.Str(ev.EventType()) })
		e.Field("aggregate_id", func(e *jx.Encoder) { e.Str(ev.AggregateID()) })
		e.Field("timestamp", func(e *jx.Encoder) { e.Str(ev.OccurredAt().Format(time.RFC3339Nano)) })
		e.Field("order", func(e *jx.Encoder) { EncodeDetail(e, ev.Detail) })
	})
}
