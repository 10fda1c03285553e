package wire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-orders/internal/domain/locale"
	"github.com/xenking/storefront-orders/internal/domain/order"
	"github.com/xenking/storefront-orders/internal/domain/payment"
)

func decode(t *testing.T, e *jx.Encoder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(e.Bytes(), &m), string(e.Bytes()))
	return m
}

func sampleDetail() *order.Detail {
	customer := int64(7)
	o := &order.Order{
		ID:            42,
		Index:         "2506001",
		Hash:          "abc",
		Locale:        locale.Locale{Code: "cs", ICU: "cs_CZ", Currency: locale.Currency{Code: "CZK", Numeric: 203}},
		CreatedAt:     time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC),
		CustomerID:    &customer,
		PaymentOnline: true,
		BillingAddress: &order.Address{
			Name: "Jana", Street: "Dlouha 1", City: "Praha", Zip: "11000", Country: "CZ",
		},
		ProductsPrice: decimal.RequireFromString("1000"),
		TotalPrice:    decimal.RequireFromString("1099.5"),
		Vouchers: []order.Voucher{
			{ID: 1, CartRuleID: 3, Code: "SUMMER", Discount: decimal.RequireFromString("50")},
		},
	}
	finish := int64(4)
	return &order.Detail{
		Order:          o,
		Status:         order.Translated{ID: 1, Code: "new", Name: "Nová"},
		DeliveryMethod: order.Translated{ID: 2, Code: "courier", Name: "Kurýr"},
		PaymentMethod:  order.Translated{ID: 3, Code: "card", Name: "Karta"},
		Items: []order.ItemDetail{{
			Item: order.Item{
				ID: 10, ProductID: 5, VariantID: 6, Quantity: 2,
				SurfaceFinishID: &finish,
				SinglePrice:     decimal.RequireFromString("500"),
				TotalPrice:      decimal.RequireFromString("1000"),
			},
			Product: order.Product{ID: 5, Code: "table", Name: "Stůl"},
			Variant: order.Variant{
				ID: 6, Code: "table-oak",
				Images:     []order.Image{{Path: "a.jpg", Position: 0}, {Path: "b.jpg", Position: 1}},
				Parameters: []order.Parameter{{Name: "Šířka", Value: "120 cm"}},
			},
			SurfaceFinish: &order.Translated{ID: 4, Name: "Olej"},
		}},
	}
}

func TestEncodeDetail(t *testing.T) {
	e := &jx.Encoder{}
	EncodeDetail(e, sampleDetail())
	m := decode(t, e)

	assert.Equal(t, "2506001", m["index"])
	assert.Equal(t, "CZK", m["currency"])
	assert.Equal(t, "2025-06-14T10:00:00Z", m["created_at"])
	assert.EqualValues(t, 7, m["customer_id"])
	assert.Nil(t, m["delivery_address"])

	prices := m["prices"].(map[string]any)
	assert.Equal(t, "1000.00", prices["products"])
	assert.Equal(t, "1099.50", prices["total"])
	assert.Equal(t, "0.00", prices["deposit"])

	status := m["status"].(map[string]any)
	assert.Equal(t, "Nová", status["name"])
	pm := m["payment_method"].(map[string]any)
	assert.Equal(t, true, pm["online"])

	items := m["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "500.00", item["single_price"])
	assert.Nil(t, item["cloth"])
	assert.Equal(t, "Olej", item["surface_finish"].(map[string]any)["name"])

	variant := item["variant"].(map[string]any)
	images := variant["images"].([]any)
	require.Len(t, images, 2)
	assert.Equal(t, "b.jpg", images[1].(map[string]any)["path"])

	vouchers := m["vouchers"].([]any)
	require.Len(t, vouchers, 1)
	assert.Equal(t, "50.00", vouchers[0].(map[string]any)["discount"])
}

func TestEncodeOrder_EmptyCollections(t *testing.T) {
	e := &jx.Encoder{}
	EncodeOrder(e, &order.Order{Index: "2506002", StatusCode: order.StatusNew})
	m := decode(t, e)

	assert.Equal(t, "new", m["status"])
	assert.Equal(t, []any{}, m["items"])
	assert.Equal(t, []any{}, m["vouchers"])
	assert.Nil(t, m["customer_id"])
}

func TestEncodeOperation(t *testing.T) {
	e := &jx.Encoder{}
	EncodeOperation(e, payment.Operation{
		OrderNumber: 1749895200,
		Amount:      decimal.RequireFromString("219.90"),
		Currency:    203,
		ResponseURL: "https://shop.example/order/payment",
	}, "123456")
	m := decode(t, e)

	assert.EqualValues(t, 21990, m["amount_minor"])
	assert.Equal(t, "219.90", m["amount"])
	params := m["params"].([]any)
	require.NotEmpty(t, params)
	first := params[0].(map[string]any)
	assert.Equal(t, "MERCHANTNUMBER", first["name"])
	assert.Equal(t, "123456", first["value"])
	last := params[len(params)-1].(map[string]any)
	assert.Equal(t, "URL", last["name"])
}

func TestEncodeUpdatedEvent(t *testing.T) {
	ev := order.NewUpdatedEvent(sampleDetail())
	e := &jx.Encoder{}
	EncodeUpdatedEvent(e, ev)
	m := decode(t, e)

	assert.Equal(t, order.EventUpdated, m["type"])
	assert.Equal(t, "42", m["aggregate_id"])
	assert.Equal(t, "2506001", m["order"].(map[string]any)["index"])
}
