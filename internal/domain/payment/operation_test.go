package payment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperation_AmountMinor(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{amount: "1234.56", want: 123456},
		{amount: "10", want: 1000},
		{amount: "0.005", want: 1},
		{amount: "0", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			op := Operation{Amount: decimal.RequireFromString(tt.amount)}
			assert.Equal(t, tt.want, op.AmountMinor())
		})
	}
}

func TestOperation_Params(t *testing.T) {
	op := Operation{
		OrderNumber: 1718000000,
		Amount:      decimal.RequireFromString("2649.90"),
		Currency:    203,
		ResponseURL: "https://shop.example.com/order/payment?hash=h&index=2506001&locale=cs_CZ",
	}

	params := op.Params("123456789")
	require.Len(t, params, 7)

	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"MERCHANTNUMBER", "OPERATION", "ORDERNUMBER", "AMOUNT", "CURRENCY", "DEPOSITFLAG", "URL"}, names)
	assert.Equal(t, "123456789", params[0].Value)
	assert.Equal(t, OperationCreateOrder, params[1].Value)
	assert.Equal(t, "1718000000", params[2].Value)
	assert.Equal(t, "264990", params[3].Value)
	assert.Equal(t, "203", params[4].Value)
	assert.Equal(t, op.ResponseURL, params[6].Value)
}

func TestOperation_ParamsWithMerchantOrderNumber(t *testing.T) {
	mon := "2506001"
	op := Operation{OrderNumber: 1, Amount: decimal.NewFromInt(1), Currency: 978, MerchantOrderNumber: &mon}

	params := op.Params("m")
	require.Len(t, params, 8)
	assert.Equal(t, Param{Name: "MERORDERNUM", Value: "2506001"}, params[6])
	assert.Equal(t, "URL", params[7].Name)
}

func TestLinkGenerator_PaymentReturn(t *testing.T) {
	g, err := NewLinkGenerator("https://shop.example.com/")
	require.NoError(t, err)

	link := g.PaymentReturn("2506001", "abc123", "cs_CZ")
	assert.Equal(t, "https://shop.example.com/order/payment?hash=abc123&index=2506001&locale=cs_CZ", link)
}

func TestLinkGenerator_BasePath(t *testing.T) {
	g, err := NewLinkGenerator("https://example.com/eshop")
	require.NoError(t, err)

	link := g.PaymentReturn("2506002", "h", "en_US")
	assert.Equal(t, "https://example.com/eshop/order/payment?hash=h&index=2506002&locale=en_US", link)
}
