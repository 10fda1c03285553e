// Package payment builds GP WebPay payment operations.
//
// Only the parameter contract of the gateway is modelled here. Request
// signing and response verification belong to the gateway client.
package payment

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// OperationCreateOrder is the gateway operation that starts a card payment.
const OperationCreateOrder = "CREATE_ORDER"

// Operation is a single payment request towards the gateway.
type Operation struct {
	// OrderNumber must be unique per merchant for every payment attempt.
	OrderNumber         int64
	Amount              decimal.Decimal
	Currency            int
	MerchantOrderNumber *string
	ResponseURL         string
}

// AmountMinor returns the amount in minor currency units, which is the unit
// the gateway expects.
func (o Operation) AmountMinor() int64 {
	return o.Amount.Shift(2).Round(0).IntPart()
}

// Param is a single gateway request parameter.
type Param struct {
	Name  string
	Value string
}

// Params returns the CREATE_ORDER request parameters in the order the
// gateway digests them.
func (o Operation) Params(merchantNumber string) []Param {
	params := []Param{
		{Name: "MERCHANTNUMBER", Value: merchantNumber},
		{Name: "OPERATION", Value: OperationCreateOrder},
		{Name: "ORDERNUMBER", Value: strconv.FormatInt(o.OrderNumber, 10)},
		{Name: "AMOUNT", Value: strconv.FormatInt(o.AmountMinor(), 10)},
		{Name: "CURRENCY", Value: strconv.Itoa(o.Currency)},
		{Name: "DEPOSITFLAG", Value: "1"},
	}
	if o.MerchantOrderNumber != nil {
		params = append(params, Param{Name: "MERORDERNUM", Value: *o.MerchantOrderNumber})
	}
	return append(params, Param{Name: "URL", Value: o.ResponseURL})
}
