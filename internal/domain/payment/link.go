package payment

import (
	"net/url"
	"strings"
)

// LinkGenerator builds absolute storefront URLs the gateway redirects to.
type LinkGenerator struct {
	base *url.URL
}

// NewLinkGenerator parses the storefront base URL, e.g. https://shop.example.com.
func NewLinkGenerator(baseURL string) (*LinkGenerator, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, err
	}
	return &LinkGenerator{base: u}, nil
}

// PaymentReturn links to the storefront page that finishes a payment for the
// order identified by index and hash.
func (g *LinkGenerator) PaymentReturn(index, hash, icu string) string {
	u := *g.base
	u.Path += "/order/payment"
	q := url.Values{}
	q.Set("index", index)
	q.Set("hash", hash)
	q.Set("locale", icu)
	u.RawQuery = q.Encode()
	return u.String()
}
