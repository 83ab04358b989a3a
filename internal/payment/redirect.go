package payment

import (
	"net/url"
	"strings"
)

// Redirects builds the storefront URLs shoppers land on after checkout.
type Redirects struct {
	BaseURL string
}

// Success points at the order confirmation page.
func (r Redirects) Success(orderID, reference, orderNumber string) string {
	q := url.Values{}
	q.Set("orderId", orderID)
	q.Set("ref", reference)
	if orderNumber != "" {
		q.Set("orderNumber", orderNumber)
	}
	return r.base() + "/order/success?" + q.Encode()
}

// Manual points at the payment callback page, which owns its own verification
// loop and the support handoff for payments we could not resolve inline.
func (r Redirects) Manual(reference, storeID string) string {
	q := url.Values{}
	q.Set("reference", reference)
	if storeID != "" {
		q.Set("storeId", storeID)
	}
	return r.base() + "/payment/callback?" + q.Encode()
}

func (r Redirects) base() string {
	return strings.TrimRight(r.BaseURL, "/")
}
