package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Item is a purchasable line in a checkout. UnitPrice is in minor currency
// units, the backend recomputes the authoritative total.
type Item struct {
	ProductID string `json:"productId" validate:"required"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
	UnitPrice int64  `json:"unitPrice" validate:"required,min=1"`
	Image     string `json:"image,omitempty"`
}

// Customer identifies the shopper placing the order.
type Customer struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Phone     string `json:"phone,omitempty"`
}

// Address is the shipping destination.
type Address struct {
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	Country    string `json:"country" validate:"required"`
	PostalCode string `json:"postalCode,omitempty"`
}

// Input is everything needed to create an order. In buy-now mode Items is
// ignored and the saved buy-now item is used instead.
type Input struct {
	Mode           string   `json:"mode" validate:"omitempty,oneof=cart buy_now"`
	Items          []Item   `json:"items" validate:"omitempty,dive"`
	Customer       Customer `json:"customerInfo" validate:"required"`
	Shipping       Address  `json:"shippingAddress" validate:"required"`
	ShippingMethod string   `json:"shippingMethod" validate:"required"`
	PaymentMethod  string   `json:"paymentMethod" validate:"required"`
}

// BuyNow reports whether the checkout should use the saved buy-now item.
func (in Input) BuyNow() bool { return in.Mode == "buy_now" }

// Order is the backend's answer to order creation. TransactionReference is
// the handle the whole payment confirmation flow revolves around.
type Order struct {
	OrderID              string `json:"orderId"`
	OrderNumber          string `json:"orderNumber"`
	TransactionReference string `json:"transactionReference"`
	Currency             string `json:"currency"`
	Amount               int64  `json:"amount"`
}

// OrdersAPI creates orders on the storefront backend.
type OrdersAPI interface {
	Create(ctx context.Context, storeID string, in Input) (Order, error)
}

// OrdersClient implements OrdersAPI over HTTP.
type OrdersClient struct {
	BaseURL string
	Client  *http.Client
}

type orderEnvelope struct {
	Status string `json:"status"`
	Data   Order  `json:"data"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Create posts the checkout to the backend, which reserves stock and issues a
// pending order plus its transaction reference.
func (c *OrdersClient) Create(ctx context.Context, storeID string, in Input) (Order, error) {
	payload := struct {
		Input
		StoreID string `json:"storeId"`
	}{Input: in, StoreID: storeID}
	body, err := json.Marshal(payload)
	if err != nil {
		return Order{}, fmt.Errorf("checkout: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/checkout/process", bytes.NewReader(body))
	if err != nil {
		return Order{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var env orderEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return Order{}, fmt.Errorf("checkout: decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if env.Error != nil {
			return Order{}, fmt.Errorf("checkout: %s (%s)", env.Error.Message, env.Error.Code)
		}
		return Order{}, fmt.Errorf("checkout: unexpected status %s", resp.Status)
	}
	if env.Data.TransactionReference == "" {
		return Order{}, fmt.Errorf("checkout: backend returned no transaction reference")
	}
	return env.Data, nil
}
