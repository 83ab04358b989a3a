package checkout

// SDKConfig is handed to the storefront so it can open the payment provider's
// inline widget. Reference ties the widget back to the pending order.
type SDKConfig struct {
	PublicKey string            `json:"publicKey"`
	Email     string            `json:"email"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	Reference string            `json:"reference"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SDKBuilder fills in the static parts of the widget configuration.
type SDKBuilder struct {
	PublicKey string
	Currency  string
}

// Build derives the widget configuration from a freshly created order.
func (b SDKBuilder) Build(order Order, email, storeID string) SDKConfig {
	currency := order.Currency
	if currency == "" {
		currency = b.Currency
	}
	return SDKConfig{
		PublicKey: b.PublicKey,
		Email:     email,
		Amount:    order.Amount,
		Currency:  currency,
		Reference: order.TransactionReference,
		Metadata: map[string]string{
			"orderId": order.OrderID,
			"storeId": storeID,
		},
	}
}
