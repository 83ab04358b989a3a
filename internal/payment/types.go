package payment

import (
	"encoding/json"
	"strings"
)

// Status is the backend's view of a payment attempt.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusExpired   Status = "EXPIRED"
	StatusRefunded  Status = "REFUNDED"
)

// Terminal reports whether the status can no longer change on its own. Pending
// payments may still be settled by a late webhook; everything else is settled.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired, StatusRefunded:
		return true
	default:
		return false
	}
}

// NormaliseStatus maps backend status spellings onto the canonical set.
func NormaliseStatus(value string) Status {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "COMPLETED", "PAID", "SUCCESS", "SETTLED":
		return StatusCompleted
	case "FAILED", "CANCELED", "DENY":
		return StatusFailed
	case "EXPIRED":
		return StatusExpired
	case "REFUNDED", "REFUND":
		return StatusRefunded
	default:
		return StatusPending
	}
}

// Verification is the read-only answer to "is this transaction confirmed yet?".
// WebhookProcessing means the backend has received the provider webhook and is
// still applying it; the caller should keep waiting rather than give up.
type Verification struct {
	Verified          bool   `json:"verified"`
	Status            Status `json:"paymentStatus"`
	WebhookProcessing bool   `json:"webhookProcessing"`
	OrderID           string `json:"orderId,omitempty"`
	OrderNumber       string `json:"orderNumber,omitempty"`
	Message           string `json:"message,omitempty"`
}

// Completed reports whether the verification settles the payment attempt.
func (v Verification) Completed() bool {
	return v.Verified && v.Status == StatusCompleted
}

// ConfirmationResult is returned by the side-effecting confirmation endpoints.
// AlreadyProcessed means the webhook finalised the order before this call
// arrived; that is a race outcome, not an error.
type ConfirmationResult struct {
	OrderID          string `json:"orderId"`
	OrderNumber      string `json:"orderNumber,omitempty"`
	AlreadyProcessed bool   `json:"alreadyProcessed"`
}

// CallbackEvent is what the payment SDK's success callback gives us: the
// transaction reference issued at order creation and, usually, an opaque
// provider payload. The payload is forwarded verbatim to the backend.
type CallbackEvent struct {
	Reference string          `json:"transactionRef"`
	StoreID   string          `json:"storeId"`
	Callback  json.RawMessage `json:"callbackData,omitempty"`
}

// HasCallback reports whether the SDK handed us a usable provider payload.
func (e CallbackEvent) HasCallback() bool {
	trimmed := strings.TrimSpace(string(e.Callback))
	return trimmed != "" && trimmed != "null" && trimmed != "{}"
}
