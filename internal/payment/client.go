package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kehinde-o/storefront-pay/internal/obs"
	"github.com/kehinde-o/storefront-pay/internal/resilience"
)

// Verifier answers the read-only question "is this payment confirmed yet?".
// Implementations never fail: transport or decode problems surface as an
// unverified pending answer so callers can keep waiting or retry.
type Verifier interface {
	Verify(ctx context.Context, reference, storeID string) Verification
}

// Confirmer performs the side-effecting confirmation calls against the
// backend. Unlike verification these return errors; the orchestrator owns the
// retry policy around them.
type Confirmer interface {
	ConfirmCallback(ctx context.Context, ev CallbackEvent) (ConfirmationResult, error)
	ConfirmReference(ctx context.Context, reference, storeID string) (ConfirmationResult, error)
}

// envelope is the backend's standard response wrapper.
type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewHTTPClient builds the traced outbound client used for backend calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// VerifyClient implements Verifier against the storefront backend.
type VerifyClient struct {
	BaseURL string
	Client  *http.Client
	Logger  zerolog.Logger
}

// Verify asks the backend for the current state of a transaction reference.
// Any failure is demoted to an unverified pending Verification: callers poll,
// and a transient error must look the same as "not confirmed yet".
func (c *VerifyClient) Verify(ctx context.Context, reference, storeID string) Verification {
	body, err := json.Marshal(map[string]string{
		"transactionRef": reference,
		"storeId":        storeID,
	})
	if err != nil {
		return c.unverified(reference, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/payments/verify", bytes.NewReader(body))
	if err != nil {
		return c.unverified(reference, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return c.unverified(reference, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.unverified(reference, fmt.Errorf("verify: unexpected status %s", resp.Status))
	}
	var v Verification
	if err := decodeEnvelope(resp.Body, &v); err != nil {
		return c.unverified(reference, err)
	}
	if obs.VerificationTotal != nil {
		obs.VerificationTotal.WithLabelValues(string(v.Status), verifyResult(v)).Inc()
	}
	return v
}

func (c *VerifyClient) unverified(reference string, err error) Verification {
	c.Logger.Warn().Err(err).Str("reference", reference).Msg("payment verification failed")
	if obs.VerificationTotal != nil {
		obs.VerificationTotal.WithLabelValues(string(StatusPending), "error").Inc()
	}
	return Verification{Verified: false, Status: StatusPending, Message: err.Error()}
}

func verifyResult(v Verification) string {
	switch {
	case v.Completed():
		return "completed"
	case v.WebhookProcessing:
		return "webhook_processing"
	case v.Status.Terminal():
		return "terminal"
	default:
		return "pending"
	}
}

// ConfirmClient implements Confirmer. Both confirmation endpoints create
// orders on the backend, so calls go through the circuit breaker wrapper.
type ConfirmClient struct {
	BaseURL string
	Client  resilience.HTTPClient
}

// ConfirmCallback forwards the SDK's callback payload verbatim so the backend
// can validate it against the provider.
func (c *ConfirmClient) ConfirmCallback(ctx context.Context, ev CallbackEvent) (ConfirmationResult, error) {
	payload := map[string]any{
		"transactionRef": ev.Reference,
		"storeId":        ev.StoreID,
		"callbackData":   ev.Callback,
	}
	res, err := c.post(ctx, "/payments/confirm-callback", payload)
	recordConfirmAttempt("callback", err)
	return res, err
}

// ConfirmReference asks the backend to confirm directly with the provider
// using only the transaction reference. Used when the SDK gave us no payload.
func (c *ConfirmClient) ConfirmReference(ctx context.Context, reference, storeID string) (ConfirmationResult, error) {
	payload := map[string]any{
		"transactionRef": reference,
		"storeId":        storeID,
	}
	res, err := c.post(ctx, "/payments/confirm-reference", payload)
	recordConfirmAttempt("reference", err)
	return res, err
}

func (c *ConfirmClient) post(ctx context.Context, path string, payload map[string]any) (ConfirmationResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return ConfirmationResult{}, fmt.Errorf("confirm: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return ConfirmationResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(ctx, req)
	if err != nil {
		return ConfirmationResult{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && env.Error != nil {
			return ConfirmationResult{}, fmt.Errorf("confirm: %s (%s)", env.Error.Message, env.Error.Code)
		}
		return ConfirmationResult{}, fmt.Errorf("confirm: unexpected status %s", resp.Status)
	}
	var res ConfirmationResult
	if err := decodeEnvelope(resp.Body, &res); err != nil {
		return ConfirmationResult{}, err
	}
	return res, nil
}

func recordConfirmAttempt(path string, err error) {
	if obs.ConfirmAttemptTotal == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	obs.ConfirmAttemptTotal.WithLabelValues(path, result).Inc()
}

func decodeEnvelope(r io.Reader, out any) error {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if env.Data == nil {
		return fmt.Errorf("decode response: missing data")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}
