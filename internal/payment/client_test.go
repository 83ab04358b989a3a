package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kehinde-o/storefront-pay/internal/payment"
	"github.com/kehinde-o/storefront-pay/internal/resilience"
)

func TestVerifyDecodesBackendAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/payments/verify", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "TXN-1", body["transactionRef"])
		require.Equal(t, "store-a", body["storeId"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"verified":true,"paymentStatus":"COMPLETED","orderId":"O-1","orderNumber":"ORD-1"}}`))
	}))
	t.Cleanup(srv.Close)

	client := &payment.VerifyClient{BaseURL: srv.URL, Client: srv.Client(), Logger: zerolog.Nop()}
	v := client.Verify(context.Background(), "TXN-1", "store-a")

	require.True(t, v.Completed())
	require.Equal(t, "O-1", v.OrderID)
	require.Equal(t, "ORD-1", v.OrderNumber)
}

func TestVerifyNeverFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client := &payment.VerifyClient{BaseURL: srv.URL, Client: srv.Client(), Logger: zerolog.Nop()}
	v := client.Verify(context.Background(), "TXN-2", "store-a")

	require.False(t, v.Verified)
	require.Equal(t, payment.StatusPending, v.Status)
	require.NotEmpty(t, v.Message)

	// Unreachable host behaves the same way.
	offline := &payment.VerifyClient{
		BaseURL: "http://127.0.0.1:0",
		Client:  &http.Client{Timeout: 100 * time.Millisecond},
		Logger:  zerolog.Nop(),
	}
	v = offline.Verify(context.Background(), "TXN-2", "store-a")
	require.False(t, v.Verified)
	require.Equal(t, payment.StatusPending, v.Status)
}

func TestConfirmCallbackForwardsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/payments/confirm-callback", r.URL.Path)
		var body struct {
			TransactionRef string          `json:"transactionRef"`
			StoreID        string          `json:"storeId"`
			CallbackData   json.RawMessage `json:"callbackData"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "TXN-3", body.TransactionRef)
		require.JSONEq(t, `{"provider":"ref","amount":5000}`, string(body.CallbackData))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"orderId":"O-3","orderNumber":"ORD-3","alreadyProcessed":false}}`))
	}))
	t.Cleanup(srv.Close)

	client := &payment.ConfirmClient{
		BaseURL: srv.URL,
		Client:  resilience.HTTPClient{Client: srv.Client()},
	}
	res, err := client.ConfirmCallback(context.Background(), payment.CallbackEvent{
		Reference: "TXN-3",
		StoreID:   "store-a",
		Callback:  json.RawMessage(`{"provider":"ref","amount":5000}`),
	})
	require.NoError(t, err)
	require.Equal(t, "O-3", res.OrderID)
	require.False(t, res.AlreadyProcessed)
}

func TestConfirmReferenceSurfacesBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/payments/confirm-reference", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"status":"error","error":{"code":"PROVIDER_DECLINED","message":"payment declined"}}`))
	}))
	t.Cleanup(srv.Close)

	client := &payment.ConfirmClient{
		BaseURL: srv.URL,
		Client:  resilience.HTTPClient{Client: srv.Client()},
	}
	_, err := client.ConfirmReference(context.Background(), "TXN-4", "store-a")
	require.Error(t, err)
	require.Contains(t, err.Error(), "payment declined")
	require.Contains(t, err.Error(), "PROVIDER_DECLINED")
}
