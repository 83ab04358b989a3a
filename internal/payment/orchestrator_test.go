package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kehinde-o/storefront-pay/internal/events"
	"github.com/kehinde-o/storefront-pay/internal/payment"
)

type scriptVerifier struct {
	answers []payment.Verification
	calls   int
}

func (v *scriptVerifier) Verify(context.Context, string, string) payment.Verification {
	idx := v.calls
	if idx >= len(v.answers) {
		idx = len(v.answers) - 1
	}
	v.calls++
	if idx < 0 {
		return payment.Verification{Status: payment.StatusPending}
	}
	return v.answers[idx]
}

type scriptConfirmer struct {
	callbackErrs  []error
	referenceErr  error
	result        payment.ConfirmationResult
	callbackCalls int
	callbackAt    []time.Time
	refCalls      int
}

func (c *scriptConfirmer) ConfirmCallback(context.Context, payment.CallbackEvent) (payment.ConfirmationResult, error) {
	idx := c.callbackCalls
	c.callbackCalls++
	c.callbackAt = append(c.callbackAt, time.Now())
	if idx < len(c.callbackErrs) && c.callbackErrs[idx] != nil {
		return payment.ConfirmationResult{}, c.callbackErrs[idx]
	}
	return c.result, nil
}

func (c *scriptConfirmer) ConfirmReference(context.Context, string, string) (payment.ConfirmationResult, error) {
	c.refCalls++
	if c.referenceErr != nil {
		return payment.ConfirmationResult{}, c.referenceErr
	}
	return c.result, nil
}

type captureScheduler struct{ events []events.Event }

func (s *captureScheduler) Schedule(_ context.Context, ev events.Event) error {
	s.events = append(s.events, ev)
	return nil
}

func newOrchestrator(verifier payment.Verifier, confirmer payment.Confirmer, scheduler events.Scheduler) *payment.Orchestrator {
	return &payment.Orchestrator{
		Verifier:             verifier,
		Confirmer:            confirmer,
		Poller:               payment.Poller{Verifier: verifier, Logger: zerolog.Nop()},
		Redirects:            payment.Redirects{BaseURL: "https://shop.example"},
		Events:               &events.Bus{Scheduler: scheduler, Logger: zerolog.Nop()},
		Logger:               zerolog.Nop(),
		ConfirmMaxAttempts:   3,
		ConfirmRetryBase:     time.Millisecond,
		ShortPollMaxAttempts: 3,
		ShortPollInterval:    time.Millisecond,
	}
}

func callbackEvent(reference string) payment.CallbackEvent {
	return payment.CallbackEvent{
		Reference: reference,
		StoreID:   "store-a",
		Callback:  json.RawMessage(`{"provider":"ref"}`),
	}
}

func TestResolveWebhookWinsImmediately(t *testing.T) {
	verifier := &scriptVerifier{answers: []payment.Verification{
		{Verified: true, Status: payment.StatusCompleted, OrderID: "O-1", OrderNumber: "ORD-1"},
	}}
	confirmer := &scriptConfirmer{}

	out := newOrchestrator(verifier, confirmer, nil).Resolve(context.Background(), callbackEvent("TXN-1"))

	require.True(t, out.Completed())
	require.Equal(t, "O-1", out.OrderID)
	require.Zero(t, confirmer.callbackCalls, "webhook win must skip confirmation entirely")
	require.Zero(t, confirmer.refCalls)
	require.Contains(t, out.RedirectURL, "/order/success?")
	require.Contains(t, out.RedirectURL, "orderId=O-1")
	require.Contains(t, out.RedirectURL, "ref=TXN-1")
}

func TestResolveConfirmSucceedsAfterRetries(t *testing.T) {
	verifier := &scriptVerifier{answers: []payment.Verification{
		{Status: payment.StatusPending},
	}}
	confirmer := &scriptConfirmer{
		callbackErrs: []error{errors.New("503"), errors.New("503"), nil},
		result:       payment.ConfirmationResult{OrderID: "O-9", OrderNumber: "ORD-9"},
	}

	out := newOrchestrator(verifier, confirmer, nil).Resolve(context.Background(), callbackEvent("TXN-1"))

	require.True(t, out.Completed())
	require.Equal(t, "O-9", out.OrderID)
	require.Equal(t, "ORD-9", out.OrderNumber)
	require.Equal(t, 3, confirmer.callbackCalls)
	require.Contains(t, out.RedirectURL, "orderNumber=ORD-9")
}

func TestResolveConfirmRetryDelaysGrowLinearly(t *testing.T) {
	base := 100 * time.Millisecond
	verifier := &scriptVerifier{answers: []payment.Verification{
		{Status: payment.StatusPending},
	}}
	confirmer := &scriptConfirmer{
		callbackErrs: []error{errors.New("503"), errors.New("503"), nil},
		result:       payment.ConfirmationResult{OrderID: "O-9", OrderNumber: "ORD-9"},
	}
	orc := newOrchestrator(verifier, confirmer, nil)
	orc.ConfirmRetryBase = base

	out := orc.Resolve(context.Background(), callbackEvent("TXN-1"))

	require.True(t, out.Completed())
	require.Len(t, confirmer.callbackAt, 3)
	first := confirmer.callbackAt[1].Sub(confirmer.callbackAt[0])
	second := confirmer.callbackAt[2].Sub(confirmer.callbackAt[1])
	require.GreaterOrEqual(t, first, base, "wait before attempt 2 must be one base interval")
	require.Less(t, first, 2*base)
	require.GreaterOrEqual(t, second, 2*base, "wait before attempt 3 must be two base intervals")
	require.Less(t, second, 3*base)
}

func TestResolveAlreadyProcessedIsSuccess(t *testing.T) {
	verifier := &scriptVerifier{answers: []payment.Verification{
		{Status: payment.StatusPending},
	}}
	confirmer := &scriptConfirmer{
		result: payment.ConfirmationResult{OrderID: "O-2", AlreadyProcessed: true},
	}

	out := newOrchestrator(verifier, confirmer, nil).Resolve(context.Background(), callbackEvent("TXN-2"))

	require.True(t, out.Completed())
	require.Equal(t, "O-2", out.OrderID)
	require.Equal(t, 1, confirmer.callbackCalls)
}

func TestResolveShortPollRescuesFailedConfirms(t *testing.T) {
	verifier := &scriptVerifier{answers: []payment.Verification{
		{Status: payment.StatusPending}, // immediate check
		{Status: payment.StatusPending}, // poll attempt 1
		{Verified: true, Status: payment.StatusCompleted, OrderID: "O-3"}, // poll attempt 2
	}}
	confirmer := &scriptConfirmer{
		callbackErrs: []error{errors.New("down"), errors.New("down"), errors.New("down")},
	}

	out := newOrchestrator(verifier, confirmer, nil).Resolve(context.Background(), callbackEvent("TXN-3"))

	require.True(t, out.Completed())
	require.Equal(t, "O-3", out.OrderID)
	require.Equal(t, 3, confirmer.callbackCalls)
}

func TestResolveManualReviewAfterEverythingFails(t *testing.T) {
	verifier := &scriptVerifier{answers: []payment.Verification{
		{Status: payment.StatusPending},
	}}
	confirmer := &scriptConfirmer{
		callbackErrs: []error{errors.New("down"), errors.New("down"), errors.New("down")},
	}
	scheduler := &captureScheduler{}

	out := newOrchestrator(verifier, confirmer, scheduler).Resolve(context.Background(), callbackEvent("TXN-4"))

	require.Equal(t, payment.StateManualReview, out.State)
	require.Contains(t, out.RedirectURL, "/payment/callback?")
	require.Contains(t, out.RedirectURL, "reference=TXN-4")
	require.Contains(t, out.RedirectURL, "storeId=store-a")
	require.Len(t, scheduler.events, 1)
	require.Equal(t, events.TopicPaymentManualReview, scheduler.events[0].Topic)
	require.Equal(t, "TXN-4", scheduler.events[0].Reference)
}

func TestResolveReferenceOnlyPath(t *testing.T) {
	verifier := &scriptVerifier{answers: []payment.Verification{
		{Status: payment.StatusPending},
	}}
	confirmer := &scriptConfirmer{
		result: payment.ConfirmationResult{OrderID: "O-5"},
	}

	ev := payment.CallbackEvent{Reference: "TXN-5", StoreID: "store-a"}
	out := newOrchestrator(verifier, confirmer, nil).Resolve(context.Background(), ev)

	require.True(t, out.Completed())
	require.Equal(t, 1, confirmer.refCalls)
	require.Zero(t, confirmer.callbackCalls)
}

func TestResolveReferenceOnlyFailureGoesToManualReview(t *testing.T) {
	verifier := &scriptVerifier{answers: []payment.Verification{
		{Status: payment.StatusPending},
	}}
	confirmer := &scriptConfirmer{referenceErr: errors.New("504")}
	scheduler := &captureScheduler{}

	ev := payment.CallbackEvent{Reference: "TXN-6", StoreID: "store-a"}
	out := newOrchestrator(verifier, confirmer, scheduler).Resolve(context.Background(), ev)

	require.Equal(t, payment.StateManualReview, out.State)
	require.Equal(t, 1, confirmer.refCalls, "reference confirmation is single shot")
	require.Len(t, scheduler.events, 1)
}

func TestResolveMissingReference(t *testing.T) {
	confirmer := &scriptConfirmer{}
	out := newOrchestrator(&scriptVerifier{}, confirmer, nil).Resolve(context.Background(), payment.CallbackEvent{
		StoreID:  "store-a",
		Callback: json.RawMessage(`{"x":1}`),
	})

	require.Equal(t, payment.StateMissingReference, out.State)
	require.Contains(t, out.Message, "contact support")
	require.Empty(t, out.RedirectURL)
	require.Zero(t, confirmer.callbackCalls)
}

func TestResolveCloseWebhookAlreadyConfirmed(t *testing.T) {
	verifier := &scriptVerifier{answers: []payment.Verification{
		{Verified: true, Status: payment.StatusCompleted, OrderID: "O-7"},
	}}

	out := newOrchestrator(verifier, &scriptConfirmer{}, nil).ResolveClose(context.Background(), callbackEvent("TXN-7"))

	require.True(t, out.Completed())
	require.Equal(t, "O-7", out.OrderID)
	require.Contains(t, out.RedirectURL, "/order/success?")
}

func TestResolveClosePending(t *testing.T) {
	verifier := &scriptVerifier{answers: []payment.Verification{
		{Status: payment.StatusPending},
	}}

	out := newOrchestrator(verifier, &scriptConfirmer{}, nil).ResolveClose(context.Background(), callbackEvent("TXN-8"))

	require.Equal(t, payment.StateClosedPending, out.State)
	require.Equal(t, "payment not completed", out.Message)
	require.Empty(t, out.RedirectURL)
}
