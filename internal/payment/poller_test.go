package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kehinde-o/storefront-pay/internal/payment"
)

func TestPollReturnsOnCompletion(t *testing.T) {
	verifier := &scriptVerifier{answers: []payment.Verification{
		{Status: payment.StatusPending},
		{Status: payment.StatusPending},
		{Verified: true, Status: payment.StatusCompleted, OrderID: "O-1"},
	}}
	poller := payment.Poller{Verifier: verifier, Logger: zerolog.Nop()}

	v, err := poller.Poll(context.Background(), "TXN-1", "store-a", payment.PollOptions{
		MaxAttempts: 5,
		Interval:    time.Millisecond,
	})
	require.NoError(t, err)
	require.NotNil(t, v)
	require.True(t, v.Completed())
	require.Equal(t, 3, verifier.calls)
}

func TestPollStopsOnTerminalStatus(t *testing.T) {
	verifier := &scriptVerifier{answers: []payment.Verification{
		{Status: payment.StatusFailed},
	}}
	poller := payment.Poller{Verifier: verifier, Logger: zerolog.Nop()}

	v, err := poller.Poll(context.Background(), "TXN-2", "store-a", payment.PollOptions{
		MaxAttempts: 5,
		Interval:    time.Millisecond,
	})
	require.NoError(t, err)
	require.NotNil(t, v)
	require.Equal(t, payment.StatusFailed, v.Status)
	require.Equal(t, 1, verifier.calls, "terminal status should end the loop immediately")
}

func TestPollKeepsWaitingWhileWebhookProcessing(t *testing.T) {
	verifier := &scriptVerifier{answers: []payment.Verification{
		{Status: payment.StatusCompleted, WebhookProcessing: true},
		{Verified: true, Status: payment.StatusCompleted, OrderID: "O-2"},
	}}
	poller := payment.Poller{Verifier: verifier, Logger: zerolog.Nop()}

	v, err := poller.Poll(context.Background(), "TXN-3", "store-a", payment.PollOptions{
		MaxAttempts: 5,
		Interval:    time.Millisecond,
	})
	require.NoError(t, err)
	require.NotNil(t, v)
	require.Equal(t, "O-2", v.OrderID)
	require.Equal(t, 2, verifier.calls)
}

func TestPollExhaustionReturnsNil(t *testing.T) {
	verifier := &scriptVerifier{answers: []payment.Verification{
		{Status: payment.StatusPending},
	}}
	poller := payment.Poller{Verifier: verifier, Logger: zerolog.Nop()}

	v, err := poller.Poll(context.Background(), "TXN-4", "store-a", payment.PollOptions{
		MaxAttempts: 3,
		Interval:    time.Millisecond,
	})
	require.NoError(t, err)
	require.Nil(t, v, "exhaustion is not an error, just an unresolved answer")
	require.Equal(t, 3, verifier.calls)
}

func TestPollStopsOnContextCancel(t *testing.T) {
	verifier := &scriptVerifier{answers: []payment.Verification{
		{Status: payment.StatusPending},
	}}
	poller := payment.Poller{Verifier: verifier, Logger: zerolog.Nop()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v, err := poller.Poll(ctx, "TXN-5", "store-a", payment.PollOptions{
		MaxAttempts: 10,
		Interval:    time.Second,
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, v)
	require.Equal(t, 1, verifier.calls)
}

func TestPollReportsProgress(t *testing.T) {
	verifier := &scriptVerifier{answers: []payment.Verification{
		{Status: payment.StatusPending},
	}}
	poller := payment.Poller{Verifier: verifier, Logger: zerolog.Nop()}

	var seen []int
	_, err := poller.Poll(context.Background(), "TXN-6", "store-a", payment.PollOptions{
		MaxAttempts: 3,
		Interval:    time.Millisecond,
		OnProgress:  func(attempt, _ int) { seen = append(seen, attempt) },
	})
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, seen)
}
