package reconcile_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kehinde-o/storefront-pay/internal/lock"
	"github.com/kehinde-o/storefront-pay/internal/payment"
	"github.com/kehinde-o/storefront-pay/internal/reconcile"
)

type queueVerifier struct {
	answers []payment.Verification
	calls   int
}

func (v *queueVerifier) Verify(context.Context, string, string) payment.Verification {
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

func newWorker(t *testing.T, verifier payment.Verifier) reconcile.Worker {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return reconcile.Worker{
		Poller:      payment.Poller{Verifier: verifier, Logger: zerolog.Nop()},
		Locker:      lock.Locker{R: client, Prefix: "reconcile"},
		LockTTL:     time.Second,
		MaxAttempts: 3,
		Interval:    time.Millisecond,
		Logger:      zerolog.Nop(),
	}
}

func newTask(t *testing.T, reference string) *asynq.Task {
	t.Helper()
	task, err := reconcile.NewTask(reference, "store-a")
	require.NoError(t, err)
	return task
}

func TestHandleTaskSettlesPayment(t *testing.T) {
	verifier := &queueVerifier{answers: []payment.Verification{
		{Status: payment.StatusPending},
		{Verified: true, Status: payment.StatusCompleted, OrderID: "O-1"},
	}}
	w := newWorker(t, verifier)

	err := w.HandleTask(context.Background(), newTask(t, "TXN-1"))
	require.NoError(t, err)
	require.Equal(t, 2, verifier.calls)
}

func TestHandleTaskTerminalFailureDoesNotRetry(t *testing.T) {
	verifier := &queueVerifier{answers: []payment.Verification{
		{Status: payment.StatusFailed},
	}}
	w := newWorker(t, verifier)

	err := w.HandleTask(context.Background(), newTask(t, "TXN-2"))
	require.NoError(t, err, "terminal failure is resolved, nothing left to reconcile")
}

func TestHandleTaskStillPendingRetries(t *testing.T) {
	verifier := &queueVerifier{answers: []payment.Verification{
		{Status: payment.StatusPending},
	}}
	w := newWorker(t, verifier)

	err := w.HandleTask(context.Background(), newTask(t, "TXN-3"))
	require.ErrorIs(t, err, reconcile.ErrStillPending)
	require.Equal(t, 3, verifier.calls)
}

func TestHandleTaskBadPayloadSkipsRetry(t *testing.T) {
	w := newWorker(t, &queueVerifier{})

	err := w.HandleTask(context.Background(), asynq.NewTask(reconcile.TaskTypeReconcile, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestTaskPayloadRoundTrip(t *testing.T) {
	task, err := reconcile.NewTask("TXN-9", "store-b")
	require.NoError(t, err)
	require.Equal(t, reconcile.TaskTypeReconcile, task.Type())

	var p reconcile.TaskPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	require.Equal(t, "TXN-9", p.Reference)
	require.Equal(t, "store-b", p.StoreID)
}
