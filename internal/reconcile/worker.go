package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/kehinde-o/storefront-pay/internal/lock"
	"github.com/kehinde-o/storefront-pay/internal/obs"
	"github.com/kehinde-o/storefront-pay/internal/payment"
)

// Worker resolves payments that were parked in manual review. It polls the
// backend with a longer budget than the inline flow could afford; the webhook
// usually lands well within it.
type Worker struct {
	Poller      payment.Poller
	Locker      lock.Locker
	LockTTL     time.Duration
	MaxAttempts int
	Interval    time.Duration
	Logger      zerolog.Logger
}

// ErrStillPending is returned when the poll budget runs out with the payment
// unresolved; asynq retries the task with backoff.
var ErrStillPending = errors.New("reconcile: payment still pending")

// HandleTask processes one reconciliation task. The per-reference lock keeps
// runs single-flight even when the task is retried while another worker is
// mid-poll.
func (w Worker) HandleTask(ctx context.Context, t *asynq.Task) error {
	var p TaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		// malformed payload, retrying cannot help
		w.Logger.Error().Err(err).Msg("reconcile: bad task payload")
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	err := w.Locker.TryLock(ctx, p.Reference, w.LockTTL, func(ctx context.Context) error {
		return w.reconcile(ctx, p)
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		w.Logger.Info().Str("reference", p.Reference).Msg("reconcile: already in progress elsewhere")
		return nil
	}
	return err
}

func (w Worker) reconcile(ctx context.Context, p TaskPayload) error {
	logger := w.Logger.With().Str("reference", p.Reference).Str("store_id", p.StoreID).Logger()

	v, err := w.Poller.Poll(ctx, p.Reference, p.StoreID, payment.PollOptions{
		MaxAttempts: w.MaxAttempts,
		Interval:    w.Interval,
	})
	if err != nil {
		w.count("canceled")
		return err
	}
	switch {
	case v == nil:
		w.count("unresolved")
		logger.Warn().Msg("reconcile: poll budget exhausted")
		return ErrStillPending
	case v.Completed():
		w.count("completed")
		logger.Info().Str("order_id", v.OrderID).Msg("reconcile: payment settled")
		return nil
	default:
		w.count("terminal")
		logger.Info().Str("status", string(v.Status)).Msg("reconcile: payment ended in terminal state")
		return nil
	}
}

func (w Worker) count(result string) {
	if obs.ReconcileTotal == nil {
		return
	}
	obs.ReconcileTotal.WithLabelValues(result).Inc()
}
