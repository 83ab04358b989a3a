package payment

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/kehinde-o/storefront-pay/internal/obs"
)

// PollOptions bounds a verification poll loop.
type PollOptions struct {
	MaxAttempts int
	Interval    time.Duration
	// OnProgress, when set, is called before each verification attempt.
	OnProgress func(attempt, maxAttempts int)
}

// Poller repeatedly verifies a transaction reference until it settles or the
// attempt budget runs out.
type Poller struct {
	Verifier Verifier
	Logger   zerolog.Logger
}

// Poll verifies the reference up to MaxAttempts times, sleeping Interval
// between attempts. It returns as soon as the verification is completed or in
// a terminal non-completed state. A nil Verification means the budget was
// exhausted while the payment was still pending; deciding what that means is
// the caller's job. Cancelling the context stops the loop.
func (p Poller) Poll(ctx context.Context, reference, storeID string, opts PollOptions) (*Verification, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	started := time.Now()

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if opts.OnProgress != nil {
			opts.OnProgress(attempt, opts.MaxAttempts)
		}
		v := p.Verifier.Verify(ctx, reference, storeID)
		if v.Completed() {
			p.record("completed", attempt, started)
			return &v, nil
		}
		if v.Status.Terminal() && !v.WebhookProcessing {
			p.Logger.Info().
				Str("reference", reference).
				Str("status", string(v.Status)).
				Msg("poll stopped on terminal status")
			p.record("terminal", attempt, started)
			return &v, nil
		}
		if attempt == opts.MaxAttempts {
			break
		}
		timer := time.NewTimer(opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.record("canceled", attempt, started)
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	p.Logger.Info().
		Str("reference", reference).
		Int("attempts", opts.MaxAttempts).
		Msg("poll budget exhausted")
	p.record("exhausted", opts.MaxAttempts, started)
	return nil, nil
}

func (p Poller) record(result string, attempts int, started time.Time) {
	if obs.PollDuration != nil {
		obs.PollDuration.WithLabelValues(result).Observe(obs.DurationMillis(time.Since(started)))
	}
	if obs.PollAttempts != nil {
		obs.PollAttempts.WithLabelValues(result).Observe(float64(attempts))
	}
}
