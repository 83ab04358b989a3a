package payment

import (
	"context"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kehinde-o/storefront-pay/internal/events"
	"github.com/kehinde-o/storefront-pay/internal/obs"
)

// State identifies a step of the confirmation flow.
type State int

const (
	StateAwaitingCallback State = iota
	StateImmediateCheck
	StateConfirmingCallback
	StateConfirmingReference
	StateShortPoll
	StateCompleted
	StateManualReview
	StateMissingReference
	StateClosedPending
)

func (s State) String() string {
	switch s {
	case StateAwaitingCallback:
		return "awaiting_callback"
	case StateImmediateCheck:
		return "immediate_check"
	case StateConfirmingCallback:
		return "confirming_callback"
	case StateConfirmingReference:
		return "confirming_reference"
	case StateShortPoll:
		return "short_poll"
	case StateCompleted:
		return "completed"
	case StateManualReview:
		return "manual_review"
	case StateMissingReference:
		return "missing_reference"
	case StateClosedPending:
		return "closed_pending"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of resolving a payment callback. There is no
// error variant: every path ends with somewhere to send the shopper.
type Outcome struct {
	State       State  `json:"state"`
	OrderID     string `json:"orderId,omitempty"`
	OrderNumber string `json:"orderNumber,omitempty"`
	Reference   string `json:"reference"`
	StoreID     string `json:"storeId,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Completed reports whether the payment resolved to a confirmed order.
func (o Outcome) Completed() bool { return o.State == StateCompleted }

// Orchestrator drives a payment callback to a terminal outcome. The backend
// webhook may confirm the same payment concurrently; every step treats "the
// order already exists" as success, never as a conflict.
type Orchestrator struct {
	Verifier  Verifier
	Confirmer Confirmer
	Poller    Poller
	Redirects Redirects
	Events    *events.Bus
	Logger    zerolog.Logger

	ConfirmMaxAttempts   int
	ConfirmRetryBase     time.Duration
	ShortPollMaxAttempts int
	ShortPollInterval    time.Duration
}

// Resolve runs the state machine for a success callback from the payment SDK.
// It never returns an error: the worst case is a manual-review outcome whose
// redirect page keeps watching the payment while a background job reconciles.
func (o *Orchestrator) Resolve(ctx context.Context, ev CallbackEvent) Outcome {
	ctx, span := otel.Tracer("payment").Start(ctx, "orchestrator.resolve")
	defer span.End()

	ev.Reference = strings.TrimSpace(ev.Reference)
	state := StateAwaitingCallback
	var out Outcome
	for {
		switch state {
		case StateAwaitingCallback:
			state = o.receiveCallback(ev)
		case StateImmediateCheck:
			state, out = o.immediateCheck(ctx, ev)
		case StateConfirmingCallback:
			state, out = o.confirmFromCallback(ctx, ev)
		case StateConfirmingReference:
			state, out = o.confirmFromReference(ctx, ev)
		case StateShortPoll:
			state, out = o.shortPoll(ctx, ev)
		default:
			out = o.finalize(ctx, ev, state, out)
			span.SetAttributes(attribute.String("payment.outcome", state.String()))
			return out
		}
	}
}

// ResolveClose handles the shopper dismissing the payment widget. The webhook
// may have confirmed the payment anyway, so we verify once before reporting
// the payment as not completed. Dismissal is not a failure.
func (o *Orchestrator) ResolveClose(ctx context.Context, ev CallbackEvent) Outcome {
	ctx, span := otel.Tracer("payment").Start(ctx, "orchestrator.resolve_close")
	defer span.End()

	ev.Reference = strings.TrimSpace(ev.Reference)
	if ev.Reference == "" {
		return Outcome{State: StateClosedPending, Message: "payment not completed"}
	}
	if v := o.Verifier.Verify(ctx, ev.Reference, ev.StoreID); v.Completed() {
		o.Logger.Info().
			Str("reference", ev.Reference).
			Msg("payment confirmed by webhook despite widget close")
		return o.finalize(ctx, ev, StateCompleted, Outcome{
			OrderID:     v.OrderID,
			OrderNumber: v.OrderNumber,
		})
	}
	o.countOutcome(StateClosedPending, ev.StoreID)
	return Outcome{
		State:     StateClosedPending,
		Reference: ev.Reference,
		StoreID:   ev.StoreID,
		Message:   "payment not completed",
	}
}

func (o *Orchestrator) receiveCallback(ev CallbackEvent) State {
	if ev.Reference == "" {
		return StateMissingReference
	}
	return StateImmediateCheck
}

// immediateCheck asks the backend once before confirming anything. When the
// provider webhook beat the browser here, the order already exists and the
// whole confirmation cascade is skipped.
func (o *Orchestrator) immediateCheck(ctx context.Context, ev CallbackEvent) (State, Outcome) {
	v := o.Verifier.Verify(ctx, ev.Reference, ev.StoreID)
	if v.Completed() {
		o.Logger.Info().
			Str("reference", ev.Reference).
			Str("order_id", v.OrderID).
			Msg("webhook confirmed payment before callback")
		return StateCompleted, Outcome{OrderID: v.OrderID, OrderNumber: v.OrderNumber}
	}
	if ev.HasCallback() {
		return StateConfirmingCallback, Outcome{}
	}
	return StateConfirmingReference, Outcome{}
}

// confirmFromCallback retries the callback confirmation with linearly growing
// backoff. Exhausting the attempts is not terminal; the short poll still gets
// a chance to observe a webhook-driven confirmation.
func (o *Orchestrator) confirmFromCallback(ctx context.Context, ev CallbackEvent) (State, Outcome) {
	attempts := o.ConfirmMaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	base := o.ConfirmRetryBase
	if base <= 0 {
		base = time.Second
	}

	res, err := retry.DoWithData(
		func() (ConfirmationResult, error) {
			return o.Confirmer.ConfirmCallback(ctx, ev)
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		// n counts the attempt that just failed (1-based here), so the
		// wait before attempt n+1 is base, 2*base, ...
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return base * time.Duration(n)
		}),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			o.Logger.Warn().Err(err).
				Str("reference", ev.Reference).
				Uint("attempt", n+1).
				Msg("callback confirmation failed, retrying")
		}),
	)
	if err != nil {
		o.Logger.Warn().Err(err).
			Str("reference", ev.Reference).
			Int("attempts", attempts).
			Msg("callback confirmation exhausted, falling back to polling")
		return StateShortPoll, Outcome{}
	}
	if res.AlreadyProcessed {
		o.Logger.Info().
			Str("reference", ev.Reference).
			Str("order_id", res.OrderID).
			Msg("payment already confirmed by webhook")
	}
	return StateCompleted, Outcome{OrderID: res.OrderID, OrderNumber: res.OrderNumber}
}

// confirmFromReference is the single-shot path used when the SDK callback
// carried no payload. There is nothing to retry with, so a failure goes
// straight to manual review.
func (o *Orchestrator) confirmFromReference(ctx context.Context, ev CallbackEvent) (State, Outcome) {
	res, err := o.Confirmer.ConfirmReference(ctx, ev.Reference, ev.StoreID)
	if err != nil {
		o.Logger.Warn().Err(err).
			Str("reference", ev.Reference).
			Msg("reference confirmation failed")
		return StateManualReview, Outcome{}
	}
	return StateCompleted, Outcome{OrderID: res.OrderID, OrderNumber: res.OrderNumber}
}

// shortPoll gives the webhook a few seconds to settle the payment after the
// confirmation cascade failed. Anything short of a completed verification,
// including terminal failures, parks the payment in manual review where the
// background reconciler and the callback page take over.
func (o *Orchestrator) shortPoll(ctx context.Context, ev CallbackEvent) (State, Outcome) {
	v, err := o.Poller.Poll(ctx, ev.Reference, ev.StoreID, PollOptions{
		MaxAttempts: o.ShortPollMaxAttempts,
		Interval:    o.ShortPollInterval,
	})
	if err == nil && v != nil && v.Completed() {
		return StateCompleted, Outcome{OrderID: v.OrderID, OrderNumber: v.OrderNumber}
	}
	return StateManualReview, Outcome{}
}

func (o *Orchestrator) finalize(ctx context.Context, ev CallbackEvent, state State, out Outcome) Outcome {
	out.State = state
	out.Reference = ev.Reference
	out.StoreID = ev.StoreID
	o.countOutcome(state, ev.StoreID)

	switch state {
	case StateCompleted:
		out.RedirectURL = o.Redirects.Success(out.OrderID, ev.Reference, out.OrderNumber)
		o.emit(ctx, events.TopicPaymentConfirmed, ev, map[string]any{
			"orderId":     out.OrderID,
			"orderNumber": out.OrderNumber,
		})
	case StateManualReview:
		out.RedirectURL = o.Redirects.Manual(ev.Reference, ev.StoreID)
		out.Message = "payment received, confirmation pending"
		o.emit(ctx, events.TopicPaymentManualReview, ev, nil)
	case StateMissingReference:
		out.Message = "payment was received but the transaction reference is missing; please contact support"
		o.emit(ctx, events.TopicPaymentFailed, ev, map[string]any{"reason": "missing_reference"})
	}
	return out
}

func (o *Orchestrator) countOutcome(state State, storeID string) {
	if obs.OrchestratorOutcomeTotal == nil {
		return
	}
	if storeID == "" {
		storeID = "unknown"
	}
	obs.OrchestratorOutcomeTotal.WithLabelValues(state.String(), storeID).Inc()
}

func (o *Orchestrator) emit(ctx context.Context, topic string, ev CallbackEvent, payload map[string]any) {
	if o.Events == nil {
		return
	}
	if _, err := o.Events.Emit(ctx, topic, ev.Reference, ev.StoreID, payload); err != nil {
		o.Logger.Error().Err(err).
			Str("topic", topic).
			Str("reference", ev.Reference).
			Msg("event emit failed")
	}
}
