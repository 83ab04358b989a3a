package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Topics published by the checkout and payment flows.
const (
	TopicOrderCreated        = "order.created"
	TopicPaymentConfirmed    = "payment.confirmed"
	TopicPaymentManualReview = "payment.manual_review"
	TopicPaymentFailed       = "payment.failed"
)

// Event describes something that happened to a checkout or payment attempt.
type Event struct {
	ID         string         `json:"id"`
	Topic      string         `json:"topic"`
	Reference  string         `json:"reference"`
	StoreID    string         `json:"storeId,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Notifier receives every emitted event. Notifier failures are logged and do
// not interrupt the emitting flow.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Scheduler enqueues follow-up work for an event, e.g. background
// reconciliation for payments parked in manual review.
type Scheduler interface {
	Schedule(ctx context.Context, ev Event) error
}

// Bus fans events out to notifiers and, when one is configured, a scheduler.
type Bus struct {
	Scheduler Scheduler
	Notifiers []Notifier
	Logger    zerolog.Logger
}

// Emit publishes an event. Scheduler errors are returned because dropped
// follow-up work means a payment could stay unreconciled; notifier errors are
// only logged.
func (b *Bus) Emit(ctx context.Context, topic, reference, storeID string, payload map[string]any) (Event, error) {
	ev := Event{
		ID:         uuid.NewString(),
		Topic:      topic,
		Reference:  reference,
		StoreID:    storeID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
	for _, n := range b.Notifiers {
		if err := n.Notify(ctx, ev); err != nil {
			b.Logger.Warn().Err(err).
				Str("topic", topic).
				Str("reference", reference).
				Msg("event notifier failed")
		}
	}
	if b.Scheduler != nil {
		if err := b.Scheduler.Schedule(ctx, ev); err != nil {
			return ev, err
		}
	}
	return ev, nil
}

// LogNotifier writes every event to the structured log.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, ev Event) error {
	n.Logger.Info().
		Str("event_id", ev.ID).
		Str("topic", ev.Topic).
		Str("reference", ev.Reference).
		Str("store_id", ev.StoreID).
		Msg("event")
	return nil
}
