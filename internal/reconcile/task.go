package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kehinde-o/storefront-pay/internal/events"
)

// TaskTypeReconcile is the asynq task type for payment reconciliation.
const TaskTypeReconcile = "payment:reconcile"

// Queue is the asynq queue reconciliation tasks run on.
const Queue = "reconcile"

// TaskPayload is the JSON body of a reconciliation task.
type TaskPayload struct {
	Reference string `json:"reference"`
	StoreID   string `json:"storeId,omitempty"`
}

// NewTask builds a reconciliation task for a transaction reference.
func NewTask(reference, storeID string) (*asynq.Task, error) {
	payload, err := json.Marshal(TaskPayload{Reference: reference, StoreID: storeID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeReconcile, payload), nil
}

// Enqueuer schedules a reconciliation run for payments that ended in manual
// review. It implements events.Scheduler; only manual-review events enqueue
// work, everything else is a no-op.
type Enqueuer struct {
	Client *asynq.Client
	Delay  time.Duration
}

// Schedule enqueues a delayed reconciliation task. The task id is derived
// from the transaction reference so repeated manual-review events for the
// same payment collapse into one pending task.
func (e Enqueuer) Schedule(ctx context.Context, ev events.Event) error {
	if ev.Topic != events.TopicPaymentManualReview {
		return nil
	}
	task, err := NewTask(ev.Reference, ev.StoreID)
	if err != nil {
		return err
	}
	delay := e.Delay
	if delay <= 0 {
		delay = 30 * time.Second
	}
	_, err = e.Client.EnqueueContext(ctx, task,
		asynq.Queue(Queue),
		asynq.TaskID(TaskTypeReconcile+":"+ev.Reference),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(5),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}
