package worker

import (
	"context"
	"encoding/json"

	"funding-service/internal/consumers"

	"github.com/hibiken/asynq"
)

// Task Types
const (
	TypeProcessWebhook = "webhook:process"
	TypeReconcileRun   = "reconcile:run"
	TypeOrphanSweep    = "orphan:sweep"
)

// Task Creators

func NewProcessWebhookTask(payload consumers.WebhookJobDTO) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeProcessWebhook, data, asynq.Queue("critical"), asynq.MaxRetry(10)), nil
}

func NewReconcileTask() *asynq.Task {
	return asynq.NewTask(TypeReconcileRun, nil, asynq.Queue("low"), asynq.MaxRetry(0))
}

func NewOrphanSweepTask() *asynq.Task {
	return asynq.NewTask(TypeOrphanSweep, nil, asynq.Queue("low"), asynq.MaxRetry(0))
}

// Enqueuer wraps the asynq client behind the enqueue seams the services
// and the scheduler depend on.
type Enqueuer struct {
	Client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{Client: client}
}

// EnqueueWebhook queues a persisted delivery for processing.
func (e *Enqueuer) EnqueueWebhook(ctx context.Context, recordId uint) error {
	task, err := NewProcessWebhookTask(consumers.WebhookJobDTO{RecordId: recordId})
	if err != nil {
		return err
	}
	_, err = e.Client.EnqueueContext(ctx, task)
	return err
}

// EnqueueReconcile queues a reconciliation pass.
func (e *Enqueuer) EnqueueReconcile(ctx context.Context) error {
	_, err := e.Client.EnqueueContext(ctx, NewReconcileTask())
	return err
}

// EnqueueOrphanSweep queues an orphan resolution sweep.
func (e *Enqueuer) EnqueueOrphanSweep(ctx context.Context) error {
	_, err := e.Client.EnqueueContext(ctx, NewOrphanSweepTask())
	return err
}
