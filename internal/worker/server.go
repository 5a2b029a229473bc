package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"funding-service/internal/consumers"

	"github.com/hibiken/asynq"
)

type Worker struct {
	Consumer *consumers.EventConsumer
}

func NewWorker(consumer *consumers.EventConsumer) *Worker {
	return &Worker{
		Consumer: consumer,
	}
}

func (w *Worker) HandleProcessWebhook(ctx context.Context, t *asynq.Task) error {
	var p consumers.WebhookJobDTO
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	return w.Consumer.ProcessWebhook(ctx, p)
}

func (w *Worker) HandleReconcileRun(ctx context.Context, t *asynq.Task) error {
	return w.Consumer.RunReconciliation(ctx)
}

func (w *Worker) HandleOrphanSweep(ctx context.Context, t *asynq.Task) error {
	return w.Consumer.SweepOrphans(ctx)
}

func StartWorker(redisOpt asynq.RedisClientOpt, consumer *consumers.EventConsumer) {
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			// Specify how many concurrent workers to use
			Concurrency: 10,
			// Webhook processing outranks the periodic jobs.
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	worker := NewWorker(consumer)
	mux := asynq.NewServeMux()

	mux.HandleFunc(TypeProcessWebhook, worker.HandleProcessWebhook)
	mux.HandleFunc(TypeReconcileRun, worker.HandleReconcileRun)
	mux.HandleFunc(TypeOrphanSweep, worker.HandleOrphanSweep)

	if err := srv.Run(mux); err != nil {
		log.Fatalf("could not run server: %v", err)
	}
}
