package consumers

import (
	"context"

	"go.uber.org/zap"

	"funding-service/internal/services"
)

// EventConsumer executes queued jobs: webhook processing, reconciliation
// runs and orphan sweeps. The real logic lives in the services; this layer
// is the seam between queue payloads and service calls.
type EventConsumer struct {
	Router     *services.EventRouter
	Reconciler *services.ReconciliationService
	Orphans    *services.OrphanService
	log        *zap.SugaredLogger
}

func NewEventConsumer(router *services.EventRouter, reconciler *services.ReconciliationService,
	orphans *services.OrphanService, log *zap.SugaredLogger) *EventConsumer {
	return &EventConsumer{Router: router, Reconciler: reconciler, Orphans: orphans, log: log}
}

// --- DTOs ---

type WebhookJobDTO struct {
	RecordId uint
}

// ProcessWebhook runs one persisted delivery through the event router. A
// returned error means the failure was transient and the job should retry.
func (c *EventConsumer) ProcessWebhook(ctx context.Context, p WebhookJobDTO) error {
	if err := c.Router.Process(ctx, p.RecordId); err != nil {
		c.log.Warnw("webhook processing will retry", "recordId", p.RecordId, "error", err)
		return err
	}
	return nil
}

// RunReconciliation executes one reconciliation pass. The service skips
// itself when a pass is already in flight, so queue redelivery is safe.
func (c *EventConsumer) RunReconciliation(ctx context.Context) error {
	_, err := c.Reconciler.Run(ctx)
	return err
}

// SweepOrphans retries email-based resolution of outstanding orphans.
func (c *EventConsumer) SweepOrphans(ctx context.Context) error {
	return c.Orphans.Sweep(ctx)
}
