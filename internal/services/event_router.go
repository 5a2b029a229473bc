package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"funding-service/internal/models"
)

// EventRouter takes a persisted webhook record through deduplication and
// dispatches it to the handler for its event variant. Called from the
// queue worker, so returning an error means the delivery is retried;
// business outcomes that must not retry (duplicates, orphans, invalid
// transitions) are absorbed here and recorded on the WebhookRecord.
type EventRouter struct {
	DB           *gorm.DB
	Dedup        *DedupIndex
	Transactions *TransactionService
	Settlements  *SettlementService
	Orphans      *OrphanService
	log          *zap.SugaredLogger
}

func NewEventRouter(db *gorm.DB, dedup *DedupIndex, transactions *TransactionService, settlements *SettlementService, orphans *OrphanService, log *zap.SugaredLogger) *EventRouter {
	return &EventRouter{
		DB:           db,
		Dedup:        dedup,
		Transactions: transactions,
		Settlements:  settlements,
		Orphans:      orphans,
		log:          log,
	}
}

// Process handles one webhook record end to end.
func (r *EventRouter) Process(ctx context.Context, recordId uint) error {
	var record models.WebhookRecord
	if err := r.DB.WithContext(ctx).First(&record, recordId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			r.log.Warnw("webhook record vanished before processing", "recordId", recordId)
			return nil
		}
		return err
	}
	if record.Processed {
		return nil
	}

	env, err := ParseEnvelope([]byte(record.Payload))
	if err != nil {
		return r.finish(ctx, &record, true, err.Error())
	}
	evt, err := ParseEvent(env, record.RequestId)
	if err != nil {
		return r.finish(ctx, &record, true, err.Error())
	}

	if !evt.Type.Known() {
		// Kept for inspection, reported unprocessed; never an error to
		// the sender.
		r.log.Warnw("unhandled event type", "eventType", evt.Type, "recordId", record.ID)
		return r.finish(ctx, &record, false, "unhandled event type")
	}

	key := evt.DedupKey()
	if r.Dedup.Seen(ctx, key) {
		r.log.Infow("duplicate delivery absorbed by cache", "dedupKey", key)
		return r.finish(ctx, &record, true, "duplicate delivery")
	}

	// Durable index: the unique constraint on processed_events is what
	// guarantees at-most-once across replicas. A row is only ever written
	// after its outcome committed (recordClaim below), so a hit here means
	// the work is genuinely done and the delivery can be absorbed.
	var prior models.ProcessedEvent
	err = r.DB.WithContext(ctx).Where("dedup_key = ?", key).First(&prior).Error
	if err == nil {
		r.log.Infow("duplicate delivery absorbed by durable index", "dedupKey", key)
		return r.finish(ctx, &record, true, "duplicate delivery")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if err := r.dispatch(ctx, evt); err != nil {
		switch {
		case errors.Is(err, ErrAlreadyProcessed):
			// The state guard saw this outcome land already (another
			// replica, a verify call, reconciliation). Claim the key so
			// later redeliveries stop short of the handlers.
			r.log.Infow("already processed", "dedupKey", key)
			r.recordClaim(ctx, key, evt.Type)
			return r.finish(ctx, &record, true, "")
		case errors.Is(err, ErrTransactionNotFound):
			if regErr := r.Orphans.Register(ctx, evt); regErr != nil {
				return regErr
			}
			r.recordClaim(ctx, key, evt.Type)
			return r.finish(ctx, &record, true, "routed to orphan registry")
		case errors.Is(err, ErrInvalidTransition):
			r.log.Errorw("rejected invalid transition", "dedupKey", key, "error", err)
			r.recordClaim(ctx, key, evt.Type)
			return r.finish(ctx, &record, true, err.Error())
		default:
			// Transient failure: nothing was claimed, so a redelivery or
			// the queue retry runs the event again in full.
			return err
		}
	}

	r.recordClaim(ctx, key, evt.Type)
	return r.finish(ctx, &record, true, "")
}

// recordClaim writes the durable dedup row for a key whose outcome has
// committed. It must never run before that commit: a claim without the
// outcome behind it would absorb the retry that could still do the work.
// Failing to write it is tolerated since the state guard still holds.
func (r *EventRouter) recordClaim(ctx context.Context, key string, eventType EventType) {
	claim := models.ProcessedEvent{DedupKey: key, EventType: string(eventType)}
	if err := r.DB.WithContext(ctx).Create(&claim).Error; err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		r.log.Errorw("failed to record dedup claim", "dedupKey", key, "error", err)
		return
	}
	r.Dedup.Mark(ctx, key)
}

func (r *EventRouter) dispatch(ctx context.Context, evt *Event) error {
	switch evt.Type {
	case EventSuccessfulTransaction:
		return r.Transactions.HandleSuccessful(ctx, evt.Transaction)
	case EventFailedTransaction:
		return r.Transactions.HandleFailed(ctx, evt.Transaction)
	case EventReversedTransaction, EventRefundCompleted:
		return r.Transactions.HandleReversed(ctx, evt.Transaction)
	case EventSettlementCompleted, EventSettlementFailed:
		return r.Settlements.Handle(ctx, evt.Type, evt.Settlement)
	}
	return fmt.Errorf("no handler for event type %s", evt.Type)
}

func (r *EventRouter) finish(ctx context.Context, record *models.WebhookRecord, processed bool, msg string) error {
	updates := map[string]interface{}{"processed": processed}
	if msg != "" {
		updates["process_error"] = msg
	}
	return r.DB.WithContext(ctx).Model(record).Updates(updates).Error
}
