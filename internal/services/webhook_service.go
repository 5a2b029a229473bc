package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"funding-service/internal/models"
	"funding-service/pkg/common"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// WebhookEnqueuer hands a persisted notification to the durable work
// queue. Satisfied by the asynq-backed enqueuer in internal/worker.
type WebhookEnqueuer interface {
	EnqueueWebhook(ctx context.Context, recordId uint) error
}

// WebhookService is the ingestion boundary: verify the signature, persist
// the raw notification, acknowledge, and hand off to the queue. The
// WebhookRecord write happens before the acknowledgement so a crash after
// responding loses nothing; reconciliation replays unprocessed records.
type WebhookService struct {
	DB       *gorm.DB
	Verifier *SignatureVerifier
	Queue    WebhookEnqueuer
	// Strict rejects bad signatures with an error. Outside production a
	// failed check is logged and tolerated.
	Strict bool
	log    *zap.SugaredLogger
}

func NewWebhookService(db *gorm.DB, verifier *SignatureVerifier, queue WebhookEnqueuer, strict bool, log *zap.SugaredLogger) *WebhookService {
	return &WebhookService{DB: db, Verifier: verifier, Queue: queue, Strict: strict, log: log}
}

// Ingest processes one inbound delivery and returns the acknowledgement to
// send. ErrMalformedEnvelope and ErrInvalidSignature map to client errors
// at the handler; anything else returned here happened before the
// acknowledgement and is an infrastructure failure.
func (s *WebhookService) Ingest(ctx context.Context, body []byte, signature string) (*common.WebhookAck, error) {
	requestId := common.GenerateRequestId()
	sigValid := s.Verifier.Verify(body, signature)

	env, parseErr := ParseEnvelope(body)
	if parseErr != nil {
		// Malformed bodies are rejected and never enqueued, but the raw
		// bytes are still kept for audit.
		s.persistRecord(ctx, &models.WebhookRecord{
			RequestId:      requestId,
			Payload:        string(body),
			SignatureValid: sigValid,
			ProcessError:   parseErr.Error(),
			ReceivedAt:     time.Now(),
		})
		return nil, parseErr
	}

	if !sigValid {
		if s.Strict {
			s.persistRecord(ctx, &models.WebhookRecord{
				EventType:      env.EventType,
				RequestId:      requestId,
				Payload:        string(body),
				SignatureValid: false,
				ProcessError:   ErrInvalidSignature.Error(),
				ReceivedAt:     time.Now(),
			})
			return nil, ErrInvalidSignature
		}
		s.log.Warnw("webhook signature check failed, tolerated outside production",
			"eventType", env.EventType, "requestId", requestId)
	}

	evt, err := ParseEvent(env, requestId)
	if err != nil {
		s.persistRecord(ctx, &models.WebhookRecord{
			EventType:      env.EventType,
			RequestId:      requestId,
			Payload:        string(body),
			SignatureValid: sigValid,
			ProcessError:   err.Error(),
			ReceivedAt:     time.Now(),
		})
		return nil, err
	}

	record := &models.WebhookRecord{
		EventType:      env.EventType,
		DedupKey:       evt.DedupKey(),
		RequestId:      requestId,
		Payload:        string(body),
		SignatureValid: sigValid,
		ReceivedAt:     time.Now(),
	}
	if err := s.DB.WithContext(ctx).Create(record).Error; err != nil {
		// Nothing durable yet, so this is the one case the sender should
		// retry against.
		return nil, err
	}

	// Enqueue failures are not surfaced to the sender: the record is
	// durable and unprocessed, and reconciliation picks it up.
	if err := s.Queue.EnqueueWebhook(ctx, record.ID); err != nil {
		s.log.Errorw("webhook enqueue failed, left for reconciliation",
			"recordId", record.ID, "error", err)
	}

	return &common.WebhookAck{Success: true, Message: "Webhook received", RequestId: requestId}, nil
}

func (s *WebhookService) persistRecord(ctx context.Context, record *models.WebhookRecord) {
	if err := s.DB.WithContext(ctx).Create(record).Error; err != nil {
		s.log.Errorw("failed to persist webhook record", "error", err)
	}
}

// Prune removes processed records older than the retention window.
func (s *WebhookService) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where("processed = ? AND received_at < ?", true, time.Now().Add(-retention)).
		Delete(&models.WebhookRecord{})
	return res.RowsAffected, res.Error
}
