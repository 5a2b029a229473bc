package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"funding-service/internal/models"
)

// SettlementService applies settlement events. Settlement is an axis
// independent of the payment lifecycle: it never touches wallet balances
// or the PAID status, only settlement_status and the batch record. A
// settlement failure is an operator signal, not a reversal.
type SettlementService struct {
	DB       *gorm.DB
	Notifier *Notifier
	// FallbackLookback bounds the heuristic match used when the gateway
	// omits the covered transaction references.
	FallbackLookback time.Duration
	log              *zap.SugaredLogger
}

func NewSettlementService(db *gorm.DB, notifier *Notifier, fallbackLookback time.Duration, log *zap.SugaredLogger) *SettlementService {
	if fallbackLookback <= 0 {
		fallbackLookback = 7 * 24 * time.Hour
	}
	return &SettlementService{DB: db, Notifier: notifier, FallbackLookback: fallbackLookback, log: log}
}

// Handle processes SETTLEMENT_COMPLETED / SETTLEMENT_FAILED.
func (s *SettlementService) Handle(ctx context.Context, eventType EventType, data *SettlementEventData) error {
	if data.SettlementReference == "" {
		return errors.New("settlement event missing settlementReference")
	}

	status := models.SettlementCompleted
	if eventType == EventSettlementFailed {
		status = models.SettlementFailed
	}

	settlementTime := time.Now()
	if data.SettlementTime != "" {
		if t, err := time.Parse(time.RFC3339, data.SettlementTime); err == nil {
			settlementTime = t
		}
	}

	var affected []models.PaymentTransaction

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Upsert the batch record.
		var batch models.SettlementBatch
		err := tx.Where("settlement_reference = ?", data.SettlementReference).First(&batch).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			batch = models.SettlementBatch{
				SettlementReference: data.SettlementReference,
				Amount:              data.Amount,
				SettlementDate:      settlementTime,
				Status:              status,
			}
			if err := tx.Create(&batch).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		} else {
			if batch.Status == status {
				return ErrAlreadyProcessed
			}
			if err := tx.Model(&batch).Updates(map[string]interface{}{
				"status": status,
				"amount": data.Amount,
			}).Error; err != nil {
				return err
			}
		}

		// Select the covered transactions: the explicit reference list, or
		// the bounded-lookback heuristic when the gateway omits it.
		q := tx.Model(&models.PaymentTransaction{}).
			Where("status = ? AND settlement_status = ?", models.StatusPaid, models.SettlementPending)
		if len(data.TransactionReferences) > 0 {
			q = q.Where("transaction_reference IN ?", data.TransactionReferences)
		} else {
			s.log.Warnw("settlement event without transaction references, using lookback heuristic",
				"settlementRef", data.SettlementReference, "lookback", s.FallbackLookback)
			q = q.Where("paid_at >= ?", time.Now().Add(-s.FallbackLookback))
		}
		if err := q.Find(&affected).Error; err != nil {
			return err
		}

		if len(affected) > 0 {
			ids := make([]uint, 0, len(affected))
			for _, pt := range affected {
				ids = append(ids, pt.ID)
			}
			err := tx.Model(&models.PaymentTransaction{}).
				Where("id IN ? AND settlement_status = ?", ids, models.SettlementPending).
				Updates(map[string]interface{}{
					"settlement_status":    status,
					"settlement_reference": data.SettlementReference,
				}).Error
			if err != nil {
				return err
			}
		}

		return tx.Model(&models.SettlementBatch{}).
			Where("settlement_reference = ?", data.SettlementReference).
			Update("transaction_count", len(affected)).Error
	})
	if err != nil {
		return err
	}

	if status == models.SettlementCompleted {
		for _, pt := range affected {
			s.Notifier.Publish(ctx, Notification{
				Type: NotifySettlementCompleted, UserId: pt.UserId,
				Amount: pt.AmountPaid, Reference: pt.PaymentReference,
			})
		}
	} else {
		s.log.Warnw("settlement failed, transactions flagged for follow-up",
			"settlementRef", data.SettlementReference, "count", len(affected))
	}
	return nil
}
