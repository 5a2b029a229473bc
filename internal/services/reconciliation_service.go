package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"funding-service/internal/config"
	"funding-service/internal/models"
)

// ReconciliationService periodically trues local state up against the
// gateway's record: expires stale pending deposits, replays missed
// notifications, flags disagreements, applies settlement batches and
// retries orphan resolution. Webhooks are an optimization; this job is the
// correctness mechanism.
type ReconciliationService struct {
	DB           *gorm.DB
	Gateway      *GatewayClient
	Transactions *TransactionService
	Settlements  *SettlementService
	Orphans      *OrphanService
	Webhooks     *WebhookService
	cfg          config.ReconcileConfig
	retention    time.Duration
	log          *zap.SugaredLogger

	running atomic.Bool
}

func NewReconciliationService(db *gorm.DB, gateway *GatewayClient, transactions *TransactionService,
	settlements *SettlementService, orphans *OrphanService, webhooks *WebhookService,
	cfg config.ReconcileConfig, webhookRetention time.Duration, log *zap.SugaredLogger) *ReconciliationService {
	return &ReconciliationService{
		DB: db, Gateway: gateway, Transactions: transactions,
		Settlements: settlements, Orphans: orphans, Webhooks: webhooks,
		cfg: cfg, retention: webhookRetention, log: log,
	}
}

// ReconcileReport summarizes one run for logs and the manual-trigger endpoint.
type ReconcileReport struct {
	Expired           int64 `json:"expired"`
	Repaired          int   `json:"repaired"`
	Mismatches        int   `json:"mismatches"`
	OrphansRegistered int   `json:"orphansRegistered"`
	SettlementsSeen   int   `json:"settlementsSeen"`
	WebhooksPruned    int64 `json:"webhooksPruned"`
}

// Run executes one full reconciliation pass. A pass already in flight makes
// the call a no-op: overlapping runs touch the same rows for no benefit.
func (s *ReconciliationService) Run(ctx context.Context) (*ReconcileReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Infow("reconciliation already running, skipping")
		return nil, nil
	}
	defer s.running.Store(false)

	started := time.Now()
	report := &ReconcileReport{}

	expired, err := s.expireStalePending(ctx)
	if err != nil {
		s.log.Errorw("expiring stale deposits failed", "error", err)
	}
	report.Expired = expired

	if err := s.reconcileTransactions(ctx, report); err != nil {
		s.log.Errorw("transaction reconciliation failed", "error", err)
	}

	if err := s.reconcileSettlements(ctx, report); err != nil {
		s.log.Errorw("settlement reconciliation failed", "error", err)
	}

	if err := s.Orphans.Sweep(ctx); err != nil {
		s.log.Errorw("orphan sweep failed", "error", err)
	}

	pruned, err := s.Webhooks.Prune(ctx, s.retention)
	if err != nil {
		s.log.Errorw("webhook prune failed", "error", err)
	}
	report.WebhooksPruned = pruned

	s.log.Infow("reconciliation complete",
		"expired", report.Expired,
		"repaired", report.Repaired,
		"mismatches", report.Mismatches,
		"orphans", report.OrphansRegistered,
		"settlements", report.SettlementsSeen,
		"pruned", report.WebhooksPruned,
		"took", time.Since(started))
	return report, nil
}

// expireStalePending flips deposits past their payment window to EXPIRED.
// No ledger effect: nothing was ever credited.
func (s *ReconciliationService) expireStalePending(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.PaymentTransaction{}).
		Where("status = ? AND expires_at < ?", models.StatusPending, time.Now()).
		Updates(map[string]interface{}{
			"status":         models.StatusExpired,
			"failure_reason": "payment window elapsed",
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.log.Infow("expired stale pending deposits", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// reconcileTransactions pages the gateway's record over the lookback window
// and replays anything the webhook path missed.
func (s *ReconciliationService) reconcileTransactions(ctx context.Context, report *ReconcileReport) error {
	to := time.Now()
	from := to.Add(-s.cfg.Lookback)

	for page := 0; ; page++ {
		txs, more, err := s.Gateway.ListTransactions(ctx, from, to, page, 100)
		if err != nil {
			return err
		}
		for i := range txs {
			s.reconcileOne(ctx, &txs[i], report)
		}
		if !more {
			return nil
		}
	}
}

// reconcileOne compares a single gateway transaction with the local record
// and repairs or flags as appropriate.
func (s *ReconciliationService) reconcileOne(ctx context.Context, gt *GatewayTransaction, report *ReconcileReport) {
	ref := gt.TransactionReference
	if ref == "" {
		ref = gt.PaymentReference
	}
	local, err := s.Transactions.FindByReference(ref)

	switch {
	case errors.Is(err, ErrTransactionNotFound):
		// The gateway knows a payment we never saw. Only a completed one
		// is actionable; route it through the orphan machinery.
		if gt.PaymentStatus != "PAID" && gt.PaymentStatus != "OVERPAID" {
			return
		}
		evt := &Event{
			Type: EventSuccessfulTransaction,
			Transaction: &TransactionEventData{
				TransactionReference: gt.TransactionReference,
				PaymentReference:     gt.PaymentReference,
				AmountPaid:           gt.AmountPaid,
				TotalPayable:         gt.TotalPayable,
				PaymentMethod:        gt.PaymentMethod,
				PaymentStatus:        gt.PaymentStatus,
				Currency:             gt.CurrencyCode,
				Customer:             gt.Customer,
			},
		}
		if err := s.Orphans.Register(ctx, evt); err != nil {
			s.log.Errorw("registering reconciliation orphan failed", "transactionRef", ref, "error", err)
			return
		}
		report.OrphansRegistered++
	case err != nil:
		s.log.Errorw("reconciliation lookup failed", "reference", ref, "error", err)
	default:
		s.compareAndRepair(ctx, local, gt, report)
	}
}

// compareAndRepair handles a transaction both sides know about. A pending
// local record with a settled gateway outcome is repaired through the same
// state-machine path a live notification takes. Any other disagreement is
// recorded for operator review, never overwritten.
func (s *ReconciliationService) compareAndRepair(ctx context.Context, local *models.PaymentTransaction, gt *GatewayTransaction, report *ReconcileReport) {
	// Compare against what the gateway status settles as locally, so a
	// PAID deposit the gateway reports OVERPAID is agreement, not a
	// discrepancy.
	if local.Status == localStatusFor(gt.PaymentStatus) {
		return
	}

	if local.Status == models.StatusPending {
		err := applyGatewayState(ctx, s.Transactions, gt)
		switch {
		case err == nil:
			s.log.Infow("repaired missed notification",
				"paymentRef", local.PaymentReference, "gatewayStatus", gt.PaymentStatus)
			report.Repaired++
			return
		case errors.Is(err, ErrAlreadyProcessed), errors.Is(err, errNoTransitionNeeded):
			return
		default:
			s.log.Errorw("repair failed", "paymentRef", local.PaymentReference, "error", err)
			return
		}
	}

	// PAID here with FAILED there (or any other post-terminal split) is a
	// discrepancy a machine must not settle on its own.
	if s.recordMismatch(ctx, local, gt) {
		report.Mismatches++
	}
}

// recordMismatch flags a disagreement, once per unresolved pair.
func (s *ReconciliationService) recordMismatch(ctx context.Context, local *models.PaymentTransaction, gt *GatewayTransaction) bool {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.StatusMismatch{}).
		Where("payment_reference = ? AND gateway_status = ? AND resolved = ?",
			local.PaymentReference, gt.PaymentStatus, false).
		Count(&count).Error
	if err != nil || count > 0 {
		return false
	}

	mismatch := models.StatusMismatch{
		PaymentReference: local.PaymentReference,
		LocalStatus:      string(local.Status),
		GatewayStatus:    gt.PaymentStatus,
		Amount:           local.Amount,
		Notes:            "detected by reconciliation",
	}
	if err := s.DB.WithContext(ctx).Create(&mismatch).Error; err != nil {
		s.log.Errorw("recording status mismatch failed", "paymentRef", local.PaymentReference, "error", err)
		return false
	}
	s.log.Warnw("status mismatch detected",
		"paymentRef", local.PaymentReference,
		"local", local.Status, "gateway", gt.PaymentStatus)
	return true
}

// reconcileSettlements pages the gateway's settlement record and applies
// each batch through the same idempotent path as a live settlement event.
func (s *ReconciliationService) reconcileSettlements(ctx context.Context, report *ReconcileReport) error {
	to := time.Now()
	from := to.Add(-s.cfg.SettlementLookback)

	for page := 0; ; page++ {
		batches, more, err := s.Gateway.ListSettlements(ctx, from, to, page, 50)
		if err != nil {
			return err
		}
		for _, batch := range batches {
			eventType := EventSettlementCompleted
			if batch.Status == "FAILED" {
				eventType = EventSettlementFailed
			}
			data := &SettlementEventData{
				SettlementReference:   batch.SettlementReference,
				Amount:                batch.Amount,
				SettlementTime:        batch.SettlementTime,
				TransactionReferences: batch.TransactionReferences,
			}
			err := s.Settlements.Handle(ctx, eventType, data)
			if err != nil && !errors.Is(err, ErrAlreadyProcessed) {
				s.log.Errorw("settlement reconciliation failed",
					"settlementRef", batch.SettlementReference, "error", err)
				continue
			}
			report.SettlementsSeen++
		}
		if !more {
			return nil
		}
	}
}
