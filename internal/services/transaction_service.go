package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"funding-service/internal/models"
	"funding-service/pkg/common"
)

var (
	ErrTransactionNotFound = errors.New("payment transaction not found")
	ErrAlreadyProcessed    = errors.New("transaction already processed")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

// TransactionService owns the deposit lifecycle. Every transition runs as
// one database transaction: the status flip and the ledger mutation commit
// atomically, with a status guard so concurrent duplicate deliveries
// observe the already-updated row and no-op.
type TransactionService struct {
	DB       *gorm.DB
	Ledger   *LedgerService
	Notifier *Notifier
	log      *zap.SugaredLogger
}

func NewTransactionService(db *gorm.DB, ledger *LedgerService, notifier *Notifier, log *zap.SugaredLogger) *TransactionService {
	return &TransactionService{DB: db, Ledger: ledger, Notifier: notifier, log: log}
}

// findForUpdate locates a transaction by gateway reference, falling back to
// the internal payment reference, holding a row lock for the rest of the
// enclosing transaction.
func (s *TransactionService) findForUpdate(tx *gorm.DB, transactionRef, paymentRef string) (*models.PaymentTransaction, error) {
	var pt models.PaymentTransaction
	q := tx.Clauses(clause.Locking{Strength: "UPDATE"})
	var err error
	if transactionRef != "" {
		err = q.Where("transaction_reference = ? OR payment_reference = ?", transactionRef, transactionRef).First(&pt).Error
	} else {
		err = gorm.ErrRecordNotFound
	}
	if errors.Is(err, gorm.ErrRecordNotFound) && paymentRef != "" {
		err = q.Where("payment_reference = ?", paymentRef).First(&pt).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pt, nil
}

// HandleSuccessful processes a SUCCESSFUL_TRANSACTION event: flip the
// deposit to PAID and credit the wallet, exactly once. Returns
// ErrTransactionNotFound when no local deposit matches (the caller routes
// to the orphan registry) and ErrAlreadyProcessed on a duplicate delivery.
func (s *TransactionService) HandleSuccessful(ctx context.Context, data *TransactionEventData) error {
	var userId int
	var newBalance float64
	var paymentRef string

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pt, err := s.findForUpdate(tx, data.TransactionReference, data.PaymentReference)
		if err != nil {
			return err
		}

		if pt.Status == models.StatusPaid {
			return ErrAlreadyProcessed
		}
		if pt.Terminal() {
			return fmt.Errorf("%w: %s -> PAID", ErrInvalidTransition, pt.Status)
		}

		amount := data.AmountPaid
		if amount <= 0 {
			amount = pt.Amount
		}
		now := time.Now()
		updates := map[string]interface{}{
			"status":            models.StatusPaid,
			"settlement_status": models.SettlementPending,
			"amount_paid":       amount,
			"paid_at":           &now,
		}
		if data.PaymentMethod != "" {
			updates["payment_method"] = data.PaymentMethod
		}
		if data.TransactionReference != "" && pt.TransactionReference == nil {
			updates["transaction_reference"] = data.TransactionReference
		}

		// Guard on the current status: across replicas the losing writer
		// sees zero rows affected and must not credit.
		res := tx.Model(&models.PaymentTransaction{}).
			Where("id = ? AND status = ?", pt.ID, models.StatusPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyProcessed
		}

		bal, err := s.Ledger.Apply(tx, pt.UserId, amount, models.EntryDeposit, pt.PaymentReference, "wallet deposit")
		if err != nil {
			return err
		}

		userId = pt.UserId
		newBalance = bal
		paymentRef = pt.PaymentReference
		return nil
	})
	if err != nil {
		return err
	}

	s.Notifier.Publish(ctx, Notification{
		Type: NotifyPaymentSuccessful, UserId: userId,
		Amount: data.AmountPaid, NewBalance: newBalance, Reference: paymentRef,
	})
	s.Notifier.Publish(ctx, Notification{
		Type: NotifyBalanceUpdated, UserId: userId, NewBalance: newBalance,
	})
	return nil
}

// HandleFailed flips a pending deposit to FAILED. No ledger effect.
func (s *TransactionService) HandleFailed(ctx context.Context, data *TransactionEventData) error {
	var userId int
	var paymentRef string

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pt, err := s.findForUpdate(tx, data.TransactionReference, data.PaymentReference)
		if err != nil {
			return err
		}

		if pt.Status == models.StatusFailed {
			return ErrAlreadyProcessed
		}
		if pt.Status != models.StatusPending {
			return fmt.Errorf("%w: %s -> FAILED", ErrInvalidTransition, pt.Status)
		}

		reason := data.PaymentDescription
		if reason == "" {
			reason = data.PaymentStatus
		}
		res := tx.Model(&models.PaymentTransaction{}).
			Where("id = ? AND status = ?", pt.ID, models.StatusPending).
			Updates(map[string]interface{}{
				"status":         models.StatusFailed,
				"failure_reason": reason,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyProcessed
		}

		userId = pt.UserId
		paymentRef = pt.PaymentReference
		return nil
	})
	if err != nil {
		return err
	}

	s.Notifier.Publish(ctx, Notification{
		Type: NotifyPaymentFailed, UserId: userId,
		Amount: data.TotalPayable, Reference: paymentRef, Reason: data.PaymentDescription,
	})
	return nil
}

// HandleCancelled flips a pending deposit to CANCELLED, for checkouts the
// customer abandoned or cancelled. No ledger effect.
func (s *TransactionService) HandleCancelled(ctx context.Context, data *TransactionEventData) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pt, err := s.findForUpdate(tx, data.TransactionReference, data.PaymentReference)
		if err != nil {
			return err
		}

		if pt.Status == models.StatusCancelled {
			return ErrAlreadyProcessed
		}
		if pt.Status != models.StatusPending {
			return fmt.Errorf("%w: %s -> CANCELLED", ErrInvalidTransition, pt.Status)
		}

		res := tx.Model(&models.PaymentTransaction{}).
			Where("id = ? AND status = ?", pt.ID, models.StatusPending).
			Updates(map[string]interface{}{
				"status":         models.StatusCancelled,
				"failure_reason": orDefault(data.PaymentDescription, "cancelled by customer"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyProcessed
		}
		return nil
	})
}

// HandleReversed processes a reversal or completed refund. Only a PAID
// deposit may be reversed; the wallet is debited by the reversal amount,
// clamped at zero, with a negative ledger entry, atomically with the
// status flip.
func (s *TransactionService) HandleReversed(ctx context.Context, data *TransactionEventData) error {
	var userId int
	var newBalance, amount float64
	var paymentRef string

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pt, err := s.findForUpdate(tx, data.TransactionReference, data.PaymentReference)
		if err != nil {
			return err
		}

		if pt.Status == models.StatusReversed {
			return ErrAlreadyProcessed
		}
		if pt.Status != models.StatusPaid {
			return fmt.Errorf("%w: reversal of %s transaction", ErrInvalidTransition, pt.Status)
		}

		amount = data.AmountPaid
		if amount <= 0 {
			amount = pt.AmountPaid
		}

		res := tx.Model(&models.PaymentTransaction{}).
			Where("id = ? AND status = ?", pt.ID, models.StatusPaid).
			Updates(map[string]interface{}{
				"status":         models.StatusReversed,
				"failure_reason": "reversed by gateway",
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyProcessed
		}

		bal, err := s.Ledger.Apply(tx, pt.UserId, -amount, models.EntryRefund, pt.PaymentReference, "deposit reversal")
		if err != nil {
			return err
		}

		userId = pt.UserId
		newBalance = bal
		paymentRef = pt.PaymentReference
		return nil
	})
	if err != nil {
		return err
	}

	s.Notifier.Publish(ctx, Notification{
		Type: NotifyPaymentReversed, UserId: userId,
		Amount: amount, NewBalance: newBalance, Reference: paymentRef,
	})
	s.Notifier.Publish(ctx, Notification{
		Type: NotifyBalanceUpdated, UserId: userId, NewBalance: newBalance,
	})
	return nil
}

// CreditSynthesized creates a PAID transaction for a deposit that was
// discovered without a local record (a resolved orphan, or a
// gateway-reported payment found by reconciliation) and credits it through
// the normal path. The unique transaction reference makes retries
// harmless: a second attempt finds the PAID record and reports already
// processed. With no reference to key on, every call credits a fresh
// deposit, so callers without one must supply their own stable reference.
func (s *TransactionService) CreditSynthesized(ctx context.Context, userId int, data *TransactionEventData, source string) error {
	var newBalance float64
	var paymentRef string

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A record may exist by now (late webhook); fall through to the
		// normal guard if so. A notification carrying no gateway reference
		// has nothing to probe against: each one is credited as its own
		// deposit, keyed only by the generated payment reference.
		var txRef *string
		if data.TransactionReference != "" {
			var existing models.PaymentTransaction
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("transaction_reference = ?", data.TransactionReference).
				First(&existing).Error
			if err == nil {
				if existing.Status == models.StatusPaid {
					return ErrAlreadyProcessed
				}
				return fmt.Errorf("%w: synthesized credit over existing %s record", ErrInvalidTransition, existing.Status)
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			ref := data.TransactionReference
			txRef = &ref
		}

		amount := data.AmountPaid
		if amount <= 0 {
			amount = data.TotalPayable
		}

		meta, _ := json.Marshal(map[string]string{"source": source, "customerEmail": data.Customer.Email})
		now := time.Now()
		pt := models.PaymentTransaction{
			UserId:               userId,
			PaymentReference:     common.GeneratePaymentRef(),
			TransactionReference: txRef,
			Amount:               amount,
			AmountPaid:           amount,
			Currency:             orDefault(data.Currency, "NGN"),
			PaymentMethod:        data.PaymentMethod,
			Status:               models.StatusPaid,
			SettlementStatus:     models.SettlementPending,
			Metadata:             string(meta),
			ExpiresAt:            now,
			PaidAt:               &now,
		}
		if err := tx.Create(&pt).Error; err != nil {
			return err
		}

		bal, err := s.Ledger.Apply(tx, userId, amount, models.EntryDeposit, pt.PaymentReference, "wallet deposit ("+source+")")
		if err != nil {
			return err
		}

		newBalance = bal
		paymentRef = pt.PaymentReference
		return nil
	})
	if err != nil {
		return err
	}

	s.Notifier.Publish(ctx, Notification{
		Type: NotifyPaymentSuccessful, UserId: userId,
		Amount: data.AmountPaid, NewBalance: newBalance, Reference: paymentRef,
	})
	s.Notifier.Publish(ctx, Notification{
		Type: NotifyBalanceUpdated, UserId: userId, NewBalance: newBalance,
	})
	return nil
}

// ListForUser returns one page of a user's deposit attempts, newest first.
func (s *TransactionService) ListForUser(userId, page, limit int) (common.PaginationResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var total int64
	if err := s.DB.Model(&models.PaymentTransaction{}).Where("user_id = ?", userId).Count(&total).Error; err != nil {
		return common.PaginationResult{}, err
	}

	var txs []models.PaymentTransaction
	err := s.DB.Where("user_id = ?", userId).
		Order("id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return common.PaginationResult{}, err
	}
	return common.PaginateResponse(txs, total, page, limit, ""), nil
}

// FindByReference looks a transaction up by either reference, without
// locking. Used by handlers and reconciliation reads.
func (s *TransactionService) FindByReference(ref string) (*models.PaymentTransaction, error) {
	var pt models.PaymentTransaction
	err := s.DB.Where("transaction_reference = ? OR payment_reference = ?", ref, ref).First(&pt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pt, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
