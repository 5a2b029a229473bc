package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"funding-service/internal/models"
	"funding-service/pkg/common"
)

var ErrOrphanNotFound = errors.New("orphan payment not found")

// OrphanService absorbs notifications that reference no known deposit, so
// the funds signal is never lost. A periodic sweep resolves orphans by
// looking the customer email up in the user directory and replaying the
// successful-payment path for the discovered user.
type OrphanService struct {
	DB           *gorm.DB
	Identity     *IdentityClient
	Transactions *TransactionService
	log          *zap.SugaredLogger
}

func NewOrphanService(db *gorm.DB, identity *IdentityClient, transactions *TransactionService, log *zap.SugaredLogger) *OrphanService {
	return &OrphanService{DB: db, Identity: identity, Transactions: transactions, log: log}
}

// Register persists an unmatched notification. Repeat deliveries of the
// same reference do not stack duplicate orphans.
func (s *OrphanService) Register(ctx context.Context, evt *Event) error {
	data := evt.Transaction
	if data == nil {
		return errors.New("orphan register: not a transaction event")
	}

	if data.TransactionReference != "" {
		var count int64
		if err := s.DB.WithContext(ctx).Model(&models.OrphanPayment{}).
			Where("transaction_reference = ? AND reconciled = ?", data.TransactionReference, false).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			s.log.Infow("orphan already registered", "transactionRef", data.TransactionReference)
			return nil
		}
	}

	amount := data.AmountPaid
	if amount <= 0 {
		amount = data.TotalPayable
	}
	orphan := models.OrphanPayment{
		TransactionReference: data.TransactionReference,
		PaymentReference:     data.PaymentReference,
		Amount:               amount,
		Currency:             orDefault(data.Currency, "NGN"),
		CustomerEmail:        data.Customer.Email,
		CustomerName:         data.Customer.Name,
		PaymentMethod:        data.PaymentMethod,
		RawEvent:             string(evt.Raw),
	}
	if err := s.DB.WithContext(ctx).Create(&orphan).Error; err != nil {
		return err
	}

	s.log.Warnw("orphan payment registered",
		"transactionRef", data.TransactionReference, "amount", amount, "email", data.Customer.Email)
	return nil
}

// Sweep attempts to resolve every outstanding orphan. Unresolvable orphans
// remain for manual operator action.
func (s *OrphanService) Sweep(ctx context.Context) error {
	var orphans []models.OrphanPayment
	if err := s.DB.WithContext(ctx).
		Where("reconciled = ? AND customer_email <> ''", false).
		Order("id ASC").
		Limit(200).
		Find(&orphans).Error; err != nil {
		return err
	}

	for _, orphan := range orphans {
		userId, err := s.Identity.FindUserByEmail(ctx, orphan.CustomerEmail)
		if err != nil {
			s.log.Warnw("orphan sweep lookup failed", "orphanId", orphan.ID, "error", err)
			continue
		}
		if userId == 0 {
			continue
		}
		if err := s.resolve(ctx, &orphan, userId); err != nil {
			s.log.Errorw("orphan resolution failed", "orphanId", orphan.ID, "userId", userId, "error", err)
		}
	}
	return nil
}

// ResolveManual credits an orphan to an operator-chosen user.
func (s *OrphanService) ResolveManual(ctx context.Context, orphanId uint, userId int) error {
	var orphan models.OrphanPayment
	err := s.DB.WithContext(ctx).First(&orphan, orphanId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrOrphanNotFound
	}
	if err != nil {
		return err
	}
	if orphan.Reconciled {
		return ErrAlreadyProcessed
	}
	return s.resolve(ctx, &orphan, userId)
}

func (s *OrphanService) resolve(ctx context.Context, orphan *models.OrphanPayment, userId int) error {
	// A notification can arrive with no gateway reference at all. Keying
	// the credit to the orphan row keeps resolution idempotent for those
	// without letting two reference-less orphans collide on each other.
	txRef := orphan.TransactionReference
	if txRef == "" {
		txRef = fmt.Sprintf("ORPHAN|%d", orphan.ID)
	}

	data := &TransactionEventData{
		TransactionReference: txRef,
		PaymentReference:     orphan.PaymentReference,
		AmountPaid:           orphan.Amount,
		PaymentMethod:        orphan.PaymentMethod,
		Currency:             orphan.Currency,
		Customer:             Customer{Email: orphan.CustomerEmail, Name: orphan.CustomerName},
	}

	err := s.Transactions.CreditSynthesized(ctx, userId, data, "orphan-resolution")
	if err != nil && !errors.Is(err, ErrAlreadyProcessed) {
		return err
	}

	now := time.Now()
	if err := s.DB.WithContext(ctx).Model(&models.OrphanPayment{}).
		Where("id = ? AND reconciled = ?", orphan.ID, false).
		Updates(map[string]interface{}{
			"reconciled":       true,
			"resolved_user_id": userId,
			"resolved_at":      &now,
		}).Error; err != nil {
		return err
	}

	s.log.Infow("orphan payment resolved", "orphanId", orphan.ID, "userId", userId, "amount", orphan.Amount)
	return nil
}

// ListUnresolved returns one page of outstanding orphans for operator
// review.
func (s *OrphanService) ListUnresolved(page, limit int) (common.PaginationResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var total int64
	if err := s.DB.Model(&models.OrphanPayment{}).Where("reconciled = ?", false).Count(&total).Error; err != nil {
		return common.PaginationResult{}, err
	}

	var orphans []models.OrphanPayment
	err := s.DB.Where("reconciled = ?", false).
		Order("id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&orphans).Error
	if err != nil {
		return common.PaginationResult{}, err
	}
	return common.PaginateResponse(orphans, total, page, limit, ""), nil
}
