package services

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"funding-service/internal/models"
)

// LedgerService is the only code path allowed to mutate a wallet balance.
// Apply never commits on its own: it runs on the caller's transaction
// handle so the balance change, the ledger entry and the payment status
// flip commit or roll back together.
type LedgerService struct {
	log *zap.SugaredLogger
}

func NewLedgerService(log *zap.SugaredLogger) *LedgerService {
	return &LedgerService{log: log}
}

// Apply mutates the wallet by the signed amount under a row lock and
// appends the audit entry. Debits are clamped at a zero floor; the clamped
// remainder is logged as a discrepancy, never silently absorbed.
func (s *LedgerService) Apply(tx *gorm.DB, userId int, amount float64, entryType models.EntryType, reference, description string) (float64, error) {
	var wallet models.WalletAccount
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userId).
		First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		wallet = models.WalletAccount{UserId: userId}
		if err := tx.Create(&wallet).Error; err != nil {
			return 0, err
		}
	} else if err != nil {
		return 0, err
	}

	applied := amount
	newBalance := wallet.Balance + amount
	if newBalance < 0 {
		s.log.Errorw("debit exceeds balance, clamping at zero",
			"userId", userId, "balance", wallet.Balance, "amount", amount, "reference", reference)
		applied = -wallet.Balance
		newBalance = 0
	}

	updates := map[string]interface{}{"balance": newBalance}
	if entryType == models.EntryDeposit && applied > 0 {
		now := time.Now()
		updates["total_deposited"] = wallet.TotalDeposited + applied
		updates["deposit_count"] = wallet.DepositCount + 1
		updates["last_deposit_at"] = &now
	}
	if err := tx.Model(&models.WalletAccount{}).Where("id = ?", wallet.ID).Updates(updates).Error; err != nil {
		return 0, err
	}

	entry := models.LedgerEntry{
		UserId:        userId,
		EntryType:     entryType,
		Amount:        applied,
		BalanceBefore: wallet.Balance,
		BalanceAfter:  newBalance,
		Reference:     reference,
		Description:   description,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return 0, err
	}

	return newBalance, nil
}
