package models

import (
	"time"
)

// WalletAccount holds a per-user balance. The balance column is only ever
// mutated inside the same database transaction that appends a LedgerEntry
// and updates the triggering PaymentTransaction.
type WalletAccount struct {
	ID             uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserId         int        `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`
	Balance        float64    `gorm:"column:balance;type:decimal(20,2);default:0.00" json:"balance"`
	TotalDeposited float64    `gorm:"column:total_deposited;type:decimal(20,2);default:0.00" json:"total_deposited"`
	DepositCount   int        `gorm:"column:deposit_count;default:0" json:"deposit_count"`
	Currency       string     `gorm:"column:currency;size:10;default:NGN" json:"currency"`
	LastDepositAt  *time.Time `gorm:"column:last_deposit_at" json:"last_deposit_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (WalletAccount) TableName() string {
	return "wallet_accounts"
}
