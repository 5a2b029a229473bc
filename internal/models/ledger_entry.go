package models

import (
	"time"
)

type EntryType string

const (
	EntryDeposit  EntryType = "deposit"
	EntryRefund   EntryType = "refund"
	EntryPurchase EntryType = "purchase"
)

// LedgerEntry is the immutable audit record of a balance mutation. Rows are
// append-only; replaying them in order must reproduce the wallet balance.
type LedgerEntry struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserId        int       `gorm:"column:user_id;not null;index" json:"user_id"`
	EntryType     EntryType `gorm:"column:entry_type;size:20;not null" json:"entry_type"`
	Amount        float64   `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	BalanceBefore float64   `gorm:"column:balance_before;type:decimal(20,2);not null" json:"balance_before"`
	BalanceAfter  float64   `gorm:"column:balance_after;type:decimal(20,2);not null" json:"balance_after"`
	Reference     string    `gorm:"column:reference;size:100;not null;index" json:"reference"`
	Description   string    `gorm:"column:description;size:255" json:"description"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
