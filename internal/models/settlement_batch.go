package models

import (
	"time"
)

// SettlementBatch is the gateway's confirmation that funds for one or more
// transactions moved to the platform account. Settlement failure never
// reverses an already-credited deposit; it only flags the batch and the
// covered transactions for operator follow-up.
type SettlementBatch struct {
	ID                  uint             `gorm:"primaryKey;autoIncrement" json:"id"`
	SettlementReference string           `gorm:"column:settlement_reference;size:100;not null;uniqueIndex" json:"settlement_reference"`
	Amount              float64          `gorm:"column:amount;type:decimal(20,2)" json:"amount"`
	SettlementDate      time.Time        `gorm:"column:settlement_date" json:"settlement_date"`
	Status              SettlementStatus `gorm:"column:status;size:20;default:PENDING" json:"status"`
	TransactionCount    int              `gorm:"column:transaction_count;default:0" json:"transaction_count"`
	CreatedAt           time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (SettlementBatch) TableName() string {
	return "settlement_batches"
}
