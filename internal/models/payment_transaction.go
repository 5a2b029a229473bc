package models

import (
	"time"
)

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "PENDING"
	StatusPaid      PaymentStatus = "PAID"
	StatusFailed    PaymentStatus = "FAILED"
	StatusCancelled PaymentStatus = "CANCELLED"
	StatusExpired   PaymentStatus = "EXPIRED"
	StatusReversed  PaymentStatus = "REVERSED"
)

type SettlementStatus string

const (
	SettlementPending   SettlementStatus = "PENDING"
	SettlementCompleted SettlementStatus = "COMPLETED"
	SettlementFailed    SettlementStatus = "FAILED"
)

// PaymentTransaction is one user-initiated deposit attempt. PaymentReference
// is assigned locally at creation; TransactionReference is assigned by the
// gateway once it accepts the attempt.
type PaymentTransaction struct {
	ID                   uint             `gorm:"primaryKey;autoIncrement" json:"id"`
	UserId               int              `gorm:"column:user_id;not null;index" json:"user_id"`
	PaymentReference     string           `gorm:"column:payment_reference;size:100;not null;uniqueIndex" json:"payment_reference"`
	TransactionReference *string          `gorm:"column:transaction_reference;size:100;uniqueIndex" json:"transaction_reference"`
	Amount               float64          `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	AmountPaid           float64          `gorm:"column:amount_paid;type:decimal(20,2);default:0.00" json:"amount_paid"`
	Currency             string           `gorm:"column:currency;size:10;default:NGN" json:"currency"`
	PaymentMethod        string           `gorm:"column:payment_method;size:100" json:"payment_method"`
	Status               PaymentStatus    `gorm:"column:status;size:20;default:PENDING;index" json:"status"`
	SettlementStatus     SettlementStatus `gorm:"column:settlement_status;size:20;default:PENDING;index" json:"settlement_status"`
	SettlementReference  *string          `gorm:"column:settlement_reference;size:100;index" json:"settlement_reference"`
	FailureReason        string           `gorm:"column:failure_reason;size:255" json:"failure_reason"`
	Metadata             string           `gorm:"column:metadata;type:longtext" json:"metadata"`
	ExpiresAt            time.Time        `gorm:"column:expires_at" json:"expires_at"`
	PaidAt               *time.Time       `gorm:"column:paid_at" json:"paid_at"`
	CreatedAt            time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}

// Terminal reports whether no further lifecycle transition is allowed.
// PAID is terminal-adjacent: it may still move to REVERSED.
func (t *PaymentTransaction) Terminal() bool {
	switch t.Status {
	case StatusFailed, StatusCancelled, StatusExpired, StatusReversed:
		return true
	}
	return false
}
