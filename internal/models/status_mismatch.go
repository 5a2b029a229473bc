package models

import (
	"time"
)

// StatusMismatch records a disagreement between a local transaction and the
// gateway's authoritative record, detected by reconciliation. The job flags
// these for operator review rather than overwriting financial state.
type StatusMismatch struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentReference string    `gorm:"column:payment_reference;size:100;index" json:"payment_reference"`
	LocalStatus      string    `gorm:"column:local_status;size:20" json:"local_status"`
	GatewayStatus    string    `gorm:"column:gateway_status;size:50" json:"gateway_status"`
	Amount           float64   `gorm:"column:amount;type:decimal(20,2)" json:"amount"`
	Notes            string    `gorm:"column:notes;size:512" json:"notes"`
	Resolved         bool      `gorm:"column:resolved;default:false;index" json:"resolved"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (StatusMismatch) TableName() string {
	return "status_mismatches"
}
