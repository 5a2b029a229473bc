package models

import (
	"time"
)

// OrphanPayment stores a gateway notification whose references match no
// local PaymentTransaction. Orphans are never dropped: they are resolved by
// the periodic sweep (customer email lookup), by reconciliation, or by an
// operator.
type OrphanPayment struct {
	ID                   uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionReference string     `gorm:"column:transaction_reference;size:100;index" json:"transaction_reference"`
	PaymentReference     string     `gorm:"column:payment_reference;size:100;index" json:"payment_reference"`
	SettlementReference  string     `gorm:"column:settlement_reference;size:100" json:"settlement_reference"`
	Amount               float64    `gorm:"column:amount;type:decimal(20,2)" json:"amount"`
	Currency             string     `gorm:"column:currency;size:10;default:NGN" json:"currency"`
	CustomerEmail        string     `gorm:"column:customer_email;size:255;index" json:"customer_email"`
	CustomerName         string     `gorm:"column:customer_name;size:255" json:"customer_name"`
	PaymentMethod        string     `gorm:"column:payment_method;size:100" json:"payment_method"`
	RawEvent             string     `gorm:"column:raw_event;type:longtext" json:"raw_event"`
	Reconciled           bool       `gorm:"column:reconciled;default:false;index" json:"reconciled"`
	ResolvedUserId       *int       `gorm:"column:resolved_user_id" json:"resolved_user_id"`
	ResolvedAt           *time.Time `gorm:"column:resolved_at" json:"resolved_at"`
	CreatedAt            time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (OrphanPayment) TableName() string {
	return "orphan_payments"
}
