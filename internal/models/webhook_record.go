package models

import (
	"time"
)

// WebhookRecord captures every raw gateway notification before any business
// logic runs. It is retained for audit regardless of processing outcome and
// pruned once processed and older than the retention window.
type WebhookRecord struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	EventType      string    `gorm:"column:event_type;size:100;index" json:"event_type"`
	DedupKey       string    `gorm:"column:dedup_key;size:150;index" json:"dedup_key"`
	RequestId      string    `gorm:"column:request_id;size:64" json:"request_id"`
	Payload        string    `gorm:"column:payload;type:longtext" json:"payload"`
	SignatureValid bool      `gorm:"column:signature_valid;default:false" json:"signature_valid"`
	Processed      bool      `gorm:"column:processed;default:false;index" json:"processed"`
	ProcessError   string    `gorm:"column:process_error;size:1024" json:"process_error"`
	ReceivedAt     time.Time `gorm:"column:received_at" json:"received_at"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (WebhookRecord) TableName() string {
	return "webhook_records"
}

// ProcessedEvent is the durable side of the deduplication index. Inserting
// the natural key of a notification claims it; a duplicate-key error means
// another delivery already handled it.
type ProcessedEvent struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	DedupKey  string    `gorm:"column:dedup_key;size:150;not null;uniqueIndex" json:"dedup_key"`
	EventType string    `gorm:"column:event_type;size:100" json:"event_type"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (ProcessedEvent) TableName() string {
	return "processed_events"
}
