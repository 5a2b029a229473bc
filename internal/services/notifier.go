package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NotificationChannel is the redis pub/sub channel the rest of the platform
// subscribes to for realtime wallet events.
const NotificationChannel = "wallet:events"

type NotificationType string

const (
	NotifyBalanceUpdated      NotificationType = "balance_updated"
	NotifyPaymentSuccessful   NotificationType = "payment_successful"
	NotifyPaymentFailed       NotificationType = "payment_failed"
	NotifyPaymentReversed     NotificationType = "payment_reversed"
	NotifySettlementCompleted NotificationType = "settlement_completed"
)

type Notification struct {
	Type       NotificationType `json:"type"`
	UserId     int              `json:"userId"`
	Amount     float64          `json:"amount"`
	NewBalance float64          `json:"newBalance"`
	Reference  string           `json:"reference,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Notifier publishes user-facing events after a ledger mutation commits.
// Delivery is best-effort: failures are logged and never propagate to the
// caller, so they can never roll back a commit.
type Notifier struct {
	rdb *redis.Client
	log *zap.SugaredLogger
}

func NewNotifier(rdb *redis.Client, log *zap.SugaredLogger) *Notifier {
	return &Notifier{rdb: rdb, log: log}
}

func (n *Notifier) Publish(ctx context.Context, notif Notification) {
	if n.rdb == nil {
		return
	}
	notif.Timestamp = time.Now()
	payload, err := json.Marshal(notif)
	if err != nil {
		n.log.Errorw("notification marshal failed", "type", notif.Type, "error", err)
		return
	}
	if err := n.rdb.Publish(ctx, NotificationChannel, payload).Err(); err != nil {
		n.log.Warnw("notification publish failed", "type", notif.Type, "userId", notif.UserId, "error", err)
	}
}
