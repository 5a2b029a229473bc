package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type EventType string

const (
	EventSuccessfulTransaction EventType = "SUCCESSFUL_TRANSACTION"
	EventFailedTransaction     EventType = "FAILED_TRANSACTION"
	EventReversedTransaction   EventType = "REVERSED_TRANSACTION"
	EventRefundCompleted       EventType = "REFUND_COMPLETED"
	EventSettlementCompleted   EventType = "SETTLEMENT_COMPLETED"
	EventSettlementFailed      EventType = "SETTLEMENT_FAILED"
)

var ErrMalformedEnvelope = errors.New("malformed event envelope")

// Envelope is the wire shape of every gateway notification.
type Envelope struct {
	EventType string          `json:"eventType"`
	EventData json.RawMessage `json:"eventData"`
}

// Customer carries the identity hints used for orphan resolution.
type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// TransactionEventData is the payload of transaction-lifecycle events.
type TransactionEventData struct {
	TransactionReference string   `json:"transactionReference"`
	PaymentReference     string   `json:"paymentReference"`
	AmountPaid           float64  `json:"amountPaid"`
	TotalPayable         float64  `json:"totalPayable"`
	PaymentMethod        string   `json:"paymentMethod"`
	PaymentStatus        string   `json:"paymentStatus"`
	PaymentDescription   string   `json:"paymentDescription"`
	Currency             string   `json:"currencyCode"`
	PaidOn               string   `json:"paidOn"`
	Customer             Customer `json:"customer"`
}

// SettlementEventData is the payload of settlement events. The gateway may
// omit TransactionReferences, in which case matching falls back to a
// bounded-lookback heuristic.
type SettlementEventData struct {
	SettlementReference   string   `json:"settlementReference"`
	Amount                float64  `json:"amount"`
	SettlementTime        string   `json:"settlementTime"`
	TransactionReferences []string `json:"transactionReferences"`
}

// Event is a parsed notification as a tagged variant: exactly one of
// Transaction or Settlement is set for known event types. Unknown types
// carry only the raw payload and are persisted for inspection.
type Event struct {
	Type        EventType
	RequestId   string
	Raw         json.RawMessage
	Transaction *TransactionEventData
	Settlement  *SettlementEventData
}

// IsSettlement reports whether the event belongs to the settlement axis.
func (t EventType) IsSettlement() bool {
	return t == EventSettlementCompleted || t == EventSettlementFailed
}

// Known reports whether the event type is one this service handles.
func (t EventType) Known() bool {
	switch t {
	case EventSuccessfulTransaction, EventFailedTransaction,
		EventReversedTransaction, EventRefundCompleted,
		EventSettlementCompleted, EventSettlementFailed:
		return true
	}
	return false
}

// ParseEnvelope decodes the raw body into the event envelope. A body that
// is not valid JSON or lacks an eventType is rejected at the boundary and
// never enqueued.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if strings.TrimSpace(env.EventType) == "" {
		return nil, fmt.Errorf("%w: missing eventType", ErrMalformedEnvelope)
	}
	return &env, nil
}

// ParseEvent decodes the envelope into a typed event. Unknown event types
// are not an error: they come back with only Type, RequestId and Raw set.
func ParseEvent(env *Envelope, requestId string) (*Event, error) {
	evt := &Event{
		Type:      EventType(env.EventType),
		RequestId: requestId,
		Raw:       env.EventData,
	}

	switch evt.Type {
	case EventSuccessfulTransaction, EventFailedTransaction,
		EventReversedTransaction, EventRefundCompleted:
		var data TransactionEventData
		if err := json.Unmarshal(env.EventData, &data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
		}
		evt.Transaction = &data
	case EventSettlementCompleted, EventSettlementFailed:
		var data SettlementEventData
		if err := json.Unmarshal(env.EventData, &data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
		}
		evt.Settlement = &data
	}
	return evt, nil
}

// DedupKey derives the natural key that identifies a logical notification
// across redeliveries. Settlement events key on the settlement reference;
// transaction events key on the transaction reference, falling back to the
// payment reference and finally to the delivery's own request id.
func (e *Event) DedupKey() string {
	if e.Settlement != nil && e.Settlement.SettlementReference != "" {
		return string(e.Type) + ":" + e.Settlement.SettlementReference
	}
	if e.Transaction != nil {
		if e.Transaction.TransactionReference != "" {
			return string(e.Type) + ":" + e.Transaction.TransactionReference
		}
		if e.Transaction.PaymentReference != "" {
			return string(e.Type) + ":" + e.Transaction.PaymentReference
		}
	}
	return string(e.Type) + ":" + e.RequestId
}
