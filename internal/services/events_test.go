package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"eventType":"SUCCESSFUL_TRANSACTION","eventData":{"transactionReference":"MNFY|1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "SUCCESSFUL_TRANSACTION", env.EventType)

	_, err = ParseEnvelope([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedEnvelope)

	_, err = ParseEnvelope([]byte(`{"eventData":{}}`))
	assert.ErrorIs(t, err, ErrMalformedEnvelope)

	_, err = ParseEnvelope([]byte(`{"eventType":"  ","eventData":{}}`))
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestParseEventTransaction(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{
		"eventType": "SUCCESSFUL_TRANSACTION",
		"eventData": {
			"transactionReference": "MNFY|GW|001",
			"paymentReference": "DEP-1700000000-abc123",
			"amountPaid": 2500.50,
			"paymentStatus": "PAID",
			"customer": {"email": "ada@example.com", "name": "Ada"}
		}
	}`))
	require.NoError(t, err)

	evt, err := ParseEvent(env, "req-1")
	require.NoError(t, err)
	require.NotNil(t, evt.Transaction)
	assert.Nil(t, evt.Settlement)
	assert.Equal(t, "MNFY|GW|001", evt.Transaction.TransactionReference)
	assert.Equal(t, 2500.50, evt.Transaction.AmountPaid)
	assert.Equal(t, "ada@example.com", evt.Transaction.Customer.Email)
}

func TestParseEventSettlement(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{
		"eventType": "SETTLEMENT_COMPLETED",
		"eventData": {
			"settlementReference": "STL-77",
			"amount": 9000,
			"transactionReferences": ["MNFY|1", "MNFY|2"]
		}
	}`))
	require.NoError(t, err)

	evt, err := ParseEvent(env, "req-2")
	require.NoError(t, err)
	require.NotNil(t, evt.Settlement)
	assert.True(t, evt.Type.IsSettlement())
	assert.Len(t, evt.Settlement.TransactionReferences, 2)
}

func TestParseEventUnknownType(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"eventType":"DISBURSEMENT_COMPLETED","eventData":{"whatever":1}}`))
	require.NoError(t, err)

	evt, err := ParseEvent(env, "req-3")
	require.NoError(t, err)
	assert.False(t, evt.Type.Known())
	assert.Nil(t, evt.Transaction)
	assert.Nil(t, evt.Settlement)
	assert.NotEmpty(t, evt.Raw)
}

func TestParseEventBadPayload(t *testing.T) {
	env := &Envelope{EventType: string(EventSuccessfulTransaction), EventData: []byte(`"a string"`)}
	_, err := ParseEvent(env, "req-4")
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestDedupKeyFallbackChain(t *testing.T) {
	evt := &Event{
		Type:      EventSuccessfulTransaction,
		RequestId: "req-9",
		Transaction: &TransactionEventData{
			TransactionReference: "MNFY|9",
			PaymentReference:     "DEP-9",
		},
	}
	assert.Equal(t, "SUCCESSFUL_TRANSACTION:MNFY|9", evt.DedupKey())

	evt.Transaction.TransactionReference = ""
	assert.Equal(t, "SUCCESSFUL_TRANSACTION:DEP-9", evt.DedupKey())

	evt.Transaction.PaymentReference = ""
	assert.Equal(t, "SUCCESSFUL_TRANSACTION:req-9", evt.DedupKey())

	// Same reference under a different event type is a different key.
	failed := &Event{Type: EventFailedTransaction, Transaction: &TransactionEventData{TransactionReference: "MNFY|9"}}
	assert.NotEqual(t, evt.DedupKey(), failed.DedupKey())
}

func TestDedupKeySettlement(t *testing.T) {
	evt := &Event{
		Type:       EventSettlementCompleted,
		Settlement: &SettlementEventData{SettlementReference: "STL-5"},
	}
	assert.Equal(t, "SETTLEMENT_COMPLETED:STL-5", evt.DedupKey())
}
