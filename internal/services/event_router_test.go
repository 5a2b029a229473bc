package services

import (
	"context"
	"testing"
	"time"

	"funding-service/internal/config"
	"funding-service/internal/models"
	applog "funding-service/pkg/logger"
)

func newTestRouter() *EventRouter {
	zlog := applog.NewNop()
	transactions := newTestTransactionService()
	settlements := NewSettlementService(testDB, NewNotifier(nil, zlog), 7*24*time.Hour, zlog)
	orphans := NewOrphanService(testDB, NewIdentityClient(config.IdentityConfig{Timeout: time.Second}), transactions, zlog)
	dedup := NewDedupIndex(nil, 100, zlog)
	return NewEventRouter(testDB, dedup, transactions, settlements, orphans, zlog)
}

func seedRecord(eventType, payload string) uint {
	record := models.WebhookRecord{
		EventType:  eventType,
		RequestId:  "req-test",
		Payload:    payload,
		ReceivedAt: time.Now(),
	}
	testDB.Create(&record)
	return record.ID
}

func TestRouterProcessesSuccessfulTransaction(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	router := newTestRouter()
	seedPending(301, "DEP-301", "MNFY|301", 1200)

	payload := `{"eventType":"SUCCESSFUL_TRANSACTION","eventData":{"transactionReference":"MNFY|301","paymentReference":"DEP-301","amountPaid":1200}}`
	id := seedRecord("SUCCESSFUL_TRANSACTION", payload)

	if err := router.Process(context.Background(), id); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	var record models.WebhookRecord
	testDB.First(&record, id)
	if !record.Processed {
		t.Errorf("Expected record processed")
	}
	if bal := walletBalance(t, 301); bal != 1200 {
		t.Errorf("Expected balance 1200, got %f", bal)
	}
}

func TestRouterAbsorbsDuplicateDelivery(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	seedPending(302, "DEP-302", "MNFY|302", 500)
	payload := `{"eventType":"SUCCESSFUL_TRANSACTION","eventData":{"transactionReference":"MNFY|302","amountPaid":500}}`

	first := seedRecord("SUCCESSFUL_TRANSACTION", payload)
	if err := newTestRouter().Process(context.Background(), first); err != nil {
		t.Fatalf("first Process failed: %v", err)
	}

	// Redelivery through a different worker: fresh local cache, so only
	// the durable index can catch it.
	second := seedRecord("SUCCESSFUL_TRANSACTION", payload)
	if err := newTestRouter().Process(context.Background(), second); err != nil {
		t.Fatalf("second Process failed: %v", err)
	}

	if bal := walletBalance(t, 302); bal != 500 {
		t.Errorf("Duplicate delivery changed balance: %f", bal)
	}

	var record models.WebhookRecord
	testDB.First(&record, second)
	if !record.Processed || record.ProcessError != "duplicate delivery" {
		t.Errorf("Expected duplicate marked, got processed=%v error=%q", record.Processed, record.ProcessError)
	}

	var claims int64
	testDB.Model(&models.ProcessedEvent{}).Count(&claims)
	if claims != 1 {
		t.Errorf("Expected 1 durable claim, got %d", claims)
	}
}

func TestRouterRoutesUnmatchedToOrphans(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	payload := `{"eventType":"SUCCESSFUL_TRANSACTION","eventData":{"transactionReference":"MNFY|ghost","amountPaid":900,"customer":{"email":"ghost@example.com"}}}`
	id := seedRecord("SUCCESSFUL_TRANSACTION", payload)

	if err := newTestRouter().Process(context.Background(), id); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	var orphan models.OrphanPayment
	if err := testDB.Where("transaction_reference = ?", "MNFY|ghost").First(&orphan).Error; err != nil {
		t.Fatalf("Expected orphan registered: %v", err)
	}
	if orphan.Amount != 900 || orphan.CustomerEmail != "ghost@example.com" {
		t.Errorf("Orphan fields wrong: %+v", orphan)
	}

	var record models.WebhookRecord
	testDB.First(&record, id)
	if !record.Processed {
		t.Errorf("Expected record processed after orphan routing")
	}
}

func TestRouterClaimsNothingOnRetryableFailure(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	// Settlement events without a settlementReference cannot be applied
	// and come back as a retryable error.
	payload := `{"eventType":"SETTLEMENT_COMPLETED","eventData":{"amount":4000}}`
	id := seedRecord("SETTLEMENT_COMPLETED", payload)

	router := newTestRouter()
	if err := router.Process(context.Background(), id); err == nil {
		t.Fatal("Expected a retryable error")
	}

	// No durable claim and no cache mark may exist until the outcome has
	// committed, or the retry would be absorbed as a duplicate with the
	// work still undone.
	var claims int64
	testDB.Model(&models.ProcessedEvent{}).Count(&claims)
	if claims != 0 {
		t.Errorf("Expected no durable claim before the outcome, got %d", claims)
	}
	if router.Dedup.Len() != 0 {
		t.Errorf("Expected empty dedup cache, got %d entries", router.Dedup.Len())
	}

	var record models.WebhookRecord
	testDB.First(&record, id)
	if record.Processed {
		t.Errorf("Record must stay unprocessed for the retry")
	}
}

func TestRouterKeepsUnknownEventType(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	id := seedRecord("DISBURSEMENT_COMPLETED", `{"eventType":"DISBURSEMENT_COMPLETED","eventData":{}}`)
	if err := newTestRouter().Process(context.Background(), id); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	var record models.WebhookRecord
	testDB.First(&record, id)
	if record.Processed {
		t.Errorf("Unknown types stay unprocessed for inspection")
	}
	if record.ProcessError != "unhandled event type" {
		t.Errorf("Expected unhandled marker, got %q", record.ProcessError)
	}
}

func TestRouterRejectsInvalidTransition(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	router := newTestRouter()
	seedPending(303, "DEP-303", "MNFY|303", 100)

	// Reversal of a deposit that was never paid.
	payload := `{"eventType":"REVERSED_TRANSACTION","eventData":{"transactionReference":"MNFY|303","amountPaid":100}}`
	id := seedRecord("REVERSED_TRANSACTION", payload)

	if err := router.Process(context.Background(), id); err != nil {
		t.Fatalf("Process should absorb invalid transitions, got %v", err)
	}

	var record models.WebhookRecord
	testDB.First(&record, id)
	if !record.Processed || record.ProcessError == "" {
		t.Errorf("Expected rejection recorded, got processed=%v error=%q", record.Processed, record.ProcessError)
	}

	pt, _ := newTestTransactionService().FindByReference("DEP-303")
	if pt.Status != models.StatusPending {
		t.Errorf("Rejected event changed status to %s", pt.Status)
	}
}
