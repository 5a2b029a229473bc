package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"funding-service/internal/models"
	applog "funding-service/pkg/logger"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NOTE: These tests require a running MySQL instance (DATABASE_URL). They
// skip cleanly when none is configured.

var testDB *gorm.DB

func setup() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Println("Skipping DB tests: DATABASE_URL not set")
		return
	}

	var err error
	testDB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		return
	}

	testDB.AutoMigrate(
		&models.PaymentTransaction{},
		&models.WalletAccount{},
		&models.LedgerEntry{},
		&models.WebhookRecord{},
		&models.ProcessedEvent{},
		&models.OrphanPayment{},
		&models.SettlementBatch{},
		&models.StatusMismatch{},
	)
}

func cleanup() {
	if testDB != nil {
		testDB.Exec("DELETE FROM ledger_entries")
		testDB.Exec("DELETE FROM wallet_accounts")
		testDB.Exec("DELETE FROM payment_transactions")
		testDB.Exec("DELETE FROM webhook_records")
		testDB.Exec("DELETE FROM processed_events")
		testDB.Exec("DELETE FROM orphan_payments")
		testDB.Exec("DELETE FROM settlement_batches")
		testDB.Exec("DELETE FROM status_mismatches")
	}
}

func newTestTransactionService() *TransactionService {
	zlog := applog.NewNop()
	ledger := NewLedgerService(zlog)
	notifier := NewNotifier(nil, zlog)
	return NewTransactionService(testDB, ledger, notifier, zlog)
}

func seedPending(userId int, paymentRef, txRef string, amount float64) {
	pt := models.PaymentTransaction{
		UserId:           userId,
		PaymentReference: paymentRef,
		Amount:           amount,
		Status:           models.StatusPending,
		SettlementStatus: models.SettlementPending,
		ExpiresAt:        time.Now().Add(30 * time.Minute),
	}
	if txRef != "" {
		pt.TransactionReference = &txRef
	}
	testDB.Create(&pt)
}

func walletBalance(t *testing.T, userId int) float64 {
	t.Helper()
	var acct models.WalletAccount
	if err := testDB.Where("user_id = ?", userId).First(&acct).Error; err != nil {
		t.Fatalf("wallet lookup failed: %v", err)
	}
	return acct.Balance
}

func TestHandleSuccessfulCreditsOnce(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc := newTestTransactionService()
	seedPending(201, "DEP-201", "MNFY|201", 1000)

	data := &TransactionEventData{
		TransactionReference: "MNFY|201",
		PaymentReference:     "DEP-201",
		AmountPaid:           1000,
		PaymentStatus:        "PAID",
	}

	if err := svc.HandleSuccessful(context.Background(), data); err != nil {
		t.Fatalf("HandleSuccessful failed: %v", err)
	}

	pt, err := svc.FindByReference("DEP-201")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if pt.Status != models.StatusPaid {
		t.Errorf("Expected PAID, got %s", pt.Status)
	}
	if pt.PaidAt == nil {
		t.Errorf("Expected paid_at to be set")
	}
	if bal := walletBalance(t, 201); bal != 1000 {
		t.Errorf("Expected balance 1000, got %f", bal)
	}

	// Redelivery must not credit again.
	err = svc.HandleSuccessful(context.Background(), data)
	if !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("Expected ErrAlreadyProcessed, got %v", err)
	}
	if bal := walletBalance(t, 201); bal != 1000 {
		t.Errorf("Balance changed on duplicate delivery: %f", bal)
	}

	var entries int64
	testDB.Model(&models.LedgerEntry{}).Where("user_id = ?", 201).Count(&entries)
	if entries != 1 {
		t.Errorf("Expected 1 ledger entry, got %d", entries)
	}
}

func TestHandleSuccessfulUnknownReference(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc := newTestTransactionService()
	err := svc.HandleSuccessful(context.Background(), &TransactionEventData{
		TransactionReference: "MNFY|nope",
		PaymentReference:     "DEP-nope",
		AmountPaid:           500,
	})
	if !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("Expected ErrTransactionNotFound, got %v", err)
	}
}

func TestHandleSuccessfulMatchesByPaymentReference(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc := newTestTransactionService()
	// No gateway reference stored yet: webhook arrived before the init
	// response was recorded.
	seedPending(202, "DEP-202", "", 250)

	err := svc.HandleSuccessful(context.Background(), &TransactionEventData{
		TransactionReference: "MNFY|202",
		PaymentReference:     "DEP-202",
		AmountPaid:           250,
	})
	if err != nil {
		t.Fatalf("HandleSuccessful failed: %v", err)
	}

	pt, _ := svc.FindByReference("DEP-202")
	if pt.TransactionReference == nil || *pt.TransactionReference != "MNFY|202" {
		t.Errorf("Expected gateway reference backfilled, got %v", pt.TransactionReference)
	}
}

func TestHandleFailedThenSuccessRejected(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc := newTestTransactionService()
	seedPending(203, "DEP-203", "MNFY|203", 300)

	data := &TransactionEventData{
		TransactionReference: "MNFY|203",
		PaymentReference:     "DEP-203",
		PaymentDescription:   "card declined",
	}
	if err := svc.HandleFailed(context.Background(), data); err != nil {
		t.Fatalf("HandleFailed failed: %v", err)
	}

	pt, _ := svc.FindByReference("DEP-203")
	if pt.Status != models.StatusFailed {
		t.Errorf("Expected FAILED, got %s", pt.Status)
	}
	if pt.FailureReason != "card declined" {
		t.Errorf("Expected failure reason recorded, got %q", pt.FailureReason)
	}

	// A success event after a terminal failure is rejected, not applied.
	err := svc.HandleSuccessful(context.Background(), &TransactionEventData{
		TransactionReference: "MNFY|203",
		AmountPaid:           300,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition, got %v", err)
	}

	// And the failed deposit must never have produced a balance.
	var count int64
	testDB.Model(&models.WalletAccount{}).Where("user_id = ?", 203).Count(&count)
	if count != 0 {
		t.Errorf("Failed deposit created a wallet mutation")
	}
}

func TestHandleCancelled(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc := newTestTransactionService()
	seedPending(208, "DEP-208", "MNFY|208", 150)

	data := &TransactionEventData{TransactionReference: "MNFY|208"}
	if err := svc.HandleCancelled(context.Background(), data); err != nil {
		t.Fatalf("HandleCancelled failed: %v", err)
	}

	pt, _ := svc.FindByReference("DEP-208")
	if pt.Status != models.StatusCancelled {
		t.Errorf("Expected CANCELLED, got %s", pt.Status)
	}

	err := svc.HandleSuccessful(context.Background(), &TransactionEventData{
		TransactionReference: "MNFY|208", AmountPaid: 150,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition after cancellation, got %v", err)
	}
}

func TestHandleReversed(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc := newTestTransactionService()
	seedPending(204, "DEP-204", "MNFY|204", 400)

	data := &TransactionEventData{
		TransactionReference: "MNFY|204",
		AmountPaid:           400,
	}
	if err := svc.HandleSuccessful(context.Background(), data); err != nil {
		t.Fatalf("HandleSuccessful failed: %v", err)
	}

	if err := svc.HandleReversed(context.Background(), data); err != nil {
		t.Fatalf("HandleReversed failed: %v", err)
	}

	pt, _ := svc.FindByReference("DEP-204")
	if pt.Status != models.StatusReversed {
		t.Errorf("Expected REVERSED, got %s", pt.Status)
	}
	if bal := walletBalance(t, 204); bal != 0 {
		t.Errorf("Expected balance 0 after reversal, got %f", bal)
	}

	// Duplicate reversal is absorbed.
	err := svc.HandleReversed(context.Background(), data)
	if !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("Expected ErrAlreadyProcessed, got %v", err)
	}
}

func TestHandleReversedRequiresPaid(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc := newTestTransactionService()
	seedPending(205, "DEP-205", "MNFY|205", 100)

	err := svc.HandleReversed(context.Background(), &TransactionEventData{
		TransactionReference: "MNFY|205",
		AmountPaid:           100,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition, got %v", err)
	}
}

func TestCreditSynthesizedIdempotent(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc := newTestTransactionService()
	data := &TransactionEventData{
		TransactionReference: "MNFY|syn-1",
		AmountPaid:           750,
		Customer:             Customer{Email: "syn@example.com"},
	}

	if err := svc.CreditSynthesized(context.Background(), 206, data, "orphan-resolution"); err != nil {
		t.Fatalf("CreditSynthesized failed: %v", err)
	}
	if bal := walletBalance(t, 206); bal != 750 {
		t.Errorf("Expected balance 750, got %f", bal)
	}

	err := svc.CreditSynthesized(context.Background(), 206, data, "orphan-resolution")
	if !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("Expected ErrAlreadyProcessed, got %v", err)
	}
	if bal := walletBalance(t, 206); bal != 750 {
		t.Errorf("Balance changed on repeat synthesized credit: %f", bal)
	}
}

func TestLedgerZeroFloor(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	zlog := applog.NewNop()
	ledger := NewLedgerService(zlog)

	err := testDB.Transaction(func(tx *gorm.DB) error {
		if _, err := ledger.Apply(tx, 207, 50, models.EntryDeposit, "DEP-207", "seed"); err != nil {
			return err
		}
		// Debit beyond the balance clamps at zero instead of going negative.
		bal, err := ledger.Apply(tx, 207, -120, models.EntryRefund, "DEP-207", "reversal")
		if err != nil {
			return err
		}
		if bal != 0 {
			t.Errorf("Expected clamped balance 0, got %f", bal)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ledger apply failed: %v", err)
	}

	var entries []models.LedgerEntry
	testDB.Where("user_id = ?", 207).Order("id ASC").Find(&entries)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 ledger entries, got %d", len(entries))
	}
	if entries[1].BalanceBefore != 50 || entries[1].BalanceAfter != 0 {
		t.Errorf("Expected 50 -> 0, got %f -> %f", entries[1].BalanceBefore, entries[1].BalanceAfter)
	}
}

func TestListForUser(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	svc := newTestTransactionService()
	for i := 0; i < 5; i++ {
		seedPending(230, fmt.Sprintf("DEP-230-%d", i), fmt.Sprintf("MNFY|230|%d", i), 100)
	}
	seedPending(231, "DEP-231", "MNFY|231", 100)

	result, err := svc.ListForUser(230, 1, 3)
	if err != nil {
		t.Fatalf("ListForUser failed: %v", err)
	}
	if result.Count != 5 {
		t.Errorf("Expected count 5, got %d", result.Count)
	}
	if result.LastPage != 2 {
		t.Errorf("Expected 2 pages, got %d", result.LastPage)
	}
	page := result.Data.([]models.PaymentTransaction)
	if len(page) != 3 {
		t.Fatalf("Expected 3 transactions, got %d", len(page))
	}
	// Newest first.
	if page[0].PaymentReference != "DEP-230-4" {
		t.Errorf("Expected DEP-230-4 first, got %s", page[0].PaymentReference)
	}
	for _, pt := range page {
		if pt.UserId != 230 {
			t.Errorf("Got transaction for user %d", pt.UserId)
		}
	}

	last, err := svc.ListForUser(230, 2, 3)
	if err != nil {
		t.Fatalf("ListForUser page 2 failed: %v", err)
	}
	if len(last.Data.([]models.PaymentTransaction)) != 2 {
		t.Errorf("Expected 2 transactions on last page")
	}
}

func TestMain(m *testing.M) {
	setup()
	code := m.Run()
	os.Exit(code)
}
