package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"funding-service/internal/models"
	"funding-service/pkg/common"
)

var ErrInvalidAmount = errors.New("deposit amount must be positive")

// DepositService creates deposit attempts and exposes manual verification
// against the gateway.
type DepositService struct {
	DB           *gorm.DB
	Gateway      *GatewayClient
	Transactions *TransactionService
	// Expiry is the window a PENDING deposit stays payable. Expiry is
	// enforced by the reconciliation sweep, never here.
	Expiry time.Duration
	log    *zap.SugaredLogger
}

func NewDepositService(db *gorm.DB, gateway *GatewayClient, transactions *TransactionService, expiry time.Duration, log *zap.SugaredLogger) *DepositService {
	if expiry <= 0 {
		expiry = 30 * time.Minute
	}
	return &DepositService{DB: db, Gateway: gateway, Transactions: transactions, Expiry: expiry, log: log}
}

type InitiateDepositRequest struct {
	UserId        int     `json:"userId" binding:"required"`
	Amount        float64 `json:"amount" binding:"required"`
	Currency      string  `json:"currency"`
	CustomerName  string  `json:"customerName"`
	CustomerEmail string  `json:"customerEmail" binding:"required"`
}

type InitiateDepositResponse struct {
	PaymentReference     string  `json:"paymentReference"`
	TransactionReference string  `json:"transactionReference"`
	CheckoutUrl          string  `json:"checkoutUrl"`
	Amount               float64 `json:"amount"`
	ExpiresAt            string  `json:"expiresAt"`
}

// Initiate creates the PENDING transaction, registers it with the gateway
// and returns the checkout link. The local record is written first so a
// webhook arriving unusually fast still finds its deposit.
func (s *DepositService) Initiate(ctx context.Context, req InitiateDepositRequest) (*InitiateDepositResponse, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	meta, _ := json.Marshal(map[string]string{
		"customerEmail": req.CustomerEmail,
		"customerName":  req.CustomerName,
	})
	pt := models.PaymentTransaction{
		UserId:           req.UserId,
		PaymentReference: common.GeneratePaymentRef(),
		Amount:           req.Amount,
		Currency:         orDefault(req.Currency, "NGN"),
		Status:           models.StatusPending,
		SettlementStatus: models.SettlementPending,
		Metadata:         string(meta),
		ExpiresAt:        time.Now().Add(s.Expiry),
	}
	if err := s.DB.WithContext(ctx).Create(&pt).Error; err != nil {
		return nil, err
	}

	checkoutUrl, txRef, err := s.Gateway.InitTransaction(ctx, pt.PaymentReference, pt.Amount, pt.Currency, req.CustomerName, req.CustomerEmail)
	if err != nil {
		// Leave the record PENDING; the expiry sweep cleans it up.
		s.log.Errorw("gateway init failed", "paymentRef", pt.PaymentReference, "error", err)
		return nil, fmt.Errorf("initiate deposit: %w", err)
	}

	if txRef != "" {
		if err := s.DB.WithContext(ctx).Model(&pt).Update("transaction_reference", txRef).Error; err != nil {
			return nil, err
		}
	}

	return &InitiateDepositResponse{
		PaymentReference:     pt.PaymentReference,
		TransactionReference: txRef,
		CheckoutUrl:          checkoutUrl,
		Amount:               pt.Amount,
		ExpiresAt:            pt.ExpiresAt.Format(time.RFC3339),
	}, nil
}

// Verify queries the gateway for one reference and applies the reported
// state through the same state-machine path as a live webhook. Users never
// retry a credit themselves: at worst this confirms an already-applied
// outcome.
func (s *DepositService) Verify(ctx context.Context, paymentRef string) (*models.PaymentTransaction, error) {
	pt, err := s.Transactions.FindByReference(paymentRef)
	if err != nil {
		return nil, err
	}

	gt, err := s.Gateway.QueryTransaction(ctx, pt.PaymentReference)
	if err != nil {
		return nil, err
	}

	if err := applyGatewayState(ctx, s.Transactions, gt); err != nil &&
		!errors.Is(err, ErrAlreadyProcessed) && !errors.Is(err, errNoTransitionNeeded) {
		return nil, err
	}

	return s.Transactions.FindByReference(paymentRef)
}

var errNoTransitionNeeded = errors.New("gateway state implies no transition")

// applyGatewayState maps one authoritative gateway transaction onto the
// local state machine.
func applyGatewayState(ctx context.Context, transactions *TransactionService, gt *GatewayTransaction) error {
	data := &TransactionEventData{
		TransactionReference: gt.TransactionReference,
		PaymentReference:     gt.PaymentReference,
		AmountPaid:           gt.AmountPaid,
		TotalPayable:         gt.TotalPayable,
		PaymentMethod:        gt.PaymentMethod,
		PaymentStatus:        gt.PaymentStatus,
		Currency:             gt.CurrencyCode,
		Customer:             gt.Customer,
	}

	switch localStatusFor(gt.PaymentStatus) {
	case models.StatusPaid:
		return transactions.HandleSuccessful(ctx, data)
	case models.StatusFailed:
		return transactions.HandleFailed(ctx, data)
	case models.StatusCancelled:
		return transactions.HandleCancelled(ctx, data)
	case models.StatusReversed:
		return transactions.HandleReversed(ctx, data)
	default:
		// PENDING or EXPIRED on the gateway side: expiry is enforced
		// locally by the sweep.
		return errNoTransitionNeeded
	}
}

// localStatusFor maps a gateway payment status onto the local status it
// settles as. OVERPAID and PARTIALLY_PAID count as PAID for the amount the
// gateway reports; unknown values map to nothing.
func localStatusFor(gatewayStatus string) models.PaymentStatus {
	switch gatewayStatus {
	case "PAID", "OVERPAID", "PARTIALLY_PAID":
		return models.StatusPaid
	case "FAILED":
		return models.StatusFailed
	case "CANCELLED", "ABANDONED":
		return models.StatusCancelled
	case "REVERSED":
		return models.StatusReversed
	case "PENDING":
		return models.StatusPending
	}
	return ""
}
