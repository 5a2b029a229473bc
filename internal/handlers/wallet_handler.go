package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"funding-service/internal/services"
	"funding-service/pkg/common"

	"github.com/gin-gonic/gin"
)

type WalletHandler struct {
	Wallets  *services.WalletService
	Deposits *services.DepositService
}

func NewWalletHandler(wallets *services.WalletService, deposits *services.DepositService) *WalletHandler {
	return &WalletHandler{Wallets: wallets, Deposits: deposits}
}

// InitiateDeposit creates a deposit attempt and returns the checkout link.
func (h *WalletHandler) InitiateDeposit(c *gin.Context) {
	var req services.InitiateDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error(), nil, http.StatusBadRequest))
		return
	}

	resp, err := h.Deposits.Initiate(c.Request.Context(), req)
	switch {
	case errors.Is(err, services.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error(), nil, http.StatusBadRequest))
	case err != nil:
		c.JSON(http.StatusBadGateway, common.NewErrorResponse("deposit initiation failed", nil, http.StatusBadGateway))
	default:
		c.JSON(http.StatusCreated, common.NewSuccessResponse(resp, "Deposit initiated"))
	}
}

// VerifyDeposit queries the gateway for a reference and applies any missed
// outcome before returning the current record.
func (h *WalletHandler) VerifyDeposit(c *gin.Context) {
	ref := c.Param("reference")

	pt, err := h.Deposits.Verify(c.Request.Context(), ref)
	switch {
	case errors.Is(err, services.ErrTransactionNotFound):
		c.JSON(http.StatusNotFound, common.NewErrorResponse("Transaction not found", nil, http.StatusNotFound))
	case err != nil:
		c.JSON(http.StatusBadGateway, common.NewErrorResponse("verification failed", nil, http.StatusBadGateway))
	default:
		c.JSON(http.StatusOK, common.NewSuccessResponse(pt, "Transaction verified"))
	}
}

// GetTransaction returns one deposit by payment or gateway reference.
func (h *WalletHandler) GetTransaction(c *gin.Context) {
	ref := c.Param("reference")

	pt, err := h.Deposits.Transactions.FindByReference(ref)
	if errors.Is(err, services.ErrTransactionNotFound) {
		c.JSON(http.StatusNotFound, common.NewErrorResponse("Transaction not found", nil, http.StatusNotFound))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, common.NewErrorResponse(err.Error(), nil, http.StatusInternalServerError))
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(pt, "Transaction retrieved"))
}

// GetBalance returns the wallet balance for a user.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userId, err := strconv.Atoi(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("Invalid user_id", nil, http.StatusBadRequest))
		return
	}

	account, err := h.Wallets.GetOrCreate(userId)
	if err != nil {
		c.JSON(http.StatusInternalServerError, common.NewErrorResponse(err.Error(), nil, http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"balance":         account.Balance,
		"total_deposited": account.TotalDeposited,
		"deposit_count":   account.DepositCount,
	})
}

// ListTransactions returns one page of a user's deposit attempts.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	userId, err := strconv.Atoi(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("Invalid user_id", nil, http.StatusBadRequest))
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	result, err := h.Deposits.Transactions.ListForUser(userId, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, common.NewErrorResponse(err.Error(), nil, http.StatusInternalServerError))
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(result, "Transactions retrieved"))
}

// GetLedger returns one page of a user's ledger entries, newest first.
func (h *WalletHandler) GetLedger(c *gin.Context) {
	userId, err := strconv.Atoi(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("Invalid user_id", nil, http.StatusBadRequest))
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	result, err := h.Wallets.LedgerEntries(userId, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, common.NewErrorResponse(err.Error(), nil, http.StatusInternalServerError))
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(result, "Ledger retrieved"))
}
