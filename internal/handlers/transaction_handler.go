// Transaction Handlers
// Intake of client-reported transaction hashes and read-only status lookups
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"txstatus-backend/internal/models"
	"txstatus-backend/internal/services"
	"txstatus-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TransactionService operations the transaction endpoints need
type TransactionService interface {
	Submit(ctx context.Context, req services.SubmitRequest) (*services.SubmitResult, error)
	CheckStatus(ctx context.Context, txHash string, networkID int64) (*services.StatusCheckResult, error)
	GetRecord(ctx context.Context, txHash string) (*models.TransactionRecord, error)
	Networks() []utils.NetworkInfo
}

// TransactionHandler handles transaction intake and status endpoints
type TransactionHandler struct {
	service TransactionService
	logger  *logrus.Logger
}

// NewTransactionHandler creates a new TransactionHandler instance
func NewTransactionHandler(service TransactionService, logger *logrus.Logger) *TransactionHandler {
	return &TransactionHandler{service: service, logger: logger}
}

// SubmitTransactionRequest body of POST /api/v1/transactions
type SubmitTransactionRequest struct {
	UserID    string                 `json:"userId" binding:"required"`
	TxHash    string                 `json:"txHash" binding:"required"`
	NetworkID int64                  `json:"networkId" binding:"required"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// SubmitTransactionHandler records a client-reported hash and starts reconciliation
// POST /api/v1/transactions
func (h *TransactionHandler) SubmitTransactionHandler(c *gin.Context) {
	var req SubmitTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.service.Submit(c.Request.Context(), services.SubmitRequest{
		UserID:    req.UserID,
		TxHash:    req.TxHash,
		NetworkID: req.NetworkID,
		Metadata:  req.Metadata,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyTracked {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"success": true,
		"data":    result,
	})
}

// GetTransactionStatusHandler single-shot ledger check, nothing is persisted
// GET /api/v1/transactions/:txHash/status?networkId=
func (h *TransactionHandler) GetTransactionStatusHandler(c *gin.Context) {
	networkID, err := strconv.ParseInt(c.Query("networkId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "networkId query parameter is required", "code": "INVALID_NETWORK_ID"})
		return
	}

	result, err := h.service.CheckStatus(c.Request.Context(), c.Param("txHash"), networkID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// GetTransactionHandler persisted record for a hash
// GET /api/v1/transactions/:txHash
func (h *TransactionHandler) GetTransactionHandler(c *gin.Context) {
	record, err := h.service.GetRecord(c.Request.Context(), c.Param("txHash"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    record,
	})
}

// ListNetworksHandler supported networks
// GET /api/v1/networks
func (h *TransactionHandler) ListNetworksHandler(c *gin.Context) {
	networks := h.service.Networks()
	c.JSON(http.StatusOK, gin.H{
		"networks": networks,
		"total":    len(networks),
	})
}

func (h *TransactionHandler) writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	switch {
	case errors.Is(err, services.ErrInvalidTxHash):
		status, code = http.StatusBadRequest, "INVALID_TX_HASH"
	case errors.Is(err, services.ErrUnsupportedNetwork):
		status, code = http.StatusBadRequest, "UNSUPPORTED_NETWORK"
	case errors.Is(err, services.ErrUserNotFound):
		status, code = http.StatusNotFound, "USER_NOT_FOUND"
	case errors.Is(err, services.ErrMissingWalletAddress):
		status, code = http.StatusUnprocessableEntity, "MISSING_WALLET_ADDRESS"
	case errors.Is(err, services.ErrRecordNotFound):
		status, code = http.StatusNotFound, "TRANSACTION_NOT_FOUND"
	case errors.Is(err, services.ErrNetworkNotConfigured):
		status, code = http.StatusServiceUnavailable, "NETWORK_NOT_CONFIGURED"
	}

	if status == http.StatusInternalServerError {
		h.logger.WithFields(logrus.Fields{
			"path":  c.Request.URL.Path,
			"error": err.Error(),
		}).Error("❌ Transaction request failed")
		_ = c.Error(err)
		c.JSON(status, gin.H{"success": false, "error": "Internal server error", "code": code})
		return
	}

	c.JSON(status, gin.H{"success": false, "error": err.Error(), "code": code})
}
