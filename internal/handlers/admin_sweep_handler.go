// Admin Sweep Handler - Admin-only operations
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"txstatus-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SweepRunner runs one sweep on demand
type SweepRunner interface {
	SweepStuckTransactions(ctx context.Context, opts services.SweepOptions) (*services.SweepReport, error)
}

// AdminSweepHandler triggers the stuck-transaction sweep
type AdminSweepHandler struct {
	sweeper SweepRunner
	logger  *logrus.Logger
}

// NewAdminSweepHandler creates a new AdminSweepHandler instance
func NewAdminSweepHandler(sweeper SweepRunner, logger *logrus.Logger) *AdminSweepHandler {
	return &AdminSweepHandler{sweeper: sweeper, logger: logger}
}

// RunSweepHandler runs a sweep synchronously and returns its report.
// An empty body means a live sweep with the configured maxRecords.
// POST /api/v1/admin/sweep
func (h *AdminSweepHandler) RunSweepHandler(c *gin.Context) {
	var req struct {
		DryRun     bool `json:"dryRun"`
		MaxRecords int  `json:"maxRecords"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body", "details": err.Error()})
		return
	}
	if req.MaxRecords < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "maxRecords must not be negative"})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"dry_run":     req.DryRun,
		"max_records": req.MaxRecords,
		"client_ip":   c.ClientIP(),
	}).Info("🧹 Manual sweep requested")

	report, err := h.sweeper.SweepStuckTransactions(c.Request.Context(), services.SweepOptions{
		DryRun:     req.DryRun,
		MaxRecords: req.MaxRecords,
	})
	if err != nil {
		h.logger.WithError(err).Error("❌ Manual sweep failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Sweep failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    report,
	})
}
