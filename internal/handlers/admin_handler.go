package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"funding-service/internal/models"
	"funding-service/internal/services"
	"funding-service/pkg/common"

	"github.com/gin-gonic/gin"
)

// JobQueue is the slice of the queue the admin surface needs.
type JobQueue interface {
	EnqueueReconcile(ctx context.Context) error
	EnqueueOrphanSweep(ctx context.Context) error
}

type AdminHandler struct {
	DB      *gorm.DB
	Orphans *services.OrphanService
	Queue   JobQueue
	log     *zap.SugaredLogger
}

func NewAdminHandler(db *gorm.DB, orphans *services.OrphanService, queue JobQueue, log *zap.SugaredLogger) *AdminHandler {
	return &AdminHandler{DB: db, Orphans: orphans, Queue: queue, log: log}
}

// ListOrphans returns one page of unresolved orphan payments.
func (h *AdminHandler) ListOrphans(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	result, err := h.Orphans.ListUnresolved(page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, common.NewErrorResponse(err.Error(), nil, http.StatusInternalServerError))
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(result, "Orphan payments retrieved"))
}

type resolveOrphanRequest struct {
	UserId int `json:"userId" binding:"required"`
}

// ResolveOrphan credits an orphan payment to an operator-chosen user.
func (h *AdminHandler) ResolveOrphan(c *gin.Context) {
	orphanId, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("Invalid orphan id", nil, http.StatusBadRequest))
		return
	}

	var req resolveOrphanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error(), nil, http.StatusBadRequest))
		return
	}

	err = h.Orphans.ResolveManual(c.Request.Context(), uint(orphanId), req.UserId)
	switch {
	case errors.Is(err, services.ErrOrphanNotFound):
		c.JSON(http.StatusNotFound, common.NewErrorResponse("Orphan payment not found", nil, http.StatusNotFound))
	case errors.Is(err, services.ErrAlreadyProcessed):
		c.JSON(http.StatusConflict, common.NewErrorResponse("Orphan already resolved", nil, http.StatusConflict))
	case err != nil:
		h.log.Errorw("manual orphan resolution failed", "orphanId", orphanId, "error", err)
		c.JSON(http.StatusInternalServerError, common.NewErrorResponse(err.Error(), nil, http.StatusInternalServerError))
	default:
		c.JSON(http.StatusOK, common.NewSuccessResponse(nil, "Orphan payment resolved"))
	}
}

// TriggerReconcile queues a reconciliation pass outside the schedule.
func (h *AdminHandler) TriggerReconcile(c *gin.Context) {
	if err := h.Queue.EnqueueReconcile(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, common.NewErrorResponse(err.Error(), nil, http.StatusInternalServerError))
		return
	}
	c.JSON(http.StatusAccepted, common.NewSuccessResponse(nil, "Reconciliation queued"))
}

// TriggerOrphanSweep queues an orphan resolution sweep outside the schedule.
func (h *AdminHandler) TriggerOrphanSweep(c *gin.Context) {
	if err := h.Queue.EnqueueOrphanSweep(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, common.NewErrorResponse(err.Error(), nil, http.StatusInternalServerError))
		return
	}
	c.JSON(http.StatusAccepted, common.NewSuccessResponse(nil, "Orphan sweep queued"))
}

// ListMismatches returns one page of status discrepancies flagged by
// reconciliation.
func (h *AdminHandler) ListMismatches(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var total int64
	if err := h.DB.Model(&models.StatusMismatch{}).Where("resolved = ?", false).Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, common.NewErrorResponse(err.Error(), nil, http.StatusInternalServerError))
		return
	}

	var mismatches []models.StatusMismatch
	err := h.DB.Where("resolved = ?", false).
		Order("id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&mismatches).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, common.NewErrorResponse(err.Error(), nil, http.StatusInternalServerError))
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(common.PaginateResponse(mismatches, total, page, limit, ""), "Status mismatches retrieved"))
}

// ResolveMismatch marks a flagged discrepancy as handled.
func (h *AdminHandler) ResolveMismatch(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("Invalid mismatch id", nil, http.StatusBadRequest))
		return
	}

	res := h.DB.Model(&models.StatusMismatch{}).
		Where("id = ? AND resolved = ?", id, false).
		Update("resolved", true)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, common.NewErrorResponse(res.Error.Error(), nil, http.StatusInternalServerError))
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, common.NewErrorResponse("Mismatch not found or already resolved", nil, http.StatusNotFound))
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(nil, "Mismatch resolved"))
}
