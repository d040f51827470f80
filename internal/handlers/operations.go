package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"frameworks/api_compose/internal/ops"
	"frameworks/api_compose/pkg/middleware"
	"frameworks/api_compose/pkg/models"
)

const maxListLimit = 200

// RequestAction validates and dispatches a lifecycle action against a
// project. The operation is journaled before dispatch, so even a failed
// dispatch leaves an auditable row.
func (h *Handlers) RequestAction(c *gin.Context) {
	var req models.OperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, middleware.H{"error": err.Error()})
		return
	}

	op, err := h.ops.Request(c.Request.Context(), requestUserID(c), c.Param("name"), &req)
	if err != nil {
		h.respondOperationError(c, op, err)
		return
	}

	c.JSON(http.StatusAccepted, middleware.H{"operation": op})
}

// ListOperations returns journaled operations, newest first.
func (h *Handlers) ListOperations(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := intQuery(c, "offset", 0)

	operations, err := h.ops.List(c.Request.Context(), c.Query("project"), limit, offset)
	if err != nil {
		middleware.GetContextLogger(c, h.logger).WithError(err).Error("Failed to list operations")
		c.JSON(http.StatusInternalServerError, middleware.H{"error": "Failed to list operations"})
		return
	}
	if operations == nil {
		operations = []models.Operation{}
	}

	c.JSON(http.StatusOK, middleware.H{
		"operations": operations,
		"count":      len(operations),
	})
}

// GetOperation returns one journaled operation.
func (h *Handlers) GetOperation(c *gin.Context) {
	op, err := h.ops.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ops.ErrOperationNotFound) {
		c.JSON(http.StatusNotFound, middleware.H{"error": "Operation not found"})
		return
	}
	if err != nil {
		middleware.GetContextLogger(c, h.logger).WithError(err).Error("Failed to load operation")
		c.JSON(http.StatusInternalServerError, middleware.H{"error": "Failed to load operation"})
		return
	}

	c.JSON(http.StatusOK, middleware.H{"operation": op})
}

// OperationStatusCallback is dockhand's report channel. Service token
// auth happens in the route group; here the payload is applied and fanned
// out to websocket subscribers.
func (h *Handlers) OperationStatusCallback(c *gin.Context) {
	var upd models.OperationStatusUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, middleware.H{"error": err.Error()})
		return
	}

	op, err := h.ops.HandleStatusUpdate(c.Request.Context(), c.Param("id"), &upd)
	if errors.Is(err, ops.ErrOperationNotFound) {
		c.JSON(http.StatusNotFound, middleware.H{"error": "Operation not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, middleware.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, middleware.H{"operation": op})
}

// respondOperationError maps dispatch pipeline failures onto statuses.
func (h *Handlers) respondOperationError(c *gin.Context, op *models.Operation, err error) {
	switch {
	case errors.Is(err, ops.ErrUnknownAction):
		c.JSON(http.StatusBadRequest, middleware.H{"error": err.Error()})
	case errors.Is(err, ops.ErrProjectNotFound):
		c.JSON(http.StatusNotFound, middleware.H{"error": err.Error()})
	case errors.Is(err, ops.ErrActionUnavailable), errors.Is(err, ops.ErrComposeFileRequired):
		c.JSON(http.StatusConflict, middleware.H{"error": err.Error()})
	case errors.Is(err, ops.ErrDispatchFailed):
		// The operation exists and records the failure; surface both.
		c.JSON(http.StatusBadGateway, middleware.H{"error": err.Error(), "operation": op})
	default:
		middleware.GetContextLogger(c, h.logger).WithError(err).Error("Operation request failed")
		c.JSON(http.StatusInternalServerError, middleware.H{"error": "Operation request failed"})
	}
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
