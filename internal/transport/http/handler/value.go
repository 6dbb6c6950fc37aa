package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/mutation"
	"github.com/ErlanBelekov/journey/internal/read"
	"github.com/ErlanBelekov/journey/internal/value"
	"github.com/gin-gonic/gin"
)

type ValueHandler struct {
	mutator *mutation.Mutator
	reader  *read.Reader
	logger  *slog.Logger
}

func NewValueHandler(m *mutation.Mutator, r *read.Reader, logger *slog.Logger) *ValueHandler {
	return &ValueHandler{mutator: m, reader: r, logger: logger.With("component", "value_handler")}
}

type setManyRequest struct {
	Values   map[string]value.Value `json:"values" binding:"required"`
	Metadata value.Value            `json:"metadata"`
}

// SetMany is the HTTP form of the Value Mutation API's set/set_many: a
// single input node is just a one-entry Values map.
func (h *ValueHandler) SetMany(c *gin.Context) {
	executionID := c.Param("id")

	var req setManyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.mutator.SetMany(c.Request.Context(), executionID, req.Values, req.Metadata)
	if h.handleMutationError(c, executionID, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

type unsetManyRequest struct {
	Nodes []string `json:"nodes" binding:"required"`
}

// UnsetMany is the HTTP form of unset/unset_many.
func (h *ValueHandler) UnsetMany(c *gin.Context) {
	executionID := c.Param("id")

	var req unsetManyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.mutator.UnsetMany(c.Request.Context(), executionID, req.Nodes)
	if h.handleMutationError(c, executionID, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ValueHandler) handleMutationError(c *gin.Context, executionID string, err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, domain.ErrExecutionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": errExecutionNotFound})
	case errors.Is(err, domain.ErrGraphNotRegistered):
		c.JSON(http.StatusBadRequest, gin.H{"error": errGraphNotRegistered})
	case errors.Is(err, domain.ErrNodeNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": errNodeNotFound})
	case errors.Is(err, domain.ErrNotInputNode):
		c.JSON(http.StatusBadRequest, gin.H{"error": errNotInputNode})
	case errors.Is(err, domain.ErrExecutionArchived):
		c.JSON(http.StatusConflict, gin.H{"error": errExecutionArchived})
	default:
		h.logger.ErrorContext(c.Request.Context(), "mutation failed", "execution_id", executionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
	}
	return true
}

// Get implements the Read API with Waiting over HTTP:
// ?wait=immediate|any|newer&baseline=<rev>&timeout_ms=<n>|infinity.
func (h *ValueHandler) Get(c *gin.Context) {
	executionID := c.Param("id")
	nodeName := c.Param("node")

	mode, err := parseWaitMode(c.Query("wait"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidWaitMode})
		return
	}

	var baseline *uint64
	if raw := c.Query("baseline"); raw != "" {
		b, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errBaselineRequired})
			return
		}
		baseline = &b
	}

	timeout, err := parseTimeout(c.Query("timeout_ms"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidTimeout})
		return
	}

	req := read.Request{
		ExecutionID: executionID,
		NodeName:    nodeName,
		Wait:        mode,
		Baseline:    baseline,
		Timeout:     timeout,
	}

	result, err := h.reader.Get(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrBaselineRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": errBaselineRequired})
		case errors.Is(err, domain.ErrInvalidTimeout):
			c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidTimeout})
		case errors.Is(err, domain.ErrValueNotSet), errors.Is(err, domain.ErrWaitTimeout):
			// Timeout and plain absence both surface as "value not set"
			// over the wire; ErrWaitTimeout is kept distinct internally
			// only for logs/metrics.
			c.JSON(http.StatusOK, gin.H{"error": errValueNotSet})
		case errors.Is(err, domain.ErrComputationFailed):
			c.JSON(http.StatusOK, gin.H{"error": errComputationFailed})
		case errors.Is(err, domain.ErrExecutionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": errExecutionNotFound})
		default:
			h.logger.ErrorContext(c.Request.Context(), "read failed", "execution_id", executionID, "node_name", nodeName, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"value": result.Value, "revision": result.Revision})
}

func parseWaitMode(raw string) (read.WaitMode, error) {
	switch raw {
	case "", "immediate":
		return read.WaitImmediate, nil
	case "any":
		return read.WaitAny, nil
	case "newer":
		return read.WaitNewer, nil
	case "newer_than":
		return read.WaitNewerThan, nil
	default:
		return 0, domain.ErrInvalidWaitMode
	}
}

func parseTimeout(raw string) (time.Duration, error) {
	if raw == "" || raw == "infinity" {
		return read.Infinite, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return 0, domain.ErrInvalidTimeout
	}
	return time.Duration(ms) * time.Millisecond, nil
}
