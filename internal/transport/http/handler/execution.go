package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ErlanBelekov/journey/internal/catalog"
	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/store"
	"github.com/gin-gonic/gin"
)

type ExecutionHandler struct {
	store   store.Store
	catalog *catalog.Catalog
	logger  *slog.Logger
}

func NewExecutionHandler(st store.Store, cat *catalog.Catalog, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{store: st, catalog: cat, logger: logger.With("component", "execution_handler")}
}

type createExecutionRequest struct {
	GraphName    string `json:"graph_name" binding:"required"`
	GraphVersion string `json:"graph_version" binding:"required"`
}

// Create starts a new execution of a registered graph.
func (h *ExecutionHandler) Create(c *gin.Context) {
	var req createExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	graph := h.catalog.Get(req.GraphName, req.GraphVersion)
	if graph == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errGraphNotRegistered})
		return
	}

	now := time.Now().UTC()
	nodes := make(map[string]domain.NodeType, len(graph.Nodes))
	for name, n := range graph.Nodes {
		nodes[name] = n.Type
	}

	ex := &domain.Execution{
		ID:           store.NewExecutionID(),
		GraphName:    graph.Name,
		GraphVersion: graph.Version,
		GraphHash:    graph.Hash(),
		Revision:     0,
		InsertedAt:   now,
		UpdatedAt:    now,
	}

	created, err := h.store.CreateExecution(c.Request.Context(), ex, nodes)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "create execution", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusCreated, created)
}

// Get returns the full current state snapshot of an execution: every
// value row and every loaded computation row.
func (h *ExecutionHandler) Get(c *gin.Context) {
	id := c.Param("id")

	ex, err := h.store.LoadExecution(c.Request.Context(), id, store.LoadOptions{})
	if err != nil {
		if errors.Is(err, domain.ErrExecutionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errExecutionNotFound})
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "load execution", "execution_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, ex)
}

// Archive sets archived_at, removing the execution from every sweep and
// scheduler pass.
func (h *ExecutionHandler) Archive(c *gin.Context) {
	id := c.Param("id")

	tx, err := h.store.Begin(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	defer func() { _ = tx.Rollback(c.Request.Context()) }()

	if _, err := tx.LockExecution(c.Request.Context(), id, store.LoadOptions{}); err != nil {
		if errors.Is(err, domain.ErrExecutionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errExecutionNotFound})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	now := time.Now().UTC()
	if err := tx.SetArchived(c.Request.Context(), id, &now); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	if err := tx.Commit(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.Status(http.StatusNoContent)
}
