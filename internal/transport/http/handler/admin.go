package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ErlanBelekov/journey/internal/catalog"
	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/migration"
	"github.com/ErlanBelekov/journey/internal/retry"
	"github.com/ErlanBelekov/journey/internal/store"
	"github.com/gin-gonic/gin"
)

// AdminHandler exposes the two operator-only actions: forcing a retry
// past max_retries, and triggering a
// migration reconciliation on demand rather than waiting for the next
// advance/read to stumble into a stale graph_hash.
type AdminHandler struct {
	store     store.Store
	catalog   *catalog.Catalog
	migrator  *migration.Migrator
	advancer  Advancer
	logger    *slog.Logger
}

// Advancer is the subset of *scheduler.Advancer admin actions need.
type Advancer interface {
	Advance(ctx context.Context, executionID string) error
}

func NewAdminHandler(st store.Store, cat *catalog.Catalog, mig *migration.Migrator, adv Advancer, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{store: st, catalog: cat, migrator: mig, advancer: adv, logger: logger.With("component", "admin_handler")}
}

// ForceRetry inserts a fresh not_set successor for nodeName regardless
// of how many terminal attempts already exist — the only way past a
// permanently failed node.
func (h *AdminHandler) ForceRetry(c *gin.Context) {
	executionID := c.Param("id")
	nodeName := c.Param("node")

	tx, err := h.store.Begin(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	defer func() { _ = tx.Rollback(c.Request.Context()) }()

	ex, err := tx.LockExecution(c.Request.Context(), executionID, store.LoadOptions{})
	if err != nil {
		if errors.Is(err, domain.ErrExecutionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errExecutionNotFound})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	graph := h.catalog.Get(ex.GraphName, ex.GraphVersion)
	if graph == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errGraphNotRegistered})
		return
	}
	node, ok := graph.Nodes[nodeName]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": errNodeNotFound})
		return
	}

	if existing := ex.PendingComputation(nodeName); existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "a computation is already pending for this node"})
		return
	}

	successor := retry.Force(executionID, nodeName, node.Type, time.Now().UTC())
	successor.ID = store.NewComputationID()
	if err := tx.InsertComputation(c.Request.Context(), successor); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	if err := tx.Commit(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	if err := h.advancer.Advance(c.Request.Context(), executionID); err != nil {
		h.logger.ErrorContext(c.Request.Context(), "advance after forced retry", "execution_id", executionID, "error", err)
	}

	c.Status(http.StatusNoContent)
}

// Migrate reconciles executionID against the currently registered graph
// definition immediately, rather than waiting for a read/advance path to
// notice the hash drift.
func (h *AdminHandler) Migrate(c *gin.Context) {
	executionID := c.Param("id")

	if err := h.migrator.Reconcile(c.Request.Context(), executionID); err != nil {
		if errors.Is(err, domain.ErrExecutionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errExecutionNotFound})
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "migrate", "execution_id", executionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	if err := h.advancer.Advance(c.Request.Context(), executionID); err != nil {
		h.logger.ErrorContext(c.Request.Context(), "advance after migration", "execution_id", executionID, "error", err)
	}

	c.Status(http.StatusNoContent)
}
