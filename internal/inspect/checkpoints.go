package inspect

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hashgraph/hedera-services-sub037/internal/checkpoint"
)

// CheckpointHandler exposes read-only HTTP endpoints for the checkpoint ledger.
type CheckpointHandler struct {
	ledger checkpoint.Ledger
	logger *zap.Logger
}

// NewCheckpointHandler creates a new CheckpointHandler.
func NewCheckpointHandler(ledger checkpoint.Ledger, logger *zap.Logger) *CheckpointHandler {
	return &CheckpointHandler{ledger: ledger, logger: logger}
}

// Register mounts the checkpoint routes on the given router group.
func (h *CheckpointHandler) Register(rg *gin.RouterGroup) {
	cp := rg.Group("/checkpoints")
	{
		cp.GET("", h.Overview)
		cp.GET("/verify", h.Verify)
		cp.GET("/last", h.Last)
		cp.GET("/entries/:idx", h.GetEntry)
	}
}

// Overview handles GET /checkpoints: the chain length and current root hash.
func (h *CheckpointHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := h.ledger.Len(ctx)
	if err != nil {
		h.logger.Error("checkpoint Len", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query checkpoints"})
		return
	}

	root, err := h.ledger.Root(ctx)
	if err != nil {
		h.logger.Error("checkpoint Root", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query checkpoint root"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": count,
		"root":    root,
	})
}

// Verify handles GET /checkpoints/verify: walks the full chain and reports integrity.
func (h *CheckpointHandler) Verify(c *gin.Context) {
	if err := h.ledger.Verify(c.Request.Context()); err != nil {
		h.logger.Warn("checkpoint integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// Last handles GET /checkpoints/last: the most recent checkpoint.
func (h *CheckpointHandler) Last(c *gin.Context) {
	entry, err := h.ledger.Last(c.Request.Context())
	if errors.Is(err, checkpoint.ErrNoCheckpoints) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no checkpoints recorded"})
		return
	}
	if err != nil {
		h.logger.Error("checkpoint Last", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query checkpoints"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// GetEntry handles GET /checkpoints/entries/:idx: a single checkpoint entry.
func (h *CheckpointHandler) GetEntry(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idx must be a non-negative integer"})
		return
	}

	entry, err := h.ledger.Get(c.Request.Context(), idx)
	if errors.Is(err, checkpoint.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}
	if err != nil {
		h.logger.Error("checkpoint Get", zap.Int("idx", idx), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query checkpoints"})
		return
	}
	c.JSON(http.StatusOK, entry)
}
