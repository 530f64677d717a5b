package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"roadcall.app/dispatch/internal/http/dto"
	"roadcall.app/dispatch/internal/store"
)

type QuarantineHandler struct {
	unassigned store.UnassignedMessageStore
}

func NewQuarantineHandler(unassigned store.UnassignedMessageStore) *QuarantineHandler {
	return &QuarantineHandler{unassigned: unassigned}
}

// List returns the most recently quarantined messages for operator review.
func (h *QuarantineHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	limit := int64(100)
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || parsed <= 0 || parsed > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = parsed
	}

	msgs, err := h.unassigned.ListRecent(ctx, int32(limit))
	if err != nil {
		slog.ErrorContext(ctx, "failed to list quarantined messages", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list quarantined messages"})
		return
	}

	c.JSON(http.StatusOK, dto.ToQuarantineListResponse(msgs))
}
