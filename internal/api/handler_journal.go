package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetJournal returns the most recent operator actions.
func (h *Handler) GetJournal(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal is disabled"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = v
	}

	entries, err := h.store.Recent(c.Request.Context(), limit)
	if err != nil {
		h.log.WithError(err).Error("failed to read journal")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read journal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
