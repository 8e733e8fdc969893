package api

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"bagmachine-remote/internal/session"
)

type adjustRequest struct {
	Delta *int `json:"delta" binding:"required"`
}

// GetSession returns the current session snapshot.
func (h *Handler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Snapshot())
}

// Refresh re-reads everything from the device.
func (h *Handler) Refresh(c *gin.Context) {
	h.runAction(c, h.session.Initialize)
}

// AdjustBagLength moves the local bag length by delta.
func (h *Handler) AdjustBagLength(c *gin.Context) {
	h.adjust(c, h.session.AdjustBagLength)
}

// AdjustSpeed moves the local speed by delta.
func (h *Handler) AdjustSpeed(c *gin.Context) {
	h.adjust(c, h.session.AdjustSpeed)
}

func (h *Handler) CommitBagLength(c *gin.Context) {
	h.runAction(c, h.session.CommitBagLength)
}

func (h *Handler) CommitSpeed(c *gin.Context) {
	h.runAction(c, h.session.CommitSpeed)
}

func (h *Handler) StartMachine(c *gin.Context) {
	h.runAction(c, h.session.Start)
}

func (h *Handler) StopMachine(c *gin.Context) {
	h.runAction(c, h.session.Stop)
}

func (h *Handler) adjust(c *gin.Context, fn func(int) int) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	fn(*req.Delta)
	c.JSON(http.StatusOK, h.session.Snapshot())
}

// runAction executes fn detached from the request: once dispatched, a device
// call runs to completion even if the operator's browser goes away.
func (h *Handler) runAction(c *gin.Context, fn func(context.Context) error) {
	ctx := context.WithoutCancel(c.Request.Context())
	if err := fn(ctx); err != nil {
		if errors.Is(err, session.ErrActionPending) {
			c.JSON(http.StatusConflict, gin.H{"error": session.ErrActionPending.Error()})
			return
		}
		h.log.WithError(err).Error("action failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, h.session.Snapshot())
}

// Events streams a snapshot on connect and after every state change.
func (h *Handler) Events(c *gin.Context) {
	updates, cancel := h.session.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("snapshot", h.session.Snapshot())
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case snap, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("snapshot", snap)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
