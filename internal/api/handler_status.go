package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GetStats handles GET /api/stats: today's entries, paid exits and revenue,
// plus the vehicles currently inside. "Today" starts at local midnight.
func (h *Handler) GetStats(c *gin.Context) {
	now := h.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	summary, err := h.store.Summary(c.Request.Context(), midnight)
	if err != nil {
		h.log.Error("summary failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetLiveFeed handles GET /api/events/ws.
func (h *Handler) GetLiveFeed(c *gin.Context) {
	if h.live == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "live feed disabled"})
		return
	}
	h.live.ServeWS(c.Writer, c.Request)
}
