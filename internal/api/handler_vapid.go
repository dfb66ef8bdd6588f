package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parking-access-backend/internal/notification"
)

// GetVAPIDPublicKey returns the VAPID public key and the alert types a
// subscription can filter on.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vapid keys are not configured"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"public_key":  h.webpush.VAPIDPublicKey,
		"alert_types": notification.AlertTypes(),
	})
}
