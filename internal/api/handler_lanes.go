package api

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"parking-access-backend/internal/lane"
	"parking-access-backend/internal/ocr"
)

type observationRequest struct {
	Texts    []string `json:"texts" binding:"required"`
	Distance *float64 `json:"distance"`
}

type frameRequest struct {
	ImageBase64 string   `json:"image_base64" binding:"required"`
	Distance    *float64 `json:"distance"`
}

// PostObservations handles POST /api/lanes/:lane/observations: OCR text from
// an external detector, one string per plate crop.
func (h *Handler) PostObservations(c *gin.Context) {
	l, ok := h.lane(c)
	if !ok {
		return
	}

	var req observationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	h.submit(c, l, lane.Frame{Texts: req.Texts, Distance: req.Distance})
}

// PostFrame handles POST /api/lanes/:lane/frames: a plate crop that is run
// through OCR before being queued.
func (h *Handler) PostFrame(c *gin.Context) {
	l, ok := h.lane(c)
	if !ok {
		return
	}
	if h.ocr == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "ocr disabled"})
		return
	}

	var req frameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image_base64 is not valid base64"})
		return
	}

	texts, err := h.ocr.ReadText(c.Request.Context(), image)
	if errors.Is(err, ocr.ErrEmptyImage) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty image"})
		return
	}
	if err != nil {
		h.log.Warn("ocr failed", zap.String("lane", c.Param("lane")), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "ocr failed"})
		return
	}
	h.submit(c, l, lane.Frame{Texts: texts, Distance: req.Distance})
}

func (h *Handler) lane(c *gin.Context) (LaneSubmitter, bool) {
	l, ok := h.lanes[c.Param("lane")]
	if !ok || l == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown lane"})
		return nil, false
	}
	return l, true
}

func (h *Handler) submit(c *gin.Context, l LaneSubmitter, f lane.Frame) {
	if err := l.Submit(f); err != nil {
		if errors.Is(err, lane.ErrQueueFull) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "lane busy, frame dropped"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"texts": f.Texts})
}
