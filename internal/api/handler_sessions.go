package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gopkg.in/guregu/null.v4"

	"parking-access-backend/internal/model"
	"parking-access-backend/internal/mw"
	"parking-access-backend/internal/payment"
	"parking-access-backend/internal/store"
)

// SessionResponse is one parking session as dashboards see it.
type SessionResponse struct {
	ID            int64     `json:"id"`
	PlateNumber   string    `json:"plateNumber"`
	EntryTime     time.Time `json:"entryTime"`
	ExitTime      null.Time `json:"exitTime"`
	DuePayment    null.Int  `json:"duePayment"`
	PaymentStatus string    `json:"paymentStatus"`
}

func toSessionResponse(s model.ParkingSession) SessionResponse {
	return SessionResponse{
		ID:            s.ID,
		PlateNumber:   s.Plate,
		EntryTime:     s.EntryTime,
		ExitTime:      null.TimeFromPtr(s.ExitTime),
		DuePayment:    null.IntFromPtr(s.DuePayment),
		PaymentStatus: s.PaymentStatus.String(),
	}
}

// GetSessions handles GET /api/sessions?plate=&status=&limit=.
func (h *Handler) GetSessions(c *gin.Context) {
	filter, ok := sessionFilter(c)
	if !ok {
		return
	}
	if raw := c.Query("status"); raw != "" {
		var status model.PaymentStatus
		switch strings.ToUpper(raw) {
		case "PAID":
			status = model.PaymentPaid
		case "UNPAID":
			status = model.PaymentUnpaid
		default:
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "status must be PAID or UNPAID"})
			return
		}
		filter.Status = &status
	}
	h.listSessions(c, filter)
}

// GetOpenSessions handles GET /api/sessions/open: the vehicles currently inside.
func (h *Handler) GetOpenSessions(c *gin.Context) {
	filter, ok := sessionFilter(c)
	if !ok {
		return
	}
	unpaid := model.PaymentUnpaid
	filter.Status = &unpaid
	h.listSessions(c, filter)
}

func (h *Handler) listSessions(c *gin.Context, filter store.SessionFilter) {
	sessions, err := h.store.ListSessions(c.Request.Context(), filter)
	if err != nil {
		h.log.Error("list sessions failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve sessions"})
		return
	}

	responses := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		responses = append(responses, toSessionResponse(s))
	}
	c.JSON(http.StatusOK, responses)
}

func sessionFilter(c *gin.Context) (store.SessionFilter, bool) {
	filter := store.SessionFilter{Plate: strings.ToUpper(strings.TrimSpace(c.Query("plate")))}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return filter, false
		}
		filter.Limit = limit
	}
	return filter, true
}

type reconcileRequest struct {
	Plate  string `json:"plate" binding:"required"`
	Amount *int64 `json:"amount" binding:"omitempty,min=0"`
}

type reconcileResponse struct {
	SessionID   int64  `json:"sessionId"`
	PlateNumber string `json:"plateNumber"`
	DuePayment  int64  `json:"duePayment"`
}

// ReconcileSession handles POST /api/sessions/reconcile. Operators use it to
// settle a session whose terminal confirmation never arrived.
func (h *Handler) ReconcileSession(c *gin.Context) {
	if h.reconciler == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "reconciliation disabled"})
		return
	}

	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.reconciler.Reconcile(c.Request.Context(), req.Plate, req.Amount)
	switch {
	case errors.Is(err, payment.ErrPlateNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no unpaid session for plate"})
		return
	case errors.Is(err, store.ErrAlreadySettled):
		c.JSON(http.StatusConflict, gin.H{"error": "session already settled"})
		return
	case err != nil:
		h.log.Error("reconcile failed", zap.String("plate", req.Plate), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reconcile session"})
		return
	}

	h.log.Info("session reconciled",
		zap.String("operator", c.GetString(mw.OperatorKey)),
		zap.Int64("session_id", res.SessionID),
		zap.Int64("due", res.Due))
	c.JSON(http.StatusOK, reconcileResponse{
		SessionID:   res.SessionID,
		PlateNumber: strings.ToUpper(strings.TrimSpace(req.Plate)),
		DuePayment:  res.Due,
	})
}
