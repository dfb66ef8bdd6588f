package lane

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"parking-access-backend/internal/consensus"
	"parking-access-backend/internal/model"
	"parking-access-backend/internal/notification"
	"parking-access-backend/internal/store"
)

// ExitStore is the part of the session store the exit lane needs.
type ExitStore interface {
	MostRecentPaidSession(ctx context.Context, plate string) (*model.ParkingSession, error)
}

// ExitOutcome is what the exit controller did with a decision.
type ExitOutcome int

const (
	ExitGranted ExitOutcome = iota
	ExitDenied
	ExitDebounced
	ExitFailed
)

func (o ExitOutcome) String() string {
	switch o {
	case ExitGranted:
		return "granted"
	case ExitDenied:
		return "denied"
	case ExitDebounced:
		return "debounced"
	default:
		return "failed"
	}
}

// ExitController lets out vehicles that paid within the grace period.
type ExitController struct {
	store    ExitStore
	gate     Gate
	notifier notification.Notifier
	debounce time.Duration
	grace    time.Duration
	log      *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	lastPlate string
	lastSeen  time.Time
}

// NewExitController creates an exit controller.
func NewExitController(s ExitStore, g Gate, n notification.Notifier, debounce, grace time.Duration, logger *zap.Logger) *ExitController {
	return &ExitController{
		store:    s,
		gate:     g,
		notifier: n,
		debounce: debounce,
		grace:    grace,
		log:      logger.Named("exit"),
		now:      time.Now,
	}
}

// HandleDecision adapts Handle to the lane loop.
func (c *ExitController) HandleDecision(ctx context.Context, d consensus.Decision) {
	c.Handle(ctx, d.Plate)
}

// Handle decides on one consensus plate at the exit point.
func (c *ExitController) Handle(ctx context.Context, plate string) ExitOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if plate == c.lastPlate && now.Sub(c.lastSeen) < c.debounce {
		c.log.Debug("exit debounced", zap.String("plate", plate))
		return ExitDebounced
	}

	session, err := c.store.MostRecentPaidSession(ctx, plate)
	if err != nil && !errors.Is(err, store.ErrSessionNotFound) {
		// The gate stays closed; the next detection retries the lookup.
		c.log.Error("paid session lookup failed", zap.String("plate", plate), zap.Error(err))
		return ExitFailed
	}
	c.lastPlate = plate
	c.lastSeen = now

	if session != nil && c.withinGrace(session, now) {
		if err := c.gate.Open(); err != nil {
			c.log.Warn("gate open failed", zap.String("plate", plate), zap.Error(err))
		}
		c.log.Info("exit granted", zap.String("plate", plate), zap.Int64("session_id", session.ID))
		return ExitGranted
	}

	c.deny(plate)
	return ExitDenied
}

func (c *ExitController) withinGrace(s *model.ParkingSession, now time.Time) bool {
	if s.ExitTime == nil {
		return false
	}
	elapsed := now.Sub(*s.ExitTime)
	return elapsed >= 0 && elapsed <= c.grace
}

func (c *ExitController) deny(plate string) {
	c.log.Warn("ALERT: unpaid exit attempt", zap.String("plate", plate))
	if err := c.gate.Alert(); err != nil {
		c.log.Warn("gate alarm failed", zap.String("plate", plate), zap.Error(err))
	}
	c.notifier.Notify(notification.Exit(plate, notification.ExitUnpaidAttempt))
	c.notifier.Notify(notification.Alert(plate, notification.AlertUnpaidExitAttempt,
		fmt.Sprintf("Unpaid exit attempt for plate %s.", plate)))
}
