package lane

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"parking-access-backend/internal/consensus"
	"parking-access-backend/internal/notification"
	"parking-access-backend/internal/store"
)

// Gate is the barrier a controller drives.
type Gate interface {
	Open() error
	Alert() error
}

// EntryStore is the part of the session store the entry lane needs.
type EntryStore interface {
	HasOpenUnpaidSession(ctx context.Context, plate string) (bool, error)
	CreateEntry(ctx context.Context, plate string, entryTime time.Time) (int64, error)
}

// EntryOutcome is what the entry controller did with a decision.
type EntryOutcome int

const (
	Admitted EntryOutcome = iota
	AlreadyInside
	CooldownSuppressed
	EntryFailed
)

func (o EntryOutcome) String() string {
	switch o {
	case Admitted:
		return "admitted"
	case AlreadyInside:
		return "already_inside"
	case CooldownSuppressed:
		return "cooldown"
	default:
		return "failed"
	}
}

// EntryController admits vehicles with no open session.
type EntryController struct {
	store    EntryStore
	gate     Gate
	notifier notification.Notifier
	cooldown time.Duration
	log      *zap.Logger
	now      func() time.Time

	mu           sync.Mutex
	lastPlate    string
	lastAdmitted time.Time
}

// NewEntryController creates an entry controller.
func NewEntryController(s EntryStore, g Gate, n notification.Notifier, cooldown time.Duration, logger *zap.Logger) *EntryController {
	return &EntryController{
		store:    s,
		gate:     g,
		notifier: n,
		cooldown: cooldown,
		log:      logger.Named("entry"),
		now:      time.Now,
	}
}

// HandleDecision adapts Handle to the lane loop.
func (c *EntryController) HandleDecision(ctx context.Context, d consensus.Decision) {
	c.Handle(ctx, d.Plate)
}

// Handle decides on one consensus plate at the entry point.
func (c *EntryController) Handle(ctx context.Context, plate string) EntryOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	open, err := c.store.HasOpenUnpaidSession(ctx, plate)
	if err != nil {
		c.log.Error("open session check failed", zap.String("plate", plate), zap.Error(err))
		return EntryFailed
	}
	if open {
		c.log.Info("vehicle already inside", zap.String("plate", plate))
		return AlreadyInside
	}

	now := c.now()
	if plate == c.lastPlate && now.Sub(c.lastAdmitted) <= c.cooldown {
		c.log.Debug("entry suppressed by cooldown", zap.String("plate", plate))
		return CooldownSuppressed
	}

	id, err := c.store.CreateEntry(ctx, plate, now)
	if errors.Is(err, store.ErrDuplicateOpenSession) {
		c.log.Info("entry raced with another detection", zap.String("plate", plate))
		return AlreadyInside
	}
	if err != nil {
		c.log.Error("failed to record entry", zap.String("plate", plate), zap.Error(err))
		return EntryFailed
	}

	if err := c.gate.Open(); err != nil {
		c.log.Warn("gate open failed", zap.String("plate", plate), zap.Error(err))
	}
	c.notifier.Notify(notification.Entry(plate))
	c.lastPlate = plate
	c.lastAdmitted = now

	c.log.Info("vehicle admitted", zap.String("plate", plate), zap.Int64("session_id", id))
	return Admitted
}
