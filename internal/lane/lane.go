package lane

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"parking-access-backend/config"
	"parking-access-backend/internal/consensus"
	"parking-access-backend/internal/plate"
)

// ErrQueueFull is returned by Submit when the lane cannot keep up.
var ErrQueueFull = errors.New("lane queue full, frame dropped")

// Frame is the OCR output of one camera frame: one raw string per plate crop.
type Frame struct {
	Texts    []string
	Distance *float64
}

// DecisionHandler acts on a consensus decision.
type DecisionHandler func(ctx context.Context, d consensus.Decision)

// Lane turns frames into consensus decisions for one physical lane. Frames
// are processed one at a time in arrival order.
type Lane struct {
	name      string
	validator *plate.Validator
	buffer    *consensus.Buffer
	proximity *Proximity
	handle    DecisionHandler
	frames    chan Frame
	log       *zap.Logger
}

// New creates a lane. A nil proximity tracker disables distance gating.
func New(name string, cfg config.LaneConfig, validator *plate.Validator, proximity *Proximity, handle DecisionHandler, logger *zap.Logger) *Lane {
	if !cfg.ProximityRequired() {
		proximity = nil
	}
	queue := cfg.QueueSize
	if queue < 1 {
		queue = 1
	}
	return &Lane{
		name:      name,
		validator: validator,
		buffer:    consensus.NewBuffer(cfg.Capacity, cfg.SupportRatio),
		proximity: proximity,
		handle:    handle,
		frames:    make(chan Frame, queue),
		log:       logger.Named("lane").With(zap.String("lane", name)),
	}
}

// Name returns the lane name.
func (l *Lane) Name() string { return l.name }

// Submit queues a frame without blocking.
func (l *Lane) Submit(f Frame) error {
	select {
	case l.frames <- f:
		return nil
	default:
		l.log.Warn("frame dropped, lane busy")
		return ErrQueueFull
	}
}

// Run processes frames until ctx is cancelled.
func (l *Lane) Run(ctx context.Context) {
	l.log.Info("lane started")
	for {
		select {
		case f := <-l.frames:
			l.process(ctx, f)
		case <-ctx.Done():
			l.log.Info("lane shutting down")
			return
		}
	}
}

func (l *Lane) process(ctx context.Context, f Frame) {
	if l.proximity != nil && !l.proximity.InRange(f.Distance) {
		return
	}
	for _, text := range f.Texts {
		p, ok := l.validator.Normalize(text)
		if !ok {
			continue
		}
		l.buffer.Observe(p)

		d, ok := l.buffer.TryDecide()
		if !ok {
			continue
		}
		l.log.Debug("consensus reached",
			zap.String("plate", d.Plate),
			zap.Float64("support", d.SupportRatio()))
		l.handle(ctx, d)
	}
}
