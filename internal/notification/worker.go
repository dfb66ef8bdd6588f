package notification

import (
	"context"

	"go.uber.org/zap"
)

// Sink is one delivery target for events.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
}

// WorkerPool manages a pool of workers that deliver events to every sink.
type WorkerPool struct {
	size  int
	jobs  chan Event
	sinks []Sink
	log   *zap.Logger
}

// NewWorkerPool creates a new worker pool. queueSize bounds the events
// waiting for delivery.
func NewWorkerPool(size, queueSize int, logger *zap.Logger, sinks ...Sink) *WorkerPool {
	if size < 1 {
		size = 1
	}
	if queueSize < 1 {
		queueSize = size
	}
	return &WorkerPool{
		size:  size,
		jobs:  make(chan Event, queueSize),
		sinks: sinks,
		log:   logger.Named("notifier"),
	}
}

// AddSink registers another delivery target. Call before Start.
func (wp *WorkerPool) AddSink(s Sink) {
	wp.sinks = append(wp.sinks, s)
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug("worker started", zap.Int("worker", id))
	for {
		select {
		case e := <-wp.jobs:
			wp.deliver(ctx, e)
		case <-ctx.Done():
			wp.log.Debug("worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// Notify queues an event. It never blocks: a full queue drops the event.
func (wp *WorkerPool) Notify(e Event) {
	select {
	case wp.jobs <- e:
	default:
		wp.log.Warn("notification queue full, dropping event",
			zap.String("kind", string(e.Kind)), zap.String("plate", e.Plate))
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Event {
	return wp.jobs
}

func (wp *WorkerPool) deliver(ctx context.Context, e Event) {
	for _, s := range wp.sinks {
		if err := s.Deliver(ctx, e); err != nil {
			wp.log.Warn("event delivery failed",
				zap.String("sink", s.Name()),
				zap.String("kind", string(e.Kind)),
				zap.String("plate", e.Plate),
				zap.Error(err))
		}
	}
}
