package serialport

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"parking-access-backend/config"
)

// ServeFunc runs one connected session and returns when the link fails.
type ServeFunc func(ctx context.Context, port io.ReadWriter) error

// Supervisor keeps a device link up, reconnecting with exponential backoff
// when opening or serving the port fails.
type Supervisor struct {
	name string
	dial DialFunc
	min  time.Duration
	max  time.Duration
	log  *zap.Logger
}

// NewSupervisor creates a supervisor for one named link.
func NewSupervisor(name string, dial DialFunc, cfg config.SerialConfig, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		name: name,
		dial: dial,
		min:  cfg.ReconnectMin,
		max:  cfg.ReconnectMax,
		log:  logger.Named("link").With(zap.String("link", name)),
	}
}

func (s *Supervisor) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if s.min > 0 {
		b.InitialInterval = s.min
	}
	if s.max > 0 {
		b.MaxInterval = s.max
	}
	return b
}

// Run blocks until ctx is cancelled. Each connected session is handed to
// serve; the port is always closed before the next attempt.
func (s *Supervisor) Run(ctx context.Context, serve ServeFunc) error {
	b := s.newBackOff()
	for {
		port, err := backoff.Retry(ctx, func() (io.ReadWriteCloser, error) {
			p, err := s.dial(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil, backoff.Permanent(ctx.Err())
				}
				s.log.Warn("device unavailable", zap.Error(err))
				return nil, err
			}
			return p, nil
		}, backoff.WithBackOff(s.newBackOff()))
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.log.Error("giving up on device for now", zap.Error(err))
			if !sleep(ctx, s.max) {
				return nil
			}
			continue
		}

		started := time.Now()
		err = s.serve(ctx, port, serve)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, io.EOF) {
			s.log.Warn("device disconnected")
		} else {
			s.log.Warn("device link failed", zap.Error(err))
		}

		// A session that stayed up for a while earns a fast reconnect.
		if time.Since(started) > s.max {
			b.Reset()
		}
		if !sleep(ctx, b.NextBackOff()) {
			return nil
		}
	}
}

func (s *Supervisor) serve(ctx context.Context, port io.ReadWriteCloser, serve ServeFunc) error {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer port.Close()

	s.log.Info("device connected")
	return serve(sessionCtx, port)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
