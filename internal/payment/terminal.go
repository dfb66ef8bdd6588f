package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"parking-access-backend/internal/notification"
	"parking-access-backend/internal/serialport"
)

// TerminalLink connects the settler to a payment terminal over a serial link
// and reports terminal outages to operators once per outage.
type TerminalLink struct {
	settler  *Settler
	notifier notification.Notifier
	log      *zap.Logger

	mu      sync.Mutex
	missing bool
}

// NewTerminalLink creates a TerminalLink.
func NewTerminalLink(s *Settler, n notification.Notifier, logger *zap.Logger) *TerminalLink {
	return &TerminalLink{settler: s, notifier: n, log: logger.Named("terminal")}
}

// Dial wraps dial so a missing terminal raises one alert until it comes back.
func (t *TerminalLink) Dial(dial serialport.DialFunc) serialport.DialFunc {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		port, err := dial(ctx)

		t.mu.Lock()
		defer t.mu.Unlock()
		if err != nil {
			if !t.missing && ctx.Err() == nil {
				t.missing = true
				t.notifier.Notify(notification.Alert("", notification.AlertPaymentDeviceNotFound,
					fmt.Sprintf("Payment terminal not available: %v", err)))
			}
			return nil, err
		}
		t.missing = false
		return port, nil
	}
}

// Serve reads settlement requests from a connected terminal and processes
// them one at a time. It returns when the link fails.
func (t *TerminalLink) Serve(ctx context.Context, port io.ReadWriter) error {
	t.log.Info("payment terminal ready")
	lines, errc := serialport.Lines(ctx, port)
	term := Terminal{W: port, Lines: lines}

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return t.linkError(<-errc)
			}
			req, ok := ParseRequest(line)
			if !ok {
				t.log.Debug("ignoring terminal line", zap.String("line", line))
				continue
			}
			if _, err := t.settler.Process(ctx, req, term); err != nil {
				t.log.Info("settlement not completed", zap.String("plate", req.Plate), zap.Error(err))
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *TerminalLink) linkError(err error) error {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return err
	}
	t.notifier.Notify(notification.Alert("", notification.AlertSerialError,
		fmt.Sprintf("Serial error on payment terminal: %v", err)))
	return err
}
