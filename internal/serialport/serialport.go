package serialport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"parking-access-backend/config"
)

// DialFunc opens a fresh connection to a device.
type DialFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// Dialer opens serial devices with the shared baud rate and settle delay.
type Dialer struct {
	cfg config.SerialConfig
	log *zap.Logger
}

// NewDialer creates a Dialer.
func NewDialer(cfg config.SerialConfig, logger *zap.Logger) *Dialer {
	return &Dialer{cfg: cfg, log: logger.Named("serial")}
}

// For returns a DialFunc bound to one device path, or to auto-detection when
// device is AutoDevice.
func (d *Dialer) For(device string) DialFunc {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		return d.Open(ctx, device)
	}
}

// Open opens the device, waits out the board reset that opening triggers and
// discards whatever the board printed while booting.
func (d *Dialer) Open(ctx context.Context, device string) (io.ReadWriteCloser, error) {
	name := device
	if strings.EqualFold(device, AutoDevice) {
		detected, err := Detect()
		if err != nil {
			return nil, err
		}
		name = detected
	}

	port, err := serial.Open(name, &serial.Mode{BaudRate: d.cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}

	select {
	case <-time.After(d.cfg.SettleDelay):
	case <-ctx.Done():
		port.Close()
		return nil, ctx.Err()
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("reset input buffer on %s: %w", name, err)
	}

	d.log.Info("serial port opened", zap.String("port", name), zap.Int("baud", d.cfg.BaudRate))
	return port, nil
}

// Lines reads r line by line until it fails. Line endings and surrounding
// whitespace are stripped; blank lines are skipped. The error channel receives
// exactly one value (io.EOF for a clean end) after lines is closed. Cancelling
// ctx stops delivery; the reader itself is unblocked by closing r.
func Lines(ctx context.Context, r io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string, 16)
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				close(lines)
				errc <- ctx.Err()
				return
			}
		}
		close(lines)
		if err := scanner.Err(); err != nil {
			errc <- err
			return
		}
		errc <- io.EOF
	}()
	return lines, errc
}
