package lane

import (
	"context"
	"io"
	"strconv"

	"go.uber.org/zap"

	"parking-access-backend/internal/serialport"
)

// Attacher is a gate that can be bound to a connected device.
type Attacher interface {
	Attach(w io.Writer)
	Close() error
}

// DeviceLink serves one connected lane controller: gate commands go out on
// the port and distance readings come back, one number per line.
func DeviceLink(gate Attacher, proximity *Proximity, logger *zap.Logger) serialport.ServeFunc {
	log := logger.Named("device")
	return func(ctx context.Context, port io.ReadWriter) error {
		gate.Attach(port)
		defer func() {
			if err := gate.Close(); err != nil {
				log.Warn("failed to close gate on disconnect", zap.Error(err))
			}
			gate.Attach(nil)
		}()

		lines, errc := serialport.Lines(ctx, port)
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					return <-errc
				}
				d, err := strconv.ParseFloat(line, 64)
				if err != nil {
					log.Debug("ignoring non-numeric line", zap.String("line", line))
					continue
				}
				if proximity != nil {
					proximity.Update(d)
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
