package gate

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Command bytes understood by the barrier controller.
const (
	CmdClose byte = '0'
	CmdOpen  byte = '1'
	CmdAlert byte = '2'
)

// DefaultOpenDuration is how long the barrier stays up after Open.
const DefaultOpenDuration = 15 * time.Second

// Actuator drives one barrier. Without an attached device every command is
// simulated: it is logged and reported as successful with the same timing.
type Actuator struct {
	name string
	hold time.Duration
	log  *zap.Logger

	mu     sync.Mutex
	dev    io.Writer
	timer  *time.Timer
	isOpen bool
}

// NewActuator creates an actuator in simulation mode until a device is attached.
func NewActuator(name string, hold time.Duration, logger *zap.Logger) *Actuator {
	if hold <= 0 {
		hold = DefaultOpenDuration
	}
	return &Actuator{
		name: name,
		hold: hold,
		log:  logger.Named("gate").With(zap.String("gate", name)),
	}
}

// Attach routes commands to w. Passing nil returns the actuator to simulation mode.
func (a *Actuator) Attach(w io.Writer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dev = w
	if w == nil {
		a.log.Warn("gate device detached, simulating")
	} else {
		a.log.Info("gate device attached")
	}
}

// Simulated reports whether no device is attached.
func (a *Actuator) Simulated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dev == nil
}

// IsOpen reports whether the barrier is currently held open.
func (a *Actuator) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isOpen
}

// Open raises the barrier and schedules the close. It returns immediately;
// opening an already open gate restarts the hold period.
func (a *Actuator) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.send(CmdOpen)
	a.isOpen = true
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.hold, a.closeAfterHold)
	return err
}

// Alert signals the unpaid-exit alarm without moving the barrier.
func (a *Actuator) Alert() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.send(CmdAlert)
}

// Close lowers the barrier now and cancels any pending timed close.
func (a *Actuator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.isOpen = false
	return a.send(CmdClose)
}

func (a *Actuator) closeAfterHold() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.timer = nil
	a.isOpen = false
	if err := a.send(CmdClose); err != nil {
		a.log.Warn("timed close failed", zap.Error(err))
	}
}

// send must be called with mu held.
func (a *Actuator) send(cmd byte) error {
	if a.dev == nil {
		a.log.Debug("simulated gate command", zap.String("cmd", string(cmd)))
		return nil
	}
	if _, err := a.dev.Write([]byte{cmd}); err != nil {
		return fmt.Errorf("write gate command %q: %w", cmd, err)
	}
	a.log.Debug("gate command sent", zap.String("cmd", string(cmd)))
	return nil
}
