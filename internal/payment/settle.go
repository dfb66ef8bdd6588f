package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"parking-access-backend/config"
	"parking-access-backend/internal/model"
	"parking-access-backend/internal/notification"
	"parking-access-backend/internal/store"
)

var (
	// ErrPlateNotFound is returned when the plate has no UNPAID session.
	ErrPlateNotFound = errors.New("no unpaid session for plate")
	// ErrInsufficientBalance is returned when the card cannot cover the fee.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrDeviceNotReady is returned when the terminal never reported READY.
	ErrDeviceNotReady = errors.New("payment terminal not ready")
	// ErrDeviceConfirmTimeout is returned when the terminal never confirmed the
	// deduction. The session is left UNPAID and needs manual reconciliation.
	ErrDeviceConfirmTimeout = errors.New("payment terminal did not confirm")
)

// Terminal protocol tokens.
const (
	readyToken   = "READY"
	doneToken    = "DONE"
	rejectSignal = "I\n"
)

// Store is the part of the session store settlement needs.
type Store interface {
	MostRecentUnpaidSession(ctx context.Context, plate string) (*model.ParkingSession, error)
	Settle(ctx context.Context, sessionID int64, exitTime time.Time, due int64) error
}

// Terminal is a connected payment terminal: commands go out on W and the
// terminal's replies arrive on Lines.
type Terminal struct {
	W     io.Writer
	Lines <-chan string
}

// Result describes a completed settlement.
type Result struct {
	SessionID  int64
	Due        int64
	NewBalance int64
}

// Settler runs the settlement handshake against a terminal.
type Settler struct {
	store          Store
	notifier       notification.Notifier
	rate           int64
	readyTimeout   time.Duration
	confirmTimeout time.Duration
	log            *zap.Logger
	now            func() time.Time
}

// NewSettler creates a Settler from the payment configuration.
func NewSettler(s Store, n notification.Notifier, cfg config.PaymentConfig, logger *zap.Logger) *Settler {
	return &Settler{
		store:          s,
		notifier:       n,
		rate:           cfg.HourlyRate,
		readyTimeout:   cfg.ReadyTimeout,
		confirmTimeout: cfg.ConfirmTimeout,
		log:            logger.Named("payment"),
		now:            time.Now,
	}
}

// Process settles one request. The session is marked PAID only after the
// terminal confirms the deduction; every earlier failure leaves it untouched.
func (s *Settler) Process(ctx context.Context, req Request, term Terminal) (Result, error) {
	log := s.log.With(zap.String("attempt", uuid.NewString()), zap.String("plate", req.Plate))

	session, err := s.store.MostRecentUnpaidSession(ctx, req.Plate)
	if errors.Is(err, store.ErrSessionNotFound) {
		log.Info("no active entry for plate")
		s.alert(req.Plate, notification.AlertPlateNotFound, fmt.Sprintf("No active entry for %s.", req.Plate))
		return Result{}, ErrPlateNotFound
	}
	if err != nil {
		log.Error("unpaid session lookup failed", zap.Error(err))
		s.alert(req.Plate, notification.AlertPaymentStoreError, fmt.Sprintf("DB error payment %s: %v", req.Plate, err))
		return Result{}, fmt.Errorf("lookup unpaid session: %w", err)
	}

	now := s.now()
	due := Due(session.EntryTime, now, s.rate)
	res := Result{SessionID: session.ID, Due: due, NewBalance: req.Balance - due}
	log = log.With(zap.Int64("session_id", session.ID), zap.Int64("due", due))

	if req.Balance < due {
		log.Info("insufficient balance", zap.Int64("balance", req.Balance))
		if _, err := io.WriteString(term.W, rejectSignal); err != nil {
			log.Warn("failed to send reject signal", zap.Error(err))
		}
		s.alert(req.Plate, notification.AlertInsufficientBalance,
			fmt.Sprintf("Insufficient RFID balance %s. Req: %d", req.Plate, due))
		return res, ErrInsufficientBalance
	}

	if err := waitFor(ctx, term.Lines, s.readyTimeout, func(l string) bool { return l == readyToken }); err != nil {
		log.Warn("terminal ready timeout", zap.Error(err))
		s.alert(req.Plate, notification.AlertDeviceNotReady, fmt.Sprintf("Timeout 'READY' for %s.", req.Plate))
		return res, fmt.Errorf("%w: %v", ErrDeviceNotReady, err)
	}

	if _, err := fmt.Fprintf(term.W, "%d\r\n", res.NewBalance); err != nil {
		log.Warn("failed to send new balance", zap.Error(err))
		s.alert(req.Plate, notification.AlertSerialError, fmt.Sprintf("Serial error sending balance for %s: %v", req.Plate, err))
		return res, fmt.Errorf("%w: %v", ErrDeviceNotReady, err)
	}

	if err := waitFor(ctx, term.Lines, s.confirmTimeout, func(l string) bool { return strings.Contains(l, doneToken) }); err != nil {
		log.Warn("terminal confirm timeout, session left unpaid", zap.Error(err))
		s.alert(req.Plate, notification.AlertDeviceConfirmTimeout, fmt.Sprintf("Timeout 'DONE' for %s.", req.Plate))
		return res, fmt.Errorf("%w: %v", ErrDeviceConfirmTimeout, err)
	}

	if err := s.store.Settle(ctx, session.ID, now, due); err != nil {
		// The card was charged either way; an operator has to reconcile.
		if errors.Is(err, store.ErrAlreadySettled) {
			log.Warn("session settled elsewhere before confirmed deduction was recorded")
			s.alert(req.Plate, notification.AlertPaymentAlreadySettled,
				fmt.Sprintf("Session %d for %s was already settled; card charged %d, refund may be due.", session.ID, req.Plate, due))
		} else {
			log.Error("settlement failed after confirmed deduction", zap.Error(err))
			s.alert(req.Plate, notification.AlertPaymentStoreError, fmt.Sprintf("DB error payment %s: %v", req.Plate, err))
		}
		return res, fmt.Errorf("settle session %d: %w", session.ID, err)
	}

	log.Info("payment settled", zap.Int64("new_balance", res.NewBalance))
	s.notifier.Notify(notification.Exit(req.Plate, notification.ExitPaid))
	return res, nil
}

// Reconcile settles the most recent UNPAID session of a plate without a
// terminal, for operators resolving a confirm timeout. A nil amount bills the
// computed fee.
func (s *Settler) Reconcile(ctx context.Context, plate string, amount *int64) (Result, error) {
	plate = strings.ToUpper(strings.TrimSpace(plate))
	session, err := s.store.MostRecentUnpaidSession(ctx, plate)
	if errors.Is(err, store.ErrSessionNotFound) {
		return Result{}, ErrPlateNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("lookup unpaid session: %w", err)
	}

	now := s.now()
	due := Due(session.EntryTime, now, s.rate)
	if amount != nil {
		due = *amount
	}
	if err := s.store.Settle(ctx, session.ID, now, due); err != nil {
		return Result{}, fmt.Errorf("settle session %d: %w", session.ID, err)
	}

	s.log.Info("payment reconciled manually",
		zap.String("plate", plate), zap.Int64("session_id", session.ID), zap.Int64("due", due))
	s.notifier.Notify(notification.Exit(plate, notification.ExitPaid))
	return Result{SessionID: session.ID, Due: due}, nil
}

func (s *Settler) alert(plate string, t notification.AlertType, msg string) {
	s.notifier.Notify(notification.Alert(plate, t, msg))
}

// errTerminalClosed is reported when the terminal link drops mid-handshake.
var errTerminalClosed = errors.New("terminal disconnected")

// waitFor consumes lines until one matches or the deadline passes. Lines that
// do not match are discarded.
func waitFor(ctx context.Context, lines <-chan string, timeout time.Duration, match func(string) bool) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return errTerminalClosed
			}
			if match(line) {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("no reply within %s", timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
