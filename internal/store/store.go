package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"parking-access-backend/internal/model"
)

// Store defines the session operations the lane controllers and the payment
// protocol depend on.
type Store interface {
	HasOpenUnpaidSession(ctx context.Context, plate string) (bool, error)
	MostRecentPaidSession(ctx context.Context, plate string) (*model.ParkingSession, error)
	MostRecentUnpaidSession(ctx context.Context, plate string) (*model.ParkingSession, error)
	CreateEntry(ctx context.Context, plate string, entryTime time.Time) (int64, error)
	Settle(ctx context.Context, sessionID int64, exitTime time.Time, due int64) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.ParkingSession, error)
	Summary(ctx context.Context, since time.Time) (Summary, error)
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db    *gorm.DB
	locks *plateLocks
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db, locks: newPlateLocks()}
}

// DB exposes the underlying handle for the subscription endpoints.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// HasOpenUnpaidSession reports whether the plate has any UNPAID session.
func (s *gormStore) HasOpenUnpaidSession(ctx context.Context, plate string) (bool, error) {
	unlock := s.locks.lock(plate)
	defer unlock()

	return hasUnpaid(s.db.WithContext(ctx), plate)
}

// MostRecentPaidSession returns the PAID session with the latest exit time.
func (s *gormStore) MostRecentPaidSession(ctx context.Context, plate string) (*model.ParkingSession, error) {
	unlock := s.locks.lock(plate)
	defer unlock()

	var session model.ParkingSession
	err := s.db.WithContext(ctx).
		Where("car_plate = ? AND payment_status = ? AND exit_time IS NOT NULL", plate, model.PaymentPaid).
		Order("exit_time DESC").
		Take(&session).Error
	if err != nil {
		return nil, lookupErr("paid", plate, err)
	}
	return &session, nil
}

// MostRecentUnpaidSession returns the UNPAID session with the latest entry time.
func (s *gormStore) MostRecentUnpaidSession(ctx context.Context, plate string) (*model.ParkingSession, error) {
	unlock := s.locks.lock(plate)
	defer unlock()

	var session model.ParkingSession
	err := s.db.WithContext(ctx).
		Where("car_plate = ? AND payment_status = ?", plate, model.PaymentUnpaid).
		Order("entry_time DESC").
		Take(&session).Error
	if err != nil {
		return nil, lookupErr("unpaid", plate, err)
	}
	return &session, nil
}

// CreateEntry opens a new UNPAID session. The open-session check is repeated
// inside the transaction so a concurrent entry for the same plate loses.
func (s *gormStore) CreateEntry(ctx context.Context, plate string, entryTime time.Time) (int64, error) {
	unlock := s.locks.lock(plate)
	defer unlock()

	session := model.ParkingSession{
		Plate:         plate,
		EntryTime:     entryTime.UTC(),
		PaymentStatus: model.PaymentUnpaid,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		open, err := hasUnpaid(tx, plate)
		if err != nil {
			return err
		}
		if open {
			return ErrDuplicateOpenSession
		}
		if err := tx.Create(&session).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateOpenSession
			}
			return fmt.Errorf("failed to create session for plate %s: %w", plate, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return session.ID, nil
}

// Settle marks an UNPAID session PAID with its exit time and due amount in one update.
func (s *gormStore) Settle(ctx context.Context, sessionID int64, exitTime time.Time, due int64) error {
	var current model.ParkingSession
	if err := s.db.WithContext(ctx).Take(&current, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to load session %d: %w", sessionID, err)
	}

	unlock := s.locks.lock(current.Plate)
	defer unlock()

	exit := exitTime.UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.ParkingSession{}).
			Where("id = ? AND payment_status = ?", sessionID, model.PaymentUnpaid).
			Updates(map[string]any{
				"exit_time":      exit,
				"due_payment":    due,
				"payment_status": model.PaymentPaid,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to settle session %d: %w", sessionID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAlreadySettled
		}
		return nil
	})
}

// ListSessions returns sessions newest entry first.
func (s *gormStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.ParkingSession, error) {
	q := s.db.WithContext(ctx).Model(&model.ParkingSession{})
	if filter.Plate != "" {
		q = q.Where("car_plate = ?", filter.Plate)
	}
	if filter.Status != nil {
		q = q.Where("payment_status = ?", *filter.Status)
	}

	var sessions []model.ParkingSession
	if err := q.Order("entry_time DESC").Limit(filter.limit()).Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Summary counts entries, paid exits and revenue since the given time, plus
// the vehicles currently inside.
func (s *gormStore) Summary(ctx context.Context, since time.Time) (Summary, error) {
	since = since.UTC()
	sum := Summary{Since: since}
	db := s.db.WithContext(ctx).Model(&model.ParkingSession{})

	if err := db.Session(&gorm.Session{}).
		Where("entry_time >= ?", since).
		Count(&sum.EntriesSince).Error; err != nil {
		return Summary{}, fmt.Errorf("count entries: %w", err)
	}
	if err := db.Session(&gorm.Session{}).
		Where("payment_status = ? AND exit_time >= ?", model.PaymentPaid, since).
		Count(&sum.PaidExitsSince).Error; err != nil {
		return Summary{}, fmt.Errorf("count paid exits: %w", err)
	}
	if err := db.Session(&gorm.Session{}).
		Where("payment_status = ?", model.PaymentUnpaid).
		Count(&sum.VehiclesInside).Error; err != nil {
		return Summary{}, fmt.Errorf("count vehicles inside: %w", err)
	}
	if err := db.Session(&gorm.Session{}).
		Select("COALESCE(SUM(due_payment), 0)").
		Where("payment_status = ? AND exit_time >= ?", model.PaymentPaid, since).
		Scan(&sum.RevenueSince).Error; err != nil {
		return Summary{}, fmt.Errorf("sum revenue: %w", err)
	}
	return sum, nil
}

func hasUnpaid(db *gorm.DB, plate string) (bool, error) {
	var count int64
	err := db.Model(&model.ParkingSession{}).
		Where("car_plate = ? AND payment_status = ?", plate, model.PaymentUnpaid).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check unpaid sessions for plate %s: %w", plate, err)
	}
	return count > 0, nil
}

func lookupErr(kind, plate string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSessionNotFound
	}
	return fmt.Errorf("failed to find %s session for plate %s: %w", kind, plate, err)
}

// isUniqueViolation covers drivers that do not translate constraint errors.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
