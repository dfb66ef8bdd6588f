package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"parking-access-backend/internal/db"
	"parking-access-backend/internal/model"
)

// newTestStore opens a private in-memory sqlite database with migrations applied.
func newTestStore(t *testing.T) (Store, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", regexp.MustCompile(`\W`).ReplaceAllString(t.Name(), "_"))
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gormDB))
	return NewGormStore(gormDB), gormDB
}

// A helper function to create a mock postgres connection.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: sqlDB,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestGormStore_CreateEntry(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	entry := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

	id, err := s.CreateEntry(ctx, "RAB123C", entry)
	require.NoError(t, err)
	assert.NotZero(t, id)

	open, err := s.HasOpenUnpaidSession(ctx, "RAB123C")
	require.NoError(t, err)
	assert.True(t, open)

	_, err = s.CreateEntry(ctx, "RAB123C", entry.Add(time.Minute))
	assert.ErrorIs(t, err, ErrDuplicateOpenSession)

	// Another plate is unaffected.
	_, err = s.CreateEntry(ctx, "RAA111A", entry)
	assert.NoError(t, err)
}

func TestGormStore_ConcurrentEntriesForSamePlate(t *testing.T) {
	s, gormDB := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	const attempts = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	var created, duplicates int
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateEntry(ctx, "RAA111A", now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrDuplicateOpenSession):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, attempts-1, duplicates)

	var count int64
	gormDB.Model(&model.ParkingSession{}).Where("car_plate = ? AND payment_status = 0", "RAA111A").Count(&count)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 0, s.(*gormStore).locks.size(), "plate locks are released")
}

func TestGormStore_Settle(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	entry := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	exit := entry.Add(45 * time.Minute)

	id, err := s.CreateEntry(ctx, "RAB123C", entry)
	require.NoError(t, err)

	require.NoError(t, s.Settle(ctx, id, exit, 500))

	paid, err := s.MostRecentPaidSession(ctx, "RAB123C")
	require.NoError(t, err)
	assert.Equal(t, id, paid.ID)
	assert.Equal(t, model.PaymentPaid, paid.PaymentStatus)
	require.NotNil(t, paid.ExitTime)
	assert.True(t, exit.Equal(*paid.ExitTime))
	require.NotNil(t, paid.DuePayment)
	assert.Equal(t, int64(500), *paid.DuePayment)

	t.Run("second settle fails and changes nothing", func(t *testing.T) {
		err := s.Settle(ctx, id, exit.Add(time.Hour), 9999)
		assert.ErrorIs(t, err, ErrAlreadySettled)

		again, err := s.MostRecentPaidSession(ctx, "RAB123C")
		require.NoError(t, err)
		assert.True(t, exit.Equal(*again.ExitTime))
		assert.Equal(t, int64(500), *again.DuePayment)
	})

	t.Run("unknown session", func(t *testing.T) {
		assert.ErrorIs(t, s.Settle(ctx, id+1000, exit, 500), ErrSessionNotFound)
	})

	t.Run("plate can enter again after settlement", func(t *testing.T) {
		open, err := s.HasOpenUnpaidSession(ctx, "RAB123C")
		require.NoError(t, err)
		assert.False(t, open)
		_, err = s.CreateEntry(ctx, "RAB123C", exit.Add(time.Hour))
		assert.NoError(t, err)
	})
}

func TestGormStore_MostRecentLookups(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)

	_, err := s.MostRecentPaidSession(ctx, "RAC333C")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = s.MostRecentUnpaidSession(ctx, "RAC333C")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	first, err := s.CreateEntry(ctx, "RAC333C", base)
	require.NoError(t, err)
	require.NoError(t, s.Settle(ctx, first, base.Add(time.Hour), 500))

	second, err := s.CreateEntry(ctx, "RAC333C", base.Add(2*time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.Settle(ctx, second, base.Add(3*time.Hour), 500))

	third, err := s.CreateEntry(ctx, "RAC333C", base.Add(4*time.Hour))
	require.NoError(t, err)

	paid, err := s.MostRecentPaidSession(ctx, "RAC333C")
	require.NoError(t, err)
	assert.Equal(t, second, paid.ID, "highest exit time wins")

	unpaid, err := s.MostRecentUnpaidSession(ctx, "RAC333C")
	require.NoError(t, err)
	assert.Equal(t, third, unpaid.ID)
}

func TestGormStore_ListAndSummary(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)

	yesterday, err := s.CreateEntry(ctx, "RAA111A", day.Add(-3*time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.Settle(ctx, yesterday, day.Add(-time.Hour), 1000))

	today, err := s.CreateEntry(ctx, "RAB222B", day.Add(9*time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.Settle(ctx, today, day.Add(10*time.Hour), 500))

	_, err = s.CreateEntry(ctx, "RAC333C", day.Add(11*time.Hour))
	require.NoError(t, err)

	sum, err := s.Summary(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.EntriesSince)
	assert.Equal(t, int64(1), sum.PaidExitsSince)
	assert.Equal(t, int64(1), sum.VehiclesInside)
	assert.Equal(t, int64(500), sum.RevenueSince)

	all, err := s.ListSessions(ctx, SessionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "RAC333C", all[0].Plate, "newest entry first")

	unpaid := model.PaymentUnpaid
	open, err := s.ListSessions(ctx, SessionFilter{Status: &unpaid})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "RAC333C", open[0].Plate)

	byPlate, err := s.ListSessions(ctx, SessionFilter{Plate: "RAA111A", Limit: 1000})
	require.NoError(t, err)
	require.Len(t, byPlate, 1)
}

func TestGormStore_SettleQueryShape(t *testing.T) {
	gormDB, mock := newMockDB(t)
	s := NewGormStore(gormDB)
	exit := time.Date(2026, 10, 14, 11, 5, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "parking_log" WHERE "parking_log"."id" = $1 LIMIT $2`)).
		WithArgs(7, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "car_plate", "payment_status"}).AddRow(7, "RAB123C", 0))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "parking_log" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.Settle(context.Background(), 7, exit, 1000)
	assert.ErrorIs(t, err, ErrAlreadySettled, "a zero-row update means someone settled first")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_LookupErrorsAreWrapped(t *testing.T) {
	gormDB, mock := newMockDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "parking_log"`)).
		WillReturnError(errors.New("connection reset"))

	_, err := s.HasOpenUnpaidSession(context.Background(), "RAB123C")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NotErrorIs(t, err, ErrSessionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
