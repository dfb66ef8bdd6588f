package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parking-access-backend/config"
	"parking-access-backend/internal/model"
)

func TestDialectorSelection(t *testing.T) {
	assert.Equal(t, "postgres", dialector("postgres://u:p@localhost/parking").Name())
	assert.Equal(t, "postgres", dialector("host=localhost user=parking dbname=parking").Name())
	assert.Equal(t, "sqlite", dialector("parking_system.db").Name())
	assert.Equal(t, "sqlite", dialector("file::memory:").Name())
}

func TestInit_EnforcesOneUnpaidPerPlate(t *testing.T) {
	gormDB, err := Init(&config.DatabaseConfig{DSN: "file::memory:", MaxOpenConns: 1}, zap.NewNop())
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()

	now := time.Now().UTC()
	require.NoError(t, gormDB.Create(&model.ParkingSession{Plate: "RAB123C", EntryTime: now}).Error)

	err = gormDB.Create(&model.ParkingSession{Plate: "RAB123C", EntryTime: now.Add(time.Minute)}).Error
	assert.Error(t, err, "second unpaid session for the same plate must be rejected by the index")

	paidAt := now.Add(time.Hour)
	due := int64(500)
	require.NoError(t, gormDB.Create(&model.ParkingSession{
		Plate: "RAB123C", EntryTime: now.Add(-2 * time.Hour), ExitTime: &paidAt,
		DuePayment: &due, PaymentStatus: model.PaymentPaid,
	}).Error, "paid sessions are not limited")
}
