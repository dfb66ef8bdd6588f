package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// PaymentStatus is stored as an integer, matching the legacy parking_log table.
type PaymentStatus int

const (
	PaymentUnpaid PaymentStatus = 0
	PaymentPaid   PaymentStatus = 1
)

func (p PaymentStatus) String() string {
	switch p {
	case PaymentUnpaid:
		return "UNPAID"
	case PaymentPaid:
		return "PAID"
	default:
		return fmt.Sprintf("PaymentStatus(%d)", int(p))
	}
}

// MarshalJSON renders the status by name.
func (p PaymentStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// ParkingSession is one vehicle visit, from entry until settlement.
type ParkingSession struct {
	ID            int64      `gorm:"primaryKey;autoIncrement"`
	Plate         string     `gorm:"column:car_plate;size:16;not null;index:idx_car_plate_status,priority:1"`
	EntryTime     time.Time  `gorm:"not null;index"`
	ExitTime      *time.Time `gorm:"index"`
	DuePayment    *int64
	PaymentStatus PaymentStatus `gorm:"not null;default:0;index:idx_car_plate_status,priority:2"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName keeps the legacy table name so existing databases keep working.
func (ParkingSession) TableName() string {
	return "parking_log"
}

// IsPaid reports whether the session has been settled.
func (s ParkingSession) IsPaid() bool {
	return s.PaymentStatus == PaymentPaid
}
