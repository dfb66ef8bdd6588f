package store

import (
	"errors"
	"time"

	"parking-access-backend/internal/model"
)

var (
	// ErrDuplicateOpenSession is returned when a plate already has an UNPAID session.
	ErrDuplicateOpenSession = errors.New("plate already has an open unpaid session")
	// ErrSessionNotFound is returned when no matching session exists.
	ErrSessionNotFound = errors.New("session not found")
	// ErrAlreadySettled is returned when settling a session that is already PAID.
	ErrAlreadySettled = errors.New("session already settled")
)

// SessionFilter narrows ListSessions.
type SessionFilter struct {
	Plate  string
	Status *model.PaymentStatus
	Limit  int
}

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

func (f SessionFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultListLimit
	case f.Limit > maxListLimit:
		return maxListLimit
	default:
		return f.Limit
	}
}

// Summary aggregates activity since a point in time, for dashboards.
type Summary struct {
	Since          time.Time `json:"since"`
	EntriesSince   int64     `json:"totalEntriesToday"`
	PaidExitsSince int64     `json:"totalExitsToday"`
	VehiclesInside int64     `json:"vehiclesCurrentlyIn"`
	RevenueSince   int64     `json:"revenueToday"`
}
