package model

import (
	"strings"
	"time"
)

// PushSubscription holds an operator browser's web push subscription.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// AlertTypes is a comma separated filter; empty means every alert type.
	AlertTypes string `gorm:"size:512;not null;default:''"`
}

// Wants reports whether the subscription asked for alerts of the given type.
func (s PushSubscription) Wants(alertType string) bool {
	if strings.TrimSpace(s.AlertTypes) == "" {
		return true
	}
	for _, t := range strings.Split(s.AlertTypes, ",") {
		if strings.EqualFold(strings.TrimSpace(t), alertType) {
			return true
		}
	}
	return false
}
