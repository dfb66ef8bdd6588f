package notification

import (
	"slices"
	"strings"
	"time"
)

// Kind selects the backend endpoint an event is posted to.
type Kind string

const (
	KindEntry Kind = "entry"
	KindExit  Kind = "exit"
	KindAlert Kind = "alert"
)

// ExitStatus is the payment_status field of an exit event.
type ExitStatus string

const (
	ExitPaid          ExitStatus = "PAID"
	ExitUnpaidAttempt ExitStatus = "UNPAID_ATTEMPT"
)

// AlertType names an operator alert. The values are shared with the backend.
type AlertType string

const (
	AlertPlateNotFound         AlertType = "PLATE_NOT_FOUND_DB"
	AlertInsufficientBalance   AlertType = "INSUFFICIENT_BALANCE_RFID"
	AlertDeviceNotReady        AlertType = "ARDUINO_TIMEOUT_READY"
	AlertDeviceConfirmTimeout  AlertType = "ARDUINO_TIMEOUT_CONFIRM"
	AlertUnpaidExitAttempt     AlertType = "UNPAID_EXIT_ATTEMPT"
	AlertPaymentStoreError     AlertType = "PAYMENT_DB_ERROR"
	AlertPaymentDeviceNotFound AlertType = "ARDUINO_NOT_DETECTED_PAYMENT"
	AlertSerialError           AlertType = "ARDUINO_SERIAL_ERROR"
	AlertPaymentAlreadySettled AlertType = "PAYMENT_ALREADY_SETTLED"
)

var alertTypes = []AlertType{
	AlertPlateNotFound,
	AlertInsufficientBalance,
	AlertDeviceNotReady,
	AlertDeviceConfirmTimeout,
	AlertUnpaidExitAttempt,
	AlertPaymentStoreError,
	AlertPaymentDeviceNotFound,
	AlertSerialError,
	AlertPaymentAlreadySettled,
}

// AlertTypes lists every alert type.
func AlertTypes() []AlertType { return slices.Clone(alertTypes) }

// ParseAlertType matches s against the known alert types, ignoring case.
func ParseAlertType(s string) (AlertType, bool) {
	for _, t := range alertTypes {
		if strings.EqualFold(strings.TrimSpace(s), string(t)) {
			return t, true
		}
	}
	return "", false
}

// Event is a domain event delivered best-effort to every sink.
type Event struct {
	Kind       Kind
	Plate      string
	ExitStatus ExitStatus
	AlertType  AlertType
	Message    string
	At         time.Time
}

// Entry reports an admitted vehicle.
func Entry(plate string) Event {
	return Event{Kind: KindEntry, Plate: plate, At: time.Now().UTC()}
}

// Exit reports a paid exit or an unpaid exit attempt.
func Exit(plate string, status ExitStatus) Event {
	return Event{Kind: KindExit, Plate: plate, ExitStatus: status, At: time.Now().UTC()}
}

// Alert reports a condition that needs operator attention. Plate may be empty.
func Alert(plate string, alertType AlertType, message string) Event {
	return Event{Kind: KindAlert, Plate: plate, AlertType: alertType, Message: message, At: time.Now().UTC()}
}

// Notifier accepts events without blocking the caller.
type Notifier interface {
	Notify(e Event)
}

// Discard is a Notifier that drops every event.
type Discard struct{}

func (Discard) Notify(Event) {}
