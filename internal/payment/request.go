package payment

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Request is a settlement request read from the terminal: "<plate>,<balance>".
type Request struct {
	Plate   string
	Balance int64
}

// ParseRequest parses one terminal line. The balance field keeps only its
// digits, so "1500\r" and "Bal:1500" both read as 1500. Lines without exactly
// two fields, an empty plate or no balance digits are rejected.
func ParseRequest(line string) (Request, bool) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != 2 {
		return Request{}, false
	}
	plate := strings.ToUpper(strings.TrimSpace(parts[0]))
	if plate == "" {
		return Request{}, false
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, parts[1])
	if digits == "" {
		return Request{}, false
	}
	balance, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return Request{}, false
	}
	return Request{Plate: plate, Balance: balance}, true
}

// Due returns the fee for a stay: every started hour is billed, with a
// minimum of one hour.
func Due(entry, now time.Time, hourlyRate int64) int64 {
	hours := int64(math.Ceil(now.Sub(entry).Seconds() / 3600))
	if hours < 1 {
		hours = 1
	}
	return hours * hourlyRate
}
