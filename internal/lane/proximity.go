package lane

import (
	"sync"
	"time"

	"parking-access-backend/config"
)

// Proximity keeps the latest distance reading for a lane. A reading older
// than the stale window counts as unknown.
type Proximity struct {
	min, max float64
	stale    time.Duration
	now      func() time.Time

	mu       sync.Mutex
	distance float64
	at       time.Time
}

// NewProximity creates a tracker for the inclusive range in cfg.
func NewProximity(cfg config.ProximityConfig) *Proximity {
	return &Proximity{
		min:   cfg.MinDistance,
		max:   cfg.MaxDistance,
		stale: cfg.StaleAfter,
		now:   time.Now,
	}
}

// Update records a reading.
func (p *Proximity) Update(distance float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.distance = distance
	p.at = p.now()
}

// Current returns the latest reading, or false when none is fresh.
func (p *Proximity) Current() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.at.IsZero() || p.now().Sub(p.at) > p.stale {
		return 0, false
	}
	return p.distance, true
}

// InRange reports whether detection should run. A fresh sensor reading always
// decides; a distance carried by the frame is used only when no reading is
// fresh, as on lanes without a distance sensor.
func (p *Proximity) InRange(reported *float64) bool {
	if d, ok := p.Current(); ok {
		return p.contains(d)
	}
	return reported != nil && p.contains(*reported)
}

func (p *Proximity) contains(d float64) bool {
	return d >= p.min && d <= p.max
}
