// Package consensus turns repeated plate readings into a single decision.
package consensus

// Decision is a plate accepted after enough matching readings.
type Decision struct {
	Plate        string
	Support      int
	Observations int
}

// SupportRatio is the share of readings that agreed on Plate.
func (d Decision) SupportRatio() float64 {
	if d.Observations == 0 {
		return 0
	}
	return float64(d.Support) / float64(d.Observations)
}

// Buffer collects validated plates until capacity is reached.
// A zero MinSupportRatio accepts a plain plurality.
// Buffer is not safe for concurrent use; each lane owns one.
type Buffer struct {
	capacity        int
	minSupportRatio float64
	plates          []string
}

// NewBuffer creates a buffer. Capacity below 1 defaults to 3.
func NewBuffer(capacity int, minSupportRatio float64) *Buffer {
	if capacity < 1 {
		capacity = 3
	}
	return &Buffer{
		capacity:        capacity,
		minSupportRatio: minSupportRatio,
		plates:          make([]string, 0, capacity),
	}
}

// Observe appends a validated plate.
func (b *Buffer) Observe(plate string) {
	b.plates = append(b.plates, plate)
}

// Len returns the number of buffered readings.
func (b *Buffer) Len() int {
	return len(b.plates)
}

// TryDecide returns a decision once the buffer is full. The buffer is cleared
// whenever it is evaluated, whether or not the consensus was strong enough.
// Ties go to the plate that was seen first.
func (b *Buffer) TryDecide() (Decision, bool) {
	if len(b.plates) < b.capacity {
		return Decision{}, false
	}
	defer b.Reset()

	counts := make(map[string]int, len(b.plates))
	for _, p := range b.plates {
		counts[p]++
	}
	var best string
	for _, p := range b.plates {
		if counts[p] > counts[best] {
			best = p
		}
	}

	d := Decision{Plate: best, Support: counts[best], Observations: len(b.plates)}
	if d.SupportRatio() < b.minSupportRatio {
		return d, false
	}
	return d, true
}

// Reset drops all buffered readings.
func (b *Buffer) Reset() {
	b.plates = b.plates[:0]
}
