// Package consensus accumulates per-frame candidates until one value has been
// seen often enough to trust.
package consensus

import "fmt"

// DefaultThreshold is the number of prior identical observations a value must
// exceed before it confirms. With 2, the fourth identical read confirms.
const DefaultThreshold = 2

// Mode decides what happens to other values' progress when a value is seen.
type Mode string

const (
	// Consecutive resets every other value's count when a value is observed,
	// so only an unbroken run of identical reads confirms.
	Consecutive Mode = "consecutive"
	// Cumulative keeps every value's tally for the whole session.
	Cumulative Mode = "cumulative"
)

// ParseMode validates a mode name. The empty string selects Consecutive.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", Consecutive:
		return Consecutive, nil
	case Cumulative:
		return Cumulative, nil
	default:
		return "", fmt.Errorf("unknown consensus mode %q", s)
	}
}

// Field counts observations per distinct value and holds the value once it is
// confirmed. A Field is not safe for concurrent use.
type Field[T comparable] struct {
	threshold    int
	mode         Mode
	counts       map[T]int
	observations int

	confirmed T
	ok        bool
}

// NewField returns an empty field. A value confirms on the observation whose
// prior count is strictly greater than threshold.
func NewField[T comparable](threshold int, mode Mode) *Field[T] {
	if mode == "" {
		mode = Consecutive
	}
	return &Field[T]{
		threshold: threshold,
		mode:      mode,
		counts:    make(map[T]int),
	}
}

// Observe records one sighting of v and reports whether this call confirmed
// the field. Once confirmed, further observations are ignored.
func (f *Field[T]) Observe(v T) bool {
	if f.ok {
		return false
	}
	if f.mode == Consecutive {
		// at most one run is live, so this drops a single key
		for k := range f.counts {
			if k != v {
				delete(f.counts, k)
			}
		}
	}
	prior := f.counts[v]
	f.counts[v] = prior + 1
	f.observations++
	if prior > f.threshold {
		f.confirmed = v
		f.ok = true
		return true
	}
	return false
}

// Confirmed returns the confirmed value, if any.
func (f *Field[T]) Confirmed() (T, bool) {
	return f.confirmed, f.ok
}

// Count returns v's current progress toward confirmation.
func (f *Field[T]) Count(v T) int {
	return f.counts[v]
}

// Observations returns the number of observations counted before the field
// confirmed.
func (f *Field[T]) Observations() int {
	return f.observations
}

// Tracked returns the number of values currently holding a count. In
// Consecutive mode this is never more than one.
func (f *Field[T]) Tracked() int {
	return len(f.counts)
}
