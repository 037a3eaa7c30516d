package consensus

import (
	"log/slog"

	"github.com/zombor/cardscan/internal/extract"
)

// Tracker holds one Field per scanned value. It is not safe for concurrent
// use; scan.Session serializes access.
type Tracker struct {
	card   *Field[extract.CardNumber]
	expiry *Field[extract.Expiry]
}

// NewTracker creates a tracker whose fields share the same threshold and mode.
func NewTracker(threshold int, mode Mode) *Tracker {
	return &Tracker{
		card:   NewField[extract.CardNumber](threshold, mode),
		expiry: NewField[extract.Expiry](threshold, mode),
	}
}

// ObserveCard records a card-number candidate. A nil candidate is a no-op.
func (t *Tracker) ObserveCard(c *extract.CardNumber) bool {
	if c == nil {
		return false
	}
	if t.card.Observe(*c) {
		slog.Info("Card number confirmed", "card", c.Masked(), "observations", t.card.Observations())
		return true
	}
	return false
}

// ObserveExpiry records an expiry candidate. A nil candidate is a no-op.
func (t *Tracker) ObserveExpiry(e *extract.Expiry) bool {
	if e == nil {
		return false
	}
	if t.expiry.Observe(*e) {
		slog.Info("Expiry confirmed", "expiry", e.String(), "observations", t.expiry.Observations())
		return true
	}
	return false
}

// Observe records both candidates of a frame.
func (t *Tracker) Observe(c extract.Candidates) {
	t.ObserveCard(c.CardNumber)
	t.ObserveExpiry(c.Expiry)
}

// CardNumber returns the confirmed card number, if any.
func (t *Tracker) CardNumber() (extract.CardNumber, bool) {
	return t.card.Confirmed()
}

// Expiry returns the confirmed expiry, if any.
func (t *Tracker) Expiry() (extract.Expiry, bool) {
	return t.expiry.Confirmed()
}

// Complete reports whether both fields are confirmed.
func (t *Tracker) Complete() bool {
	_, card := t.card.Confirmed()
	_, expiry := t.expiry.Confirmed()
	return card && expiry
}

// CardField exposes the card-number counters for inspection.
func (t *Tracker) CardField() *Field[extract.CardNumber] {
	return t.card
}

// ExpiryField exposes the expiry counters for inspection.
func (t *Tracker) ExpiryField() *Field[extract.Expiry] {
	return t.expiry
}
