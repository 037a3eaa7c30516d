// Package scan runs one scanning session: per-frame extraction, consensus and
// the one-shot handoff of the final result.
package scan

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/zombor/cardscan/internal/consensus"
	"github.com/zombor/cardscan/internal/extract"
)

// ErrClosed is returned by Await when the session ended without a result.
var ErrClosed = errors.New("scan session closed without a result")

// Result is the confirmed card number and expiry of a completed session.
type Result struct {
	CardNumber extract.CardNumber `json:"card_number"`
	Expiry     extract.Expiry     `json:"expiry"`
}

// Status is a snapshot of a session's progress.
type Status struct {
	Frames          int     `json:"frames"`
	CardConfirmed   bool    `json:"card_confirmed"`
	ExpiryConfirmed bool    `json:"expiry_confirmed"`
	Complete        bool    `json:"complete"`
	Closed          bool    `json:"closed"`
	Result          *Result `json:"result,omitempty"`
}

// Config holds the consensus settings of a session.
type Config struct {
	Threshold int
	Mode      consensus.Mode
}

// DefaultConfig confirms a value on its fourth unbroken identical read.
func DefaultConfig() Config {
	return Config{Threshold: consensus.DefaultThreshold, Mode: consensus.Consecutive}
}

// Session processes frames one at a time. Extraction, the consensus update and
// the completion check run under a single lock, so overlapping calls are
// serialized and a frame processed after completion has no effect.
type Session struct {
	extractor *extract.Extractor

	mu       sync.Mutex
	tracker  *consensus.Tracker
	frames   int
	complete bool
	closed   bool
	result   Result

	done chan Result
}

// NewSession creates a session using the given extractor.
func NewSession(ex *extract.Extractor, cfg Config) *Session {
	return &Session{
		extractor: ex,
		tracker:   consensus.NewTracker(cfg.Threshold, cfg.Mode),
		done:      make(chan Result, 1),
	}
}

// ProcessFrame feeds one frame's recognized lines into the session.
func (s *Session) ProcessFrame(lines []string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processLocked(lines)
	return s.statusLocked()
}

// TryProcessFrame is ProcessFrame for live producers: if another frame is
// being processed it drops this one and returns false.
func (s *Session) TryProcessFrame(lines []string) (Status, bool) {
	if !s.mu.TryLock() {
		return Status{}, false
	}
	defer s.mu.Unlock()
	s.processLocked(lines)
	return s.statusLocked(), true
}

func (s *Session) processLocked(lines []string) {
	if s.complete || s.closed {
		return
	}
	s.frames++

	c := s.extractor.Extract(lines)
	if c.Empty() {
		slog.Debug("No candidates in frame", "frame", s.frames, "lines", len(lines))
		return
	}
	s.tracker.Observe(c)

	if !s.tracker.Complete() {
		return
	}
	card, _ := s.tracker.CardNumber()
	expiry, _ := s.tracker.Expiry()
	s.result = Result{CardNumber: card, Expiry: expiry}
	s.complete = true

	slog.Info("Scan session complete", "card", card.Masked(), "expiry", expiry.String(), "frames", s.frames)
	s.done <- s.result
	close(s.done)
}

// Close ends the session without a result. It is a no-op on a completed
// session.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.complete || s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

// Done yields the result once, then is closed. If the session is closed
// before completing, it is closed without a value.
func (s *Session) Done() <-chan Result {
	return s.done
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	_, card := s.tracker.CardNumber()
	_, expiry := s.tracker.Expiry()
	st := Status{
		Frames:          s.frames,
		CardConfirmed:   card,
		ExpiryConfirmed: expiry,
		Complete:        s.complete,
		Closed:          s.closed,
	}
	if s.complete {
		r := s.result
		st.Result = &r
	}
	return st
}
