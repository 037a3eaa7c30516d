package card

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/cardscan/internal/extract"
	"github.com/zombor/cardscan/internal/recognize"
	"github.com/zombor/cardscan/internal/scan"
)

// ErrSessionNotFound is returned for unknown, cancelled or expired sessions
var ErrSessionNotFound = errors.New("scan session not found")

// IDGenerator generates unique IDs for sessions
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// CompletionHandler receives each session's result exactly once
type CompletionHandler func(id string, result scan.Result)

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// entry is the registry record for one live session
type entry struct {
	session     *scan.Session
	cancel      context.CancelFunc
	createdAt   time.Time
	updatedAt   time.Time
	completedAt *time.Time
}

// Service manages in-memory scanning sessions
type Service struct {
	extractor   *extract.Extractor
	config      scan.Config
	recognizer  recognize.Recognizer
	onComplete  CompletionHandler
	idGenerator IDGenerator
	timeSource  TimeSource

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewService creates a new Service with default ID generator and time source
func NewService(ex *extract.Extractor, cfg scan.Config, rec recognize.Recognizer, onComplete CompletionHandler) *Service {
	return NewServiceWithDeps(ex, cfg, rec, onComplete, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(ex *extract.Extractor, cfg scan.Config, rec recognize.Recognizer, onComplete CompletionHandler, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		extractor:   ex,
		config:      cfg,
		recognizer:  rec,
		onComplete:  onComplete,
		idGenerator: idGen,
		timeSource:  timeSrc,
		sessions:    make(map[string]*entry),
	}
}

// StartSession creates a session and starts waiting for its result
func (s *Service) StartSession() (*Scan, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{
		session:   scan.NewSession(s.extractor, s.config),
		cancel:    cancel,
		createdAt: now,
		updatedAt: now,
	}

	s.mu.Lock()
	if _, exists := s.sessions[id]; exists {
		s.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("session id collision: %s", id)
	}
	s.sessions[id] = e
	s.mu.Unlock()

	go s.awaitResult(ctx, id, e)

	slog.Info("Scan session started", "session", id)
	return s.view(id, e), nil
}

// awaitResult is the teardown side of a session: it runs on its own
// goroutine, separate from frame processing
func (s *Service) awaitResult(ctx context.Context, id string, e *entry) {
	stop := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		t := s.timeSource.Now()
		e.completedAt = &t
	}
	handler := func(r scan.Result) {
		slog.Info("Delivering scan result", "session", id, "card", r.CardNumber.Masked(), "expiry", r.Expiry.String())
		if s.onComplete != nil {
			s.onComplete(id, r)
		}
	}

	_, err := scan.Await(ctx, e.session, stop, handler)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, scan.ErrClosed) {
		slog.Warn("Scan session ended without delivery", "session", id, "error", err)
	}
}

// GetSession retrieves a session by ID
func (s *Service) GetSession(id string) (*Scan, error) {
	s.mu.Lock()
	e, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.view(id, e), nil
}

// ListSessions returns all live sessions, oldest first
func (s *Service) ListSessions() []*Scan {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	entries := make(map[string]*entry, len(s.sessions))
	for id, e := range s.sessions {
		ids = append(ids, id)
		entries[id] = e
	}
	s.mu.Unlock()

	scans := make([]*Scan, 0, len(ids))
	for _, id := range ids {
		scans = append(scans, s.view(id, entries[id]))
	}
	sort.Slice(scans, func(i, j int) bool {
		if scans[i].CreatedAt.Equal(scans[j].CreatedAt) {
			return scans[i].ID < scans[j].ID
		}
		return scans[i].CreatedAt.Before(scans[j].CreatedAt)
	})
	return scans
}

// SubmitLines feeds one frame of recognized text into a session
func (s *Service) SubmitLines(id string, lines []string) (*Scan, error) {
	e, err := s.touch(id)
	if err != nil {
		return nil, err
	}
	e.session.ProcessFrame(lines)
	return s.view(id, e), nil
}

// SubmitImage recognizes a frame image and feeds its text into a session
func (s *Service) SubmitImage(ctx context.Context, id string, data []byte, contentType string) (*Scan, error) {
	if s.recognizer == nil {
		return nil, errors.New("no recognizer configured")
	}
	e, err := s.touch(id)
	if err != nil {
		return nil, err
	}

	lines, err := s.recognizer.Recognize(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to recognize frame",
			"session", id,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("recognizing frame: %w", err)
	}

	e.session.ProcessFrame(lines)
	return s.view(id, e), nil
}

// CancelSession closes a session and forgets it
func (s *Service) CancelSession(id string) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	e.session.Close()
	e.cancel()
	slog.Info("Scan session cancelled", "session", id)
	return nil
}

// Sweep cancels sessions idle for longer than ttl and returns how many it removed
func (s *Service) Sweep(ttl time.Duration) int {
	cutoff := s.timeSource.Now().Add(-ttl)

	s.mu.Lock()
	var stale []*entry
	for id, e := range s.sessions {
		if e.updatedAt.Before(cutoff) {
			stale = append(stale, e)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, e := range stale {
		e.session.Close()
		e.cancel()
	}
	if len(stale) > 0 {
		slog.Info("Expired idle scan sessions", "count", len(stale))
	}
	return len(stale)
}

// RunSweeper calls Sweep every interval until ctx is done
func (s *Service) RunSweeper(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ttl)
		}
	}
}

// Close cancels every live session
func (s *Service) Close() {
	s.mu.Lock()
	entries := s.sessions
	s.sessions = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range entries {
		e.session.Close()
		e.cancel()
	}
}

func (s *Service) touch(id string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.updatedAt = s.timeSource.Now()
	return e, nil
}

func (s *Service) view(id string, e *entry) *Scan {
	st := e.session.Status()

	s.mu.Lock()
	defer s.mu.Unlock()
	return &Scan{
		ID:          id,
		Status:      st,
		CreatedAt:   e.createdAt,
		UpdatedAt:   e.updatedAt,
		CompletedAt: e.completedAt,
	}
}
