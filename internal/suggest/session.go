package suggest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/debounce"
)

const (
	// SessionDebounce is the quiet period before a request is sent.
	SessionDebounce = 500 * time.Millisecond
	// SessionTTL is how long suggestions stay visible.
	SessionTTL = 30 * time.Second
)

// Suggester is the part of Client a Session depends on.
type Suggester interface {
	Suggest(ctx context.Context, request Request) ([]Suggestion, error)
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithSessionDebounce overrides the quiet period.
func WithSessionDebounce(window time.Duration) SessionOption {
	return func(s *Session) {
		s.debounce = debounce.New(window)
	}
}

// WithSessionTTL overrides the suggestion lifetime.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(s *Session) {
		s.ttl = ttl
	}
}

// Session tracks suggestions for one entry being edited. Input changes are
// debounced, a newer request aborts the one in flight, and results expire.
type Session struct {
	suggester Suggester
	debounce  *debounce.Debouncer
	ttl       time.Duration

	mu          sync.Mutex
	lastInput   string
	generation  uint64
	cancel      context.CancelFunc
	suggestions []Suggestion
	expiry      *time.Timer
	loading     bool
	closed      bool
	onChange    func([]Suggestion)
}

// NewSession constructs a Session around a suggester.
func NewSession(suggester Suggester, options ...SessionOption) *Session {
	session := &Session{
		suggester:   suggester,
		debounce:    debounce.New(SessionDebounce),
		ttl:         SessionTTL,
		suggestions: []Suggestion{},
	}
	for _, option := range options {
		option(session)
	}
	return session
}

// OnChange registers a callback invoked with the visible suggestions after
// every change. It runs outside the session lock.
func (s *Session) OnChange(fn func([]Suggestion)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Update reports the current state of the entry. Short input clears the
// suggestions; unchanged title and content are ignored.
func (s *Session) Update(request Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len([]rune(request.Text())) < MinTextLength {
		s.debounce.Cancel()
		s.abortLocked()
		s.loading = false
		notify := s.clearLocked()
		s.mu.Unlock()
		notify()
		return
	}
	input := request.Title + "|" + request.Content
	if input == s.lastInput {
		s.mu.Unlock()
		return
	}
	s.lastInput = input
	s.stopExpiryLocked()
	s.mu.Unlock()

	s.debounce.Trigger(func() {
		s.fetch(request)
	})
}

func (s *Session) fetch(request Request) {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return
	}
	s.abortLocked()
	s.generation++
	generation := s.generation
	s.cancel = cancel
	s.loading = true
	s.mu.Unlock()

	suggestions, err := s.suggester.Suggest(ctx, request)
	cancel()

	s.mu.Lock()
	if s.closed || generation != s.generation || err != nil {
		s.mu.Unlock()
		return
	}
	s.cancel = nil
	s.loading = false
	s.suggestions = slices.Clone(suggestions)
	if len(s.suggestions) > 0 {
		s.expiry = time.AfterFunc(s.ttl, func() { s.expire(generation) })
	}
	notify := s.notifyLocked()
	s.mu.Unlock()
	notify()
}

func (s *Session) expire(generation uint64) {
	s.mu.Lock()
	if generation != s.generation {
		s.mu.Unlock()
		return
	}
	notify := s.clearLocked()
	s.mu.Unlock()
	notify()
}

// Suggestions returns the visible suggestions.
func (s *Session) Suggestions() []Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.suggestions)
}

// Loading reports whether a request is in flight.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Dismiss hides one suggestion by name.
func (s *Session) Dismiss(name string) {
	s.mu.Lock()
	before := len(s.suggestions)
	s.suggestions = slices.DeleteFunc(s.suggestions, func(suggestion Suggestion) bool {
		return suggestion.Name == name
	})
	if len(s.suggestions) == before {
		s.mu.Unlock()
		return
	}
	notify := s.notifyLocked()
	s.mu.Unlock()
	notify()
}

// DismissAll hides every suggestion.
func (s *Session) DismissAll() {
	s.mu.Lock()
	notify := s.clearLocked()
	s.mu.Unlock()
	notify()
}

// Close aborts pending work. The session ignores further updates.
func (s *Session) Close() {
	s.debounce.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.abortLocked()
	s.stopExpiryLocked()
	s.loading = false
}

func (s *Session) abortLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
}

func (s *Session) stopExpiryLocked() {
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
}

func (s *Session) clearLocked() func() {
	s.stopExpiryLocked()
	s.suggestions = []Suggestion{}
	return s.notifyLocked()
}

func (s *Session) notifyLocked() func() {
	fn := s.onChange
	if fn == nil {
		return func() {}
	}
	snapshot := slices.Clone(s.suggestions)
	return func() { fn(snapshot) }
}
