package filter

import (
	"slices"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/debounce"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/journal"
)

// SearchDebounce is the input quiet window before a query settles.
const SearchDebounce = 300 * time.Millisecond

// Session owns the filter state of one browsing session. Typed queries settle
// after SearchDebounce; every other predicate applies immediately.
type Session struct {
	mu       sync.Mutex
	live     Spec
	settled  Spec
	debounce *debounce.Debouncer
	onSettle func(Spec)
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithDebounce overrides the query debounce window.
func WithDebounce(window time.Duration) SessionOption {
	return func(s *Session) {
		s.debounce = debounce.New(window)
	}
}

// WithLocation sets the location used for date range boundaries.
func WithLocation(location *time.Location) SessionOption {
	return func(s *Session) {
		s.live.Location = location
		s.settled.Location = location
	}
}

// NewSession constructs a Session with no active predicates.
func NewSession(options ...SessionOption) *Session {
	session := &Session{debounce: debounce.New(SearchDebounce)}
	for _, option := range options {
		option(session)
	}
	return session
}

// OnSettle registers a callback invoked with the settled spec after every change.
func (s *Session) OnSettle(callback func(Spec)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSettle = callback
}

// SetQuery records the typed query; it settles after the debounce window.
func (s *Session) SetQuery(query string) {
	s.mu.Lock()
	s.live.Query = query
	s.mu.Unlock()

	s.debounce.Trigger(func() {
		s.mu.Lock()
		s.settled.Query = s.live.Query
		s.mu.Unlock()
		s.notify()
	})
}

// ToggleTag selects or deselects a tag.
func (s *Session) ToggleTag(tagID string) {
	s.update(func(spec *Spec) { spec.TagIDs = toggle(spec.TagIDs, tagID) })
}

// ToggleType selects or deselects an entry type.
func (s *Session) ToggleType(entryType journal.EntryType) {
	s.update(func(spec *Spec) { spec.Types = toggle(spec.Types, entryType) })
}

// ToggleStatus selects or deselects a status.
func (s *Session) ToggleStatus(status string) {
	s.update(func(spec *Spec) { spec.Statuses = toggle(spec.Statuses, status) })
}

// SetDateRange replaces the date range.
func (s *Session) SetDateRange(dateRange DateRange) {
	s.update(func(spec *Spec) { spec.DateRange = dateRange })
}

// Clear resets every predicate and drops a pending query.
func (s *Session) Clear() {
	s.debounce.Cancel()
	s.mu.Lock()
	location := s.live.Location
	s.live = Spec{Location: location}
	s.settled = Spec{Location: location}
	s.mu.Unlock()
	s.notify()
}

// Spec returns the settled spec.
func (s *Session) Spec() Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSpec(s.settled)
}

// Live returns the spec including a query that has not settled yet.
func (s *Session) Live() Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSpec(s.live)
}

// Apply filters entries with the settled spec.
func (s *Session) Apply(entries []journal.Entry, tagIndex journal.TagIndex) []journal.Entry {
	return Apply(entries, s.Spec(), tagIndex)
}

// Close stops the debouncer.
func (s *Session) Close() {
	s.debounce.Stop()
}

func (s *Session) update(mutate func(*Spec)) {
	s.mu.Lock()
	mutate(&s.live)
	query := s.settled.Query
	s.settled = cloneSpec(s.live)
	s.settled.Query = query
	s.mu.Unlock()
	s.notify()
}

func (s *Session) notify() {
	s.mu.Lock()
	callback := s.onSettle
	settled := cloneSpec(s.settled)
	s.mu.Unlock()
	if callback != nil {
		callback(settled)
	}
}

func cloneSpec(spec Spec) Spec {
	spec.TagIDs = slices.Clone(spec.TagIDs)
	spec.Types = slices.Clone(spec.Types)
	spec.Statuses = slices.Clone(spec.Statuses)
	return spec
}

func toggle[T comparable](values []T, value T) []T {
	if index := slices.Index(values, value); index >= 0 {
		return slices.Delete(slices.Clone(values), index, index+1)
	}
	return append(slices.Clone(values), value)
}
