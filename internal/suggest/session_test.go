package suggest

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWait = 2 * time.Second

type changeRecorder struct {
	mu      sync.Mutex
	changes [][]Suggestion
}

func (r *changeRecorder) record(suggestions []Suggestion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, suggestions)
}

func (r *changeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

func newTestSession(provider *fakeProvider, options ...SessionOption) *Session {
	client := NewClient(ClientConfig{Provider: provider})
	options = append([]SessionOption{WithSessionDebounce(10 * time.Millisecond)}, options...)
	return NewSession(client, options...)
}

func TestSessionDebouncesUpdates(t *testing.T) {
	provider := &fakeProvider{suggestions: []Suggestion{{Name: "context", Confidence: 0.9}}}
	session := newTestSession(provider)
	defer session.Close()

	request := longRequest()
	for _, content := range []string{"Always cancel", "Always cancel contexts", "Always cancel contexts passed"} {
		request.Content = content
		session.Update(request)
	}

	require.Eventually(t, func() bool { return len(session.Suggestions()) == 1 }, testWait, time.Millisecond)
	assert.Equal(t, 1, provider.callCount())
	provider.mu.Lock()
	defer provider.mu.Unlock()
	assert.Equal(t, "Always cancel contexts passed", provider.requests[0].Content)
}

func TestSessionSkipsUnchangedInput(t *testing.T) {
	provider := &fakeProvider{suggestions: []Suggestion{{Name: "context", Confidence: 0.9}}}
	session := newTestSession(provider)
	defer session.Close()

	session.Update(longRequest())
	require.Eventually(t, func() bool { return provider.callCount() == 1 }, testWait, time.Millisecond)

	session.Update(longRequest())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, provider.callCount())
}

func TestSessionShortInputClears(t *testing.T) {
	provider := &fakeProvider{suggestions: []Suggestion{{Name: "context", Confidence: 0.9}}}
	session := newTestSession(provider)
	defer session.Close()

	session.Update(longRequest())
	require.Eventually(t, func() bool { return len(session.Suggestions()) == 1 }, testWait, time.Millisecond)

	session.Update(Request{Title: "tiny"})
	assert.Empty(t, session.Suggestions())
}

func TestSessionNewInputAbortsInFlightRequest(t *testing.T) {
	provider := &fakeProvider{
		suggestions: []Suggestion{{Name: "context", Confidence: 0.9}},
		block:       make(chan struct{}),
	}
	session := newTestSession(provider)
	defer session.Close()

	session.Update(longRequest())
	require.Eventually(t, func() bool { return provider.callCount() == 1 && session.Loading() }, testWait, time.Millisecond)

	provider.mu.Lock()
	provider.block = nil
	provider.suggestions = []Suggestion{{Name: "workers", Confidence: 0.7}}
	provider.mu.Unlock()

	next := longRequest()
	next.Content = "Workers must observe cancellation."
	session.Update(next)

	require.Eventually(t, func() bool {
		suggestions := session.Suggestions()
		return len(suggestions) == 1 && suggestions[0].Name == "workers"
	}, testWait, time.Millisecond)
	assert.Equal(t, 2, provider.callCount())
	assert.False(t, session.Loading())
}

func TestSessionResultsExpire(t *testing.T) {
	provider := &fakeProvider{suggestions: []Suggestion{{Name: "context", Confidence: 0.9}}}
	session := newTestSession(provider, WithSessionTTL(30*time.Millisecond))
	defer session.Close()

	recorder := &changeRecorder{}
	session.OnChange(recorder.record)

	session.Update(longRequest())
	require.Eventually(t, func() bool { return len(session.Suggestions()) == 1 }, testWait, time.Millisecond)
	require.Eventually(t, func() bool { return len(session.Suggestions()) == 0 }, testWait, time.Millisecond)
	assert.GreaterOrEqual(t, recorder.count(), 2)
}

func TestSessionDismiss(t *testing.T) {
	provider := &fakeProvider{suggestions: []Suggestion{
		{Name: "context", Confidence: 0.9},
		{Name: "workers", Confidence: 0.5},
	}}
	session := newTestSession(provider)
	defer session.Close()

	session.Update(longRequest())
	require.Eventually(t, func() bool { return len(session.Suggestions()) == 2 }, testWait, time.Millisecond)

	session.Dismiss("context")
	assert.Equal(t, []Suggestion{{Name: "workers", Confidence: 0.5}}, session.Suggestions())

	session.DismissAll()
	assert.Empty(t, session.Suggestions())
}

func TestSessionCloseIgnoresUpdates(t *testing.T) {
	provider := &fakeProvider{suggestions: []Suggestion{{Name: "context", Confidence: 0.9}}}
	session := newTestSession(provider)
	session.Close()

	session.Update(longRequest())
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, provider.callCount())
	assert.Empty(t, session.Suggestions())
}
