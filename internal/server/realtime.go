package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/journal"
)

const (
	// RealtimeEventEntriesChanged announces that a user's journal was mutated.
	RealtimeEventEntriesChanged = "entries-changed"
	realtimeEventHeartbeat      = "heartbeat"
	realtimeEventFrame          = "frame"
	realtimeEventSettled        = "settled"
	realtimeEventError          = "error"
	realtimeSourceBackend       = "anchor-backend"
	realtimeHeartbeatInterval   = 15 * time.Second
	realtimeBufferSize          = 16
)

// RealtimeMessage is a per-user change notification. An empty EntryIDs means
// the change is not tied to specific entries (tag or reference edits).
type RealtimeMessage struct {
	UserID    journal.UserID
	EventType string
	EntryIDs  []string
	Timestamp time.Time
}

// RealtimeDispatcher fans change notifications out to the subscribers of each user.
// A subscriber whose buffer is full has its oldest pending notice folded into
// the new one, so publishers never block and no touched entry id is lost.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[journal.UserID]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id     int64
	mu     sync.Mutex
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[journal.UserID]map[int64]*realtimeSubscriber),
		bufferSize:  realtimeBufferSize,
		clock:       time.Now,
	}
}

// Subscribe registers a stream for the user until ctx ends or cleanup is called.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID journal.UserID) (<-chan RealtimeMessage, func()) {
	if userID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := d.register(userID)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregister(userID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// PublishEntriesChanged stamps and delivers an entries-changed notice.
func (d *RealtimeDispatcher) PublishEntriesChanged(userID journal.UserID, entryIDs ...string) {
	d.Publish(RealtimeMessage{
		UserID:    userID,
		EventType: RealtimeEventEntriesChanged,
		EntryIDs:  entryIDs,
		Timestamp: d.clock().UTC(),
	})
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.UserID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := make([]*realtimeSubscriber, 0, len(d.subscribers[message.UserID]))
	for _, subscriber := range d.subscribers[message.UserID] {
		subscribers = append(subscribers, subscriber)
	}
	d.mu.RUnlock()

	for _, subscriber := range subscribers {
		subscriber.deliver(message)
	}
}

// SubscriberCount reports the live subscriptions held for a user.
func (d *RealtimeDispatcher) SubscriberCount(userID journal.UserID) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[userID])
}

func (d *RealtimeDispatcher) register(userID journal.UserID) *realtimeSubscriber {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	subscriber := &realtimeSubscriber{
		id:     d.nextID,
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[userID][subscriber.id] = subscriber
	return subscriber
}

func (d *RealtimeDispatcher) unregister(userID journal.UserID, subscriberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subscribers := d.subscribers[userID]
	if subscribers == nil {
		return
	}
	delete(subscribers, subscriberID)
	if len(subscribers) == 0 {
		delete(d.subscribers, userID)
	}
}

func (s *realtimeSubscriber) deliver(message RealtimeMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case s.stream <- message:
		return
	default:
	}
	select {
	case pending := <-s.stream:
		message = coalesce(pending, message)
	default:
	}
	select {
	case s.stream <- message:
	default:
	}
}

// coalesce folds an older notice into a newer one of the same kind. Differing
// kinds keep only the newer notice.
func coalesce(older, newer RealtimeMessage) RealtimeMessage {
	if older.EventType != newer.EventType {
		return newer
	}
	if len(older.EntryIDs) == 0 || len(newer.EntryIDs) == 0 {
		newer.EntryIDs = nil
		return newer
	}
	seen := make(map[string]struct{}, len(older.EntryIDs)+len(newer.EntryIDs))
	merged := make([]string, 0, len(older.EntryIDs)+len(newer.EntryIDs))
	for _, ids := range [][]string{older.EntryIDs, newer.EntryIDs} {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			merged = append(merged, id)
		}
	}
	newer.EntryIDs = merged
	return newer
}
