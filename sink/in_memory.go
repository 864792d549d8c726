// Package sink houses concrete implementations of the core.EventSink
// contract. The interface itself lives in the core package to centralize
// domain contracts; keeping only implementations here prevents higher level
// packages from depending on concrete delivery mechanisms.
//
// Add additional backends (WebSocket fan-out, message broker, ...) in
// sub-packages without changing any calling code; only the wiring layer
// decides which implementation to instantiate.
package sink

import (
	"sync"
	"time"

	"github.com/hupe1980/agentcore/core"
)

// Entry is one delivered event as observed by the in-memory sink.
type Entry struct {
	Type      core.EventType
	Payload   core.EventPayload
	Timestamp time.Time
}

// InMemory is a volatile EventSink buffering events per user. It is safe for
// concurrent access and best suited for tests or ephemeral demo servers.
// Returned slices are copies to prevent external mutation of internal state.
type InMemory struct {
	mu     sync.RWMutex
	byUser map[string][]Entry
}

// NewInMemory constructs an empty in-memory event sink.
func NewInMemory() *InMemory {
	return &InMemory{byUser: make(map[string][]Entry)}
}

// Emit buffers an event under the given user id.
func (s *InMemory) Emit(userID string, eventType core.EventType, payload core.EventPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[userID] = append(s.byUser[userID], Entry{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// Events returns a copy of everything delivered for one user, in order.
func (s *InMemory) Events(userID string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.byUser[userID]...)
}

// Users returns the ids of all users that received at least one event.
func (s *InMemory) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]string, 0, len(s.byUser))
	for u := range s.byUser {
		users = append(users, u)
	}
	return users
}

// Reset discards all buffered events.
func (s *InMemory) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser = make(map[string][]Entry)
}
