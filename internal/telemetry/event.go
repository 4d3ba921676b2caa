// Package telemetry captures feed interaction events: a client-side batching
// tracker with bounded requeue on delivery failure, plus append-only event
// persistence for the ingestion side.
package telemetry

import (
	"context"
	"sync"
	"time"
)

// EventType classifies a feed interaction.
type EventType string

const (
	EventImpression EventType = "impression"
	EventClick      EventType = "click"
	EventLike       EventType = "like"
	EventReply      EventType = "reply"
	EventShare      EventType = "share"
	EventDwell      EventType = "dwell"
	EventHide       EventType = "hide"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventImpression, EventClick, EventLike, EventReply, EventShare, EventDwell, EventHide:
		return true
	}
	return false
}

// Event is one append-only telemetry record. Events are write-once; there
// is no update or delete path.
type Event struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id,omitempty"`
	Type      EventType `json:"type"`

	Position     int               `json:"position"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	ExperimentID string            `json:"experiment_id,omitempty"`
	Variant      string            `json:"variant,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// EventStore persists event batches append-only.
type EventStore interface {
	Append(ctx context.Context, events []Event) error
}

// InMemoryEventStore collects events in a slice. Thread-safe via Mutex.
type InMemoryEventStore struct {
	mu     sync.Mutex
	events []Event
}

// NewInMemoryEventStore creates an empty event store.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{}
}

// Append records the batch.
func (s *InMemoryEventStore) Append(ctx context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

// Events returns a copy of everything recorded so far.
func (s *InMemoryEventStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}
