package memory

import (
	"context"
	"sync"

	"github.com/artpar/apimeter/ports"
)

// SinkEntry is one recorded event.
type SinkEntry struct {
	Kind    string
	Payload any
}

// EventSink records events in memory. Used in tests to assert emissions.
type EventSink struct {
	mu      sync.Mutex
	entries []SinkEntry
}

// NewEventSink creates an empty in-memory event sink.
func NewEventSink() *EventSink {
	return &EventSink{}
}

// Store appends the event.
func (s *EventSink) Store(_ context.Context, kind string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, SinkEntry{Kind: kind, Payload: payload})
	return nil
}

// Events returns a copy of everything stored so far.
func (s *EventSink) Events() []SinkEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SinkEntry(nil), s.entries...)
}

// Ensure interface compliance.
var _ ports.EventSink = (*EventSink)(nil)
