package events

import (
	"context"
	"sync"
)

// RecordingSink accumulates published events for assertions in tests.
type RecordingSink struct {
	mu     sync.Mutex
	events []Event
}

// NewRecordingSink constructs an empty RecordingSink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Publish(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *RecordingSink) Close() {}

// Events returns a copy of every event published so far.
func (s *RecordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
