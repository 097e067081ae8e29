package audit

import (
	"context"
	"sync"
)

// MemorySink is an in-memory Sink for tests. It records entries in order and
// lets tests assert exact event sequences.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry

	// FailWith, when set, is returned by Record to simulate sink failure.
	FailWith error
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record appends the entry, or fails if FailWith is set.
func (s *MemorySink) Record(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.entries = append(s.entries, entry)
	return nil
}

// Entries returns a copy of all recorded entries in append order.
func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// ByType returns the recorded entries with the given event type.
func (s *MemorySink) ByType(t EventType) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, e := range s.entries {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset discards all recorded entries.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}
