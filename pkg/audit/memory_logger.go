package audit

import (
	"context"
	"sync"
)

// defaultMemoryCapacity bounds the in-memory event buffer.
const defaultMemoryCapacity = 10000

// MemoryLogger keeps audit events in a bounded in-memory buffer. It backs
// tests and the admin API's recent-events view; durable retention belongs
// to the file logger.
type MemoryLogger struct {
	mu       sync.RWMutex
	events   []*Event
	capacity int
}

// NewMemoryLogger creates an in-memory audit logger. A non-positive
// capacity uses the default.
func NewMemoryLogger(capacity int) *MemoryLogger {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryLogger{capacity: capacity}
}

// Log appends the event, evicting the oldest entries past capacity.
func (l *MemoryLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, event)
	if len(l.events) > l.capacity {
		l.events = l.events[len(l.events)-l.capacity:]
	}
	return nil
}

// Close is a no-op for the memory logger.
func (l *MemoryLogger) Close() error { return nil }

// Search returns events matching the filter, oldest first.
func (l *MemoryLogger) Search(filter SearchFilter) []*Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*Event
	for _, e := range l.events {
		if !filter.Matches(e) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// Len returns the number of buffered events.
func (l *MemoryLogger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
