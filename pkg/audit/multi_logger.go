package audit

import (
	"context"
	"errors"
	"fmt"
)

// MultiLogger fans each event out to several sinks. A failing sink does not
// stop delivery to the others; the errors are joined and returned.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a fan-out logger over the given sinks.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log delivers the event to every sink.
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Log(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("audit sink: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Search queries the first sink that supports searching. Write-only fan-outs
// return nil.
func (m *MultiLogger) Search(filter SearchFilter) []*Event {
	for _, l := range m.loggers {
		if s, ok := l.(interface {
			Search(filter SearchFilter) []*Event
		}); ok {
			return s.Search(filter)
		}
	}
	return nil
}

// Close closes every sink.
func (m *MultiLogger) Close() error {
	var errs []error
	for _, l := range m.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
