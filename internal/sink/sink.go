// Package sink forwards analytics events to their destinations.
//
// Delivery is best effort: a failing sink is logged and the event dropped,
// nothing is retried.
package sink

import (
	"context"
	"errors"

	"github.com/ajsharma/form_tail/internal/events"
)

// Sink receives analytics events.
type Sink interface {
	Send(ctx context.Context, ev *events.Event) error
	Close() error
}

// Multi fans an event out to every sink it holds.
type Multi struct {
	sinks []Sink
}

// NewMulti creates a fan-out sink. Nil entries are skipped.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Add appends another sink.
func (m *Multi) Add(s Sink) {
	if s != nil {
		m.sinks = append(m.sinks, s)
	}
}

// Len returns the number of sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Send delivers ev to every sink, continuing past failures. The returned
// error joins every sink error.
func (m *Multi) Send(ctx context.Context, ev *events.Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Send(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
