package audit

import (
	"context"
	"errors"
	"fmt"
)

// MultiEmitter fans an event out to several sinks in order. A failing sink
// does not stop the others; all errors are returned joined.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates a fan-out emitter
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit sends event to every sink
func (m *MultiEmitter) Emit(ctx context.Context, event *Event) error {
	var errs []error
	for _, emitter := range m.emitters {
		if err := emitter.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all sinks
func (m *MultiEmitter) Close() error {
	var errs []error
	for _, emitter := range m.emitters {
		if err := emitter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close audit sink: %w", err))
		}
	}
	return errors.Join(errs...)
}
