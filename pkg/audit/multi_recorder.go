package audit

import (
	"context"
	"errors"
)

// MultiRecorder fans an entry out to several sinks in order. Every sink is
// attempted even when an earlier one fails; the failures are joined.
type MultiRecorder struct {
	recorders []Recorder
}

// NewMultiRecorder creates a recorder writing to all given sinks
func NewMultiRecorder(recorders ...Recorder) *MultiRecorder {
	return &MultiRecorder{recorders: recorders}
}

// Record writes the entry to every sink
func (m *MultiRecorder) Record(ctx context.Context, entry *Entry) error {
	var errs []error
	for _, r := range m.recorders {
		if err := r.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink
func (m *MultiRecorder) Close() error {
	var errs []error
	for _, r := range m.recorders {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
