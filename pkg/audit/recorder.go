package audit

import (
	"context"

	"github.com/krama-desa/iuran/pkg/contextkeys"
)

// Recorder is an audit sink
type Recorder interface {
	// Record appends an entry. Implementations must not mutate earlier entries.
	Record(ctx context.Context, entry *Entry) error

	// Close flushes any buffered entries
	Close() error
}

// WithRequestMeta adds request metadata to the context
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, contextkeys.RequestMetaKey, meta)
}

// RequestMetaFromContext retrieves request metadata; the zero value is returned
// for contexts that did not pass through the middleware (batch jobs, tests).
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if meta, ok := ctx.Value(contextkeys.RequestMetaKey).(RequestMeta); ok {
		return meta
	}
	return RequestMeta{}
}

// noOpRecorder discards entries (used when no sink is configured)
type noOpRecorder struct{}

func (noOpRecorder) Record(ctx context.Context, entry *Entry) error { return nil }

func (noOpRecorder) Close() error { return nil }

// NopRecorder returns a recorder that discards every entry
func NopRecorder() Recorder {
	return noOpRecorder{}
}
