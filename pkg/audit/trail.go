package audit

import (
	"context"
	"encoding/json"

	"github.com/jonboulle/clockwork"
	"github.com/krama-desa/iuran/pkg/rbac"
	"github.com/sirupsen/logrus"
)

// Trail is what domain services use to record mutations. Recording is
// best-effort: a failed write is logged and reported to the failure hook, and
// never returned to the caller, so the domain write it describes stands.
type Trail struct {
	recorder  Recorder
	log       logrus.FieldLogger
	clock     clockwork.Clock
	onFailure func(entry *Entry, err error)
}

// TrailOption configures a Trail
type TrailOption func(*Trail)

// WithFailureHook registers a callback invoked whenever an entry cannot be written
func WithFailureHook(fn func(entry *Entry, err error)) TrailOption {
	return func(t *Trail) {
		t.onFailure = fn
	}
}

// WithClock overrides the clock used to timestamp entries
func WithClock(clock clockwork.Clock) TrailOption {
	return func(t *Trail) {
		t.clock = clock
	}
}

// NewTrail creates a trail writing to recorder
func NewTrail(recorder Recorder, log logrus.FieldLogger, opts ...TrailOption) *Trail {
	if recorder == nil {
		recorder = NopRecorder()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	t := &Trail{
		recorder: recorder,
		log:      log,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record writes one entry for a successful mutation. oldValues must be nil for
// creates; newValues is always set (use Deleted for deletions).
func (t *Trail) Record(ctx context.Context, actor rbac.Actor, action Action, targetType TargetType, targetID string, oldValues, newValues any) {
	entry := &Entry{
		Timestamp:  t.clock.Now().UTC(),
		ActorID:    actor.UserID,
		ActorName:  actor.Name,
		ActorRole:  string(actor.Role),
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Request:    RequestMetaFromContext(ctx),
	}

	var err error
	if entry.OldValues, err = snapshot(oldValues); err != nil {
		t.fail(entry, err)
		return
	}
	if entry.NewValues, err = snapshot(newValues); err != nil {
		t.fail(entry, err)
		return
	}

	// The caller's context may already be cancelled once the domain write has
	// committed; the entry is still worth writing.
	if err := t.recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		t.fail(entry, err)
	}
}

func (t *Trail) fail(entry *Entry, err error) {
	t.log.WithFields(logrus.Fields{
		"audit_action": entry.Action,
		"target_type":  entry.TargetType,
		"target_id":    entry.TargetID,
		"actor_id":     entry.ActorID,
	}).WithError(err).Warn("audit entry not recorded")

	if t.onFailure != nil {
		t.onFailure(entry, err)
	}
}

// Close closes the underlying recorder
func (t *Trail) Close() error {
	return t.recorder.Close()
}

func snapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
