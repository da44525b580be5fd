package audit

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// LogRecorder writes entries as structured log lines. It is meant to sit next
// to a durable sink inside a MultiRecorder so the trail also reaches the log
// pipeline.
type LogRecorder struct {
	log    logrus.FieldLogger
	nextID atomic.Int64
}

// NewLogRecorder creates a recorder that writes through log
func NewLogRecorder(log logrus.FieldLogger) *LogRecorder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogRecorder{log: log}
}

// Record logs the entry at info level
func (l *LogRecorder) Record(ctx context.Context, entry *Entry) error {
	if entry.ID == 0 {
		entry.ID = l.nextID.Add(1)
	}

	fields := logrus.Fields{
		"audit":       true,
		"action":      entry.Action,
		"target_type": entry.TargetType,
		"target_id":   entry.TargetID,
		"actor_id":    entry.ActorID,
		"actor_role":  entry.ActorRole,
	}
	if entry.Request.RequestID != "" {
		fields["request_id"] = entry.Request.RequestID
	}
	if len(entry.OldValues) > 0 {
		fields["old_values"] = string(entry.OldValues)
	}
	if len(entry.NewValues) > 0 {
		fields["new_values"] = string(entry.NewValues)
	}

	l.log.WithFields(fields).Info("audit")
	return nil
}

// Close is a no-op
func (l *LogRecorder) Close() error {
	return nil
}
