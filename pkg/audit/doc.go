// Package audit records who changed what in the dues engine.
//
// # Overview
//
// Every successful create, update or delete of a resident, membership tier,
// invoice or payment produces exactly one Entry with the acting user, the
// target, and JSON snapshots of the record before and after the change. Old
// values are absent for creates; deletions carry the last-known record as old
// values and a Tombstone as new values.
//
// Recording is best-effort. Services call Trail.Record after their own write
// has succeeded; a failing sink is logged and counted but never undoes the
// domain change.
//
// # Sinks
//
//	DBRecorder     - audit_logs table (postgres or sqlite)
//	LogRecorder    - structured log lines via logrus
//	MemoryRecorder - in-process, for tests and the memory deployment mode
//	MultiRecorder  - fan-out to several sinks
//
// # Usage Example
//
//	trail := audit.NewTrail(audit.NewMultiRecorder(dbRec, audit.NewLogRecorder(log)), log)
//	trail.Record(ctx, actor, audit.ActionUpdate, audit.TargetInvoice, "42", before, after)
//
// Displaying the trail is left to consumers of the audit_logs table.
package audit
