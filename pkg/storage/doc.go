// Package storage selects the persistence backend of the dues engine.
//
// # Backends
//
// memory: process-local maps, for trials and tests. Nothing survives a restart.
//
// sqlite: a single file through mattn/go-sqlite3, for a single banjar office.
// Foreign keys are enforced and all writes go through one connection.
//
// postgres: lib/pq with optional read replicas. List queries go to a replica,
// everything else to the primary. Bulk create-if-absent takes a
// transaction-scoped advisory lock per resident.
//
//	store, err := storage.Open(ctx, cfg.Storage, loc, log)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
// # Redis
//
// NewRedisClient connects the optional redis used to share bulk billing
// previews between API replicas. Without it previews live in process memory
// and a commit must reach the replica that built the preview.
package storage
