package main

import (
	"context"
	"fmt"
	"path/filepath"

	"orcasim.ai/internal/persistence/indexdb"
	"orcasim.ai/internal/persistence/snapshot"
	"orcasim.ai/internal/sim/tuning"
	"orcasim.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	world.AuditLogger
	Close() error
	UpsertTuning(tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	LatestSnapshot(ctx context.Context) (indexdb.SnapshotRecord, bool, error)
	Stats() indexdb.Stats
}

func openRuntimeIndex(worldDir, backend string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(worldDir, "index", "world.sqlite")
		return indexdb.OpenSQLite(dbPath)
	default:
		return nil, fmt.Errorf("unsupported ORCA_INDEX_BACKEND: %s", backend)
	}
}
