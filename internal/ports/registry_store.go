package ports

import (
	"context"
	"partner-registry/internal/domain"
	"time"
)

// Port: the persisted registry table.
type RegistryStore interface {
	Load(ctx context.Context) (*domain.Registry, error)
	Save(ctx context.Context, reg *domain.Registry) error
}

// Snapshot is one saved version of the registry.
type Snapshot struct {
	Version   int64
	RunID     string
	CreatedAt time.Time
	Note      string
	Content   string
	Projects  *domain.ProjectSet // nil for snapshots saved without one
}

// PatchLogEntry records one applied patch operation.
type PatchLogEntry struct {
	RunID     string
	Seq       int
	Op        string
	Payload   string
	Changed   bool
	AppliedAt time.Time
}

// Port: versioned history of registry snapshots and applied patches.
type SnapshotRepository interface {
	SaveSnapshot(ctx context.Context, runID, note string, reg *domain.Registry) (Snapshot, error)
	Latest(ctx context.Context) (Snapshot, error)
	Get(ctx context.Context, version int64) (Snapshot, error)
	List(ctx context.Context) ([]Snapshot, error)
	AppendPatchLog(ctx context.Context, entries []PatchLogEntry) error
	PatchLog(ctx context.Context, runID string) ([]PatchLogEntry, error)
}
