package repositories

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"partner-registry/internal/domain"
	"partner-registry/internal/platform/obs"
	"partner-registry/internal/ports"
	"partner-registry/internal/registry"
	"time"
)

// ErrNoSnapshot is returned when no snapshot matches the request.
var ErrNoSnapshot = errors.New("no snapshot")

// SQLite-backed implementation of the SnapshotRepository port. Snapshots hold
// the full encoded registry table, so any version can be restored with
// registry.Decode.
type SqliteSnapshotRepository struct{ DB *sql.DB }

func NewSqliteSnapshotRepository(db *sql.DB) *SqliteSnapshotRepository {
	return &SqliteSnapshotRepository{DB: db}
}

// Save the encoded registry as a new version.
func (s *SqliteSnapshotRepository) SaveSnapshot(
	ctx context.Context,
	runID string,
	note string,
	reg *domain.Registry,
) (_ ports.Snapshot, err error) {
	defer obs.Time(ctx, "snapshot.Save")(&err)

	if s.DB == nil {
		return ports.Snapshot{}, errors.New("sqlite snapshot repository: DB is nil")
	}

	var buf bytes.Buffer
	if err := registry.WriteTable(&buf, registry.Encode(reg)); err != nil {
		return ports.Snapshot{}, fmt.Errorf("save snapshot: encode registry: %w", err)
	}

	set := reg.ProjectSet()
	projects, err := json.Marshal(set)
	if err != nil {
		return ports.Snapshot{}, fmt.Errorf("save snapshot: encode project set: %w", err)
	}

	snap := ports.Snapshot{
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Note:      note,
		Content:   buf.String(),
		Projects:  &set,
	}

	res, err := s.DB.ExecContext(ctx, `
	INSERT INTO registry_snapshots (
		run_id,
		created_at,
		note,
		content,
		projects
	)
	VALUES (?, ?, ?, ?, ?);
	`, snap.RunID, snap.CreatedAt.Format(time.RFC3339Nano), snap.Note, snap.Content, string(projects))
	if err != nil {
		return ports.Snapshot{}, fmt.Errorf("save snapshot: insert: %w", err)
	}

	if snap.Version, err = res.LastInsertId(); err != nil {
		return ports.Snapshot{}, fmt.Errorf("save snapshot: last insert id: %w", err)
	}

	return snap, nil
}

// Return the most recent snapshot.
func (s *SqliteSnapshotRepository) Latest(ctx context.Context) (ports.Snapshot, error) {
	return s.queryOne(ctx, `
	SELECT version, run_id, created_at, note, content, projects
	FROM registry_snapshots
	ORDER BY version DESC
	LIMIT 1;
	`)
}

// Return the snapshot with the given version.
func (s *SqliteSnapshotRepository) Get(ctx context.Context, version int64) (ports.Snapshot, error) {
	return s.queryOne(ctx, `
	SELECT version, run_id, created_at, note, content, projects
	FROM registry_snapshots
	WHERE version = ?;
	`, version)
}

// Return all snapshots, oldest first, without their content.
func (s *SqliteSnapshotRepository) List(ctx context.Context) ([]ports.Snapshot, error) {
	if s.DB == nil {
		return nil, errors.New("sqlite snapshot repository: DB is nil")
	}

	rows, err := s.DB.QueryContext(ctx, `
	SELECT version, run_id, created_at, note
	FROM registry_snapshots
	ORDER BY version;
	`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: query registry_snapshots table: %w", err)
	}
	defer rows.Close()

	var out []ports.Snapshot
	for rows.Next() {
		var snap ports.Snapshot
		var createdAt string
		if err := rows.Scan(&snap.Version, &snap.RunID, &createdAt, &snap.Note); err != nil {
			return nil, fmt.Errorf("list snapshots: scan row: %w", err)
		}
		if snap.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("list snapshots: parse created_at: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: row iteration: %w", err)
	}

	return out, nil
}

// Append applied patch operations to the log in one transaction.
func (s *SqliteSnapshotRepository) AppendPatchLog(ctx context.Context, entries []ports.PatchLogEntry) (err error) {
	defer obs.Time(ctx, "snapshot.AppendPatchLog")(&err)

	if s.DB == nil {
		return errors.New("sqlite snapshot repository: DB is nil")
	}

	if len(entries) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append patch log: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO patch_log (
		run_id,
		seq,
		op,
		payload,
		changed,
		applied_at
	)
	VALUES (?, ?, ?, ?, ?, ?);
	`)
	if err != nil {
		return fmt.Errorf("append patch log: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		appliedAt := e.AppliedAt
		if appliedAt.IsZero() {
			appliedAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, e.RunID, e.Seq, e.Op, e.Payload, e.Changed, appliedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("append patch log: insert run_id=%s seq=%d: %w", e.RunID, e.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append patch log: commit tx: %w", err)
	}

	return nil
}

// Return the patch log of a run in the order entries were appended.
func (s *SqliteSnapshotRepository) PatchLog(ctx context.Context, runID string) ([]ports.PatchLogEntry, error) {
	if s.DB == nil {
		return nil, errors.New("sqlite snapshot repository: DB is nil")
	}

	rows, err := s.DB.QueryContext(ctx, `
	SELECT run_id, seq, op, payload, changed, applied_at
	FROM patch_log
	WHERE run_id = ?
	ORDER BY id;
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("patch log: query patch_log table: %w", err)
	}
	defer rows.Close()

	var out []ports.PatchLogEntry
	for rows.Next() {
		var e ports.PatchLogEntry
		var appliedAt string
		if err := rows.Scan(&e.RunID, &e.Seq, &e.Op, &e.Payload, &e.Changed, &appliedAt); err != nil {
			return nil, fmt.Errorf("patch log: scan row: %w", err)
		}
		if e.AppliedAt, err = time.Parse(time.RFC3339Nano, appliedAt); err != nil {
			return nil, fmt.Errorf("patch log: parse applied_at: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("patch log: row iteration: %w", err)
	}

	return out, nil
}

// Restore decodes a snapshot back into a registry, with the project set it
// was saved with.
func Restore(snap ports.Snapshot, catalog *domain.ProjectCatalog) (*domain.Registry, error) {
	t, err := registry.ReadTable(bytes.NewBufferString(snap.Content))
	if err != nil {
		return nil, fmt.Errorf("restore snapshot %d: %w", snap.Version, err)
	}
	reg, err := registry.DecodeWith(t, catalog, snap.Projects)
	if err != nil {
		return nil, fmt.Errorf("restore snapshot %d: %w", snap.Version, err)
	}
	return reg, nil
}

func (s *SqliteSnapshotRepository) queryOne(ctx context.Context, q string, args ...any) (ports.Snapshot, error) {
	if s.DB == nil {
		return ports.Snapshot{}, errors.New("sqlite snapshot repository: DB is nil")
	}

	var snap ports.Snapshot
	var createdAt, projects string
	err := s.DB.QueryRowContext(ctx, q, args...).Scan(&snap.Version, &snap.RunID, &createdAt, &snap.Note, &snap.Content, &projects)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return ports.Snapshot{}, fmt.Errorf("get snapshot: scan row: %w", err)
	}
	if snap.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return ports.Snapshot{}, fmt.Errorf("get snapshot: parse created_at: %w", err)
	}
	if projects != "" {
		snap.Projects = &domain.ProjectSet{}
		if err := json.Unmarshal([]byte(projects), snap.Projects); err != nil {
			return ports.Snapshot{}, fmt.Errorf("get snapshot: decode project set: %w", err)
		}
	}

	return snap, nil
}
