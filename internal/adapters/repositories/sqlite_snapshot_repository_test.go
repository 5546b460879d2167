package repositories

import (
	"context"
	"errors"
	"partner-registry/internal/domain"
	"partner-registry/internal/platform/db"
	"partner-registry/internal/ports"
	"testing"
)

var _ ports.SnapshotRepository = (*SqliteSnapshotRepository)(nil)

func newRepo(t *testing.T) *SqliteSnapshotRepository {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := InitSchema(ctx, conn); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	// second call must be a no-op
	if err := InitSchema(ctx, conn); err != nil {
		t.Fatalf("init schema twice: %v", err)
	}
	return NewSqliteSnapshotRepository(conn)
}

func sampleRegistry() *domain.Registry {
	reg := domain.NewRegistry([]string{"CHAMNHA", "HEAT"})
	reg.Upsert(&domain.PartnerRecord{
		Institution: "Karolinska Institutet",
		City:        "Stockholm",
		Country:     "Sweden",
		Projects:    map[string]bool{"HEAT": true},
		Coordinates: &domain.Coordinates{Lat: 59.348333, Lon: 18.023611},
	})
	return reg
}

func TestSnapshotSaveLatestRestore(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	if _, err := repo.Latest(ctx); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("Latest on empty store err = %v, want ErrNoSnapshot", err)
	}

	reg := sampleRegistry()
	first, err := repo.SaveSnapshot(ctx, "run-1", "before patches", reg)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	reg.DropProject("HEAT")
	second, err := repo.SaveSnapshot(ctx, "run-1", "after patches", reg)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if second.Version <= first.Version {
		t.Fatalf("versions not increasing: %d then %d", first.Version, second.Version)
	}

	latest, err := repo.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Version != second.Version || latest.Note != "after patches" {
		t.Fatalf("latest = %d %q, want %d %q", latest.Version, latest.Note, second.Version, "after patches")
	}

	// the dropped project is recoverable from the earlier version
	old, err := repo.Get(ctx, first.Version)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	restored, err := Restore(old, nil)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !restored.Equal(sampleRegistry()) {
		t.Fatalf("restored registry differs from the saved one")
	}

	// the later version keeps HEAT dropped even against a catalog naming it
	dropped, err := Restore(latest, domain.DefaultCatalog())
	if err != nil {
		t.Fatalf("restore latest: %v", err)
	}
	if dropped.HasProject("HEAT") {
		t.Fatalf("restored projects = %v, HEAT was dropped", dropped.Projects)
	}
	if !dropped.HasProject("GHAP") {
		t.Fatalf("restored projects = %v, want catalog project GHAP", dropped.Projects)
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
}

func TestPatchLogOrder(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	entries := []ports.PatchLogEntry{
		{RunID: "run-2", Seq: 0, Op: "set-membership", Payload: `{"op":"set-membership"}`, Changed: true},
		{RunID: "other", Seq: 0, Op: "drop-project", Payload: `{}`, Changed: true},
		{RunID: "run-2", Seq: 1, Op: "rename-institution", Payload: `{"op":"rename-institution"}`, Changed: false},
	}
	if err := repo.AppendPatchLog(ctx, entries); err != nil {
		t.Fatalf("append: %v", err)
	}
	// a replayed pass under the same run id is appended, not rejected
	if err := repo.AppendPatchLog(ctx, entries[:1]); err != nil {
		t.Fatalf("append replay: %v", err)
	}

	got, err := repo.PatchLog(ctx, "run-2")
	if err != nil {
		t.Fatalf("patch log: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Op != "set-membership" || !got[0].Changed {
		t.Errorf("got[0] = %+v, want changed set-membership", got[0])
	}
	if got[1].Op != "rename-institution" || got[1].Changed {
		t.Errorf("got[1] = %+v, want unchanged rename-institution", got[1])
	}
}
