package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"partner-registry/internal/domain"
	"partner-registry/internal/ingest"
	"partner-registry/internal/platform/obs"
	"partner-registry/internal/ports"
	"partner-registry/internal/registry"
	"time"

	"github.com/google/uuid"
)

// Pipeline wires the consolidation steps around a registry store. Snapshots
// and Enricher are optional.
type Pipeline struct {
	Catalog    *domain.ProjectCatalog
	Store      ports.RegistryStore
	Snapshots  ports.SnapshotRepository
	Normalizer *ingest.Normalizer
	Enricher   *Enricher
	Validator  *Validator
	Patches    *PatchEngine
}

// WithRun tags ctx with a fresh run id unless it already has one.
func WithRun(ctx context.Context) context.Context {
	if obs.RunID(ctx) != "" {
		return ctx
	}
	return obs.WithRunID(ctx, uuid.NewString())
}

// Ingest normalizes sources and merges them, in order, into either the
// stored registry (merge=true) or an empty one recognizing the catalog.
func (p *Pipeline) Ingest(ctx context.Context, sources []registry.Table, merge bool) (_ *domain.Registry, err error) {
	ctx = WithRun(ctx)
	defer obs.Time(ctx, "pipeline.Ingest")(&err)

	base := domain.NewRegistry(p.Catalog.IDs())
	if merge {
		if base, err = p.Store.Load(ctx); err != nil {
			return nil, fmt.Errorf("ingest: load base: %w", err)
		}
	}

	for i, src := range sources {
		incoming, err := p.Normalizer.Normalize(src)
		if err != nil {
			return nil, fmt.Errorf("ingest: normalize source #%d: %w", i+1, err)
		}
		base = p.Normalizer.Merge(base, incoming)
	}

	if err := p.persist(ctx, base, "ingest"); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	return base, nil
}

// Enrich fills missing coordinates in the stored registry and saves the
// result, including a partial result when ctx is cancelled mid-run.
func (p *Pipeline) Enrich(ctx context.Context, opts EnrichOptions) (_ *domain.Registry, _ EnrichReport, err error) {
	ctx = WithRun(ctx)
	defer obs.Time(ctx, "pipeline.Enrich")(&err)

	if p.Enricher == nil {
		return nil, EnrichReport{}, errors.New("enrich: no enricher configured")
	}

	reg, err := p.Store.Load(ctx)
	if err != nil {
		return nil, EnrichReport{}, fmt.Errorf("enrich: load: %w", err)
	}

	out, report, enrichErr := p.Enricher.Enrich(ctx, reg, opts)
	if out == nil {
		return nil, report, fmt.Errorf("enrich: %w", enrichErr)
	}

	for _, f := range report.Failures {
		log.Printf("run_id=%s op=pipeline.Enrich geocode_failure=%q", obs.RunID(ctx), f.Error())
	}

	if err := p.persist(context.WithoutCancel(ctx), out, "enrich"); err != nil {
		return nil, report, fmt.Errorf("enrich: %w", err)
	}
	if enrichErr != nil {
		return out, report, fmt.Errorf("enrich: %w", enrichErr)
	}
	return out, report, nil
}

// Validate checks the stored registry.
func (p *Pipeline) Validate(ctx context.Context) (_ []domain.Finding, err error) {
	ctx = WithRun(ctx)
	defer obs.Time(ctx, "pipeline.Validate")(&err)

	reg, err := p.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("validate: load: %w", err)
	}
	return p.Validator.Check(reg), nil
}

// Patch applies ops to the stored registry as one all-or-nothing sequence.
// The pre-patch state is snapshotted first, and every applied operation is
// appended to the patch log under the run id.
func (p *Pipeline) Patch(ctx context.Context, ops []domain.PatchOperation, note string) (_ *domain.Registry, _ PatchReport, err error) {
	ctx = WithRun(ctx)
	defer obs.Time(ctx, "pipeline.Patch")(&err)

	reg, err := p.Store.Load(ctx)
	if err != nil {
		return nil, PatchReport{}, fmt.Errorf("patch: load: %w", err)
	}

	if p.Snapshots != nil {
		if _, err := p.Snapshots.SaveSnapshot(ctx, obs.RunID(ctx), "before patch: "+note, reg); err != nil {
			return nil, PatchReport{}, fmt.Errorf("patch: snapshot: %w", err)
		}
	}

	out, report, err := p.Patches.Apply(reg, ops)
	if err != nil {
		return reg, report, fmt.Errorf("patch: %w", err)
	}

	if err := p.Store.Save(ctx, out); err != nil {
		return nil, report, fmt.Errorf("patch: save: %w", err)
	}

	if p.Snapshots != nil {
		if err := p.Snapshots.AppendPatchLog(ctx, patchLog(obs.RunID(ctx), report)); err != nil {
			return nil, report, fmt.Errorf("patch: append log: %w", err)
		}
		if _, err := p.Snapshots.SaveSnapshot(ctx, obs.RunID(ctx), "patch: "+note, out); err != nil {
			return nil, report, fmt.Errorf("patch: snapshot: %w", err)
		}
	}

	return out, report, nil
}

func (p *Pipeline) persist(ctx context.Context, reg *domain.Registry, note string) error {
	if err := p.Store.Save(ctx, reg); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	if p.Snapshots != nil {
		if _, err := p.Snapshots.SaveSnapshot(ctx, obs.RunID(ctx), note, reg); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
	}
	return nil
}

func patchLog(runID string, report PatchReport) []ports.PatchLogEntry {
	now := time.Now().UTC()
	out := make([]ports.PatchLogEntry, 0, len(report.Results))
	for _, r := range report.Results {
		payload, err := json.Marshal(r.Op)
		if err != nil {
			payload = []byte(r.Op.String())
		}
		out = append(out, ports.PatchLogEntry{
			RunID:     runID,
			Seq:       r.Index,
			Op:        string(r.Op.Kind),
			Payload:   string(payload),
			Changed:   r.Changed,
			AppliedAt: now,
		})
	}
	return out
}
