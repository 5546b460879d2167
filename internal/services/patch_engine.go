package services

import (
	"fmt"
	"partner-registry/internal/domain"
	"partner-registry/internal/platform/obs"
	"slices"
)

// PatchResult records the outcome of one operation in a sequence.
type PatchResult struct {
	Index   int
	Op      domain.PatchOperation
	Changed bool
}

// PatchReport lists the operations applied by Apply, in order.
type PatchReport struct {
	Results []PatchResult
}

// Changed returns the number of operations that modified the registry.
func (r PatchReport) Changed() int {
	n := 0
	for _, res := range r.Results {
		if res.Changed {
			n++
		}
	}
	return n
}

// PatchSequenceError identifies the operation that halted a sequence.
type PatchSequenceError struct {
	Index int
	Op    domain.PatchOperation
	Err   error
}

func (e *PatchSequenceError) Error() string {
	return fmt.Sprintf("patch #%d %s: %v", e.Index, e.Op, e.Err)
}

func (e *PatchSequenceError) Unwrap() error { return e.Err }

// PatchEngine applies ordered sequences of corrective operations.
type PatchEngine struct {
	metrics *obs.Metrics
}

func NewPatchEngine(metrics *obs.Metrics) *PatchEngine {
	return &PatchEngine{metrics: metrics}
}

// Apply runs ops in order against a copy of reg. The first failing operation
// halts the sequence: reg is returned unchanged together with a
// *PatchSequenceError. On success the patched copy is returned.
//
// Every operation is idempotent, so a sequence may be replayed safely.
func (e *PatchEngine) Apply(reg *domain.Registry, ops []domain.PatchOperation) (*domain.Registry, PatchReport, error) {
	work := reg.Clone()
	report := PatchReport{Results: make([]PatchResult, 0, len(ops))}

	for i, op := range ops {
		changed, err := e.ApplyOne(work, op)
		if err != nil {
			return reg, report, &PatchSequenceError{Index: i, Op: op, Err: err}
		}
		report.Results = append(report.Results, PatchResult{Index: i, Op: op, Changed: changed})
	}

	return work, report, nil
}

// ApplyOne applies a single operation to reg in place and reports whether
// the registry changed. On error reg is left as it was.
func (e *PatchEngine) ApplyOne(reg *domain.Registry, op domain.PatchOperation) (changed bool, err error) {
	defer func() {
		switch {
		case err != nil:
			e.metrics.ObservePatch(string(op.Kind), "failed")
		case changed:
			e.metrics.ObservePatch(string(op.Kind), "changed")
		default:
			e.metrics.ObservePatch(string(op.Kind), "noop")
		}
	}()

	if err := op.Validate(); err != nil {
		return false, err
	}

	switch op.Kind {
	case domain.PatchSetMembership:
		return setMembership(reg, op.Institution, op.Project, *op.Value)
	case domain.PatchAddRecord:
		return addRecord(reg, op.Record)
	case domain.PatchRenameInstitution:
		return renameInstitution(reg, op.Institution, op.NewName)
	case domain.PatchReclassifyColumn:
		return reclassifyColumn(reg, op.Institution, op.FromProject, op.ToProject)
	case domain.PatchDropProject:
		return reg.DropProject(op.Project), nil
	case domain.PatchAddProject:
		return reg.AddProject(op.Project), nil
	case domain.PatchSetCoordinates:
		return setCoordinates(reg, op.Institution, domain.Coordinates{Lat: *op.Lat, Lon: *op.Lon})
	}
	return false, fmt.Errorf("unknown patch op %q", op.Kind)
}

func setMembership(reg *domain.Registry, name, project string, value bool) (bool, error) {
	rec, ok := reg.Get(name)
	if !ok {
		return false, fmt.Errorf("%w: %q", domain.ErrRecordNotFound, name)
	}
	if !reg.HasProject(project) {
		return false, fmt.Errorf("%w: %q", domain.ErrUnknownProject, project)
	}

	if cur, present := rec.Projects[project]; present && cur == value {
		return false, nil
	}
	changed := rec.Projects[project] != value
	rec.Projects[project] = value
	return changed, nil
}

func addRecord(reg *domain.Registry, spec *domain.RecordSpec) (bool, error) {
	for _, p := range spec.Projects {
		if !reg.HasProject(p) {
			return false, fmt.Errorf("%w: %q", domain.ErrUnknownProject, p)
		}
	}

	rec := spec.ToRecord()
	if rec.Coordinates != nil && !rec.Coordinates.InRange() {
		return false, fmt.Errorf("%w: %q lat=%v lon=%v", domain.ErrInvalidCoordinates, rec.Institution, rec.Coordinates.Lat, rec.Coordinates.Lon)
	}

	if existing, ok := reg.Get(rec.Institution); ok {
		if existing.Equal(rec) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %q", domain.ErrDuplicateKey, rec.Institution)
	}

	reg.Upsert(rec)
	return true, nil
}

// renameInstitution treats a rename as complete when oldName is absent and
// newName carries oldName in its lineage.
func renameInstitution(reg *domain.Registry, oldName, newName string) (bool, error) {
	if oldName == newName {
		if _, ok := reg.Get(oldName); !ok {
			return false, fmt.Errorf("%w: %q", domain.ErrRecordNotFound, oldName)
		}
		return false, nil
	}

	oldRec, hasOld := reg.Get(oldName)
	newRec, hasNew := reg.Get(newName)

	switch {
	case hasOld && hasNew:
		return false, fmt.Errorf("%w: %q already exists", domain.ErrDuplicateKey, newName)
	case !hasOld && hasNew && slices.Contains(newRec.FormerNames, oldName):
		return false, nil
	case !hasOld:
		return false, fmt.Errorf("%w: %q", domain.ErrRecordNotFound, oldName)
	}

	oldRec.FormerNames = slices.DeleteFunc(oldRec.FormerNames, func(n string) bool { return n == newName })
	if !slices.Contains(oldRec.FormerNames, oldName) {
		oldRec.FormerNames = append(oldRec.FormerNames, oldName)
	}
	oldRec.Institution = newName
	return true, nil
}

// reclassifyColumn moves a membership flag. The source may be an
// unrecognized (orphan) project; its key is removed rather than cleared.
func reclassifyColumn(reg *domain.Registry, name, from, to string) (bool, error) {
	rec, ok := reg.Get(name)
	if !ok {
		return false, fmt.Errorf("%w: %q", domain.ErrRecordNotFound, name)
	}
	if !reg.HasProject(to) {
		return false, fmt.Errorf("%w: %q", domain.ErrUnknownProject, to)
	}

	_, fromPresent := rec.Projects[from]
	fromKnown := reg.HasProject(from)

	if !rec.Projects[from] && rec.Projects[to] && (fromKnown || !fromPresent) {
		return false, nil
	}
	if !fromKnown && !fromPresent {
		return false, fmt.Errorf("%w: %q", domain.ErrUnknownProject, from)
	}

	if fromKnown {
		rec.Projects[from] = false
	} else {
		delete(rec.Projects, from)
	}
	rec.Projects[to] = true
	return true, nil
}

func setCoordinates(reg *domain.Registry, name string, c domain.Coordinates) (bool, error) {
	rec, ok := reg.Get(name)
	if !ok {
		return false, fmt.Errorf("%w: %q", domain.ErrRecordNotFound, name)
	}
	if !c.InRange() {
		return false, fmt.Errorf("%w: %q lat=%v lon=%v", domain.ErrInvalidCoordinates, name, c.Lat, c.Lon)
	}

	c = c.Rounded()
	if rec.Coordinates != nil && *rec.Coordinates == c {
		return false, nil
	}
	rec.Coordinates = &c
	return true, nil
}
