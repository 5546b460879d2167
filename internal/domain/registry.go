package domain

import "slices"

// Registry is the ordered collection of partner records.
//
// Projects is the recognized project set in display order. Dropped lists ids
// removed by DropProject so that a catalog never brings them back. Columns
// remembers the persisted column order so that a load/save cycle reproduces
// the source table. Records are looked up by exact Institution match; no fuzzy
// matching is done.
type Registry struct {
	Projects []string
	Dropped  []string
	Columns  []string
	Records  []*PartnerRecord
}

// NewRegistry returns an empty registry recognizing the given projects.
func NewRegistry(projects []string) *Registry {
	return &Registry{Projects: slices.Clone(projects)}
}

// Len returns the number of records.
func (g *Registry) Len() int { return len(g.Records) }

// Get returns the record whose Institution equals name exactly.
func (g *Registry) Get(name string) (*PartnerRecord, bool) {
	i := g.indexOf(name)
	if i < 0 {
		return nil, false
	}
	return g.Records[i], true
}

// Upsert replaces the record with the same Institution or appends it.
// Membership for recognized projects absent from rec defaults to false.
func (g *Registry) Upsert(rec *PartnerRecord) {
	if rec.Projects == nil {
		rec.Projects = map[string]bool{}
	}
	for _, p := range g.Projects {
		if _, ok := rec.Projects[p]; !ok {
			rec.Projects[p] = false
		}
	}

	if i := g.indexOf(rec.Institution); i >= 0 {
		g.Records[i] = rec
		return
	}
	g.Records = append(g.Records, rec)
}

// HasProject reports whether project is in the recognized set.
func (g *Registry) HasProject(project string) bool {
	return slices.Contains(g.Projects, project)
}

// AddProject appends project to the recognized set and sets membership to false
// on every existing record. It reports whether anything changed.
func (g *Registry) AddProject(project string) bool {
	if g.HasProject(project) {
		return false
	}
	g.Projects = append(g.Projects, project)
	if i := slices.Index(g.Dropped, project); i >= 0 {
		g.Dropped = slices.Delete(g.Dropped, i, i+1)
	}
	for _, r := range g.Records {
		if r.Projects == nil {
			r.Projects = map[string]bool{}
		}
		if _, ok := r.Projects[project]; !ok {
			r.Projects[project] = false
		}
	}
	return true
}

// DropProject removes project from the recognized set, from every record and
// from the persisted column order. Dropped values are not recoverable.
func (g *Registry) DropProject(project string) bool {
	changed := false
	if i := slices.Index(g.Projects, project); i >= 0 {
		g.Projects = slices.Delete(g.Projects, i, i+1)
		changed = true
	}
	for _, r := range g.Records {
		if _, ok := r.Projects[project]; ok {
			delete(r.Projects, project)
			changed = true
		}
	}
	if i := slices.Index(g.Columns, project); i >= 0 {
		g.Columns = slices.Delete(g.Columns, i, i+1)
	}
	if changed && !slices.Contains(g.Dropped, project) {
		g.Dropped = append(g.Dropped, project)
	}
	return changed
}

// Clone returns a deep copy; mutating the copy never affects g.
func (g *Registry) Clone() *Registry {
	c := &Registry{
		Projects: slices.Clone(g.Projects),
		Dropped:  slices.Clone(g.Dropped),
		Columns:  slices.Clone(g.Columns),
		Records:  make([]*PartnerRecord, 0, len(g.Records)),
	}
	for _, r := range g.Records {
		c.Records = append(c.Records, r.Clone())
	}
	return c
}

// Equal reports whether two registries hold equal records in the same order
// and recognize the same projects.
func (g *Registry) Equal(o *Registry) bool {
	if !slices.Equal(g.Projects, o.Projects) || len(g.Records) != len(o.Records) {
		return false
	}
	for i := range g.Records {
		if !g.Records[i].Equal(o.Records[i]) {
			return false
		}
		if !slices.Equal(g.Records[i].FormerNames, o.Records[i].FormerNames) {
			return false
		}
	}
	return true
}

func (g *Registry) indexOf(name string) int {
	for i, r := range g.Records {
		if r.Institution == name {
			return i
		}
	}
	return -1
}

// ProjectSet is the persisted form of a registry's recognized and dropped
// projects.
type ProjectSet struct {
	Recognized []string `yaml:"recognized" json:"recognized"`
	Dropped    []string `yaml:"dropped,omitempty" json:"dropped,omitempty"`
}

// ProjectSet returns the recognized and dropped ids of g.
func (g *Registry) ProjectSet() ProjectSet {
	return ProjectSet{Recognized: slices.Clone(g.Projects), Dropped: slices.Clone(g.Dropped)}
}

// Resolve returns the recognized set followed by catalog projects that are
// neither recognized nor dropped.
func (s ProjectSet) Resolve(catalog *ProjectCatalog) []string {
	out := slices.Clone(s.Recognized)
	for _, id := range catalog.IDs() {
		if !slices.Contains(out, id) && !slices.Contains(s.Dropped, id) {
			out = append(out, id)
		}
	}
	return out
}
