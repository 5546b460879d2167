package domain

import (
	"fmt"
	"strings"
)

// Project describes one recognized research-collaboration programme.
type Project struct {
	ID          string `yaml:"id" json:"id"`
	DisplayName string `yaml:"display_name" json:"display_name"`
	Color       string `yaml:"color" json:"color"`
}

// ProjectCatalog is the versioned list of recognized projects shared by the
// store, the validator and every renderer.
type ProjectCatalog struct {
	Version  int       `yaml:"version" json:"version"`
	Projects []Project `yaml:"projects" json:"projects"`
}

// DefaultCatalog returns the built-in catalog. HIGH was folded into
// HIGH_Horizons in version 2.
func DefaultCatalog() *ProjectCatalog {
	return &ProjectCatalog{
		Version: 2,
		Projects: []Project{
			{ID: "CHAMNHA", DisplayName: "CHAMNHA", Color: "#0077BB"},
			{ID: "HEAT", DisplayName: "HE²AT Center", Color: "#EE3377"},
			{ID: "ENBEL", DisplayName: "ENBEL", Color: "#009988"},
			{ID: "GHAP", DisplayName: "GHAP", Color: "#CC3311"},
			{ID: "HAPI", DisplayName: "HAPI", Color: "#33BBEE"},
			{ID: "BioHEAT", DisplayName: "BioHEAT", Color: "#EE7733"},
			{ID: "HIGH_Horizons", DisplayName: "HIGH Horizons", Color: "#555555"},
		},
	}
}

// IDs returns project identifiers in catalog order.
func (c *ProjectCatalog) IDs() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Projects))
	for _, p := range c.Projects {
		out = append(out, p.ID)
	}
	return out
}

// Lookup returns the project with the given id.
func (c *ProjectCatalog) Lookup(id string) (Project, bool) {
	if c == nil {
		return Project{}, false
	}
	for _, p := range c.Projects {
		if p.ID == id {
			return p, true
		}
	}
	return Project{}, false
}

// Match resolves a header case-insensitively to a catalog id.
func (c *ProjectCatalog) Match(header string) (string, bool) {
	if c == nil {
		return "", false
	}
	for _, p := range c.Projects {
		if strings.EqualFold(p.ID, header) {
			return p.ID, true
		}
	}
	return "", false
}

// Validate checks that ids are non-empty and unique.
func (c *ProjectCatalog) Validate() error {
	seen := make(map[string]struct{}, len(c.Projects))
	for i, p := range c.Projects {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return fmt.Errorf("project catalog: entry %d: empty id", i+1)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("project catalog: duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
