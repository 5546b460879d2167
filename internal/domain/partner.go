package domain

import (
	"maps"
	"slices"
)

// PartnerRecord is one row of the registry.
//
// Institution is the identity key used by every mutation. Projects maps a project
// identifier to membership; a missing key is equivalent to false. FormerNames
// records rename lineage so that a replayed rename can be recognised as done.
// Attributes carries non-project columns (e.g. Short_Name) through unchanged.
type PartnerRecord struct {
	Institution string
	City        string
	Country     string
	Coordinates *Coordinates
	Projects    map[string]bool
	IsFunder    bool
	FormerNames []string
	Attributes  map[string]string
}

// InProject reports membership, treating unknown projects as false.
func (r *PartnerRecord) InProject(project string) bool {
	return r.Projects[project]
}

// HasCoordinates reports whether a coordinate pair is present.
func (r *PartnerRecord) HasCoordinates() bool {
	return r.Coordinates != nil
}

// MemberOf returns the projects the record is flagged for, in the given order.
func (r *PartnerRecord) MemberOf(order []string) []string {
	out := make([]string, 0, len(order))
	for _, p := range order {
		if r.Projects[p] {
			out = append(out, p)
		}
	}
	return out
}

// Clone returns a deep copy of the record.
func (r *PartnerRecord) Clone() *PartnerRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Coordinates != nil {
		coords := *r.Coordinates
		c.Coordinates = &coords
	}
	c.Projects = maps.Clone(r.Projects)
	if c.Projects == nil {
		c.Projects = map[string]bool{}
	}
	c.FormerNames = slices.Clone(r.FormerNames)
	c.Attributes = maps.Clone(r.Attributes)
	return &c
}

// Equal compares two records field by field. Membership is compared by truth
// value, so an explicit false and an absent key are the same.
func (r *PartnerRecord) Equal(o *PartnerRecord) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.Institution != o.Institution || r.City != o.City || r.Country != o.Country || r.IsFunder != o.IsFunder {
		return false
	}
	if (r.Coordinates == nil) != (o.Coordinates == nil) {
		return false
	}
	if r.Coordinates != nil && r.Coordinates.Rounded() != o.Coordinates.Rounded() {
		return false
	}
	for k, v := range r.Projects {
		if o.Projects[k] != v {
			return false
		}
	}
	for k, v := range o.Projects {
		if r.Projects[k] != v {
			return false
		}
	}
	return true
}
