package domain

import (
	"errors"
	"fmt"
	"strings"
)

// PatchKind names a corrective operation.
type PatchKind string

const (
	PatchSetMembership     PatchKind = "set-membership"
	PatchAddRecord         PatchKind = "add-record"
	PatchRenameInstitution PatchKind = "rename-institution"
	PatchReclassifyColumn  PatchKind = "reclassify-column"
	PatchDropProject       PatchKind = "drop-project"
	PatchAddProject        PatchKind = "add-project"
	PatchSetCoordinates    PatchKind = "set-coordinates"
)

// PatchOperation is a declarative, idempotent correction. Which fields are
// meaningful depends on Kind:
//
//	set-membership      Institution, Project, Value
//	add-record          Record
//	rename-institution  Institution (old name), NewName
//	reclassify-column   Institution, FromProject, ToProject
//	drop-project        Project
//	add-project         Project
//	set-coordinates     Institution, Lat, Lon
type PatchOperation struct {
	Kind        PatchKind   `yaml:"op" json:"op"`
	Institution string      `yaml:"institution,omitempty" json:"institution,omitempty"`
	Project     string      `yaml:"project,omitempty" json:"project,omitempty"`
	Value       *bool       `yaml:"value,omitempty" json:"value,omitempty"`
	NewName     string      `yaml:"new_name,omitempty" json:"new_name,omitempty"`
	FromProject string      `yaml:"from_project,omitempty" json:"from_project,omitempty"`
	ToProject   string      `yaml:"to_project,omitempty" json:"to_project,omitempty"`
	Lat         *float64    `yaml:"lat,omitempty" json:"lat,omitempty"`
	Lon         *float64    `yaml:"lon,omitempty" json:"lon,omitempty"`
	Record      *RecordSpec `yaml:"record,omitempty" json:"record,omitempty"`
}

// RecordSpec is the payload of add-record. Projects lists memberships set to true.
type RecordSpec struct {
	Institution string   `yaml:"institution" json:"institution"`
	City        string   `yaml:"city" json:"city"`
	Country     string   `yaml:"country" json:"country"`
	Funder      bool     `yaml:"funder,omitempty" json:"funder,omitempty"`
	Projects    []string `yaml:"projects,omitempty" json:"projects,omitempty"`
	Lat         *float64 `yaml:"lat,omitempty" json:"lat,omitempty"`
	Lon         *float64 `yaml:"lon,omitempty" json:"lon,omitempty"`
}

// ToRecord builds the record described by the spec.
func (s *RecordSpec) ToRecord() *PartnerRecord {
	rec := &PartnerRecord{
		Institution: s.Institution,
		City:        s.City,
		Country:     s.Country,
		IsFunder:    s.Funder,
		Projects:    make(map[string]bool, len(s.Projects)),
	}
	for _, p := range s.Projects {
		rec.Projects[p] = true
	}
	if s.Lat != nil && s.Lon != nil {
		c := Coordinates{Lat: *s.Lat, Lon: *s.Lon}.Rounded()
		rec.Coordinates = &c
	}
	return rec
}

// Validate checks that the parameters required by Kind are present.
func (op PatchOperation) Validate() error {
	need := func(field, v string) error {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%s: %s is required", op.Kind, field)
		}
		return nil
	}

	switch op.Kind {
	case PatchSetMembership:
		if err := errors.Join(need("institution", op.Institution), need("project", op.Project)); err != nil {
			return err
		}
		if op.Value == nil {
			return fmt.Errorf("%s: value is required", op.Kind)
		}
	case PatchAddRecord:
		if op.Record == nil {
			return fmt.Errorf("%s: record is required", op.Kind)
		}
		if err := need("record.institution", op.Record.Institution); err != nil {
			return err
		}
		if (op.Record.Lat == nil) != (op.Record.Lon == nil) {
			return fmt.Errorf("%s: record lat and lon must be given together", op.Kind)
		}
	case PatchRenameInstitution:
		return errors.Join(need("institution", op.Institution), need("new_name", op.NewName))
	case PatchReclassifyColumn:
		if err := errors.Join(
			need("institution", op.Institution),
			need("from_project", op.FromProject),
			need("to_project", op.ToProject),
		); err != nil {
			return err
		}
		if op.FromProject == op.ToProject {
			return fmt.Errorf("%s: from_project and to_project are both %q", op.Kind, op.FromProject)
		}
	case PatchDropProject, PatchAddProject:
		return need("project", op.Project)
	case PatchSetCoordinates:
		if err := need("institution", op.Institution); err != nil {
			return err
		}
		if op.Lat == nil || op.Lon == nil {
			return fmt.Errorf("%s: lat and lon are required", op.Kind)
		}
	default:
		return fmt.Errorf("unknown patch op %q", op.Kind)
	}
	return nil
}

func (op PatchOperation) String() string {
	switch op.Kind {
	case PatchSetMembership:
		v := op.Value != nil && *op.Value
		return fmt.Sprintf("%s(%q, %s=%t)", op.Kind, op.Institution, op.Project, v)
	case PatchAddRecord:
		if op.Record == nil {
			return string(op.Kind)
		}
		return fmt.Sprintf("%s(%q)", op.Kind, op.Record.Institution)
	case PatchRenameInstitution:
		return fmt.Sprintf("%s(%q -> %q)", op.Kind, op.Institution, op.NewName)
	case PatchReclassifyColumn:
		return fmt.Sprintf("%s(%q, %s -> %s)", op.Kind, op.Institution, op.FromProject, op.ToProject)
	case PatchDropProject, PatchAddProject:
		return fmt.Sprintf("%s(%s)", op.Kind, op.Project)
	case PatchSetCoordinates:
		if op.Lat == nil || op.Lon == nil {
			return fmt.Sprintf("%s(%q)", op.Kind, op.Institution)
		}
		return fmt.Sprintf("%s(%q, %.6f, %.6f)", op.Kind, op.Institution, *op.Lat, *op.Lon)
	}
	return string(op.Kind)
}
