package domain

import "fmt"

// FindingCode is a machine-checkable validation reason.
type FindingCode string

const (
	FindingMissingCoordinates    FindingCode = "missing-coordinates"
	FindingOutOfRangeCoordinates FindingCode = "out-of-range-coordinates"
	FindingOrphanMembership      FindingCode = "orphan-membership"
	FindingDuplicateInstitution  FindingCode = "duplicate-institution"
	FindingMissingLocation       FindingCode = "missing-location"
	FindingNoMembership          FindingCode = "no-membership"
)

// Finding is one validation report entry. It is not an error.
type Finding struct {
	Institution string      `json:"institution"`
	Code        FindingCode `json:"code"`
	Detail      string      `json:"detail,omitempty"`
}

func (f Finding) String() string {
	if f.Detail == "" {
		return fmt.Sprintf("%s: %s", f.Code, f.Institution)
	}
	return fmt.Sprintf("%s: %s (%s)", f.Code, f.Institution, f.Detail)
}
