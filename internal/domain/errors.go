package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound is returned when a patch references an absent institution.
	ErrRecordNotFound = errors.New("record not found")
	// ErrDuplicateKey is returned when a patch would create a second record with the same institution.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrUnknownProject is returned when a patch references a project outside the recognized set.
	ErrUnknownProject = errors.New("unknown project")
	// ErrInvalidCoordinates is returned for an explicit coordinate pair outside valid bounds.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrNoGeocodeResult is returned by geocoders when the service found nothing.
	ErrNoGeocodeResult = errors.New("no geocode result")
)

// SchemaError reports a malformed input row. It fails the whole load.
type SchemaError struct {
	Row    int // 1-based data row, 0 for the header
	Column string
	Value  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("schema error: header: %s", e.Reason)
	}
	return fmt.Sprintf("schema error: row %d column %q value %q: %s", e.Row, e.Column, e.Value, e.Reason)
}

// GeocodeFailure records that a location could not be resolved. It is reported
// per record and never aborts a batch.
type GeocodeFailure struct {
	City    string
	Country string
	Reason  string
	Cached  bool
	Err     error
}

func (e *GeocodeFailure) Error() string {
	src := "provider"
	if e.Cached {
		src = "cache"
	}
	return fmt.Sprintf("geocode %q, %q failed (%s): %s", e.City, e.Country, src, e.Reason)
}

func (e *GeocodeFailure) Unwrap() error { return e.Err }
