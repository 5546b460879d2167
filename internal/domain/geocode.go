package domain

import (
	"strings"
	"time"
)

// LocationKey identifies a geocode lookup. Matching is exact on both fields.
type LocationKey struct {
	City    string
	Country string
}

// Query renders the free-text query sent to forward geocoders.
func (k LocationKey) Query() string {
	parts := make([]string, 0, 2)
	if c := strings.TrimSpace(k.City); c != "" {
		parts = append(parts, c)
	}
	if c := strings.TrimSpace(k.Country); c != "" {
		parts = append(parts, c)
	}
	return strings.Join(parts, ", ")
}

// Empty reports whether there is nothing to look up.
func (k LocationKey) Empty() bool {
	return strings.TrimSpace(k.City) == "" && strings.TrimSpace(k.Country) == ""
}

var keyEscaper = strings.NewReplacer(`\`, `\\`, `|`, `\|`)

// String joins city and country with "|", escaping "|" and "\" inside the
// fields so that distinct keys never render the same.
func (k LocationKey) String() string {
	return keyEscaper.Replace(k.City) + "|" + keyEscaper.Replace(k.Country)
}

// GeocodeCacheEntry is a persisted resolution: coordinates on success, or a
// failure reason so the same key is not retried on every run.
type GeocodeCacheEntry struct {
	Key         LocationKey
	Coordinates *Coordinates
	Failure     string
	ResolvedAt  time.Time
}

// Failed reports whether the entry records an unsuccessful resolution.
func (e GeocodeCacheEntry) Failed() bool { return e.Coordinates == nil }
