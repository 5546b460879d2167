package ports

import (
	"context"
	"partner-registry/internal/domain"
)

// Contract for resolving a (city, country) pair to coordinates.
type Geocoder interface {
	// Return coordinates for the place, or an error wrapping
	// domain.ErrNoGeocodeResult when the service found nothing.
	Geocode(ctx context.Context, city, country string) (domain.Coordinates, error)
}

// Persistent store of geocode resolutions, including failures.
type GeocodeCache interface {
	// Return the cached entries for the keys that have one. Missing keys are absent from the map.
	GetMany(ctx context.Context, keys []domain.LocationKey) (map[domain.LocationKey]domain.GeocodeCacheEntry, error)
	// Store entries, replacing any previous entry with the same key.
	PutMany(ctx context.Context, entries []domain.GeocodeCacheEntry) error
}
