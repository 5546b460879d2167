package geocode

import (
	"context"
	"fmt"
	"partner-registry/internal/domain"
	"sync"
)

type StaticPlace struct {
	City, Country string
	Lat, Lon      float64
}

// StaticGeocoder answers from a fixed table and counts calls per key. Keys not
// in the table resolve to domain.ErrNoGeocodeResult unless an error is set.
type StaticGeocoder struct {
	m map[domain.LocationKey]domain.Coordinates

	mu     sync.Mutex
	errs   map[domain.LocationKey]error
	calls  map[domain.LocationKey]int
	before func(ctx context.Context, key domain.LocationKey)
}

func NewStaticGeocoder(places []StaticPlace) *StaticGeocoder {
	m := make(map[domain.LocationKey]domain.Coordinates, len(places))
	for _, p := range places {
		m[domain.LocationKey{City: p.City, Country: p.Country}] = domain.Coordinates{Lat: p.Lat, Lon: p.Lon}
	}
	return &StaticGeocoder{
		m:     m,
		errs:  map[domain.LocationKey]error{},
		calls: map[domain.LocationKey]int{},
	}
}

// FailWith makes lookups of (city, country) return err.
func (g *StaticGeocoder) FailWith(city, country string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs[domain.LocationKey{City: city, Country: country}] = err
}

// OnCall installs a hook run at the start of every lookup, outside the lock.
func (g *StaticGeocoder) OnCall(fn func(ctx context.Context, key domain.LocationKey)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.before = fn
}

func (g *StaticGeocoder) Geocode(ctx context.Context, city, country string) (domain.Coordinates, error) {
	key := domain.LocationKey{City: city, Country: country}

	g.mu.Lock()
	g.calls[key]++
	before := g.before
	err := g.errs[key]
	g.mu.Unlock()

	if before != nil {
		before(ctx, key)
	}
	if err != nil {
		return domain.Coordinates{}, err
	}

	c, ok := g.m[key]
	if !ok {
		return domain.Coordinates{}, fmt.Errorf("static geocode %q: %w", key.Query(), domain.ErrNoGeocodeResult)
	}
	return c, nil
}

// Calls returns how many lookups were made for (city, country).
func (g *StaticGeocoder) Calls(city, country string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[domain.LocationKey{City: city, Country: country}]
}

// TotalCalls returns the number of lookups across all keys.
func (g *StaticGeocoder) TotalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}
