package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"partner-registry/internal/domain"
	"partner-registry/internal/platform/obs"
	"partner-registry/internal/ports"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultGeocodeInterval = time.Second
	DefaultGeocodeWorkers  = 2
)

type EnricherConfig struct {
	// Minimum spacing between external calls, shared by all workers.
	// Zero means DefaultGeocodeInterval; negative disables throttling.
	Interval time.Duration
	// Limiter, when set, is used instead of one built from Interval so that
	// geocoder retries can share it (see geocode PaceRetries).
	Limiter  *rate.Limiter
	Workers  int
	Metrics  *obs.Metrics
}

type EnrichOptions struct {
	// Refresh ignores cached entries and re-resolves every key.
	Refresh bool
	// RetryFailed re-resolves keys whose cached entry is a failure.
	RetryFailed bool
}

// EnrichReport describes one enrichment pass.
type EnrichReport struct {
	Filled    []string // institutions that received coordinates
	CacheHits int
	Lookups   int
	Skipped   []string // institutions with neither city nor country
	Failures  []*domain.GeocodeFailure
}

// Enricher fills missing coordinates from a persistent cache and, on a miss,
// from an external geocoder behind a global rate limiter.
//
// At most one request per location key is in flight at any time. The
// registry passed to Enrich is never mutated; results are written to a clone
// in record order once all lookups are done.
type Enricher struct {
	geocoder ports.Geocoder
	cache    ports.GeocodeCache
	limiter  *rate.Limiter
	workers  int
	metrics  *obs.Metrics
	flight   singleflight.Group
	now      func() time.Time
}

// NewEnricher builds an Enricher. cache may be nil, in which case every miss
// goes to the geocoder and nothing is persisted.
func NewEnricher(geocoder ports.Geocoder, cache ports.GeocodeCache, cfg EnricherConfig) (*Enricher, error) {
	if geocoder == nil {
		return nil, errors.New("new enricher: geocoder is nil")
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewGeocodeLimiter(cfg.Interval)
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultGeocodeWorkers
	}

	return &Enricher{
		geocoder: geocoder,
		cache:    cache,
		limiter:  limiter,
		workers:  workers,
		metrics:  cfg.Metrics,
		now:      time.Now,
	}, nil
}

// NewGeocodeLimiter returns the fixed-interval gate for external geocode
// calls: burst 1, one token per interval. Zero means DefaultGeocodeInterval;
// negative disables throttling.
func NewGeocodeLimiter(interval time.Duration) *rate.Limiter {
	if interval == 0 {
		interval = DefaultGeocodeInterval
	}
	if interval < 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Resolve returns coordinates for one (city, country) pair. Unresolvable
// places yield a *domain.GeocodeFailure; a cancelled context yields ctx.Err().
func (e *Enricher) Resolve(ctx context.Context, city, country string) (_ domain.Coordinates, err error) {
	defer obs.Time(ctx, "enricher.Resolve")(&err)

	key := domain.LocationKey{City: city, Country: country}
	if key.Empty() {
		return domain.Coordinates{}, &domain.GeocodeFailure{Reason: "empty location"}
	}

	cached, err := e.cached(ctx, []domain.LocationKey{key}, EnrichOptions{})
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("resolve: %w", err)
	}

	entry, ok := cached[key]
	if !ok {
		if entry, err = e.lookup(ctx, key); err != nil {
			return domain.Coordinates{}, err
		}
	}
	if entry.Failed() {
		return domain.Coordinates{}, &domain.GeocodeFailure{
			City:    city,
			Country: country,
			Reason:  entry.Failure,
			Cached:  ok,
		}
	}
	return *entry.Coordinates, nil
}

// Enrich returns a copy of reg with absent coordinates filled where a
// resolution exists. Existing coordinates are never touched. Per-key failures
// are reported and skipped. On cancellation the partially enriched copy is
// returned together with ctx.Err().
func (e *Enricher) Enrich(
	ctx context.Context,
	reg *domain.Registry,
	opts EnrichOptions,
) (_ *domain.Registry, _ EnrichReport, err error) {
	defer obs.Time(ctx, "enricher.Enrich")(&err)

	out := reg.Clone()
	var report EnrichReport

	seen := make(map[domain.LocationKey]struct{})
	keys := make([]domain.LocationKey, 0)
	for _, rec := range out.Records {
		if rec.HasCoordinates() {
			continue
		}
		key := domain.LocationKey{City: rec.City, Country: rec.Country}
		if key.Empty() {
			report.Skipped = append(report.Skipped, rec.Institution)
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	if len(keys) == 0 {
		return out, report, nil
	}

	resolved, err := e.cached(ctx, keys, opts)
	if err != nil {
		return nil, EnrichReport{}, fmt.Errorf("enrich: %w", err)
	}
	report.CacheHits = len(resolved)
	fromCache := make(map[domain.LocationKey]bool, len(resolved))
	for k := range resolved {
		fromCache[k] = true
	}

	pending := make([]domain.LocationKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := resolved[k]; !ok {
			pending = append(pending, k)
		}
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(e.workers)
	for _, k := range pending {
		g.Go(func() error {
			entry, err := e.lookup(ctx, k)
			if err != nil {
				return err
			}
			mu.Lock()
			resolved[k] = entry
			report.Lookups++
			mu.Unlock()
			return nil
		})
	}
	waitErr := g.Wait()

	for _, k := range keys {
		entry, ok := resolved[k]
		if !ok || !entry.Failed() {
			continue
		}
		report.Failures = append(report.Failures, &domain.GeocodeFailure{
			City:    k.City,
			Country: k.Country,
			Reason:  entry.Failure,
			Cached:  fromCache[k],
		})
	}

	for _, rec := range out.Records {
		if rec.HasCoordinates() {
			continue
		}
		entry, ok := resolved[domain.LocationKey{City: rec.City, Country: rec.Country}]
		if !ok || entry.Failed() {
			continue
		}
		c := entry.Coordinates.Rounded()
		rec.Coordinates = &c
		report.Filled = append(report.Filled, rec.Institution)
	}

	if waitErr != nil {
		return out, report, waitErr
	}
	return out, report, nil
}

// cached returns the cache entries usable under opts.
func (e *Enricher) cached(
	ctx context.Context,
	keys []domain.LocationKey,
	opts EnrichOptions,
) (map[domain.LocationKey]domain.GeocodeCacheEntry, error) {
	out := make(map[domain.LocationKey]domain.GeocodeCacheEntry, len(keys))
	if e.cache == nil || opts.Refresh {
		return out, nil
	}

	hits, err := e.cache.GetMany(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("read geocode cache: %w", err)
	}

	for _, k := range keys {
		entry, ok := hits[k]
		if ok && entry.Failed() && opts.RetryFailed {
			ok = false
		}
		e.metrics.ObserveCache(ok)
		if ok {
			out[k] = entry
		}
	}
	return out, nil
}

// lookup performs one throttled, de-duplicated external call and persists the
// outcome. Only context errors are returned; every other failure is folded
// into a failed entry.
func (e *Enricher) lookup(ctx context.Context, key domain.LocationKey) (domain.GeocodeCacheEntry, error) {
	v, err, _ := e.flight.Do(key.String(), func() (any, error) {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		entry := domain.GeocodeCacheEntry{Key: key, ResolvedAt: e.now().UTC()}

		coords, err := e.geocoder.Geocode(ctx, key.City, key.Country)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, domain.ErrNoGeocodeResult):
			entry.Failure = domain.ErrNoGeocodeResult.Error()
			e.metrics.ObserveGeocode("not_found")
		case err != nil:
			entry.Failure = err.Error()
			e.metrics.ObserveGeocode("error")
		case !coords.InRange():
			entry.Failure = fmt.Sprintf("result out of range: %v", coords)
			e.metrics.ObserveGeocode("error")
		default:
			c := coords.Rounded()
			entry.Coordinates = &c
			e.metrics.ObserveGeocode("resolved")
		}

		if e.cache != nil {
			if err := e.cache.PutMany(ctx, []domain.GeocodeCacheEntry{entry}); err != nil {
				log.Printf("run_id=%s op=enricher.lookup key=%q cache_write_err=%v", obs.RunID(ctx), key, err)
			}
		}
		return entry, nil
	})
	if err != nil {
		return domain.GeocodeCacheEntry{}, err
	}
	return v.(domain.GeocodeCacheEntry), nil
}
