package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"partner-registry/internal/adapters/cache"
	"partner-registry/internal/adapters/geocode"
	"partner-registry/internal/adapters/repositories"
	"partner-registry/internal/config"
	"partner-registry/internal/ingest"
	"partner-registry/internal/platform/db"
	"partner-registry/internal/platform/obs"
	"partner-registry/internal/ports"
	"partner-registry/internal/registry"
	"partner-registry/internal/services"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// app holds the wired pipeline and every resource that must be closed.
type app struct {
	pipeline *services.Pipeline
	metrics  *obs.Metrics
	promReg  *prometheus.Registry
	snaps    *repositories.SqliteSnapshotRepository
	closers  []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// wire builds the pipeline. The geocoder and cache are only built when
// withGeocoder is set, so offline commands never need network settings.
func wire(ctx context.Context, cfg *config.Config, withGeocoder bool) (_ *app, err error) {
	a := &app{promReg: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.metrics = obs.NewMetrics(a.promReg)

	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}

	sqliteDB, err := db.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, sqliteDB.Close)

	if err := repositories.InitSchema(ctx, sqliteDB); err != nil {
		return nil, err
	}
	a.snaps = repositories.NewSqliteSnapshotRepository(sqliteDB)

	a.pipeline = &services.Pipeline{
		Catalog:    catalog,
		Store:      registry.NewFileStore(cfg.RegistryPath, catalog),
		Snapshots:  a.snaps,
		Normalizer: ingest.NewNormalizer(catalog),
		Validator:  services.NewValidator(a.metrics),
		Patches:    services.NewPatchEngine(a.metrics),
	}

	if !withGeocoder {
		return a, nil
	}

	gc, err := openCache(ctx, cfg, sqliteDB, a)
	if err != nil {
		return nil, err
	}
	limiter := services.NewGeocodeLimiter(cfg.GeocodeInterval)
	g, err := newGeocoder(cfg, limiter)
	if err != nil {
		return nil, err
	}

	a.pipeline.Enricher, err = services.NewEnricher(g, gc, services.EnricherConfig{
		Limiter: limiter,
		Workers: cfg.GeocodeWorkers,
		Metrics: a.metrics,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func openCache(ctx context.Context, cfg *config.Config, sqliteDB *sql.DB, a *app) (ports.GeocodeCache, error) {
	switch cfg.CacheBackend {
	case config.CachePostgres:
		pg, err := db.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		if err := repositories.InitPostgresSchema(ctx, pg); err != nil {
			return nil, err
		}
		return cache.NewSQLGeocodeCache(pg), nil

	case config.CacheRedis:
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("open redis cache: parse url: %w", err)
		}
		client := redis.NewClient(opt)
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("open redis cache: ping: %w", err)
		}
		return cache.NewRedisGeocodeCache(client), nil

	default:
		return cache.NewSqliteGeocodeCache(sqliteDB), nil
	}
}

// newGeocoder builds the configured geocoder with its retries paced by the
// enricher's limiter.
func newGeocoder(cfg *config.Config, limiter *rate.Limiter) (ports.Geocoder, error) {
	switch cfg.Geocoder {
	case config.GeocoderORS:
		g, err := geocode.NewORSGeocoder(cfg.ORSAPIKey, "", cfg.HTTPTimeout, cfg.RetryMaxAttempts)
		if err != nil {
			return nil, err
		}
		g.PaceRetries(limiter)
		return g, nil
	default:
		g, err := geocode.NewNominatimGeocoder(cfg.NominatimURL, cfg.UserAgent, cfg.HTTPTimeout, cfg.RetryMaxAttempts)
		if err != nil {
			return nil, err
		}
		g.PaceRetries(limiter)
		return g, nil
	}
}
