package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"partner-registry/internal/domain"
	"partner-registry/internal/platform/obs"
)

// SQLGeocodeCache is a Postgres-backed cache mapping (city, country) to
// coordinates or a recorded failure.
type SQLGeocodeCache struct {
	DB *sql.DB
}

func NewSQLGeocodeCache(db *sql.DB) *SQLGeocodeCache {
	return &SQLGeocodeCache{DB: db}
}

// Fetch cached entries for the given keys.
func (s *SQLGeocodeCache) GetMany(
	ctx context.Context,
	keys []domain.LocationKey,
) (_ map[domain.LocationKey]domain.GeocodeCacheEntry, err error) {
	defer obs.Time(ctx, "geocode.cache.postgres.GetMany")(&err)

	if s.DB == nil {
		return nil, errors.New("geocode cache: db is nil")
	}

	uniq := uniqueKeys(keys)
	if len(uniq) == 0 {
		return map[domain.LocationKey]domain.GeocodeCacheEntry{}, nil
	}

	cities := make([]string, len(uniq))
	countries := make([]string, len(uniq))
	for i, k := range uniq {
		cities[i], countries[i] = k.City, k.Country
	}

	q := `
	SELECT g.city, g.country, g.lat, g.lon, g.failure, g.resolved_at
    FROM geocode_cache g
    JOIN unnest($1::text[], $2::text[]) AS k(city, country)
      ON g.city = k.city AND g.country = k.country;
	`

	rows, err := s.DB.QueryContext(ctx, q, cities, countries)
	if err != nil {
		return nil, fmt.Errorf("get geocode cache: query geocode_cache table: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.LocationKey]domain.GeocodeCacheEntry, len(uniq))
	for rows.Next() {
		var (
			e        domain.GeocodeCacheEntry
			lat, lon sql.NullFloat64
		)
		if err := rows.Scan(&e.Key.City, &e.Key.Country, &lat, &lon, &e.Failure, &e.ResolvedAt); err != nil {
			return nil, fmt.Errorf("get geocode cache: scan rows: %w", err)
		}
		if lat.Valid && lon.Valid {
			e.Coordinates = &domain.Coordinates{Lat: lat.Float64, Lon: lon.Float64}
		}
		out[e.Key] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get geocode cache: row iteration: %w", err)
	}

	return out, nil
}

// Store entries in the cache, replacing earlier resolutions of the same key.
func (s *SQLGeocodeCache) PutMany(ctx context.Context, entries []domain.GeocodeCacheEntry) (err error) {
	defer obs.Time(ctx, "geocode.cache.postgres.PutMany")(&err)

	if s.DB == nil {
		return errors.New("geocode cache: db is nil")
	}

	if len(entries) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert geocode cache: db begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO geocode_cache (city, country, lat, lon, failure, resolved_at)
    VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (city, country) DO UPDATE
	SET lat = EXCLUDED.lat,
		lon = EXCLUDED.lon,
		failure = EXCLUDED.failure,
		resolved_at = EXCLUDED.resolved_at;
	`)
	if err != nil {
		return fmt.Errorf("insert geocode cache: db prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if e.Key.Empty() {
			return fmt.Errorf("insert geocode cache: empty location key")
		}

		lat, lon := nullCoords(e.Coordinates)
		if _, err := stmt.ExecContext(ctx, e.Key.City, e.Key.Country, lat, lon, e.Failure, resolvedAtOrNow(e.ResolvedAt)); err != nil {
			return fmt.Errorf("insert geocode cache key=%q: %w", e.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert geocode cache commit: %w", err)
	}

	return nil
}
