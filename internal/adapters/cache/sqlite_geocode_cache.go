package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"partner-registry/internal/domain"
	"partner-registry/internal/platform/obs"
	"strings"
	"time"
)

// SQLite backed cache mapping (city, country) pairs to coordinates or to a
// recorded failure. Keys match exactly; callers normalize before lookup.
type SqliteGeocodeCache struct {
	DB *sql.DB
}

func NewSqliteGeocodeCache(db *sql.DB) *SqliteGeocodeCache {
	return &SqliteGeocodeCache{DB: db}
}

// Fetch cached entries for the given keys.
func (s *SqliteGeocodeCache) GetMany(
	ctx context.Context,
	keys []domain.LocationKey,
) (_ map[domain.LocationKey]domain.GeocodeCacheEntry, err error) {
	defer obs.Time(ctx, "geocode.cache.sqlite.GetMany")(&err)

	if s.DB == nil {
		return nil, errors.New("geocode cache: db is nil")
	}

	uniq := uniqueKeys(keys)
	if len(uniq) == 0 {
		return map[domain.LocationKey]domain.GeocodeCacheEntry{}, nil
	}

	// SQLite has no row-value IN over bound slices; only the placeholder
	// structure is interpolated, all values stay parameterized.
	conds := make([]string, 0, len(uniq))
	args := make([]any, 0, 2*len(uniq))
	for _, k := range uniq {
		conds = append(conds, "(city = ? AND country = ?)")
		args = append(args, k.City, k.Country)
	}

	q := fmt.Sprintf(`
	SELECT
        city,
        country,
        lat,
        lon,
        failure,
        resolved_at
    FROM geocode_cache
    WHERE %s;
	`, strings.Join(conds, " OR "))

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("get geocode cache: query geocode_cache table: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.LocationKey]domain.GeocodeCacheEntry, len(uniq))
	for rows.Next() {
		var (
			e          domain.GeocodeCacheEntry
			lat, lon   sql.NullFloat64
			resolvedAt string
		)
		if err := rows.Scan(&e.Key.City, &e.Key.Country, &lat, &lon, &e.Failure, &resolvedAt); err != nil {
			return nil, fmt.Errorf("get geocode cache: scan rows: %w", err)
		}
		if lat.Valid && lon.Valid {
			e.Coordinates = &domain.Coordinates{Lat: lat.Float64, Lon: lon.Float64}
		}
		if e.ResolvedAt, err = time.Parse(time.RFC3339Nano, resolvedAt); err != nil {
			return nil, fmt.Errorf("get geocode cache: parse resolved_at %q: %w", resolvedAt, err)
		}
		out[e.Key] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get geocode cache: row iteration: %w", err)
	}

	return out, nil
}

// Store entries in the cache, replacing earlier resolutions of the same key.
func (s *SqliteGeocodeCache) PutMany(ctx context.Context, entries []domain.GeocodeCacheEntry) (err error) {
	defer obs.Time(ctx, "geocode.cache.sqlite.PutMany")(&err)

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
	INSERT OR REPLACE INTO geocode_cache (
        city,
        country,
        lat,
        lon,
        failure,
        resolved_at
    )
    VALUES (?, ?, ?, ?, ?, ?);
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
		resolvedAt := resolvedAtOrNow(e.ResolvedAt).Format(time.RFC3339Nano)
		if _, err := stmt.ExecContext(ctx, e.Key.City, e.Key.Country, lat, lon, e.Failure, resolvedAt); err != nil {
			return fmt.Errorf("insert geocode cache key=%q: %w", e.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert geocode cache commit: %w", err)
	}

	return nil
}

func uniqueKeys(keys []domain.LocationKey) []domain.LocationKey {
	seen := make(map[domain.LocationKey]struct{}, len(keys))
	uniq := make([]domain.LocationKey, 0, len(keys))
	for _, k := range keys {
		if k.Empty() {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		uniq = append(uniq, k)
	}
	return uniq
}

func nullCoords(c *domain.Coordinates) (sql.NullFloat64, sql.NullFloat64) {
	if c == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: c.Lat, Valid: true}, sql.NullFloat64{Float64: c.Lon, Valid: true}
}

func resolvedAtOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
