package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"partner-registry/internal/domain"
	"partner-registry/internal/platform/obs"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "geocode:"

type redisEntry struct {
	City       string    `json:"city"`
	Country    string    `json:"country"`
	Lat        *float64  `json:"lat,omitempty"`
	Lon        *float64  `json:"lon,omitempty"`
	Failure    string    `json:"failure,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// RedisGeocodeCache stores one JSON value per location under
// geocode:<city>|<country>. Entries never expire; TTL is zero.
type RedisGeocodeCache struct {
	Client redis.UniversalClient
}

func NewRedisGeocodeCache(client redis.UniversalClient) *RedisGeocodeCache {
	return &RedisGeocodeCache{Client: client}
}

func redisKey(k domain.LocationKey) string {
	return redisKeyPrefix + k.String()
}

// Fetch cached entries for the given keys.
func (r *RedisGeocodeCache) GetMany(
	ctx context.Context,
	keys []domain.LocationKey,
) (_ map[domain.LocationKey]domain.GeocodeCacheEntry, err error) {
	defer obs.Time(ctx, "geocode.cache.redis.GetMany")(&err)

	if r.Client == nil {
		return nil, errors.New("geocode cache: redis client is nil")
	}

	uniq := uniqueKeys(keys)
	if len(uniq) == 0 {
		return map[domain.LocationKey]domain.GeocodeCacheEntry{}, nil
	}

	rk := make([]string, len(uniq))
	for i, k := range uniq {
		rk[i] = redisKey(k)
	}

	vals, err := r.Client.MGet(ctx, rk...).Result()
	if err != nil {
		return nil, fmt.Errorf("get geocode cache: mget: %w", err)
	}

	out := make(map[domain.LocationKey]domain.GeocodeCacheEntry, len(uniq))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var re redisEntry
		if err := json.Unmarshal([]byte(s), &re); err != nil {
			return nil, fmt.Errorf("get geocode cache: decode %q: %w", rk[i], err)
		}
		if re.City != uniq[i].City || re.Country != uniq[i].Country {
			continue
		}
		e := domain.GeocodeCacheEntry{
			Key:        uniq[i],
			Failure:    re.Failure,
			ResolvedAt: re.ResolvedAt,
		}
		if re.Lat != nil && re.Lon != nil {
			e.Coordinates = &domain.Coordinates{Lat: *re.Lat, Lon: *re.Lon}
		}
		out[e.Key] = e
	}

	return out, nil
}

// Store entries in one pipeline.
func (r *RedisGeocodeCache) PutMany(ctx context.Context, entries []domain.GeocodeCacheEntry) (err error) {
	defer obs.Time(ctx, "geocode.cache.redis.PutMany")(&err)

	if r.Client == nil {
		return errors.New("geocode cache: redis client is nil")
	}

	if len(entries) == 0 {
		return nil
	}

	pipe := r.Client.TxPipeline()
	for _, e := range entries {
		if e.Key.Empty() {
			return fmt.Errorf("insert geocode cache: empty location key")
		}

		re := redisEntry{
			City:       e.Key.City,
			Country:    e.Key.Country,
			Failure:    e.Failure,
			ResolvedAt: resolvedAtOrNow(e.ResolvedAt),
		}
		if e.Coordinates != nil {
			lat, lon := e.Coordinates.Lat, e.Coordinates.Lon
			re.Lat, re.Lon = &lat, &lon
		}
		b, err := json.Marshal(re)
		if err != nil {
			return fmt.Errorf("insert geocode cache key=%q: encode: %w", e.Key, err)
		}
		pipe.Set(ctx, redisKey(e.Key), b, 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("insert geocode cache: exec pipeline: %w", err)
	}

	return nil
}
