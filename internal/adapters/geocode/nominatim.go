package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"partner-registry/internal/domain"
	"partner-registry/internal/platform/obs"
	"strconv"
	"strings"
	"time"
)

const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// NominatimGeocoder resolves places with the OpenStreetMap Nominatim search
// API. Nominatim's usage policy requires an identifying User-Agent and at most
// one request per second; throttling is the caller's job.
type NominatimGeocoder struct {
	transport
	baseURL string
}

func NewNominatimGeocoder(baseURL, userAgent string, timeout time.Duration, maxAttempts int) (*NominatimGeocoder, error) {
	if strings.TrimSpace(userAgent) == "" {
		return nil, errors.New("nominatim: user agent is empty")
	}
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}

	g := &NominatimGeocoder{
		transport: newTransport(timeout, maxAttempts),
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
	g.headers.Set("User-Agent", userAgent)
	return g, nil
}

// Geocode returns the top search hit for "city, country".
func (g *NominatimGeocoder) Geocode(ctx context.Context, city, country string) (_ domain.Coordinates, err error) {
	defer obs.Time(ctx, "nominatim.Geocode")(&err)

	query := domain.LocationKey{City: city, Country: country}.Query()
	if query == "" {
		return domain.Coordinates{}, errors.New("nominatim geocode: empty query")
	}

	resp, err := g.get(ctx, g.baseURL+"/search", map[string]string{
		"q":      query,
		"format": "jsonv2",
		"limit":  "1",
	})
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("nominatim geocode %q: execute request: %w", query, err)
	}
	defer resp.Body.Close()

	var decoded []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.Coordinates{}, fmt.Errorf("nominatim geocode %q: decode response: %w", query, err)
	}

	if len(decoded) == 0 {
		return domain.Coordinates{}, fmt.Errorf("nominatim geocode %q: %w", query, domain.ErrNoGeocodeResult)
	}

	lat, err := strconv.ParseFloat(decoded[0].Lat, 64)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("nominatim geocode %q: parse lat: %w", query, err)
	}
	lon, err := strconv.ParseFloat(decoded[0].Lon, 64)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("nominatim geocode %q: parse lon: %w", query, err)
	}

	return domain.Coordinates{Lat: lat, Lon: lon}, nil
}
