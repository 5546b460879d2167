package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"partner-registry/internal/domain"
	"partner-registry/internal/platform/obs"
	"strings"
	"time"
)

const DefaultORSURL = "https://api.openrouteservice.org"

type orsResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// ORSGeocoder resolves places with OpenRouteService (/geocode/search).
type ORSGeocoder struct {
	transport
	baseURL string
}

func NewORSGeocoder(apiKey, baseURL string, timeout time.Duration, maxAttempts int) (*ORSGeocoder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("ORS api key is empty")
	}
	if baseURL == "" {
		baseURL = DefaultORSURL
	}

	g := &ORSGeocoder{
		transport: newTransport(timeout, maxAttempts),
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
	g.headers.Set("Authorization", apiKey)
	return g, nil
}

// Geocode returns the first feature for "city, country". ORS returns GeoJSON
// positions as [lon, lat].
func (g *ORSGeocoder) Geocode(ctx context.Context, city, country string) (_ domain.Coordinates, err error) {
	defer obs.Time(ctx, "ors.Geocode")(&err)

	query := domain.LocationKey{City: city, Country: country}.Query()
	if query == "" {
		return domain.Coordinates{}, errors.New("ors geocode: empty query")
	}

	resp, err := g.get(ctx, g.baseURL+"/geocode/search", map[string]string{
		"text": query,
		"size": "1",
	})
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("ors geocode %q: execute request: %w", query, err)
	}
	defer resp.Body.Close()

	var decoded orsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.Coordinates{}, fmt.Errorf("ors geocode %q: decode response: %w", query, err)
	}

	if len(decoded.Features) == 0 {
		return domain.Coordinates{}, fmt.Errorf("ors geocode %q: %w", query, domain.ErrNoGeocodeResult)
	}

	coords := decoded.Features[0].Geometry.Coordinates
	if len(coords) != 2 {
		return domain.Coordinates{}, fmt.Errorf("ors geocode %q: invalid coordinate format", query)
	}

	return domain.Coordinates{Lon: coords[0], Lat: coords[1]}, nil
}
