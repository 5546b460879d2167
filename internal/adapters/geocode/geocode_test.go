package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"partner-registry/internal/domain"
	"partner-registry/internal/ports"
	"sync/atomic"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

var (
	_ ports.Geocoder = (*NominatimGeocoder)(nil)
	_ ports.Geocoder = (*ORSGeocoder)(nil)
	_ ports.Geocoder = (*StaticGeocoder)(nil)
)

func TestNominatimGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %q, want /search", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "Yaoundé, Cameroon" {
			t.Errorf("q = %q, want %q", got, "Yaoundé, Cameroon")
		}
		if got := r.URL.Query().Get("format"); got != "jsonv2" {
			t.Errorf("format = %q, want jsonv2", got)
		}
		if got := r.Header.Get("User-Agent"); got != "partner-registry-test" {
			t.Errorf("User-Agent = %q", got)
		}
		w.Write([]byte(`[{"lat":"3.8480325","lon":"11.5020752","display_name":"Yaoundé"}]`))
	}))
	defer srv.Close()

	g, err := NewNominatimGeocoder(srv.URL, "partner-registry-test", time.Second, 1)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	got, err := g.Geocode(context.Background(), "Yaoundé", "Cameroon")
	if err != nil {
		t.Fatalf("geocode: %v", err)
	}
	want := domain.Coordinates{Lat: 3.8480325, Lon: 11.5020752}
	if got != want {
		t.Fatalf("coords = %v, want %v", got, want)
	}
}

func TestNominatimEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	g, _ := NewNominatimGeocoder(srv.URL, "ua", time.Second, 1)
	_, err := g.Geocode(context.Background(), "Nonexistent City", "Nowhere")
	if !errors.Is(err, domain.ErrNoGeocodeResult) {
		t.Fatalf("err = %v, want ErrNoGeocodeResult", err)
	}
}

func TestNominatimRequiresUserAgent(t *testing.T) {
	if _, err := NewNominatimGeocoder("", " ", 0, 0); err == nil {
		t.Fatal("expected error for empty user agent")
	}
}

func TestRetryOnTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"features":[{"geometry":{"coordinates":[18.023611,59.348333]}}]}`))
	}))
	defer srv.Close()

	g, err := NewORSGeocoder("key", srv.URL, time.Second, 4)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	g.backoff = time.Millisecond

	got, err := g.Geocode(context.Background(), "Stockholm", "Sweden")
	if err != nil {
		t.Fatalf("geocode: %v", err)
	}
	if got.Lat != 59.348333 || got.Lon != 18.023611 {
		t.Fatalf("coords = %v, want lat 59.348333 lon 18.023611", got)
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("calls = %d, want 3", n)
	}
}

func TestRetriesWaitOnLimiter(t *testing.T) {
	const interval = 300 * time.Millisecond

	var (
		mu    sync.Mutex
		stamp []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamp = append(stamp, time.Now())
		n := len(stamp)
		mu.Unlock()
		if n == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[{"lat":"59.348333","lon":"18.023611"}]`))
	}))
	defer srv.Close()

	g, err := NewNominatimGeocoder(srv.URL, "partner-registry-test", time.Second, 3)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	g.backoff = time.Millisecond

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	g.PaceRetries(limiter)

	ctx := context.Background()
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if _, err := g.Geocode(ctx, "Stockholm", "Sweden"); err != nil {
		t.Fatalf("geocode: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(stamp) != 2 {
		t.Fatalf("requests = %d, want 2", len(stamp))
	}
	if gap := stamp[1].Sub(stamp[0]); gap < interval-20*time.Millisecond {
		t.Fatalf("gap between requests = %v, want >= %v", gap, interval)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusForbidden)
	}))
	defer srv.Close()

	g, _ := NewORSGeocoder("key", srv.URL, time.Second, 4)
	g.backoff = time.Millisecond

	_, err := g.Geocode(context.Background(), "Ghent", "Belgium")
	var he *httpStatusError
	if !errors.As(err, &he) || he.Code != http.StatusForbidden {
		t.Fatalf("err = %v, want 403 status error", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
}

func TestORSNoFeatures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"features":[]}`))
	}))
	defer srv.Close()

	g, _ := NewORSGeocoder("key", srv.URL, time.Second, 1)
	if _, err := g.Geocode(context.Background(), "X", "Y"); !errors.Is(err, domain.ErrNoGeocodeResult) {
		t.Fatalf("err = %v, want ErrNoGeocodeResult", err)
	}
}

func TestStaticGeocoder(t *testing.T) {
	g := NewStaticGeocoder([]StaticPlace{{City: "Oslo", Country: "Norway", Lat: 59.91, Lon: 10.75}})
	boom := errors.New("boom")
	g.FailWith("Bergen", "Norway", boom)

	if _, err := g.Geocode(context.Background(), "Oslo", "Norway"); err != nil {
		t.Fatalf("oslo: %v", err)
	}
	if _, err := g.Geocode(context.Background(), "Bergen", "Norway"); !errors.Is(err, boom) {
		t.Fatalf("bergen err = %v, want boom", err)
	}
	if _, err := g.Geocode(context.Background(), "Atlantis", ""); !errors.Is(err, domain.ErrNoGeocodeResult) {
		t.Fatalf("atlantis err = %v", err)
	}
	if g.Calls("Oslo", "Norway") != 1 || g.TotalCalls() != 3 {
		t.Fatalf("calls oslo=%d total=%d", g.Calls("Oslo", "Norway"), g.TotalCalls())
	}
}
