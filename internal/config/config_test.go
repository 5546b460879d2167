package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.CacheBackend != CacheSQLite {
		t.Errorf("cache_backend = %q, want %q", c.CacheBackend, CacheSQLite)
	}
	if c.GeocodeInterval != time.Second {
		t.Errorf("geocode_interval = %v, want 1s", c.GeocodeInterval)
	}
	if c.GeocodeWorkers != 2 {
		t.Errorf("geocode_workers = %d, want 2", c.GeocodeWorkers)
	}

	cat, err := c.Catalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if cat.Version != 2 {
		t.Errorf("catalog version = %d, want 2", cat.Version)
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partners.yaml")
	body := "registry_path: from-file.csv\ngeocode_interval: 1500ms\ngeocoder: ors\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PARTNERS_REGISTRY_PATH", "from-env.csv")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.RegistryPath != "from-env.csv" {
		t.Errorf("registry_path = %q, want env value", c.RegistryPath)
	}
	if c.GeocodeInterval != 1500*time.Millisecond {
		t.Errorf("geocode_interval = %v, want 1.5s", c.GeocodeInterval)
	}
	if c.Geocoder != GeocoderORS {
		t.Errorf("geocoder = %q, want ors", c.Geocoder)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		c       Config
		wantErr bool
	}{
		{"sqlite ok", Config{CacheBackend: CacheSQLite, Geocoder: GeocoderNominatim}, false},
		{"postgres without url", Config{CacheBackend: CachePostgres, Geocoder: GeocoderNominatim}, true},
		{"redis with url", Config{CacheBackend: CacheRedis, RedisURL: "redis://localhost:6379/0", Geocoder: GeocoderORS}, false},
		{"unknown backend", Config{CacheBackend: "memcached", Geocoder: GeocoderNominatim}, true},
		{"unknown geocoder", Config{CacheBackend: CacheSQLite, Geocoder: "google"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	body := "version: 3\nprojects:\n  - id: HEAT\n    display_name: HE2AT\n    color: \"#EE3377\"\n  - id: NEWPROJ\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cat, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if got := cat.IDs(); len(got) != 2 || got[1] != "NEWPROJ" {
		t.Fatalf("ids = %v", got)
	}

	dup := filepath.Join(t.TempDir(), "dup.yaml")
	os.WriteFile(dup, []byte("projects:\n  - id: A\n  - id: A\n"), 0o644)
	if _, err := LoadCatalog(dup); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestGet(t *testing.T) {
	t.Setenv("PARTNERS_TEST_GET", "x")
	if got := Get("PARTNERS_TEST_GET", "y"); got != "x" {
		t.Fatalf("Get = %q, want x", got)
	}
	if got := Get("PARTNERS_TEST_UNSET", "y"); got != "y" {
		t.Fatalf("Get = %q, want y", got)
	}
}
