package config

import (
	"errors"
	"fmt"
	"os"
	"partner-registry/internal/domain"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds every setting of the partner registry tools.
type Config struct {
	RegistryPath     string        `mapstructure:"registry_path" yaml:"registry_path"`
	DBPath           string        `mapstructure:"db_path" yaml:"db_path"`
	CacheBackend     string        `mapstructure:"cache_backend" yaml:"cache_backend"`
	DatabaseURL      string        `mapstructure:"database_url" yaml:"database_url"`
	RedisURL         string        `mapstructure:"redis_url" yaml:"redis_url"`
	Geocoder         string        `mapstructure:"geocoder" yaml:"geocoder"`
	NominatimURL     string        `mapstructure:"nominatim_url" yaml:"nominatim_url"`
	ORSAPIKey        string        `mapstructure:"ors_api_key" yaml:"ors_api_key"`
	UserAgent        string        `mapstructure:"user_agent" yaml:"user_agent"`
	GeocodeInterval  time.Duration `mapstructure:"geocode_interval" yaml:"geocode_interval"`
	GeocodeWorkers   int           `mapstructure:"geocode_workers" yaml:"geocode_workers"`
	HTTPTimeout      time.Duration `mapstructure:"http_timeout" yaml:"http_timeout"`
	RetryMaxAttempts int           `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	CatalogPath      string        `mapstructure:"catalog_path" yaml:"catalog_path"`
	Addr             string        `mapstructure:"addr" yaml:"addr"`
}

const (
	CacheSQLite   = "sqlite"
	CachePostgres = "postgres"
	CacheRedis    = "redis"

	GeocoderNominatim = "nominatim"
	GeocoderORS       = "ors"
)

// Load resolves configuration. Precedence: env (PARTNERS_*) > config file >
// defaults. A .env file in the working directory is loaded first when present.
// An empty cfgFile means ./partners.yaml, which is optional.
func Load(cfgFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PARTNERS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("registry_path", "data/partners.csv")
	v.SetDefault("db_path", "data/partners.db")
	v.SetDefault("cache_backend", CacheSQLite)
	v.SetDefault("database_url", Get("DATABASE_URL", ""))
	v.SetDefault("redis_url", Get("REDIS_URL", ""))
	v.SetDefault("geocoder", GeocoderNominatim)
	v.SetDefault("nominatim_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("ors_api_key", "")
	v.SetDefault("user_agent", "partner-registry/1.0")
	v.SetDefault("geocode_interval", time.Second)
	v.SetDefault("geocode_workers", 2)
	v.SetDefault("http_timeout", 10*time.Second)
	v.SetDefault("retry_max_attempts", 4)
	v.SetDefault("catalog_path", "")
	v.SetDefault("addr", ":8080")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", cfgFile, err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("partners")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks enumerated settings and backend prerequisites.
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case CacheSQLite:
	case CachePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("config: cache_backend=postgres requires database_url")
		}
	case CacheRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return errors.New("config: cache_backend=redis requires redis_url")
		}
	default:
		return fmt.Errorf("config: unknown cache_backend %q", c.CacheBackend)
	}

	switch c.Geocoder {
	case GeocoderNominatim, GeocoderORS:
	default:
		return fmt.Errorf("config: unknown geocoder %q", c.Geocoder)
	}

	if c.GeocodeWorkers < 0 {
		return fmt.Errorf("config: geocode_workers must be >= 0, got %d", c.GeocodeWorkers)
	}
	return nil
}

// Catalog returns the project catalog at CatalogPath, or the built-in one.
func (c *Config) Catalog() (*domain.ProjectCatalog, error) {
	if c.CatalogPath == "" {
		return domain.DefaultCatalog(), nil
	}
	return LoadCatalog(c.CatalogPath)
}

// LoadCatalog reads a YAML project catalog.
func LoadCatalog(path string) (*domain.ProjectCatalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: read %q: %w", path, err)
	}

	var cat domain.ProjectCatalog
	if err := yaml.Unmarshal(b, &cat); err != nil {
		return nil, fmt.Errorf("load catalog: parse %q: %w", path, err)
	}
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("load catalog %q: %w", path, err)
	}
	return &cat, nil
}

// Get returns the environment variable key, or fallback when unset or empty.
func Get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
