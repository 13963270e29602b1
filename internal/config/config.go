// Package config loads service configuration from an optional .env file, an
// optional YAML file named by CONFIG_FILE, and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable holding the YAML config path.
const FileEnv = "CONFIG_FILE"

// Config is the full service configuration.
type Config struct {
	App           AppConfig           `yaml:"app"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Auth          AuthConfig          `yaml:"auth"`
	CORS          CORSConfig          `yaml:"cors"`
	Storage       StorageConfig       `yaml:"storage"`
	Redis         RedisConfig         `yaml:"redis"`
	OpenChargeMap OpenChargeMapConfig `yaml:"openchargemap"`
	Geolocation   GeolocationConfig   `yaml:"geolocation"`
	Map           MapConfig           `yaml:"map"`
	Worker        WorkerConfig        `yaml:"worker"`
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Port string `yaml:"port" env:"APP_PORT"`
	Env  string `yaml:"env" env:"APP_ENV"`

	// RequireTLS rejects plain HTTP forwarded by the load balancer.
	RequireTLS bool `yaml:"require_tls" env:"REQUIRE_TLS"`
}

// TelemetryConfig holds OpenTelemetry exporter settings.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled" env:"OTEL_ENABLED"`
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// SampleRatio is the fraction of new root traces recorded, in [0, 1].
	SampleRatio float64 `yaml:"sample_ratio" env:"OTEL_TRACES_SAMPLER_ARG"`

	// ExportInterval is how often metrics are pushed to the collector.
	ExportInterval time.Duration `yaml:"export_interval" env:"OTEL_METRIC_EXPORT_INTERVAL"`
}

// AuthConfig holds token validation settings.
type AuthConfig struct {
	JWTSigningKey string `yaml:"jwt_signing_key" env:"JWT_SIGNING_KEY"`
	JWTIssuer     string `yaml:"jwt_issuer" env:"JWT_ISSUER"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
}

// StorageConfig selects the first-party station and feature flag store.
type StorageConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `yaml:"driver" env:"STORAGE_DRIVER"`

	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds the connection settings for the "postgres" driver.
type PostgresConfig struct {
	// URL takes precedence over the individual fields when set.
	URL string `yaml:"url" env:"DATABASE_URL"`

	Host     string `yaml:"host" env:"DB_HOST"`
	Port     int    `yaml:"port" env:"DB_PORT"`
	User     string `yaml:"user" env:"DB_USER"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	Database string `yaml:"database" env:"DB_NAME"`
	SSLMode  string `yaml:"ssl_mode" env:"DB_SSL_MODE"`

	MaxConns        int           `yaml:"max_conns" env:"DB_MAX_CONNS"`
	MinConns        int           `yaml:"min_conns" env:"DB_MIN_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME"`

	// AutoMigrate creates missing tables at startup.
	AutoMigrate bool `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE"`
}

// RedisConfig configures the geodata cache. An empty Addr selects the
// in-process cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	TTL      time.Duration `yaml:"ttl" env:"GEODATA_CACHE_TTL"`
	StaleTTL time.Duration `yaml:"stale_ttl" env:"GEODATA_CACHE_STALE_TTL"`
}

// OpenChargeMapConfig configures the third-party geodata provider.
type OpenChargeMapConfig struct {
	BaseURL     string        `yaml:"base_url" env:"OCM_BASE_URL"`
	APIKey      string        `yaml:"api_key" env:"OCM_API_KEY"`
	CountryCode string        `yaml:"country_code" env:"OCM_COUNTRY_CODE"`
	MaxResults  int           `yaml:"max_results" env:"OCM_MAX_RESULTS"`
	Timeout     time.Duration `yaml:"timeout" env:"OCM_TIMEOUT"`
}

// GeolocationConfig configures the IP geolocation provider.
type GeolocationConfig struct {
	BaseURL string        `yaml:"base_url" env:"GEOLOCATION_BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"GEOLOCATION_TIMEOUT"`
}

// MapConfig configures map sessions.
type MapConfig struct {
	DebounceInterval time.Duration `yaml:"debounce_interval" env:"MAP_DEBOUNCE_INTERVAL"`
	LocateTimeout    time.Duration `yaml:"locate_timeout" env:"MAP_LOCATE_TIMEOUT"`
	SessionIdleTTL   time.Duration `yaml:"session_idle_ttl" env:"MAP_SESSION_IDLE_TTL"`
	MaxSessions      int           `yaml:"max_sessions" env:"MAP_MAX_SESSIONS"`
}

// WorkerConfig configures the cache-warming worker.
type WorkerConfig struct {
	ProjectID        string        `yaml:"project_id" env:"GCP_PROJECT_ID"`
	SubscriptionName string        `yaml:"subscription" env:"PUBSUB_SUBSCRIPTION"`
	Concurrency      int           `yaml:"concurrency" env:"WORKER_CONCURRENCY"`
	Timeout          time.Duration `yaml:"timeout" env:"WORKER_TIMEOUT"`

	// TargetsFile is a YAML file of refresh targets. Empty uses the built-in set.
	TargetsFile string `yaml:"targets_file" env:"WORKER_TARGETS_FILE"`

	// Interval runs a full refresh periodically when no Pub/Sub project is set.
	Interval time.Duration `yaml:"interval" env:"WORKER_INTERVAL"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		App: AppConfig{
			Port: "8080",
			Env:  "development",
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint:   "localhost:4317",
			SampleRatio:    1,
			ExportInterval: 15 * time.Second,
		},
		Auth: AuthConfig{
			JWTIssuer: "autoplaza",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Storage: StorageConfig{
			Driver: "postgres",
			Postgres: PostgresConfig{
				Host:            "localhost",
				Port:            5432,
				User:            "autoplaza",
				Password:        "localdev",
				Database:        "autoplaza",
				SSLMode:         "disable",
				MaxConns:        10,
				MinConns:        2,
				ConnMaxLifetime: 5 * time.Minute,
				AutoMigrate:     true,
			},
		},
		Redis: RedisConfig{
			TTL:      5 * time.Minute,
			StaleTTL: time.Hour,
		},
		OpenChargeMap: OpenChargeMapConfig{
			BaseURL:     "https://api.openchargemap.io/v3",
			CountryCode: "NL",
			MaxResults:  500,
			Timeout:     15 * time.Second,
		},
		Geolocation: GeolocationConfig{
			BaseURL: "http://ip-api.com",
			Timeout: 10 * time.Second,
		},
		Map: MapConfig{
			DebounceInterval: 450 * time.Millisecond,
			LocateTimeout:    10 * time.Second,
			SessionIdleTTL:   30 * time.Minute,
			MaxSessions:      1000,
		},
		Worker: WorkerConfig{
			SubscriptionName: "station-cache-refresh-sub",
			Concurrency:      3,
			Timeout:          30 * time.Second,
			Interval:         5 * time.Minute,
		},
	}
}

// Load reads .env (if present), then the YAML file named by CONFIG_FILE (if
// set), then environment overrides, on top of Default.
func Load() (Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load() //nolint:errcheck // optional file

	cfg := Default()
	if path := os.Getenv(FileEnv); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := populateFromEnv(reflect.ValueOf(&cfg).Elem(), ""); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail at first use.
func (c Config) Validate() error {
	var errs []error
	if c.App.Port == "" {
		errs = append(errs, errors.New("app.port is required"))
	}
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be postgres or memory, got %q", c.Storage.Driver))
	}
	if c.Storage.Driver == "postgres" {
		pg := c.Storage.Postgres
		if pg.MaxConns <= 0 || pg.MinConns < 0 || pg.MinConns > pg.MaxConns {
			errs = append(errs, fmt.Errorf("storage.postgres: need 0 <= min_conns <= max_conns and max_conns > 0, got %d/%d", pg.MinConns, pg.MaxConns))
		}
	}
	if c.OpenChargeMap.BaseURL == "" {
		errs = append(errs, errors.New("openchargemap.base_url is required"))
	}
	if c.OpenChargeMap.MaxResults <= 0 {
		errs = append(errs, errors.New("openchargemap.max_results must be positive"))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_ratio must be within [0, 1], got %v", c.Telemetry.SampleRatio))
	}
	if c.Map.DebounceInterval <= 0 {
		errs = append(errs, errors.New("map.debounce_interval must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func loadFile(path string, target *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read file: %w", err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// populateFromEnv overrides fields from environment variables. Fields use
// their `env` tag, or PARENT_FIELD when untagged.
func populateFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		fieldVal := v.Field(i)
		fieldType := t.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		rawKey := fieldType.Tag.Get("env")
		if rawKey == "-" {
			continue
		}

		envKey := normalizeKey(prefix, fieldType.Name)
		if rawKey != "" {
			envKey = normalizeKey("", rawKey)
		}

		if fieldVal.Kind() == reflect.Struct {
			if err := populateFromEnv(fieldVal, envKey); err != nil {
				return err
			}
			continue
		}

		if val, ok := os.LookupEnv(envKey); ok && val != "" {
			if err := assign(fieldVal, val); err != nil {
				return fmt.Errorf("config: parse %s: %w", envKey, err)
			}
		}
	}
	return nil
}

func normalizeKey(prefix, key string) string {
	key = strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
	if prefix == "" {
		return key
	}
	return prefix + "_" + key
}

var durationType = reflect.TypeOf(time.Duration(0))

func assign(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(parsed)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		parsed, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(parsed)
	case reflect.Float32, reflect.Float64:
		parsed, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(parsed)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		var items []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}
