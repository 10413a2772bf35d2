package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// FLOWBRIDGE_STORE_BACKEND=redis.
const EnvPrefix = "FLOWBRIDGE"

// Store backends.
const (
	StoreNone     = "none"
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Settings is the full process configuration.
type Settings struct {
	Log       LogSettings       `mapstructure:"log"`
	Executor  ExecutorSettings  `mapstructure:"executor"`
	Store     StoreSettings     `mapstructure:"store"`
	Metrics   MetricsSettings   `mapstructure:"metrics"`
	Tracing   TracingSettings   `mapstructure:"tracing"`
	Dashboard DashboardSettings `mapstructure:"dashboard"`
	Mapping   MappingSettings   `mapstructure:"mapping"`
	Server    ServerSettings    `mapstructure:"server"`
}

type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ExecutorSettings tune how runs are driven. The address is the default
// remote executor for subflow nodes when a flow file names none.
type ExecutorSettings struct {
	Workers int         `mapstructure:"workers"`
	Address AddressSpec `mapstructure:"address"`
}

type AddressSpec struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	SSL  bool   `mapstructure:"ssl"`
}

type StoreSettings struct {
	Backend  string           `mapstructure:"backend"`
	Redis    RedisSettings    `mapstructure:"redis"`
	Postgres PostgresSettings `mapstructure:"postgres"`
}

type RedisSettings struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type PostgresSettings struct {
	DSN string `mapstructure:"dsn"`
}

type MetricsSettings struct {
	Enabled bool `mapstructure:"enabled"`
}

type TracingSettings struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

type DashboardSettings struct {
	URL                string        `mapstructure:"url"`
	Namespace          string        `mapstructure:"namespace"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout"`
}

// MappingSettings locate the value-map tables used by mapper nodes.
// Preload names tables to read at startup instead of on first use.
type MappingSettings struct {
	Dir     string   `mapstructure:"dir"`
	Preload []string `mapstructure:"preload"`
}

// ServerSettings configure the listeners. A zero HealthcheckPort disables
// the health check server; Listen is used by "flowbridge serve".
type ServerSettings struct {
	Listen          string `mapstructure:"listen"`
	HealthcheckPort int    `mapstructure:"healthcheck_port"`
}

// defaults also declares every key, which lets AutomaticEnv reach keys
// that no settings file mentions.
var defaults = map[string]any{
	"log.level":                      "info",
	"log.format":                     "json",
	"executor.workers":               1,
	"executor.address.host":          "",
	"executor.address.port":          0,
	"executor.address.ssl":           false,
	"store.backend":                  StoreMemory,
	"store.redis.addr":               "localhost:6379",
	"store.redis.password":           "",
	"store.redis.db":                 0,
	"store.redis.prefix":             "flowbridge",
	"store.redis.ttl":                "168h",
	"store.postgres.dsn":             "",
	"metrics.enabled":                true,
	"tracing.enabled":                false,
	"tracing.endpoint":               "localhost:4318",
	"tracing.insecure":               true,
	"tracing.service_name":           "flowbridge",
	"dashboard.url":                  "",
	"dashboard.namespace":            "/",
	"dashboard.insecure_skip_verify": false,
	"dashboard.connect_timeout":      "10s",
	"mapping.dir":                    "mappings",
	"mapping.preload":                []string{},
	"server.listen":                  ":8080",
	"server.healthcheck_port":        0,
}

// New returns a viper instance carrying the defaults and environment
// bindings, ready for a settings file to be merged in.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the settings file at path, if any, and applies environment
// overrides and defaults.
func Load(path string) (*Settings, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading settings file: %w", err)
		}
	}
	return Decode(v)
}

// Decode unmarshals and validates the settings held by v.
func Decode(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	s.Log.Level = strings.ToLower(s.Log.Level)
	s.Log.Format = strings.ToLower(s.Log.Format)
	s.Store.Backend = strings.ToLower(s.Store.Backend)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate reports every invalid field at once.
func (s *Settings) Validate() error {
	var errs []error
	switch s.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", s.Log.Level))
	}
	if s.Log.Format != "text" && s.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", s.Log.Format))
	}
	if s.Executor.Workers < 1 {
		errs = append(errs, fmt.Errorf("executor workers must be at least 1, got %d", s.Executor.Workers))
	}
	if a := s.Executor.Address; (a.Host == "") != (a.Port == 0) {
		errs = append(errs, errors.New("executor address needs both host and port"))
	}
	switch s.Store.Backend {
	case StoreNone, StoreMemory:
	case StoreRedis:
		if s.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for the redis backend"))
		}
	case StorePostgres:
		if s.Store.Postgres.DSN == "" {
			errs = append(errs, errors.New("store.postgres.dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", s.Store.Backend))
	}
	if s.Tracing.Enabled && s.Tracing.Endpoint == "" {
		errs = append(errs, errors.New("tracing.endpoint is required when tracing is enabled"))
	}
	if s.Server.HealthcheckPort < 0 {
		errs = append(errs, fmt.Errorf("invalid healthcheck port %d", s.Server.HealthcheckPort))
	}
	return errors.Join(errs...)
}
