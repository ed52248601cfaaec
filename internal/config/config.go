package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "AGRO"

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config holds all application configuration.
// Precedence: environment > config file > .env > defaults.
type Config struct {
	// Server
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Persistence
	StoreBackend   string        `mapstructure:"store_backend"`
	DatabaseURL    string        `mapstructure:"database_url"`
	DBMaxConns     int           `mapstructure:"db_max_conns"`
	DBMinConns     int           `mapstructure:"db_min_conns"`
	DBMaxConnLife  time.Duration `mapstructure:"db_max_conn_lifetime"`
	DBMaxConnIdle  time.Duration `mapstructure:"db_max_conn_idle_time"`
	MigrateOnStart bool          `mapstructure:"migrate_on_start"`

	// Geography reference data
	GeographyAPIURL   string        `mapstructure:"geography_api_url"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
	GeographyCacheTTL time.Duration `mapstructure:"geography_cache_ttl"`

	// Resilience
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`

	// Cache
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	// Observability
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("shutdown_timeout", 10*time.Second)

	v.SetDefault("store_backend", BackendMemory)
	v.SetDefault("database_url", "")
	v.SetDefault("db_max_conns", 10)
	v.SetDefault("db_min_conns", 2)
	v.SetDefault("db_max_conn_lifetime", time.Hour)
	v.SetDefault("db_max_conn_idle_time", 30*time.Minute)
	v.SetDefault("migrate_on_start", true)

	v.SetDefault("geography_api_url", "")
	v.SetDefault("http_timeout", 5*time.Second)
	v.SetDefault("geography_cache_ttl", 24*time.Hour)

	v.SetDefault("max_retries", 3)
	v.SetDefault("initial_backoff", 100*time.Millisecond)
	v.SetDefault("max_concurrency", 50)

	v.SetDefault("cache_ttl", 5*time.Minute)

	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("service_name", "agro-pricing")
}

// Load reads configuration. configPath may be empty, in which case a
// config.yaml is looked up in . and ./config; a missing file is fine.
// A .env file (path from AGRO_ENV_FILE, default ".env") is merged below
// the environment when present.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	envFile := os.Getenv(EnvPrefix + "_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := mergeDotEnv(v, envFile); err != nil {
		return nil, err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeDotEnv loads KEY=VALUE pairs as defaults. Keys may carry the
// AGRO_ prefix or not.
func mergeDotEnv(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	prefix := strings.ToLower(EnvPrefix) + "_"
	for _, key := range env.AllKeys() {
		v.SetDefault(strings.TrimPrefix(key, prefix), env.Get(key))
	}
	return nil
}

// Validate rejects combinations the process cannot start with.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: database_url is required for the %s backend", BackendPostgres)
		}
	default:
		return fmt.Errorf("config: unknown store_backend %q", c.StoreBackend)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: max_retries must be >= 0")
	}
	return nil
}
