package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the top-level application configuration.
type Config struct {
	App      AppConfig                 `koanf:"app"`
	Server   ServerConfig              `koanf:"server"`
	Log      LogConfig                 `koanf:"log"`
	Metrics  MetricsConfig             `koanf:"metrics"`
	Tracing  TracingConfig             `koanf:"tracing"`
	Database DatabaseConfig            `koanf:"database"`
	Modules  map[string]map[string]any `koanf:"modules"`
}

// AppConfig holds process-wide identity settings.
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
	Debug       bool   `koanf:"debug"`
}

// ServerConfig holds host-level settings shared by all modules.
type ServerConfig struct {
	HomeDir string `koanf:"home_dir"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string `koanf:"level"`  // debug, info, warn, error
	Format     string `koanf:"format"` // json, text
	Output     string `koanf:"output"` // stdout, stderr, file
	FilePath   string `koanf:"file_path"`
	MaxSize    int    `koanf:"max_size"` // MB
	MaxBackups int    `koanf:"max_backups"`
	MaxAge     int    `koanf:"max_age"` // days
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// DatabaseConfig is the global database section: named server entries that
// module-level configs may reference by name.
type DatabaseConfig struct {
	Servers map[string]DBServerConfig `koanf:"servers"`
}

// DBServerConfig describes one named database server entry.
type DBServerConfig struct {
	DSN      string            `koanf:"dsn"`
	Host     string            `koanf:"host"`
	Port     int               `koanf:"port"`
	User     string            `koanf:"user"`
	Password string            `koanf:"password"`
	DBName   string            `koanf:"dbname"`
	Params   map[string]string `koanf:"params"`
}

// PoolConfig tunes a module's connection pool.
type PoolConfig struct {
	MaxConns       int           `koanf:"max_conns"`
	AcquireTimeout time.Duration `koanf:"acquire_timeout"`
}

// Validate checks internal consistency of the configuration.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}

	switch c.Log.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid log.format %q", c.Log.Format)
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be within [0, 1], got %v", c.Tracing.SampleRate)
	}

	for name := range c.Database.Servers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("database.servers contains an entry with an empty name")
		}
	}

	return nil
}

// IsDevelopment reports whether the app runs in a development environment.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction reports whether the app runs in a production environment.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}
