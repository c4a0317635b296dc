// Package config composes the service configuration from a TOML base file,
// an optional environment overlay, and FOLIO_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/folio/internal/jobs"
	"github.com/JaimeStill/folio/internal/pipeline"
	"github.com/JaimeStill/folio/pkg/database"
	"github.com/JaimeStill/folio/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvFolioEnv             = "FOLIO_ENV"
	EnvFolioShutdownTimeout = "FOLIO_SHUTDOWN_TIMEOUT"
	EnvFolioVersion         = "FOLIO_VERSION"
	EnvFolioLogLevel        = "FOLIO_LOG_LEVEL"
)

var databaseEnv = &database.Env{
	Host:            "FOLIO_DB_HOST",
	Port:            "FOLIO_DB_PORT",
	Name:            "FOLIO_DB_NAME",
	User:            "FOLIO_DB_USER",
	Password:        "FOLIO_DB_PASSWORD",
	SSLMode:         "FOLIO_DB_SSL_MODE",
	MaxOpenConns:    "FOLIO_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "FOLIO_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "FOLIO_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "FOLIO_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	Backend:          "FOLIO_STORAGE_BACKEND",
	Root:             "FOLIO_STORAGE_ROOT",
	ContainerName:    "FOLIO_STORAGE_CONTAINER_NAME",
	ConnectionString: "FOLIO_STORAGE_CONNECTION_STRING",
	ServiceURL:       "FOLIO_STORAGE_SERVICE_URL",
}

var jobsEnv = &jobs.Env{
	Store:         "FOLIO_JOBS_STORE",
	Retention:     "FOLIO_JOBS_RETENTION",
	SweepInterval: "FOLIO_JOBS_SWEEP_INTERVAL",
}

var pipelineEnv = &pipeline.Env{
	Workers:    "FOLIO_PIPELINE_WORKERS",
	WorkDir:    "FOLIO_PIPELINE_WORK_DIR",
	MaxImages:  "FOLIO_PIPELINE_MAX_IMAGES",
	DPI:        "FOLIO_PIPELINE_DPI",
	Rasterizer: "FOLIO_PIPELINE_RASTERIZER",
	Converter:  "FOLIO_PIPELINE_CONVERTER",
}

// Config is the root configuration for the folio service and CLI.
type Config struct {
	Server          ServerConfig    `toml:"server"`
	API             APIConfig       `toml:"api"`
	Storage         storage.Config  `toml:"storage"`
	Database        database.Config `toml:"database"`
	Jobs            jobs.Config     `toml:"jobs"`
	Pipeline        pipeline.Config `toml:"pipeline"`
	ShutdownTimeout string          `toml:"shutdown_timeout"`
	LogLevel        string          `toml:"log_level"`
	Version         string          `toml:"version"`
}

// Env returns the FOLIO_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvFolioEnv); env != "" {
		return env
	}
	return "local"
}

func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Level returns LogLevel as an slog.Level.
func (c *Config) Level() slog.Level {
	var level slog.Level
	level.UnmarshalText([]byte(c.LogLevel))
	return level
}

// UsesDatabase reports whether the configured job store needs PostgreSQL.
func (c *Config) UsesDatabase() bool {
	return c.Jobs.Store == jobs.StorePostgres
}

// Load reads config.toml from the working directory. See LoadFrom.
func Load() (*Config, error) {
	return LoadFrom(BaseConfigFile)
}

// LoadFrom reads the base config at path if it exists, merges the
// config.<FOLIO_ENV>.toml overlay found beside it, and finalizes every
// section. With no files present, defaults and environment variables
// supply the whole configuration.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(path); err == nil {
		loaded, err := load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if overlay := overlayPath(filepath.Dir(path)); overlay != "" {
		o, err := load(overlay)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", overlay, err)
		}
		cfg.Merge(o)
	}

	if err := cfg.Finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}
	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sections.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.LogLevel != "" {
		c.LogLevel = overlay.LogLevel
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.API.Merge(&overlay.API)
	c.Storage.Merge(&overlay.Storage)
	c.Database.Merge(&overlay.Database)
	c.Jobs.Merge(&overlay.Jobs)
	c.Pipeline.Merge(&overlay.Pipeline)
}

// Finalize applies defaults, environment overrides, and validation to every
// section. The database section is only finalized when the job store
// requires it.
func (c *Config) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Jobs.Finalize(jobsEnv); err != nil {
		return fmt.Errorf("jobs: %w", err)
	}
	if c.UsesDatabase() {
		if err := c.Database.Finalize(databaseEnv); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if err := c.Pipeline.Finalize(pipelineEnv); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvFolioShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvFolioLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvFolioVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log_level: %q", c.LogLevel)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func overlayPath(dir string) string {
	if env := os.Getenv(EnvFolioEnv); env != "" {
		path := filepath.Join(dir, fmt.Sprintf(OverlayConfigPattern, env))
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
