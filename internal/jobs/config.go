package jobs

import (
	"fmt"
	"os"
	"time"
)

// Store backends accepted by Config.Store.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds job store selection and retention housekeeping settings.
type Config struct {
	Store         string `toml:"store"`
	Retention     string `toml:"retention"`
	SweepInterval string `toml:"sweep_interval"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Store         string
	Retention     string
	SweepInterval string
}

// RetentionDuration returns Retention as a time.Duration.
func (c *Config) RetentionDuration() time.Duration {
	d, _ := time.ParseDuration(c.Retention)
	return d
}

// SweepIntervalDuration returns SweepInterval as a time.Duration.
func (c *Config) SweepIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.SweepInterval)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Store != "" {
		c.Store = overlay.Store
	}
	if overlay.Retention != "" {
		c.Retention = overlay.Retention
	}
	if overlay.SweepInterval != "" {
		c.SweepInterval = overlay.SweepInterval
	}
}

func (c *Config) loadDefaults() {
	if c.Store == "" {
		c.Store = StoreMemory
	}
	if c.Retention == "" {
		c.Retention = "30m"
	}
	if c.SweepInterval == "" {
		c.SweepInterval = "10m"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Store != "" {
		if v := os.Getenv(env.Store); v != "" {
			c.Store = v
		}
	}
	if env.Retention != "" {
		if v := os.Getenv(env.Retention); v != "" {
			c.Retention = v
		}
	}
	if env.SweepInterval != "" {
		if v := os.Getenv(env.SweepInterval); v != "" {
			c.SweepInterval = v
		}
	}
}

func (c *Config) validate() error {
	if c.Store != StoreMemory && c.Store != StorePostgres {
		return fmt.Errorf("%w: %q", ErrUnknownStore, c.Store)
	}
	if d, err := time.ParseDuration(c.Retention); err != nil || d <= 0 {
		return fmt.Errorf("invalid retention: %q", c.Retention)
	}
	if d, err := time.ParseDuration(c.SweepInterval); err != nil || d <= 0 {
		return fmt.Errorf("invalid sweep_interval: %q", c.SweepInterval)
	}
	return nil
}
