package storage

import (
	"fmt"
	"os"
)

// Backend names accepted by Config.Backend.
const (
	BackendFilesystem = "filesystem"
	BackendAzure      = "azure"
)

// Config selects and parameterizes the blob backend.
type Config struct {
	Backend          string `toml:"backend"`
	Root             string `toml:"root"`
	ContainerName    string `toml:"container_name"`
	ConnectionString string `toml:"connection_string"`
	ServiceURL       string `toml:"service_url"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Backend          string
	Root             string
	ContainerName    string
	ConnectionString string
	ServiceURL       string
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
	if overlay.Backend != "" {
		c.Backend = overlay.Backend
	}
	if overlay.Root != "" {
		c.Root = overlay.Root
	}
	if overlay.ContainerName != "" {
		c.ContainerName = overlay.ContainerName
	}
	if overlay.ConnectionString != "" {
		c.ConnectionString = overlay.ConnectionString
	}
	if overlay.ServiceURL != "" {
		c.ServiceURL = overlay.ServiceURL
	}
}

func (c *Config) loadDefaults() {
	if c.Backend == "" {
		c.Backend = BackendFilesystem
	}
	if c.Root == "" {
		c.Root = ".data/blobs"
	}
	if c.ContainerName == "" {
		c.ContainerName = "folio"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Backend != "" {
		if v := os.Getenv(env.Backend); v != "" {
			c.Backend = v
		}
	}
	if env.Root != "" {
		if v := os.Getenv(env.Root); v != "" {
			c.Root = v
		}
	}
	if env.ContainerName != "" {
		if v := os.Getenv(env.ContainerName); v != "" {
			c.ContainerName = v
		}
	}
	if env.ConnectionString != "" {
		if v := os.Getenv(env.ConnectionString); v != "" {
			c.ConnectionString = v
		}
	}
	if env.ServiceURL != "" {
		if v := os.Getenv(env.ServiceURL); v != "" {
			c.ServiceURL = v
		}
	}
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendFilesystem:
		if c.Root == "" {
			return fmt.Errorf("root required for %s backend", c.Backend)
		}
	case BackendAzure:
		if c.ContainerName == "" {
			return fmt.Errorf("container_name required")
		}
		if c.ConnectionString == "" && c.ServiceURL == "" {
			return fmt.Errorf("connection_string or service_url required for %s backend", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}
