package config

import (
	"fmt"
	"os"

	"github.com/JaimeStill/folio/pkg/formatting"
	"github.com/JaimeStill/folio/pkg/middleware"
)

const (
	EnvAPIBasePath      = "FOLIO_API_BASE_PATH"
	EnvAPIMaxUploadSize = "FOLIO_API_MAX_UPLOAD_SIZE"
)

var corsEnv = &middleware.CORSEnv{
	Enabled:          "FOLIO_CORS_ENABLED",
	Origins:          "FOLIO_CORS_ORIGINS",
	AllowedMethods:   "FOLIO_CORS_ALLOWED_METHODS",
	AllowedHeaders:   "FOLIO_CORS_ALLOWED_HEADERS",
	AllowCredentials: "FOLIO_CORS_ALLOW_CREDENTIALS",
	MaxAge:           "FOLIO_CORS_MAX_AGE",
}

// APIConfig holds the job API mount point, upload limit, and CORS policy.
type APIConfig struct {
	BasePath      string                `toml:"base_path"`
	MaxUploadSize string                `toml:"max_upload_size"`
	CORS          middleware.CORSConfig `toml:"cors"`
}

// MaxUploadSizeBytes returns the total request size accepted for
// multipart submissions. Finalize guarantees the value parses.
func (c *APIConfig) MaxUploadSizeBytes() int64 {
	size, _ := formatting.ParseBytes(c.MaxUploadSize)
	return size
}

// Finalize applies defaults, environment overrides, and validation for the
// API config and its nested CORS config.
func (c *APIConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.CORS.Finalize(corsEnv); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *APIConfig) Merge(overlay *APIConfig) {
	if overlay.BasePath != "" {
		c.BasePath = overlay.BasePath
	}
	if overlay.MaxUploadSize != "" {
		c.MaxUploadSize = overlay.MaxUploadSize
	}
	c.CORS.Merge(&overlay.CORS)
}

func (c *APIConfig) loadDefaults() {
	if c.BasePath == "" {
		c.BasePath = "/api"
	}
	if c.MaxUploadSize == "" {
		c.MaxUploadSize = "100MB"
	}
}

func (c *APIConfig) loadEnv() {
	if v := os.Getenv(EnvAPIBasePath); v != "" {
		c.BasePath = v
	}
	if v := os.Getenv(EnvAPIMaxUploadSize); v != "" {
		c.MaxUploadSize = v
	}
}

func (c *APIConfig) validate() error {
	size, err := formatting.ParseBytes(c.MaxUploadSize)
	if err != nil {
		return fmt.Errorf("invalid max_upload_size: %w", err)
	}
	if size <= 0 {
		return fmt.Errorf("max_upload_size must be positive")
	}
	return nil
}
