package pipeline

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Stage names, also used as keys of Config.Stages.
const (
	StageRasterize = "rasterize_to_images"
	StageCompose   = "compose_slides_from_images"
	StageEmit      = "emit_slide_file"
	StageValidate  = "validate_images"
	StageManifest  = "build_manifest"
	StageAssemble  = "assemble_package"
)

var stageNames = []string{
	StageRasterize, StageCompose, StageEmit,
	StageValidate, StageManifest, StageAssemble,
}

// Config holds worker pool, engine, and per-stage retry settings.
type Config struct {
	Workers        int                    `toml:"workers"`
	WorkDir        string                 `toml:"work_dir"`
	MaxImages      int                    `toml:"max_images"`
	DiagnosticsCap int                    `toml:"diagnostics_cap"`
	DPI            int                    `toml:"dpi"`
	Tools          ToolsConfig            `toml:"tools"`
	Stages         map[string]StageConfig `toml:"stages"`
}

// ToolsConfig names the external engine programs.
type ToolsConfig struct {
	Rasterizer     string `toml:"rasterizer"`
	Converter      string `toml:"converter"`
	ConvertTimeout string `toml:"convert_timeout"`
}

// StageConfig bounds one stage. MaxRetries is a pointer so that an explicit
// zero survives Merge.
type StageConfig struct {
	Timeout    string `toml:"timeout"`
	MaxRetries *int   `toml:"max_retries"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Workers    string
	WorkDir    string
	MaxImages  string
	DPI        string
	Rasterizer string
	Converter  string
}

// TimeoutFor returns the invocation timeout of the named stage.
func (c *Config) TimeoutFor(stage string) time.Duration {
	d, _ := time.ParseDuration(c.Stages[stage].Timeout)
	return d
}

// RetriesFor returns the retry budget of the named stage.
func (c *Config) RetriesFor(stage string) int {
	if r := c.Stages[stage].MaxRetries; r != nil {
		return *r
	}
	return defaultRetries
}

// ConvertTimeout returns the document conversion timeout.
func (c *Config) ConvertTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Tools.ConvertTimeout)
	return d
}

// Programs returns the configured engine programs by role.
func (c *Config) Programs() map[string]string {
	return map[string]string{
		"rasterizer": c.Tools.Rasterizer,
		"converter":  c.Tools.Converter,
	}
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay. Stage entries merge per field.
func (c *Config) Merge(overlay *Config) {
	if overlay.Workers > 0 {
		c.Workers = overlay.Workers
	}
	if overlay.WorkDir != "" {
		c.WorkDir = overlay.WorkDir
	}
	if overlay.MaxImages > 0 {
		c.MaxImages = overlay.MaxImages
	}
	if overlay.DiagnosticsCap > 0 {
		c.DiagnosticsCap = overlay.DiagnosticsCap
	}
	if overlay.DPI > 0 {
		c.DPI = overlay.DPI
	}
	if overlay.Tools.Rasterizer != "" {
		c.Tools.Rasterizer = overlay.Tools.Rasterizer
	}
	if overlay.Tools.Converter != "" {
		c.Tools.Converter = overlay.Tools.Converter
	}
	if overlay.Tools.ConvertTimeout != "" {
		c.Tools.ConvertTimeout = overlay.Tools.ConvertTimeout
	}

	for name, o := range overlay.Stages {
		if c.Stages == nil {
			c.Stages = make(map[string]StageConfig)
		}
		s := c.Stages[name]
		if o.Timeout != "" {
			s.Timeout = o.Timeout
		}
		if o.MaxRetries != nil {
			r := *o.MaxRetries
			s.MaxRetries = &r
		}
		c.Stages[name] = s
	}
}

const defaultRetries = 1

var defaultTimeouts = map[string]string{
	StageRasterize: "2m",
	StageCompose:   "1m",
	StageEmit:      "1m",
	StageValidate:  "1m",
	StageManifest:  "1m",
	StageAssemble:  "1m",
}

func (c *Config) loadDefaults() {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.WorkDir == "" {
		c.WorkDir = os.TempDir()
	}
	if c.MaxImages <= 0 {
		c.MaxImages = 200
	}
	if c.DiagnosticsCap <= 0 {
		c.DiagnosticsCap = 16 * 1024
	}
	if c.DPI <= 0 {
		c.DPI = 150
	}
	if c.Tools.Rasterizer == "" {
		c.Tools.Rasterizer = "pdftoppm"
	}
	if c.Tools.Converter == "" {
		c.Tools.Converter = "soffice"
	}
	if c.Tools.ConvertTimeout == "" {
		c.Tools.ConvertTimeout = "5m"
	}

	if c.Stages == nil {
		c.Stages = make(map[string]StageConfig)
	}
	for _, name := range stageNames {
		s := c.Stages[name]
		if s.Timeout == "" {
			s.Timeout = defaultTimeouts[name]
		}
		c.Stages[name] = s
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Workers != "" {
		if v := os.Getenv(env.Workers); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.Workers = n
			}
		}
	}
	if env.WorkDir != "" {
		if v := os.Getenv(env.WorkDir); v != "" {
			c.WorkDir = v
		}
	}
	if env.MaxImages != "" {
		if v := os.Getenv(env.MaxImages); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.MaxImages = n
			}
		}
	}
	if env.DPI != "" {
		if v := os.Getenv(env.DPI); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.DPI = n
			}
		}
	}
	if env.Rasterizer != "" {
		if v := os.Getenv(env.Rasterizer); v != "" {
			c.Tools.Rasterizer = v
		}
	}
	if env.Converter != "" {
		if v := os.Getenv(env.Converter); v != "" {
			c.Tools.Converter = v
		}
	}
}

func (c *Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive: %d", c.Workers)
	}
	if c.MaxImages < 1 {
		return fmt.Errorf("max_images must be positive: %d", c.MaxImages)
	}
	if d, err := time.ParseDuration(c.Tools.ConvertTimeout); err != nil || d <= 0 {
		return fmt.Errorf("invalid tools.convert_timeout: %q", c.Tools.ConvertTimeout)
	}

	for name, s := range c.Stages {
		if d, err := time.ParseDuration(s.Timeout); err != nil || d <= 0 {
			return fmt.Errorf("invalid stages.%s.timeout: %q", name, s.Timeout)
		}
		if s.MaxRetries != nil && *s.MaxRetries < 0 {
			return fmt.Errorf("stages.%s.max_retries must not be negative", name)
		}
	}
	return nil
}
