package database

import (
	"cmp"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"
)

const applicationName = "folio"

// Config holds PostgreSQL connection parameters for the shared job store.
type Config struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	Name            string `toml:"name"`
	User            string `toml:"user"`
	Password        string `toml:"password"`
	SSLMode         string `toml:"ssl_mode"`
	MaxOpenConns    int    `toml:"max_open_conns"`
	MaxIdleConns    int    `toml:"max_idle_conns"`
	ConnMaxLifetime string `toml:"conn_max_lifetime"`
	ConnTimeout     string `toml:"conn_timeout"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    string
	MaxIdleConns    string
	ConnMaxLifetime string
	ConnTimeout     string
}

// ConnMaxLifetimeDuration returns ConnMaxLifetime as a time.Duration.
func (c *Config) ConnMaxLifetimeDuration() time.Duration {
	d, _ := time.ParseDuration(c.ConnMaxLifetime)
	return d
}

// ConnTimeoutDuration returns ConnTimeout as a time.Duration.
func (c *Config) ConnTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ConnTimeout)
	return d
}

// Dsn returns a keyword/value connection string for the pgx driver.
func (c *Config) Dsn() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s application_name=%s",
		c.Host, c.Port, c.Name, c.User, c.Password, c.SSLMode, applicationName,
	)
}

// URL returns the connection as a postgres:// URL, the form migration
// drivers expect.
func (c *Config) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites fields that are set in overlay.
func (c *Config) Merge(overlay *Config) {
	setString(&c.Host, overlay.Host)
	setInt(&c.Port, overlay.Port)
	setString(&c.Name, overlay.Name)
	setString(&c.User, overlay.User)
	setString(&c.Password, overlay.Password)
	setString(&c.SSLMode, overlay.SSLMode)
	setInt(&c.MaxOpenConns, overlay.MaxOpenConns)
	setInt(&c.MaxIdleConns, overlay.MaxIdleConns)
	setString(&c.ConnMaxLifetime, overlay.ConnMaxLifetime)
	setString(&c.ConnTimeout, overlay.ConnTimeout)
}

func (c *Config) loadDefaults() {
	c.Host = cmp.Or(c.Host, "localhost")
	c.Port = cmp.Or(c.Port, 5432)
	c.SSLMode = cmp.Or(c.SSLMode, "disable")
	c.MaxOpenConns = cmp.Or(c.MaxOpenConns, 10)
	c.MaxIdleConns = cmp.Or(c.MaxIdleConns, 4)
	c.ConnMaxLifetime = cmp.Or(c.ConnMaxLifetime, "15m")
	c.ConnTimeout = cmp.Or(c.ConnTimeout, "5s")
}

// loadEnv applies every variable named in env that is set. Integer
// variables that do not parse are ignored.
func (c *Config) loadEnv(env *Env) {
	setString(&c.Host, lookup(env.Host))
	setEnvInt(&c.Port, env.Port)
	setString(&c.Name, lookup(env.Name))
	setString(&c.User, lookup(env.User))
	setString(&c.Password, lookup(env.Password))
	setString(&c.SSLMode, lookup(env.SSLMode))
	setEnvInt(&c.MaxOpenConns, env.MaxOpenConns)
	setEnvInt(&c.MaxIdleConns, env.MaxIdleConns)
	setString(&c.ConnMaxLifetime, lookup(env.ConnMaxLifetime))
	setString(&c.ConnTimeout, lookup(env.ConnTimeout))
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setEnvInt(dst *int, name string) {
	if n, err := strconv.Atoi(lookup(name)); err == nil {
		*dst = n
	}
}

func lookup(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

func (c *Config) validate() error {
	if c.Name == "" {
		return fmt.Errorf("name required")
	}
	if c.User == "" {
		return fmt.Errorf("user required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if _, err := time.ParseDuration(c.ConnMaxLifetime); err != nil {
		return fmt.Errorf("invalid conn_max_lifetime: %w", err)
	}
	if _, err := time.ParseDuration(c.ConnTimeout); err != nil {
		return fmt.Errorf("invalid conn_timeout: %w", err)
	}
	return nil
}
