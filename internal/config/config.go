// Package config loads regview's configuration from a YAML file, a .env file
// and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults
const (
	DefaultRegistryURL       = "http://localhost:5000"
	DefaultRegistryName      = "Docker Registry"
	DefaultRegistryTimeout   = 10 * time.Second
	DefaultPort              = 8080
	DefaultRateLimit         = 60
	DefaultRefreshInterval   = 5 * time.Minute
	DefaultRefreshConcurrent = 8
	DefaultDetailLimit       = 10
	DefaultConfigPath        = "regview.yaml"
	DefaultDotEnvPath        = ".env"
)

// Environment variable names
const (
	EnvRegistryAPIURL     = "REGISTRY_API_URL"
	EnvRegistryTimeout    = "REGISTRY_TIMEOUT"
	EnvRegistryURL        = "REGISTRY_URL"
	EnvRegistryName       = "REGISTRY_NAME"
	EnvPort               = "PORT"
	EnvStaticDir          = "STATIC_DIR"
	EnvRateLimit          = "RATE_LIMIT"
	EnvRefreshInterval    = "REFRESH_INTERVAL"
	EnvRefreshConcurrency = "REFRESH_CONCURRENCY"
	EnvDetailLimit        = "DETAIL_LIMIT"
	EnvRefreshCoalesce    = "REFRESH_COALESCE"
	EnvConfigPath         = "CONFIG_PATH"
)

// Config represents the application configuration.
type Config struct {
	Registry RegistryConfig `yaml:"registry"`
	Server   ServerConfig   `yaml:"server"`
	Refresh  RefreshConfig  `yaml:"refresh"`
}

// RegistryConfig describes the registry being browsed.
type RegistryConfig struct {
	// APIURL is the API root including /v2. Derived from URL when empty.
	APIURL string `yaml:"api_url"`

	// URL is the registry address shown to users and used in the connectivity message.
	URL string `yaml:"url"`

	// Name is the display name of the registry.
	Name string `yaml:"name"`

	Timeout  time.Duration     `yaml:"timeout"`
	Insecure bool              `yaml:"insecure"`
	Headers  map[string]string `yaml:"headers"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`

	// StaticDir is an optional directory with a built UI, served at /.
	StaticDir string `yaml:"static_dir"`

	// RateLimit is the per-client requests per minute on /api routes; 0 disables it.
	RateLimit int `yaml:"rate_limit"`
}

// RefreshConfig configures catalog refreshes.
type RefreshConfig struct {
	// Interval between background refreshes; 0 disables them.
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	DetailLimit int           `yaml:"detail_limit"`
	Coalesce    bool          `yaml:"coalesce"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Registry: RegistryConfig{
			URL:     DefaultRegistryURL,
			Name:    DefaultRegistryName,
			Timeout: DefaultRegistryTimeout,
		},
		Server: ServerConfig{
			Port:      DefaultPort,
			RateLimit: DefaultRateLimit,
		},
		Refresh: RefreshConfig{
			Interval:    DefaultRefreshInterval,
			Concurrency: DefaultRefreshConcurrent,
			DetailLimit: DefaultDetailLimit,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at yamlPath
// (a missing file is not an error) and the environment. An empty yamlPath
// means CONFIG_PATH, then DefaultConfigPath.
func Load(yamlPath string) (*Config, error) {
	if yamlPath == "" {
		yamlPath = os.Getenv(EnvConfigPath)
	}
	if yamlPath == "" {
		yamlPath = DefaultConfigPath
	}

	cfg := Default()
	if err := mergeYAMLFile(cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("failed to load YAML config: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.normalize()
	return cfg, nil
}

// LoadDotEnv loads variables from a .env file into the process environment
// without overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = DefaultDotEnvPath
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from environment variables found by lookup.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str(EnvRegistryAPIURL, &c.Registry.APIURL)
	str(EnvRegistryURL, &c.Registry.URL)
	str(EnvRegistryName, &c.Registry.Name)
	str(EnvStaticDir, &c.Server.StaticDir)

	var errs []error
	if v, ok := lookup(EnvRegistryTimeout); ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvRegistryTimeout, err))
		} else {
			c.Registry.Timeout = d
		}
	}
	if v, ok := lookup(EnvRefreshInterval); ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvRefreshInterval, err))
		} else {
			c.Refresh.Interval = d
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvPort, &c.Server.Port},
		{EnvRateLimit, &c.Server.RateLimit},
		{EnvRefreshConcurrency, &c.Refresh.Concurrency},
		{EnvDetailLimit, &c.Refresh.DetailLimit},
	}
	for _, i := range ints {
		if v, ok := lookup(i.key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid integer %q", i.key, v))
				continue
			}
			*i.dst = n
		}
	}

	if v, ok := lookup(EnvRefreshCoalesce); ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid boolean %q", EnvRefreshCoalesce, v))
		} else {
			c.Refresh.Coalesce = b
		}
	}

	return errors.Join(errs...)
}

// normalize fills derived values.
func (c *Config) normalize() {
	c.Registry.URL = strings.TrimRight(c.Registry.URL, "/")
	c.Registry.APIURL = strings.TrimRight(c.Registry.APIURL, "/")
	if c.Registry.APIURL == "" && c.Registry.URL != "" {
		c.Registry.APIURL = c.Registry.URL + "/v2"
	}
}

// TimeoutSeconds returns the registry timeout in whole seconds, at least 1.
func (c *Config) TimeoutSeconds() int {
	secs := int(c.Registry.Timeout / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// parseDuration accepts Go durations ("30s") and bare integers as seconds.
func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}
