package domain

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read at startup.
const (
	EnvDatapiURL         = "DATAPI_URL"
	EnvDatapiKey         = "DATAPI_KEY"
	EnvDatapiDownloadDir = "DATAPI_DOWNLOAD_DIR"
)

// Config represents the server configuration.
// It is built once at startup and treated as read-only afterwards.
type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Datapi    DatapiConfig    `yaml:"datapi"`
	Server    ServerConfig    `yaml:"server"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// TransportConfig defines transport settings.
// Specifies whether to use stdio or HTTP transport.
type TransportConfig struct {
	Type string     `yaml:"type"` // "stdio" or "http"
	HTTP HTTPConfig `yaml:"http,omitempty"`
}

// HTTPConfig defines HTTP transport settings.
// Only used when transport type is "http".
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatapiConfig holds the Data Stores API connection settings.
type DatapiConfig struct {
	URL         string        `yaml:"url"`
	Key         string        `yaml:"key"`
	DownloadDir string        `yaml:"download_dir,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// ServerConfig tunes request processing.
type ServerConfig struct {
	MaxConcurrentRequests int `yaml:"max_concurrent_requests,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint. It is only served by the
// HTTP transport.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// Defaults applied by ApplyDefaults.
const (
	DefaultTransportType         = "stdio"
	DefaultDownloadDir           = "."
	DefaultTimeout               = 60 * time.Second
	DefaultMaxConcurrentRequests = 8
	DefaultMetricsPath           = "/metrics"
)

// ErrConfigurationMissing is matched by ConfigurationMissingError.
var ErrConfigurationMissing = errors.New("configuration missing")

// ConfigurationMissingError lists required settings that are absent or empty.
type ConfigurationMissingError struct {
	Variables []string
}

func (e *ConfigurationMissingError) Error() string {
	return fmt.Sprintf("configuration missing: %s must be set", strings.Join(e.Variables, ", "))
}

// Is makes errors.Is(err, ErrConfigurationMissing) hold.
func (e *ConfigurationMissingError) Is(target error) bool {
	return target == ErrConfigurationMissing
}

// LoadConfig builds the configuration from an optional YAML file and the
// environment. An empty path skips the file. Environment values take
// precedence over file values.
func LoadConfig(path string, lookup func(string) (string, bool)) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("configuration file not found: %s", path)
			}
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}

		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("invalid YAML syntax in configuration file: %w", err)
		}
	}

	if lookup == nil {
		lookup = os.LookupEnv
	}
	config.ApplyEnvironment(lookup)
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// ApplyEnvironment overrides datapi settings with non-empty environment values.
func (c *Config) ApplyEnvironment(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDatapiURL); ok && v != "" {
		c.Datapi.URL = v
	}
	if v, ok := lookup(EnvDatapiKey); ok && v != "" {
		c.Datapi.Key = v
	}
	if v, ok := lookup(EnvDatapiDownloadDir); ok && v != "" {
		c.Datapi.DownloadDir = v
	}
}

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.Transport.Type == "" {
		c.Transport.Type = DefaultTransportType
	}
	if c.Datapi.DownloadDir == "" {
		c.Datapi.DownloadDir = DefaultDownloadDir
	}
	if c.Datapi.Timeout == 0 {
		c.Datapi.Timeout = DefaultTimeout
	}
	if c.Server.MaxConcurrentRequests == 0 {
		c.Server.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks the configuration for completeness and correctness.
// Missing connection settings are reported alone as a
// ConfigurationMissingError; other problems are aggregated.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Datapi.URL) == "" {
		missing = append(missing, EnvDatapiURL)
	}
	if strings.TrimSpace(c.Datapi.Key) == "" {
		missing = append(missing, EnvDatapiKey)
	}
	if len(missing) > 0 {
		return &ConfigurationMissingError{Variables: missing}
	}

	var errors []string

	if err := c.validateTransport(); err != nil {
		errors = append(errors, err.Error())
	}

	if err := c.validateDatapi(); err != nil {
		errors = append(errors, err.Error())
	}

	if c.Server.MaxConcurrentRequests < 0 {
		errors = append(errors, fmt.Sprintf("invalid max_concurrent_requests %d: must be positive", c.Server.MaxConcurrentRequests))
	}

	if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		errors = append(errors, fmt.Sprintf("metrics path '%s' must start with '/'", c.Metrics.Path))
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// validateTransport validates the transport configuration.
func (c *Config) validateTransport() error {
	var errors []string

	if c.Transport.Type == "" {
		errors = append(errors, "transport type is required")
	} else if c.Transport.Type != "stdio" && c.Transport.Type != "http" {
		errors = append(errors, fmt.Sprintf("invalid transport type '%s': must be 'stdio' or 'http'", c.Transport.Type))
	}

	if c.Transport.Type == "http" {
		if c.Transport.HTTP.Host == "" {
			errors = append(errors, "HTTP host is required when transport type is 'http'")
		}
		if c.Transport.HTTP.Port <= 0 || c.Transport.HTTP.Port > 65535 {
			errors = append(errors, fmt.Sprintf("invalid HTTP port %d: must be between 1 and 65535", c.Transport.HTTP.Port))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}

// validateDatapi validates the Data Stores connection settings.
func (c *Config) validateDatapi() error {
	var errors []string

	parsedURL, err := url.Parse(c.Datapi.URL)
	if err != nil {
		errors = append(errors, fmt.Sprintf("%s is invalid: %v", EnvDatapiURL, err))
	} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("%s must use http or https scheme", EnvDatapiURL))
	} else if parsedURL.Host == "" {
		errors = append(errors, fmt.Sprintf("%s must include a host", EnvDatapiURL))
	}

	if c.Datapi.Timeout < 0 {
		errors = append(errors, fmt.Sprintf("invalid datapi timeout %s: must not be negative", c.Datapi.Timeout))
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}
