// Package config defines the static configuration surface of the admission
// pipeline. Configuration is loaded and validated once at startup and is
// read-only for the lifetime of the process; malformed configuration is a
// fatal startup error, never a request-time error.
package config

import (
	"fmt"
)

// Config is the root configuration.
type Config struct {
	// Server configures the main listener and the downstream target.
	Server ServerConfig `yaml:"server" json:"server"`

	// Admin configures the administrative API.
	Admin AdminConfig `yaml:"admin,omitempty" json:"admin,omitempty"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty"`

	// Tracing configures OpenTelemetry tracing.
	Tracing TracingConfig `yaml:"tracing,omitempty" json:"tracing,omitempty"`

	// Admission configures rate-limit rules and bypass lists.
	Admission AdmissionConfig `yaml:"admission" json:"admission"`

	// CircuitBreaker configures downstream health protection.
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuitBreaker,omitempty" json:"circuitBreaker,omitempty"`

	// CORS configures cross-origin resource sharing.
	CORS *CORSConfig `yaml:"cors,omitempty" json:"cors,omitempty"`

	// Security configures protective response headers.
	Security *SecurityConfig `yaml:"security,omitempty" json:"security,omitempty"`
}

// ServerConfig configures the HTTP listener and the downstream target.
type ServerConfig struct {
	// Listen is the address the pipeline listens on.
	Listen string `yaml:"listen" json:"listen"`

	// Upstream is the URL requests are proxied to after admission.
	Upstream string `yaml:"upstream,omitempty" json:"upstream,omitempty"`

	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`

	// WriteTimeout is the maximum duration before timing out response writes.
	WriteTimeout Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`
}

// AdminConfig configures the administrative API server.
type AdminConfig struct {
	// Enabled enables the admin server.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Listen is the address the admin server listens on.
	Listen string `yaml:"listen,omitempty" json:"listen,omitempty"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty" json:"otlpEndpoint,omitempty"`
	SamplingRate float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`
}

// Validate validates the whole configuration tree.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.Admin.Enabled && c.Admin.Listen == "" {
		return fmt.Errorf("admin.listen is required when admin is enabled")
	}
	if err := c.Admission.Validate(); err != nil {
		return fmt.Errorf("admission: %w", err)
	}
	if err := c.CircuitBreaker.Validate(); err != nil {
		return fmt.Errorf("circuitBreaker: %w", err)
	}
	if err := c.CORS.Validate(); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("security: %w", err)
	}
	return nil
}

// Default returns a configuration with conservative defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Admission: DefaultAdmissionConfig(),
	}
}
