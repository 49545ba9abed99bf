// Package util provides shared helper types for the admission pipeline.
//
// # Error Conventions
//
//   - Sentinel errors (errors.New) for well-known, stable conditions that
//     callers check with errors.Is().
//   - Structured error types for context-rich errors carrying additional
//     fields. Each implements Error(), Unwrap() (if wrapping), and Is().
//   - fmt.Errorf with %w for ad-hoc wrapping.
package util

import (
	"errors"
	"fmt"
)

// Common sentinel errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrCircuitOpen   = errors.New("circuit breaker open")
	ErrConfigInvalid = errors.New("invalid configuration")
)

// ConfigError represents a configuration-related error. Configuration
// errors are fatal at startup, never at request time.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfigInvalid
}

// NewConfigError creates a ConfigError for a named field.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// ServerError signals that the downstream handler produced a 5xx status.
// The circuit breaker treats it as a failure.
type ServerError struct {
	StatusCode int
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: status %d", e.StatusCode)
}

// NewServerError creates a new ServerError with the given status code.
func NewServerError(statusCode int) *ServerError {
	return &ServerError{StatusCode: statusCode}
}
