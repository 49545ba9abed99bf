package util

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigError(t *testing.T) {
	t.Parallel()

	err := NewConfigError("admission.default", "maxRequests must be positive")
	assert.Equal(t, "config error at admission.default: maxRequests must be positive", err.Error())
	assert.ErrorIs(t, err, ErrConfigInvalid)
	assert.NotErrorIs(t, err, ErrNotFound)

	bare := &ConfigError{Message: "broken"}
	assert.Equal(t, "config error: broken", bare.Error())
}

func TestConfigErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("yaml: line 3")
	err := &ConfigError{Field: "logging.level", Message: "parse failed", Cause: cause}
	assert.ErrorIs(t, err, cause)
}

func TestServerError(t *testing.T) {
	t.Parallel()

	err := NewServerError(502)
	assert.Equal(t, "server error: status 502", err.Error())

	wrapped := fmt.Errorf("downstream: %w", err)
	var se *ServerError
	assert.ErrorAs(t, wrapped, &se)
	assert.Equal(t, 502, se.StatusCode)
}
