package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  listen: ":8080"
  upstream: "http://localhost:9000"
  shutdownTimeout: 15s
admission:
  default:
    maxRequests: 200
    window: 1m
  global:
    name: global
    enabled: true
    maxRequests: 1000
    window: 1m
  paths:
    - name: login
      path: /login
      methods: [POST]
      maxRequests: 5
      window: 1m
  patterns:
    - name: api
      pattern: "^/api/"
      maxRequests: 60
      window: 30s
      keyBy: apikey
      algorithm: token_bucket
  bypass:
    ips: ["10.0.0.1"]
    paths: ["/healthz"]
circuitBreaker:
  enabled: true
  failureThreshold: 5
  recoveryTimeout: 30s
`

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reqguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, 200, cfg.Admission.Default.MaxRequests)
	assert.True(t, cfg.Admission.Global.IsEnabled())
	require.Len(t, cfg.Admission.Paths, 1)
	assert.Equal(t, "/login", cfg.Admission.Paths[0].Path)
	require.Len(t, cfg.Admission.Patterns, 1)
	assert.Equal(t, "token_bucket", cfg.Admission.Patterns[0].Algorithm)
	require.NotNil(t, cfg.CircuitBreaker)
	assert.Equal(t, 30*time.Second, cfg.CircuitBreaker.RecoveryTimeout.Duration())
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadFromReaderDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader("server:\n  listen: \":9090\"\n"))
	require.NoError(t, err)

	// Unset sections keep the built-in defaults.
	assert.Equal(t, ":9090", cfg.Server.Listen)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 100, cfg.Admission.Default.MaxRequests)
}

func TestLoadFromReaderMalformed(t *testing.T) {
	t.Parallel()

	_, err := LoadFromReader(strings.NewReader("server: ["))
	assert.Error(t, err)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("REQGUARD_TEST_UPSTREAM", "http://upstream:9000")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "set variable", in: "${REQGUARD_TEST_UPSTREAM}", want: "http://upstream:9000"},
		{name: "set variable ignores default", in: "${REQGUARD_TEST_UPSTREAM:-other}", want: "http://upstream:9000"},
		{name: "unset with default", in: "${REQGUARD_TEST_UNSET:-localhost:6379}", want: "localhost:6379"},
		{name: "unset without default", in: "${REQGUARD_TEST_UNSET}", want: ""},
		{name: "plain text untouched", in: "listen: :8080", want: "listen: :8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, substituteEnvVars(tt.in))
		})
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("REQGUARD_TEST_LISTEN", ":7070")

	cfg, err := LoadFromReader(strings.NewReader(
		"server:\n  listen: \"${REQGUARD_TEST_LISTEN}\"\n  upstream: \"${REQGUARD_TEST_NOPE:-http://fallback:8000}\"\n"))
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Listen)
	assert.Equal(t, "http://fallback:8000", cfg.Server.Upstream)
}
