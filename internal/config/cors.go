package config

import (
	"fmt"
	"strings"
)

// CORSConfig represents CORS configuration.
type CORSConfig struct {
	AllowOrigins     []string `yaml:"allowOrigins,omitempty" json:"allowOrigins,omitempty"`
	AllowMethods     []string `yaml:"allowMethods,omitempty" json:"allowMethods,omitempty"`
	AllowHeaders     []string `yaml:"allowHeaders,omitempty" json:"allowHeaders,omitempty"`
	ExposeHeaders    []string `yaml:"exposeHeaders,omitempty" json:"exposeHeaders,omitempty"`
	MaxAge           int      `yaml:"maxAge,omitempty" json:"maxAge,omitempty"`
	AllowCredentials bool     `yaml:"allowCredentials,omitempty" json:"allowCredentials,omitempty"`
}

// Validate validates CORS configuration. The wildcard origin combined with
// credentials is rejected: browsers treat that pairing as invalid and it
// would silently disable credentialed requests.
func (c *CORSConfig) Validate() error {
	if c == nil {
		return nil
	}
	for i, origin := range c.AllowOrigins {
		if origin == "" {
			return fmt.Errorf("allowOrigins[%d] is empty", i)
		}
		if origin == "*" && c.AllowCredentials {
			return fmt.Errorf("wildcard origin cannot be combined with allowCredentials")
		}
		if origin != "*" && !strings.HasPrefix(origin, "*.") &&
			!strings.Contains(origin, "://") {
			return fmt.Errorf("allowOrigins[%d]: origin %q must include a scheme", i, origin)
		}
	}
	return nil
}
