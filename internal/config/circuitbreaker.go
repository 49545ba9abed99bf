package config

import "fmt"

// CircuitBreakerConfig configures downstream health protection.
type CircuitBreakerConfig struct {
	// Enabled enables the circuit breaker.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// FailureThreshold is the number of consecutive downstream failures
	// that opens the circuit.
	FailureThreshold int `yaml:"failureThreshold" json:"failureThreshold"`

	// RecoveryTimeout is how long the circuit stays open before a single
	// trial request is allowed through.
	RecoveryTimeout Duration `yaml:"recoveryTimeout" json:"recoveryTimeout"`
}

// Validate validates the circuit breaker configuration.
func (c *CircuitBreakerConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("failureThreshold must be positive")
	}
	if c.RecoveryTimeout.Duration() <= 0 {
		return fmt.Errorf("recoveryTimeout must be positive")
	}
	return nil
}
