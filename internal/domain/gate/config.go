package gate

import "fmt"

// Config holds the gate thresholds and dismissal policy.
type Config struct {
	// EmailGateThreshold is the number of free distinct views before the email gate.
	EmailGateThreshold int `json:"emailGateThreshold"`
	// BrokerGateThreshold is the number of free distinct views after email before the broker gate.
	BrokerGateThreshold int `json:"brokerGateThreshold"`
	// EmailGateBlocking means the email gate cannot be dismissed without submitting.
	EmailGateBlocking bool `json:"emailGateBlocking"`
	// BrokerGateBlocking means the broker gate cannot be dismissed without verifying.
	BrokerGateBlocking bool `json:"brokerGateBlocking"`
}

// DefaultConfig returns one free view before the email gate and eight more before the broker gate.
func DefaultConfig() Config {
	return Config{
		EmailGateThreshold:  1,
		BrokerGateThreshold: 8,
		EmailGateBlocking:   true,
		BrokerGateBlocking:  true,
	}
}

// Validate rejects negative thresholds.
func (c Config) Validate() error {
	if c.EmailGateThreshold < 0 {
		return fmt.Errorf("email gate threshold must be >= 0, got %d", c.EmailGateThreshold)
	}
	if c.BrokerGateThreshold < 0 {
		return fmt.Errorf("broker gate threshold must be >= 0, got %d", c.BrokerGateThreshold)
	}
	return nil
}

// IsBlocking reports whether g may not be dismissed.
func (c Config) IsBlocking(g Gate) bool {
	switch g {
	case GateEmail:
		return c.EmailGateBlocking
	case GateBroker:
		return c.BrokerGateBlocking
	}
	return false
}
