package cleanup

import (
	"time"

	"github.com/AtRiskMedia/drillgate/pkg/config"
)

// Config holds cleanup worker configuration, sourced from the central config package.
type Config struct {
	CleanupInterval time.Duration
	StateTTL        time.Duration
}

// NewConfig reads the already-initialized values in pkg/config.
func NewConfig() *Config {
	return &Config{
		CleanupInterval: config.CleanupInterval,
		StateTTL:        config.GateStateTTL,
	}
}

// Enabled reports whether idle records expire at all.
func (c *Config) Enabled() bool {
	return c.StateTTL > 0 && c.CleanupInterval > 0
}
