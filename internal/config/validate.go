package config

import (
	"errors"
	"fmt"
)

// Validate checks that values are usable. Connection URLs and API keys
// are optional: missing ones disable the corresponding component.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}

	if c.Ledger.MaxRetries < 1 {
		return fmt.Errorf("ledger.max_retries must be >= 1, got %d", c.Ledger.MaxRetries)
	}
	if c.Ledger.RetryBackoff < 0 {
		return errors.New("ledger.retry_backoff must not be negative")
	}

	if c.Sim.MaxDrift < 0 || c.Sim.MaxDrift > 1 {
		return fmt.Errorf("sim.max_drift must be in [0, 1], got %g", c.Sim.MaxDrift)
	}

	if c.Redis.URL != "" && c.Database.URL == "" {
		return errors.New("redis cache requires database.url to be set")
	}

	return nil
}
