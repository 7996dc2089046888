package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultPort            = "8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultRedisTTL        = 30 * time.Second
	DefaultMarketTimeout   = 15 * time.Second
	DefaultAIModel         = "gemini-2.0-flash"
	DefaultAITimeout       = 30 * time.Second
	DefaultMaxRetries      = 5
	DefaultRetryBackoff    = 25 * time.Millisecond
	DefaultRefreshInterval = 30 * time.Second
	DefaultRefreshMaxDrift = 0.02
)

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = DefaultIdleTimeout
	}

	if c.Redis.TTL == 0 {
		c.Redis.TTL = DefaultRedisTTL
	}

	if c.MarketData.Timeout == 0 {
		c.MarketData.Timeout = DefaultMarketTimeout
	}

	if c.AI.Model == "" {
		c.AI.Model = DefaultAIModel
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = DefaultAITimeout
	}

	if c.Ledger.MaxRetries == 0 {
		c.Ledger.MaxRetries = DefaultMaxRetries
	}
	if c.Ledger.RetryBackoff == 0 {
		c.Ledger.RetryBackoff = DefaultRetryBackoff
	}

	if c.Sim.Interval == 0 {
		c.Sim.Interval = DefaultRefreshInterval
	}
	if c.Sim.MaxDrift == 0 {
		c.Sim.MaxDrift = DefaultRefreshMaxDrift
	}
}
