package config

import (
	"fmt"
	"time"
)

// SimulationConfig defines the timeslot schedule of a run.
type SimulationConfig struct {
	// BaseTime is the RFC 3339 instant of timeslot zero.
	BaseTime string `koanf:"base_time"`
	// Rate is the speedup factor of simulated over wall time. A rate of 0
	// or below runs as fast as possible.
	Rate int64 `koanf:"rate"`
	// Horizon is the number of timeslots to simulate.
	Horizon int `koanf:"horizon"`
	// PublicationInterval is the number of timeslots between tariff
	// evaluation rounds.
	PublicationInterval int `koanf:"publication_interval"`
	// Seed drives every random stream of the run.
	Seed uint64 `koanf:"seed"`
	// PromAddr enables the Prometheus HTTP endpoint when set, e.g. ":9090".
	PromAddr string `koanf:"prom_addr"`
}

// SetDefaults applies the stock schedule: one simulated week evaluated daily.
func (c *SimulationConfig) SetDefaults() {
	if c.BaseTime == "" {
		c.BaseTime = "2026-06-01T00:00:00Z"
	}
	if c.Horizon == 0 {
		c.Horizon = 168
	}
	if c.PublicationInterval == 0 {
		c.PublicationInterval = 24
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
}

// Validate checks mandatory fields.
func (c SimulationConfig) Validate() error {
	if _, err := c.Start(); err != nil {
		return err
	}
	if c.Horizon < 1 {
		return fmt.Errorf("config: horizon %d must be positive", c.Horizon)
	}
	if c.PublicationInterval < 1 {
		return fmt.Errorf("config: publication interval %d must be positive", c.PublicationInterval)
	}
	return nil
}

// Start parses BaseTime.
func (c SimulationConfig) Start() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, c.BaseTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("config: parse base_time: %w", err)
	}
	return t.UTC(), nil
}
