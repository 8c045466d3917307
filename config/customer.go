package config

import (
	"fmt"

	"github.com/gridwise/tariffsim/core/capacity"
	"github.com/gridwise/tariffsim/core/customer"
	"github.com/gridwise/tariffsim/core/model"
)

// CapacityConfig describes one capacity of a customer population. The base
// distributions are kept as DistConfig here and only built into seeded
// samplers when the run starts.
type CapacityConfig struct {
	Structure  capacity.Structure         `koanf:"structure"`
	Population *capacity.DistConfig       `koanf:"population"`
	Individual *capacity.DistConfig       `koanf:"individual"`
	Timeseries *capacity.TimeseriesConfig `koanf:"timeseries"`
}

// Build assembles the capacity structure with seeded base distributions.
func (c CapacityConfig) Build(seed uint64) (*capacity.Structure, error) {
	s := c.Structure
	if c.Population != nil {
		d, err := capacity.NewDistribution(*c.Population, seed)
		if err != nil {
			return nil, fmt.Errorf("config: capacity %s: %w", s.Name, err)
		}
		s.PopulationCapacity = d
	}
	if c.Individual != nil {
		d, err := capacity.NewDistribution(*c.Individual, seed+1)
		if err != nil {
			return nil, fmt.Errorf("config: capacity %s: %w", s.Name, err)
		}
		s.IndividualCapacity = d
	}
	s.Timeseries = c.Timeseries
	s.SetDefaults()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &s, nil
}

// CustomerConfig describes one customer population.
type CustomerConfig struct {
	ID               int64   `koanf:"id"`
	Name             string  `koanf:"name"`
	PowerType        string  `koanf:"power_type"`
	Population       int     `koanf:"population"`
	MultiContracting bool    `koanf:"multi_contracting"`
	ControllableKW   float64 `koanf:"controllable_kw"`
	UpRegulationKW   float64 `koanf:"up_regulation_kw"`
	DownRegulationKW float64 `koanf:"down_regulation_kw"`
	StorageCapacity  float64 `koanf:"storage_capacity"`

	Subscriber customer.SubscriberStructure `koanf:"subscriber"`
	Capacities []CapacityConfig             `koanf:"capacities"`
}

// Build assembles the customer record.
func (c CustomerConfig) Build() (*model.CustomerInfo, error) {
	pt, err := model.ParsePowerType(c.PowerType)
	if err != nil {
		return nil, fmt.Errorf("config: customer %s: %w", c.Name, err)
	}
	return &model.CustomerInfo{
		ID:               c.ID,
		Name:             c.Name,
		PowerType:        pt,
		Population:       c.Population,
		MultiContracting: c.MultiContracting,
		ControllableKW:   c.ControllableKW,
		UpRegulationKW:   c.UpRegulationKW,
		DownRegulationKW: c.DownRegulationKW,
		StorageCapacity:  c.StorageCapacity,
	}, nil
}

// Validate checks the customer and all of its capacities.
func (c CustomerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config: customer %d has no name", c.ID)
	}
	if c.Population < 1 {
		return fmt.Errorf("config: customer %s population %d must be positive", c.Name, c.Population)
	}
	if _, err := model.ParsePowerType(c.PowerType); err != nil {
		return fmt.Errorf("config: customer %s: %w", c.Name, err)
	}
	if len(c.Capacities) == 0 {
		return fmt.Errorf("config: customer %s has no capacities", c.Name)
	}
	for _, cc := range c.Capacities {
		if _, err := cc.Build(1); err != nil {
			return err
		}
	}
	sub := c.Subscriber
	sub.SetDefaults()
	if err := sub.Normalize(); err != nil {
		return err
	}
	return nil
}
