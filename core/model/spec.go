package model

import (
	"fmt"
	"math"
	"time"
)

// TariffSpecification is the immutable terms of a published tariff: its
// power type, payments, lifetime bounds, and the rates that price it.
// Payment fields follow the customer-viewpoint sign convention.
type TariffSpecification struct {
	ID                   int64
	Broker               string
	PowerType            PowerType
	MinDuration          time.Duration
	SignupPayment        float64
	EarlyWithdrawPayment float64
	PeriodicPayment      float64 // per day
	Expiration           time.Time
	Supersedes           []int64
	Rates                []*Rate
	RegulationRates      []*RegulationRate
}

// NewTariffSpecification returns a specification for a broker and power type
// with no rates attached yet.
func NewTariffSpecification(id int64, broker string, pt PowerType) *TariffSpecification {
	return &TariffSpecification{ID: id, Broker: broker, PowerType: pt}
}

// AddRate appends a rate and stamps it with the spec's id.
func (s *TariffSpecification) AddRate(r *Rate) *TariffSpecification {
	r.TariffID = s.ID
	s.Rates = append(s.Rates, r)
	return s
}

// AddRegulationRate appends a regulation rate and stamps it with the spec's id.
func (s *TariffSpecification) AddRegulationRate(rr *RegulationRate) *TariffSpecification {
	rr.TariffID = s.ID
	s.RegulationRates = append(s.RegulationRates, rr)
	return s
}

// AddSupersedes marks a predecessor tariff this one replaces.
func (s *TariffSpecification) AddSupersedes(id int64) *TariffSpecification {
	s.Supersedes = append(s.Supersedes, id)
	return s
}

// HasRegulationRate reports whether the spec prices regulation.
func (s *TariffSpecification) HasRegulationRate() bool {
	return len(s.RegulationRates) > 0
}

// Validate checks the specification and all attached rates.
func (s *TariffSpecification) Validate() error {
	if len(s.Rates) == 0 {
		return fmt.Errorf("model: tariff %d has no rates", s.ID)
	}
	if s.Broker == "" {
		return fmt.Errorf("model: tariff %d has no broker", s.ID)
	}
	if s.MinDuration < 0 {
		return fmt.Errorf("model: tariff %d has negative min duration", s.ID)
	}
	for name, v := range map[string]float64{
		"signup payment": s.SignupPayment, "withdraw payment": s.EarlyWithdrawPayment,
		"periodic payment": s.PeriodicPayment,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("model: tariff %d %s is %v", s.ID, name, v)
		}
	}
	for _, r := range s.Rates {
		if err := r.Validate(s.PowerType); err != nil {
			return fmt.Errorf("model: tariff %d: %w", s.ID, err)
		}
	}
	for _, rr := range s.RegulationRates {
		if err := rr.Validate(); err != nil {
			return fmt.Errorf("model: tariff %d: %w", s.ID, err)
		}
	}
	return nil
}
