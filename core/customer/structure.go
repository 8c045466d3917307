// Package customer models how customer populations choose among tariffs:
// forecast costs per tariff, fold in inconvenience, and move population
// chunks between subscriptions through a logit or total-order choice.
package customer

import (
	"fmt"

	"github.com/gridwise/tariffsim/core/capacity"
)

// AllocationMethod selects the population allocation policy.
type AllocationMethod string

const (
	// AllocationTotalOrder hands out configured population fractions to
	// tariffs ranked best-payment-first.
	AllocationTotalOrder AllocationMethod = "TOTAL_ORDER"
	// AllocationLogitChoice samples per chunk from logit probabilities.
	AllocationLogitChoice AllocationMethod = "LOGIT_CHOICE"
)

// SubscriberStructure is the parsed tariff-choice configuration of one
// customer population.
type SubscriberStructure struct {
	Name string `koanf:"name"`

	// inconvenience factors, normalized to sum to 1 in Normalize
	InconvenienceWeight    float64 `koanf:"inconvenience_weight"`
	TouFactor              float64 `koanf:"tou_factor"`
	InterruptibilityFactor float64 `koanf:"interruptibility_factor"`
	VariablePricingFactor  float64 `koanf:"variable_pricing_factor"`
	TariffSwitchFactor     float64 `koanf:"tariff_switch_factor"`
	BrokerSwitchFactor     float64 `koanf:"broker_switch_factor"`

	// ExpectedDuration is the preferred contract duration in days.
	ExpectedDuration int `koanf:"expected_duration"`

	// profile cost weighting
	ExpMeanPriceWeight    float64 `koanf:"exp_mean_price_weight"`
	MaxValuePriceWeight   float64 `koanf:"max_value_price_weight"`
	RealizedPriceWeight   float64 `koanf:"realized_price_weight"`
	TariffVolumeThreshold float64 `koanf:"tariff_volume_threshold"`

	Allocation  AllocationMethod `koanf:"allocation"`
	Rationality float64          `koanf:"rationality"`

	// TotalOrderRules holds one allocation-fraction row per candidate
	// count; row n-1 is used when n tariffs survive filtering.
	TotalOrderRules [][]float64 `koanf:"total_order_rules"`

	// expected exercised regulation per timeslot, customer viewpoint:
	// up-regulation non-positive, down-regulation non-negative
	ExpUpRegulation   float64 `koanf:"exp_up_regulation"`
	ExpDownRegulation float64 `koanf:"exp_down_regulation"`

	Inertia *capacity.DistConfig `koanf:"inertia"`
}

// SetDefaults fills unset fields with the stock subscriber parameters.
func (s *SubscriberStructure) SetDefaults() {
	if s.InconvenienceWeight == 0 {
		s.InconvenienceWeight = 0.2
	}
	if s.TouFactor == 0 {
		s.TouFactor = 0.05
	}
	if s.InterruptibilityFactor == 0 {
		s.InterruptibilityFactor = 0.5
	}
	if s.VariablePricingFactor == 0 {
		s.VariablePricingFactor = 0.7
	}
	if s.TariffSwitchFactor == 0 {
		s.TariffSwitchFactor = 0.1
	}
	if s.BrokerSwitchFactor == 0 {
		s.BrokerSwitchFactor = 0.02
	}
	if s.ExpectedDuration == 0 {
		s.ExpectedDuration = 14
	}
	if s.TariffVolumeThreshold == 0 {
		s.TariffVolumeThreshold = 20000.0
	}
	if s.Allocation == "" {
		s.Allocation = AllocationLogitChoice
	}
	if s.Rationality == 0 {
		s.Rationality = 0.9
	}
}

// Normalize scales the inconvenience factors so they sum to 1 and pins
// rationality for total-order allocation, which is rank-deterministic.
func (s *SubscriberStructure) Normalize() error {
	switch s.Allocation {
	case AllocationTotalOrder:
		s.Rationality = 1.0
	case AllocationLogitChoice:
	default:
		return fmt.Errorf("customer: %s has unknown allocation method %q", s.Name, s.Allocation)
	}
	if s.ExpUpRegulation > 0 {
		return fmt.Errorf("customer: %s expected up-regulation %v must be non-positive", s.Name, s.ExpUpRegulation)
	}
	if s.ExpDownRegulation < 0 {
		return fmt.Errorf("customer: %s expected down-regulation %v must be non-negative", s.Name, s.ExpDownRegulation)
	}
	divisor := s.TouFactor + s.InterruptibilityFactor + s.VariablePricingFactor +
		s.TariffSwitchFactor + s.BrokerSwitchFactor
	if divisor != 0.0 {
		s.TouFactor /= divisor
		s.InterruptibilityFactor /= divisor
		s.VariablePricingFactor /= divisor
		s.TariffSwitchFactor /= divisor
		s.BrokerSwitchFactor /= divisor
	}
	return nil
}
