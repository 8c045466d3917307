package capacity

import (
	"fmt"
	"math"
)

// InfluenceKind selects how a weather variable acts on capacity.
type InfluenceKind string

const (
	InfluenceNone InfluenceKind = "NONE"
	// InfluenceDirect multiplies capacity by a table lookup on the
	// rounded weather value.
	InfluenceDirect InfluenceKind = "DIRECT"
	// InfluenceDeviation accumulates table entries between the observed
	// value and a reference value. Temperature only.
	InfluenceDeviation InfluenceKind = "DEVIATION"
)

// BaseCapacityType selects how the base draw is produced.
type BaseCapacityType string

const (
	// BasePopulation draws one aggregate value for the whole population.
	BasePopulation BaseCapacityType = "POPULATION"
	// BaseIndividual draws per member and sums.
	BaseIndividual BaseCapacityType = "INDIVIDUAL"
	// BaseTimeseries follows a seasonal AR model.
	BaseTimeseries BaseCapacityType = "TIMESERIES"
)

// ElasticityModelType selects the price-response curve.
type ElasticityModelType string

const (
	// ElasticityContinuous applies a clamped linear response to the
	// rate ratio.
	ElasticityContinuous ElasticityModelType = "CONTINUOUS"
	// ElasticityStepwise brackets the rate ratio in a lookup table, with
	// no extrapolation beyond it.
	ElasticityStepwise ElasticityModelType = "STEPWISE"
)

// ElasticityConfig holds both model variants; Type selects which is used.
type ElasticityConfig struct {
	Type ElasticityModelType `koanf:"type"`

	// continuous
	Ratio float64 `koanf:"ratio"`
	Low   float64 `koanf:"low"`
	High  float64 `koanf:"high"`

	// stepwise: pairs of (rate ratio, capacity factor)
	Map [][2]float64 `koanf:"map"`
}

// Structure is the parsed configuration of one capacity: how to draw its
// base value and how the environment bends it. Weather maps are keyed by
// rounded integer values (degrees C, m/s, compass degrees, percent cover).
type Structure struct {
	Name string `koanf:"name"`

	BaseType           BaseCapacityType `koanf:"base_type"`
	PopulationCapacity *Distribution
	IndividualCapacity *Distribution
	Timeseries         *TimeseriesConfig

	DailySkew  []float64 `koanf:"daily_skew"`  // 7 entries, Monday first
	HourlySkew []float64 `koanf:"hourly_skew"` // 24 entries

	TemperatureInfluence InfluenceKind   `koanf:"temperature_influence"`
	TemperatureMap       map[int]float64 `koanf:"temperature_map"`
	TemperatureReference float64         `koanf:"temperature_reference"`

	WindSpeedInfluence     InfluenceKind   `koanf:"wind_speed_influence"`
	WindSpeedMap           map[int]float64 `koanf:"wind_speed_map"`
	WindDirectionInfluence InfluenceKind   `koanf:"wind_direction_influence"`
	WindDirectionMap       map[int]float64 `koanf:"wind_direction_map"`
	CloudCoverInfluence    InfluenceKind   `koanf:"cloud_cover_influence"`
	CloudCoverMap          map[int]float64 `koanf:"cloud_cover_map"`

	// benchmark per-kWh rates by hour of day, the neutral point of the
	// elasticity response
	BenchmarkRates map[int]float64  `koanf:"benchmark_rates"`
	Elasticity     ElasticityConfig `koanf:"elasticity"`

	// fractions of curtailed energy recovered in following timeslots;
	// index is the offset from the curtailed slot
	CurtailmentShifts []float64 `koanf:"curtailment_shifts"`

	// regulation capacity limits for interruptible types: capacity above
	// UpRegulationLimit can be curtailed, headroom below
	// DownRegulationLimit can absorb energy
	UpRegulationLimit   float64 `koanf:"up_regulation_limit"`
	DownRegulationLimit float64 `koanf:"down_regulation_limit"`
}

// SetDefaults fills unset fields: neutral skews and unbounded regulation
// limits. Call before overlaying configuration values.
func (s *Structure) SetDefaults() {
	if len(s.DailySkew) == 0 {
		s.DailySkew = neutralSkew(7)
	}
	if len(s.HourlySkew) == 0 {
		s.HourlySkew = neutralSkew(24)
	}
	if s.UpRegulationLimit == 0 {
		s.UpRegulationLimit = math.Inf(1)
	}
	if s.DownRegulationLimit == 0 {
		s.DownRegulationLimit = math.Inf(-1)
	}
}

func neutralSkew(n int) []float64 {
	skew := make([]float64, n)
	for i := range skew {
		skew[i] = 1.0
	}
	return skew
}

// Validate checks skew table shapes and influence settings.
func (s *Structure) Validate() error {
	if len(s.DailySkew) != 7 {
		return fmt.Errorf("capacity: %s needs 7 daily skew entries, got %d", s.Name, len(s.DailySkew))
	}
	if len(s.HourlySkew) != 24 {
		return fmt.Errorf("capacity: %s needs 24 hourly skew entries, got %d", s.Name, len(s.HourlySkew))
	}
	switch s.BaseType {
	case BasePopulation:
		if s.PopulationCapacity == nil {
			return fmt.Errorf("capacity: %s has no population distribution", s.Name)
		}
	case BaseIndividual:
		if s.IndividualCapacity == nil {
			return fmt.Errorf("capacity: %s has no individual distribution", s.Name)
		}
	case BaseTimeseries:
		if s.Timeseries == nil {
			return fmt.Errorf("capacity: %s has no timeseries model", s.Name)
		}
	default:
		return fmt.Errorf("capacity: %s has unknown base type %q", s.Name, s.BaseType)
	}
	if s.TemperatureInfluence == InfluenceDeviation && len(s.TemperatureMap) == 0 {
		return fmt.Errorf("capacity: %s deviation influence needs a temperature map", s.Name)
	}
	switch s.Elasticity.Type {
	case ElasticityContinuous, ElasticityStepwise, "":
	default:
		return fmt.Errorf("capacity: %s has unknown elasticity model %q", s.Name, s.Elasticity.Type)
	}
	return nil
}
