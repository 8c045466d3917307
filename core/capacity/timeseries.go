package capacity

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/rand"

	"github.com/gridwise/tariffsim/core/clock"
)

// minRefSeriesLength is the shortest usable reference series: the seasonal
// AR terms reach 26 slots back.
const minRefSeriesLength = 26

const forecastHorizon = 2 * 24

// TimeseriesConfig parameterizes the seasonal log-AR capacity model. Yd
// and Yh are additive day-of-week and hour-of-day offsets in log space.
type TimeseriesConfig struct {
	Y0      float64   `koanf:"y0"`
	Yd      []float64 `koanf:"yd"` // 7 entries, Monday first
	Yh      []float64 `koanf:"yh"` // 24 entries
	Phi1    float64   `koanf:"phi1"`
	SPhi1   float64   `koanf:"sphi1"` // seasonal AR coefficient
	Theta1  float64   `koanf:"theta1"`
	STheta1 float64   `koanf:"stheta1"` // seasonal MA coefficient
	Sigma   float64   `koanf:"sigma"`
	Lambda  float64   `koanf:"lambda"`
	Gamma   float64   `koanf:"gamma"`

	RefSeries []float64 `koanf:"ref_series"`
}

// Validate checks array lengths and the reference series.
func (c *TimeseriesConfig) Validate() error {
	if len(c.Yd) != 7 {
		return fmt.Errorf("capacity: timeseries needs 7 daily offsets, got %d", len(c.Yd))
	}
	if len(c.Yh) != 24 {
		return fmt.Errorf("capacity: timeseries needs 24 hourly offsets, got %d", len(c.Yh))
	}
	if len(c.RefSeries) < minRefSeriesLength {
		return fmt.Errorf("capacity: reference series needs at least %d elements, got %d",
			minRefSeriesLength, len(c.RefSeries))
	}
	return nil
}

// TimeseriesGenerator produces base capacities from a multiplicative
// seasonal AR model in log space, seeded with a reference series. Values
// are cached by timeslot serial, so a slot always generates the same
// capacity within a run.
type TimeseriesGenerator struct {
	cfg   TimeseriesConfig
	gen   map[int]float64
	noise *rand.Rand
}

// NewTimeseriesGenerator validates the config and seeds the noise source.
func NewTimeseriesGenerator(cfg TimeseriesConfig, seed uint64) (*TimeseriesGenerator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &TimeseriesGenerator{
		cfg:   cfg,
		gen:   make(map[int]float64),
		noise: rand.New(rand.NewSource(seed)),
	}, nil
}

// GenerateNext returns the capacity for a timeslot, generating and caching
// it if needed. The first call pins the reference series to the timeslot's
// serial, so callers must advance monotonically from there.
func (g *TimeseriesGenerator) GenerateNext(serial int, when time.Time) (float64, error) {
	if len(g.gen) == 0 {
		for i, v := range g.cfg.RefSeries {
			g.gen[serial+i] = v
		}
	}
	if v, ok := g.gen[serial]; ok {
		return v, nil
	}
	v, err := g.next(serial, when)
	if err != nil {
		return 0, err
	}
	g.gen[serial] = v
	return v, nil
}

func (g *TimeseriesGenerator) next(t int, when time.Time) (float64, error) {
	day := clock.DayOfWeek(when)
	hour := clock.HourOfDay(when)
	c := &g.cfg

	lag := func(offset int) (float64, error) {
		v, ok := g.gen[t-offset]
		if !ok {
			return 0, fmt.Errorf("capacity: timeseries lag %d missing at slot %d", offset, t)
		}
		return math.Log(v), nil
	}
	l1, err := lag(1)
	if err != nil {
		return 0, err
	}
	l2, err := lag(2)
	if err != nil {
		return 0, err
	}
	l24, err := lag(24)
	if err != nil {
		return 0, err
	}
	l25, err := lag(25)
	if err != nil {
		return 0, err
	}
	l26, err := lag(26)
	if err != nil {
		return 0, err
	}

	logNext := c.Y0 + c.Yd[day-1] + c.Yh[hour] +
		c.Phi1*l1 + c.SPhi1*l24 +
		c.Theta1*(l1-l2) + c.STheta1*(l24-l25) +
		c.Theta1*c.STheta1*(l25-l26)
	// the boost ramps with log-squared distance from the reference tail;
	// the first two generated slots get none, keeping the log finite
	if steps := t - 26; steps > 1 {
		logNext += c.Lambda * (math.Pow(math.Log(float64(steps)), 2) /
			math.Pow(math.Log(float64(forecastHorizon-26)), 2)) *
			((1-c.Gamma)*c.Yh[hour] + c.Gamma*c.Yd[day-1])
	}
	logNext += c.Sigma * c.Sigma * g.noise.NormFloat64()

	next := math.Exp(logNext)
	if math.IsNaN(next) || math.IsInf(next, 0) {
		return 0, fmt.Errorf("capacity: timeseries generated %v at slot %d", next, t)
	}
	return next, nil
}
