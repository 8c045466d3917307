package capacity

import (
	"fmt"
	"math"
	"time"

	"github.com/gridwise/tariffsim/core/clock"
	corelogger "github.com/gridwise/tariffsim/core/logger"
	"github.com/gridwise/tariffsim/core/model"
	"github.com/gridwise/tariffsim/core/subscription"
	"github.com/gridwise/tariffsim/core/weather"
)

// ProfileLength is the number of hourly slots in a capacity forecast
// profile.
const ProfileLength = 24

// smoothingWeight blends the previous slot's base draw into the current
// one, damping slot-to-slot jitter from the samplers.
const smoothingWeight = 0.4

// curtailmentFloor is the smallest curtailment worth shifting forward.
const curtailmentFloor = 0.01

// Originator produces the energy capacity of one customer population per
// timeslot: a base draw from its distribution or timeseries model, then
// time-of-day skew, weather influence, price elasticity, and recovery of
// previously curtailed energy. All results are cached by timeslot serial,
// so repeated calls for a slot are stable. Not safe for concurrent use.
type Originator struct {
	structure *Structure
	customer  *model.CustomerInfo
	weather   weather.Service
	ts        *TimeseriesGenerator
	log       corelogger.Logger

	base      map[int]float64
	forecasts map[int]float64
	actual    map[int]float64
	curtailed map[int]float64
	// energy shifted out of curtailed slots into later ones, keyed by
	// the receiving slot's serial
	shiftedCurtailments map[int]float64
}

// NewOriginator builds an originator for one capacity structure. seed
// drives the timeseries noise source when the structure uses one.
func NewOriginator(s *Structure, customer *model.CustomerInfo, w weather.Service, seed uint64, log corelogger.Logger) (*Originator, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	o := &Originator{
		structure:           s,
		customer:            customer,
		weather:             w,
		log:                 log,
		base:                make(map[int]float64),
		forecasts:           make(map[int]float64),
		actual:              make(map[int]float64),
		curtailed:           make(map[int]float64),
		shiftedCurtailments: make(map[int]float64),
	}
	if s.BaseType == BaseTimeseries {
		ts, err := NewTimeseriesGenerator(*s.Timeseries, seed)
		if err != nil {
			return nil, err
		}
		o.ts = ts
	}
	return o, nil
}

// Name returns the structure name.
func (o *Originator) Name() string { return o.structure.Name }

// BaseCapacity returns the unadjusted capacity for a timeslot, drawing and
// caching it on first use.
func (o *Originator) BaseCapacity(serial int, when time.Time) (float64, error) {
	if v, ok := o.base[serial]; ok {
		return v, nil
	}
	var v float64
	switch o.structure.BaseType {
	case BasePopulation:
		v = o.structure.PopulationCapacity.Sample()
	case BaseIndividual:
		for i := 0; i < o.customer.Population; i++ {
			v += o.structure.IndividualCapacity.Sample()
		}
	case BaseTimeseries:
		ts, err := o.ts.GenerateNext(serial, when)
		if err != nil {
			return 0, err
		}
		v = ts
	}
	if prev, ok := o.base[serial-1]; ok {
		v = smoothingWeight*prev + (1-smoothingWeight)*v
	}
	v = truncate2(v)
	if math.IsNaN(v) {
		return 0, fmt.Errorf("capacity: %s base capacity is NaN at slot %d", o.structure.Name, serial)
	}
	o.base[serial] = v
	return v, nil
}

// ForecastCapacity predicts the capacity of a future timeslot as seen from
// currentSerial: the base draw skewed for time of day and adjusted for the
// weather forecast. Results are cached by target serial.
func (o *Originator) ForecastCapacity(currentSerial, serial int, when time.Time) (float64, error) {
	if v, ok := o.forecasts[serial]; ok {
		return v, nil
	}
	v, err := o.BaseCapacity(serial, when)
	if err != nil {
		return 0, err
	}
	v = o.adjustForPeriodicSkew(v, when)
	wx, err := o.weatherAt(currentSerial, serial)
	if err != nil {
		return 0, err
	}
	v = o.adjustForWeather(v, wx)
	if math.IsNaN(v) {
		return 0, fmt.Errorf("capacity: %s forecast is NaN at slot %d", o.structure.Name, serial)
	}
	o.forecasts[serial] = v
	return v, nil
}

// ForecastProfile predicts the next ProfileLength slots starting at
// currentSerial.
func (o *Originator) ForecastProfile(currentSerial int, start time.Time) ([]float64, error) {
	profile := make([]float64, ProfileLength)
	for i := range profile {
		v, err := o.ForecastCapacity(currentSerial, currentSerial+i, start.Add(time.Duration(i)*clock.Timeslot))
		if err != nil {
			return nil, err
		}
		profile[i] = v
	}
	return profile, nil
}

// Accumulator is the realized capacity of one subscription for one
// timeslot, with the regulation energy it can still offer. Up is
// non-negative, Down non-positive.
type Accumulator struct {
	Capacity float64
	Up       float64
	Down     float64
}

// Add folds another originator's result in.
func (a *Accumulator) Add(other Accumulator) {
	a.Capacity += other.Capacity
	a.Up += other.Up
	a.Down += other.Down
}

// Scale multiplies all components.
func (a *Accumulator) Scale(factor float64) {
	a.Capacity *= factor
	a.Up *= factor
	a.Down *= factor
}

// UseCapacity computes the realized capacity of a subscription for the
// current timeslot: the base draw skewed for time of day, bent by observed
// weather, scaled to the subscribed share of the population, and stretched
// by price elasticity against the benchmark rate. Interruptible types also
// report regulation capacity against the structure's limits and recover
// energy curtailed in earlier slots.
func (o *Originator) UseCapacity(sub *subscription.Subscription, serial int, when time.Time) (Accumulator, error) {
	v, err := o.BaseCapacity(serial, when)
	if err != nil {
		return Accumulator{}, err
	}
	v = o.adjustForPeriodicSkew(v, when)
	wx, err := o.weatherAt(serial, serial)
	if err != nil {
		return Accumulator{}, err
	}
	v = o.adjustForWeather(v, wx)
	v = o.adjustForSubscription(v, sub, when)

	acc := Accumulator{}
	if o.customer.PowerType.IsInterruptible() {
		acc.Up = math.Max(0.0, v-o.structure.UpRegulationLimit)
		acc.Down = math.Min(0.0, v-o.structure.DownRegulationLimit)
		v = o.adjustForCurtailments(v, sub, serial)
	}
	acc.Capacity = truncate2(v)
	if math.IsNaN(acc.Capacity) {
		return Accumulator{}, fmt.Errorf("capacity: %s realized capacity is NaN at slot %d", o.structure.Name, serial)
	}
	o.actual[serial] = acc.Capacity
	return acc, nil
}

// ActualCapacity returns the realized capacity recorded for a slot.
func (o *Originator) ActualCapacity(serial int) (float64, bool) {
	v, ok := o.actual[serial]
	return v, ok
}

// CurtailedCapacity returns the curtailment recorded against a slot.
func (o *Originator) CurtailedCapacity(serial int) (float64, bool) {
	v, ok := o.curtailed[serial]
	return v, ok
}

// adjustForCurtailments drains the subscription's curtailment from the
// previous slot, spreads it over future slots per the structure's shift
// factors, and folds any energy shifted into the current slot back in.
func (o *Originator) adjustForCurtailments(capacity float64, sub *subscription.Subscription, serial int) float64 {
	last := sub.Curtailment()
	if math.Abs(last) > curtailmentFloor {
		o.curtailed[serial-1] = last
		for i, factor := range o.structure.CurtailmentShifts {
			o.shiftedCurtailments[serial+i] += last * factor
		}
		o.log.Debugf("capacity %s: shifting %.2f kWh curtailed in slot %d", o.structure.Name, last, serial-1)
	}
	return capacity + o.shiftedCurtailments[serial]
}

func (o *Originator) adjustForPeriodicSkew(capacity float64, when time.Time) float64 {
	day := clock.DayOfWeek(when)
	hour := clock.HourOfDay(when)
	return capacity * o.structure.DailySkew[day-1] * o.structure.HourlySkew[hour]
}

// weatherAt resolves the weather for a target slot: the observed report
// for the current slot, otherwise the forecast issued now.
func (o *Originator) weatherAt(currentSerial, serial int) (model.WeatherReport, error) {
	if serial == currentSerial {
		r, ok := o.weather.Report(serial)
		if !ok {
			return model.WeatherReport{}, fmt.Errorf("capacity: no weather report for slot %d", serial)
		}
		return r, nil
	}
	f, ok := o.weather.Forecast(currentSerial, serial-currentSerial)
	if !ok {
		return model.WeatherReport{}, fmt.Errorf("capacity: no weather forecast from slot %d for slot %d", currentSerial, serial)
	}
	return f.Report(), nil
}

func (o *Originator) adjustForWeather(capacity float64, wx model.WeatherReport) float64 {
	s := o.structure
	factor := 1.0
	switch s.TemperatureInfluence {
	case InfluenceDirect:
		factor *= tableLookup(s.TemperatureMap, iround(wx.Temperature))
	case InfluenceDeviation:
		curr, ref := iround(wx.Temperature), iround(s.TemperatureReference)
		deviation := 1.0
		if curr > ref {
			for t := ref + 1; t <= curr; t++ {
				deviation += s.TemperatureMap[t]
			}
		} else if curr < ref {
			for t := curr; t < ref; t++ {
				deviation += s.TemperatureMap[t]
			}
		}
		factor *= deviation
	}
	if s.WindSpeedInfluence == InfluenceDirect {
		speed := iround(wx.WindSpeed)
		factor *= tableLookup(s.WindSpeedMap, speed)
		if s.WindDirectionInfluence == InfluenceDirect && speed > 0 {
			factor *= tableLookup(s.WindDirectionMap, iround(wx.WindDirection))
		}
	}
	if s.CloudCoverInfluence == InfluenceDirect {
		factor *= tableLookup(s.CloudCoverMap, iround(100*wx.CloudCover))
	}
	return capacity * factor
}

// adjustForSubscription scales the population capacity down to the
// subscribed share and applies the price-elasticity response.
func (o *Originator) adjustForSubscription(capacity float64, sub *subscription.Subscription, when time.Time) float64 {
	popRatio := float64(sub.Committed()) / float64(o.customer.Population)
	capacity *= popRatio
	if math.Abs(capacity) < curtailmentFloor {
		return capacity
	}
	benchmark, ok := o.structure.BenchmarkRates[clock.HourOfDay(when)]
	if !ok || benchmark == 0 {
		return capacity
	}
	rate := sub.Tariff().UsageCharge(when, capacity, nil) / capacity
	return capacity * o.elasticityFactor(rate/benchmark)
}

func (o *Originator) elasticityFactor(rateRatio float64) float64 {
	e := &o.structure.Elasticity
	switch e.Type {
	case ElasticityContinuous:
		percentChange := (rateRatio - 1.0) / 0.01
		return math.Max(e.Low, math.Min(e.High, 1.0+percentChange*e.Ratio))
	case ElasticityStepwise:
		return o.stepwiseFactor(rateRatio)
	default:
		return 1.0
	}
}

// stepwiseFactor brackets the rate ratio in the configured table. Cheaper
// rates never curb consumption, and richer rates never curb production.
func (o *Originator) stepwiseFactor(rateRatio float64) float64 {
	e := &o.structure.Elasticity
	if len(e.Map) == 0 || math.Abs(rateRatio-1.0) < 0.01 {
		return 1.0
	}
	pt := o.customer.PowerType
	if pt.IsConsumption() && rateRatio < 1.0 {
		return 1.0
	}
	if pt.IsProduction() && rateRatio > 1.0 {
		return 1.0
	}
	lowerBound, upperBound := math.Inf(-1), math.Inf(1)
	lowerFactor, upperFactor := 1.0, 1.0
	for _, entry := range e.Map {
		ratio, factor := entry[0], entry[1]
		if ratio <= rateRatio && ratio > lowerBound {
			lowerBound, lowerFactor = ratio, factor
		}
		if ratio >= rateRatio && ratio < upperBound {
			upperBound, upperFactor = ratio, factor
		}
	}
	if rateRatio < 1.0 {
		return upperFactor
	}
	return lowerFactor
}

// truncate2 truncates toward zero at two decimals.
func truncate2(x float64) float64 {
	return math.Trunc(x*100) / 100
}

func iround(x float64) int {
	return int(math.Round(x))
}

// tableLookup treats a missing entry as a neutral factor.
func tableLookup(m map[int]float64, key int) float64 {
	if v, ok := m[key]; ok {
		return v
	}
	return 1.0
}
