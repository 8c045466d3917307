package model

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// NoTime marks an unset daily or weekly window boundary.
const NoTime = -1

// HourlyCharge is a price announcement for one hour of a variable Rate.
type HourlyCharge struct {
	ID     int64
	RateID int64
	AtTime time.Time
	Value  float64
}

// ValueEstimator produces a risk-adjusted per-kWh value for a variable
// rate. It is implemented by the tariff evaluation helper.
type ValueEstimator interface {
	WeightedValue(r *Rate) float64
}

// Rate is one pricing rule within a tariff. Rates may apply only on some
// days of the week (WeeklyBegin/WeeklyEnd, 1=Monday..7=Sunday) or during
// some hours of the day (DailyBegin/DailyEnd, 0..23); both windows may wrap
// around. Money values are from the customer's viewpoint: negative for
// payments to the broker, positive for credits.
//
// A fixed rate carries its price in MinValue. A variable rate must declare
// MinValue, MaxValue and ExpectedMean, where MinValue is the bound closest
// to zero on the side appropriate for the power type, and publishes its
// actual prices as HourlyCharges under the notice-interval rule.
type Rate struct {
	ID             int64
	TariffID       int64
	WeeklyBegin    int
	WeeklyEnd      int
	DailyBegin     int
	DailyEnd       int
	Fixed          bool
	MinValue       float64
	MaxValue       float64
	ExpectedMean   float64
	NoticeInterval int // hours of advance warning for variable updates
	MaxCurtailment float64

	history []HourlyCharge // sorted by AtTime, variable rates only
}

// NewRate returns a fixed rate with both applicability windows unset.
func NewRate() *Rate {
	return &Rate{
		WeeklyBegin: NoTime,
		WeeklyEnd:   NoTime,
		DailyBegin:  NoTime,
		DailyEnd:    NoTime,
		Fixed:       true,
	}
}

// WithValue sets the per-kWh price of a fixed rate.
func (r *Rate) WithValue(v float64) *Rate {
	r.MinValue = v
	return r
}

// WithDailyBegin sets the hour of day at which the rate comes into effect.
func (r *Rate) WithDailyBegin(hour int) *Rate {
	r.DailyBegin = hour
	return r
}

// WithDailyEnd sets the last hour of day during which the rate applies.
func (r *Rate) WithDailyEnd(hour int) *Rate {
	r.DailyEnd = hour
	return r
}

// WithWeeklyBegin sets the first applicable day, 1=Monday.
func (r *Rate) WithWeeklyBegin(day int) *Rate {
	r.WeeklyBegin = day
	return r
}

// WithWeeklyEnd sets the last applicable day, 7=Sunday.
func (r *Rate) WithWeeklyEnd(day int) *Rate {
	r.WeeklyEnd = day
	return r
}

// WithVariable marks the rate as variable with the given value bounds.
func (r *Rate) WithVariable(minValue, expectedMean, maxValue float64) *Rate {
	r.Fixed = false
	r.MinValue = minValue
	r.ExpectedMean = expectedMean
	r.MaxValue = maxValue
	return r
}

// WithNoticeInterval sets the advance-warning requirement in hours for
// hourly-charge updates.
func (r *Rate) WithNoticeInterval(hours int) *Rate {
	r.NoticeInterval = hours
	return r
}

// WithMaxCurtailment sets the maximum curtailable fraction, clamped to [0,1].
func (r *Rate) WithMaxCurtailment(v float64) *Rate {
	r.MaxCurtailment = math.Min(1.0, math.Max(0.0, v))
	return r
}

// IsTimeOfUse reports whether the rate is limited to part of the day or week.
func (r *Rate) IsTimeOfUse() bool {
	return r.DailyBegin >= 0 || r.WeeklyBegin >= 0
}

// Validate checks internal consistency and consistency with the tariff's
// power type. For variable rates on a consumption tariff the ordering is
// MinValue >= ExpectedMean >= MaxValue (all typically negative); for
// production tariffs the ordering is reversed.
func (r *Rate) Validate(pt PowerType) error {
	for name, v := range map[string]float64{
		"minValue": r.MinValue, "maxValue": r.MaxValue, "expectedMean": r.ExpectedMean,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("model: rate %s is %v", name, v)
		}
	}
	if math.IsNaN(r.MaxCurtailment) || r.MaxCurtailment < 0.0 || r.MaxCurtailment > 1.0 {
		return fmt.Errorf("model: curtailment ratio %v out of range", r.MaxCurtailment)
	}
	if (r.DailyBegin != NoTime && (r.DailyBegin < 0 || r.DailyBegin > 23)) || r.DailyEnd > 23 ||
		(r.DailyEnd != NoTime && r.DailyEnd < 0) {
		return fmt.Errorf("model: daily window out of range: %d..%d", r.DailyBegin, r.DailyEnd)
	}
	if (r.WeeklyBegin != NoTime && (r.WeeklyBegin < 1 || r.WeeklyBegin > 7)) ||
		(r.WeeklyEnd != NoTime && (r.WeeklyEnd < 1 || r.WeeklyEnd > 7)) {
		return fmt.Errorf("model: weekly window out of range: %d..%d", r.WeeklyBegin, r.WeeklyEnd)
	}
	if (r.DailyBegin == NoTime) != (r.DailyEnd == NoTime) {
		return fmt.Errorf("model: daily begin/end must be set together: %d, %d", r.DailyBegin, r.DailyEnd)
	}
	if (r.WeeklyBegin == NoTime) != (r.WeeklyEnd == NoTime) {
		return fmt.Errorf("model: weekly begin/end must be set together: %d, %d", r.WeeklyBegin, r.WeeklyEnd)
	}
	if r.Fixed {
		return nil
	}
	sgn := 1.0
	if pt.IsConsumption() {
		sgn = -1.0
	}
	if sgn*r.MaxValue < sgn*r.MinValue {
		return fmt.Errorf("model: maxValue %v out of range", r.MaxValue)
	}
	if sgn*r.ExpectedMean < sgn*r.MinValue || sgn*r.ExpectedMean > sgn*r.MaxValue {
		return fmt.Errorf("model: expectedMean %v out of range", r.ExpectedMean)
	}
	if r.NoticeInterval < 0 {
		return fmt.Errorf("model: negative notice interval %d", r.NoticeInterval)
	}
	return nil
}

// Applies reports whether the rate is in effect at the given instant,
// handling windows that wrap past midnight or past the end of the week.
func (r *Rate) Applies(when time.Time) bool {
	t := when.UTC()

	weekly := true
	if r.WeeklyBegin != NoTime && r.WeeklyEnd != NoTime {
		day := isoDay(t)
		if r.WeeklyEnd >= r.WeeklyBegin {
			weekly = day >= r.WeeklyBegin && day <= r.WeeklyEnd
		} else {
			weekly = day >= r.WeeklyBegin || day <= r.WeeklyEnd
		}
	}

	daily := true
	if r.DailyBegin != NoTime && r.DailyEnd != NoTime {
		hour := t.Hour()
		if r.DailyEnd > r.DailyBegin {
			daily = hour >= r.DailyBegin && hour <= r.DailyEnd
		} else {
			// window spans midnight
			daily = hour >= r.DailyBegin || hour <= r.DailyEnd
		}
	}
	return weekly && daily
}

// AddHourlyCharge records a price announcement for a variable rate. The
// charge is rejected when the rate is fixed, when it arrives inside the
// notice interval (unless publish is set, which covers initial publication),
// or when its value falls outside [MinValue, MaxValue] on the side given by
// the sign of MaxValue. A charge at an instant that already has one replaces
// the existing entry.
func (r *Rate) AddHourlyCharge(hc HourlyCharge, now time.Time, publish bool) bool {
	if r.Fixed {
		return false
	}
	warning := hc.AtTime.Sub(now)
	if warning < time.Duration(r.NoticeInterval)*time.Hour && !publish {
		return false
	}
	sgn := math.Copysign(1.0, r.MaxValue)
	if sgn*hc.Value > sgn*r.MaxValue || sgn*hc.Value < sgn*r.MinValue {
		return false
	}
	hc.RateID = r.ID
	i := sort.Search(len(r.history), func(i int) bool {
		return !r.history[i].AtTime.Before(hc.AtTime)
	})
	if i < len(r.history) && r.history[i].AtTime.Equal(hc.AtTime) {
		r.history[i] = hc
		return true
	}
	r.history = append(r.history, HourlyCharge{})
	copy(r.history[i+1:], r.history[i:])
	r.history[i] = hc
	return true
}

// HourlyCharges returns the recorded price history in time order.
func (r *Rate) HourlyCharges() []HourlyCharge {
	return r.history
}

// Value returns the per-kWh price at the given instant. Fixed rates return
// MinValue. Variable rates return the exact hourly charge when one exists
// for the instant; otherwise the estimator's blended value when one is
// supplied, falling back to ExpectedMean.
func (r *Rate) Value(when time.Time, est ValueEstimator) float64 {
	if r.Fixed {
		return r.MinValue
	}
	if est != nil {
		return est.WeightedValue(r)
	}
	i := sort.Search(len(r.history), func(i int) bool {
		return !r.history[i].AtTime.Before(when)
	})
	if i < len(r.history) && r.history[i].AtTime.Equal(when) {
		return r.history[i].Value
	}
	return r.ExpectedMean
}

// isoDay returns the day of week with 1=Monday..7=Sunday.
func isoDay(t time.Time) int {
	d := int(t.Weekday())
	if d == 0 {
		return 7
	}
	return d
}
