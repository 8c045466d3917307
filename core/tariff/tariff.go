// Package tariff turns published tariff specifications into evaluable,
// billable entities: a rate-lookup table over the hours of the day or week,
// usage and regulation charging, and the risk-adjusted cost estimation used
// by customer models when comparing tariffs.
package tariff

import (
	"fmt"
	"time"

	"github.com/gridwise/tariffsim/core/clock"
	"github.com/gridwise/tariffsim/core/logger"
	"github.com/gridwise/tariffsim/core/model"
)

// State is the lifecycle phase of a tariff.
type State int

const (
	Pending State = iota
	Offered
	Active
	Withdrawn
	Killed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Offered:
		return "OFFERED"
	case Active:
		return "ACTIVE"
	case Withdrawn:
		return "WITHDRAWN"
	case Killed:
		return "KILLED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// defaultProductionMargin scales the mean consumption price of production
// tariffs when filtering regulation behavior.
const defaultProductionMargin = -1.5

// Tariff wraps a TariffSpecification for evaluation and billing. The rates
// of the spec are flattened into an array indexed by hour of day (24 wide)
// or hour of week (168 wide when any rate has a weekly window), so rate
// lookup during accounting is O(1).
//
// Not safe for concurrent mutation; the simulation loop owns each tariff.
type Tariff struct {
	spec  *model.TariffSpecification
	state State

	offerDate  time.Time
	expiration time.Time

	supersededBy *Tariff

	totalUsage float64
	totalCost  float64

	weekly   bool
	analyzed bool
	rateMap  []*model.Rate
	rateByID map[int64]*model.Rate

	regulationRate       *model.RegulationRate
	meanConsumptionPrice float64
	productionMargin     float64

	log logger.Logger
}

// New wraps a specification. The tariff is unusable until Init succeeds.
func New(spec *model.TariffSpecification, log logger.Logger) *Tariff {
	t := &Tariff{
		spec:             spec,
		state:            Pending,
		expiration:       spec.Expiration,
		rateByID:         make(map[int64]*model.Rate),
		productionMargin: defaultProductionMargin,
		log:              log,
	}
	for _, r := range spec.Rates {
		t.rateByID[r.ID] = r
	}
	for _, rr := range spec.RegulationRates {
		// all but the first are ignored
		if t.regulationRate != nil {
			log.Warnf("tariff: multiple regulation rates on tariff %d", spec.ID)
			continue
		}
		t.regulationRate = rr
	}
	return t
}

// Init validates the spec, builds the rate map, and records the offer date.
// A tariff whose rates leave any hour uncovered is rejected.
func (t *Tariff) Init(now time.Time) error {
	if err := t.spec.Validate(); err != nil {
		return fmt.Errorf("tariff: %w", err)
	}
	t.offerDate = now
	t.analyze()
	if err := t.checkCovered(); err != nil {
		return err
	}
	t.meanConsumptionPrice = t.computeMeanConsumptionPrice()
	return nil
}

// ID returns the specification id.
func (t *Tariff) ID() int64 { return t.spec.ID }

// Spec returns the underlying specification.
func (t *Tariff) Spec() *model.TariffSpecification { return t.spec }

// Broker returns the issuing broker's name.
func (t *Tariff) Broker() string { return t.spec.Broker }

// PowerType returns the power type the tariff covers.
func (t *Tariff) PowerType() model.PowerType { return t.spec.PowerType }

// MinDuration delegates to the specification.
func (t *Tariff) MinDuration() time.Duration { return t.spec.MinDuration }

// SignupPayment delegates to the specification.
func (t *Tariff) SignupPayment() float64 { return t.spec.SignupPayment }

// EarlyWithdrawPayment delegates to the specification.
func (t *Tariff) EarlyWithdrawPayment() float64 { return t.spec.EarlyWithdrawPayment }

// PeriodicPayment delegates to the specification.
func (t *Tariff) PeriodicPayment() float64 { return t.spec.PeriodicPayment }

// OfferDate returns the instant the tariff was first offered.
func (t *Tariff) OfferDate() time.Time { return t.offerDate }

// State returns the lifecycle state.
func (t *Tariff) State() State { return t.state }

// SetState updates the lifecycle state.
func (t *Tariff) SetState(s State) { t.state = s }

// Expiration returns the expiration instant; zero means no expiration.
func (t *Tariff) Expiration() time.Time { return t.expiration }

// SetExpiration updates the expiration date.
func (t *Tariff) SetExpiration(when time.Time) { t.expiration = when }

// IsExpired reports whether now is at or past the expiration date.
func (t *Tariff) IsExpired(now time.Time) bool {
	return !t.expiration.IsZero() && !now.Before(t.expiration)
}

// IsActive reports whether the tariff is OFFERED or ACTIVE.
func (t *Tariff) IsActive() bool {
	return t.state == Offered || t.state == Active
}

// IsRevoked reports whether the tariff has been killed.
func (t *Tariff) IsRevoked() bool { return t.state == Killed }

// IsSubscribable reports whether new subscriptions are accepted.
func (t *Tariff) IsSubscribable(now time.Time) bool {
	return t.IsActive() && !t.IsExpired(now) && !t.IsRevoked()
}

// SupersededBy returns the replacement tariff set at revocation, or nil.
func (t *Tariff) SupersededBy() *Tariff { return t.supersededBy }

// SetSupersededBy records the replacement tariff.
func (t *Tariff) SetSupersededBy(next *Tariff) { t.supersededBy = next }

// IsTimeOfUse reports whether any rate is limited to part of the day or week.
func (t *Tariff) IsTimeOfUse() bool {
	for _, r := range t.spec.Rates {
		if r.IsTimeOfUse() {
			return true
		}
	}
	return false
}

// IsVariableRate reports whether any rate is dynamic.
func (t *Tariff) IsVariableRate() bool {
	for _, r := range t.spec.Rates {
		if !r.Fixed {
			return true
		}
	}
	return false
}

// IsInterruptible reports whether the tariff can result in curtailment.
func (t *Tariff) IsInterruptible() bool {
	if !t.spec.PowerType.IsInterruptible() {
		return false
	}
	for _, r := range t.spec.Rates {
		if r.MaxCurtailment != 0.0 {
			return true
		}
	}
	return false
}

// HasRegulationRate reports whether the spec prices regulation.
func (t *Tariff) HasRegulationRate() bool { return t.regulationRate != nil }

// RegulationRate returns the effective regulation rate, or nil.
func (t *Tariff) RegulationRate() *model.RegulationRate { return t.regulationRate }

// TotalUsage returns the recorded cumulative usage in kWh.
func (t *Tariff) TotalUsage() float64 { return t.totalUsage }

// TotalCost returns the recorded cumulative cost.
func (t *Tariff) TotalCost() float64 { return t.totalCost }

// RealizedPrice returns the mean recorded price per kWh, or 0 when nothing
// has been recorded. Negative for consumption tariffs: the customer paid.
func (t *Tariff) RealizedPrice() float64 {
	if t.totalUsage == 0.0 {
		return 0.0
	}
	sign := 1.0
	if t.spec.PowerType.IsProduction() {
		sign = -1.0
	}
	return sign * t.totalCost / t.totalUsage
}

// MeanConsumptionPrice returns the average per-kWh price across the rate
// map, scaled by the production margin for production tariffs.
func (t *Tariff) MeanConsumptionPrice() float64 { return t.meanConsumptionPrice }

// UsageCharge returns the charge for using kwh at the given instant, from
// the customer's viewpoint. The sign follows the rate values: consumption
// has kwh>0 and rate<0, production kwh<0 and rate>0, both yielding the same
// sign, so the result is flipped for production tariffs. An optional helper
// risk-adjusts variable-rate prices and folds in expected regulation.
// This method does not record usage; see RecordUsage for billing.
func (t *Tariff) UsageCharge(when time.Time, kwh float64, helper *EvaluationHelper) float64 {
	if !t.analyzed {
		t.log.Errorf("tariff: usage charge on uninitialized tariff %d", t.ID())
		return 0.0
	}
	sign := 1.0
	if t.spec.PowerType.IsProduction() {
		sign = -1.0
	}
	rate := t.rateAt(when)
	var est model.ValueEstimator
	if helper != nil {
		est = helper
	}
	perKWh := rate.Value(when, est)
	return sign * t.regulatedKWh(kwh, helper) * perKWh
}

// RecordUsage computes the charge for kwh at the given instant and records
// usage and cost into the realized-price totals. This is the only mutator
// of those totals.
func (t *Tariff) RecordUsage(when time.Time, kwh float64) float64 {
	amt := t.UsageCharge(when, kwh, nil)
	t.totalUsage += kwh
	t.totalCost += amt
	return amt
}

// RegulationCharge returns the charge for exercised regulation energy.
// Negative kwh is up-regulation (energy taken from the customer), positive
// is down-regulation. With a regulation rate the payment comes from it;
// otherwise the charge is delegated to the ordinary usage rates. Regulation
// never contributes to cumulative usage under a regulation rate.
func (t *Tariff) RegulationCharge(when time.Time, kwh float64, record bool) float64 {
	if t.regulationRate == nil {
		if record {
			return t.RecordUsage(when, kwh)
		}
		return t.UsageCharge(when, kwh, nil)
	}
	switch {
	case kwh < 0.0:
		// up-regulation: pos * pos
		return -kwh * t.regulationRate.UpPayment
	case kwh > 0.0:
		// down-regulation: pos * neg
		return kwh * t.regulationRate.DownPayment
	}
	return 0.0
}

// MaxUpRegulation returns the curtailable portion of kwh in the timeslot
// containing the given instant. Zero for non-interruptible power types.
func (t *Tariff) MaxUpRegulation(when time.Time, kwh float64) float64 {
	if !t.spec.PowerType.IsInterruptible() {
		return 0.0
	}
	return kwh * t.rateAt(when).MaxCurtailment
}

// AddHourlyCharge routes a price announcement to the identified rate.
func (t *Tariff) AddHourlyCharge(hc model.HourlyCharge, rateID int64, now time.Time, publish bool) bool {
	rate, ok := t.rateByID[rateID]
	if !ok {
		t.log.Warnf("tariff: hourly charge for unknown rate %d on tariff %d", rateID, t.ID())
		return false
	}
	return rate.AddHourlyCharge(hc, now, publish)
}

// RateAt exposes the applicable rate for an instant; used by capacity models
// probing curtailment limits and price benchmarks.
func (t *Tariff) RateAt(when time.Time) *model.Rate {
	return t.rateAt(when)
}

// regulatedKWh shifts consumption by the helper's expected regulation.
func (t *Tariff) regulatedKWh(kwh float64, helper *EvaluationHelper) float64 {
	if helper != nil && kwh > 0.0 {
		adj := kwh + helper.ExpectedRegulation()
		if adj < 0.0 {
			return 0.0
		}
		return adj
	}
	return kwh
}

func (t *Tariff) rateAt(when time.Time) *model.Rate {
	return t.rateMap[t.timeIndex(when)]
}

func (t *Tariff) timeIndex(when time.Time) int {
	idx := clock.HourOfDay(when)
	if t.weekly {
		idx += 24 * (clock.DayOfWeek(when) - 1)
	}
	return idx
}

// analyze flattens the spec's rates into the lookup array. Rates are
// applied in ascending priority-key order (dailyBegin + 24*weeklyBegin,
// unconstrained rates first), each written into every slot it covers, so
// more specific rates overwrite more general ones.
func (t *Tariff) analyze() {
	weekMultiplier := 1
	for _, r := range t.spec.Rates {
		if r.WeeklyBegin >= 0 {
			t.weekly = true
			weekMultiplier = 7
		}
	}

	type keyed struct {
		key  int
		rate *model.Rate
	}
	ordered := make([]keyed, 0, len(t.spec.Rates))
	for _, r := range t.spec.Rates {
		key := 0
		if r.DailyBegin >= 0 {
			key = r.DailyBegin
		}
		if r.WeeklyBegin >= 0 {
			key += r.WeeklyBegin * 24
		}
		ordered = append(ordered, keyed{key, r})
	}
	// stable insertion sort keeps spec order for equal keys
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].key < ordered[j-1].key; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}

	t.rateMap = make([]*model.Rate, weekMultiplier*24)
	for _, entry := range ordered {
		t.fill(entry.rate)
	}
	t.analyzed = true
}

// fill writes a rate into every hour slot it covers, handling daily windows
// that wrap past midnight and weekly windows that wrap past Sunday.
func (t *Tariff) fill(rate *model.Rate) {
	day1, dayn := 0, 0
	if t.weekly {
		if rate.WeeklyBegin >= 0 {
			day1 = rate.WeeklyBegin - 1
			dayn = rate.WeeklyBegin - 1
		} else {
			dayn = 6
		}
		if rate.WeeklyEnd >= 0 {
			dayn = rate.WeeklyEnd - 1
		}
	}
	hr1, hrn := 0, 23
	if rate.DailyBegin >= 0 {
		hr1 = rate.DailyBegin
		hrn = rate.DailyEnd
	}

	fillDays := func(from, to int) {
		for day := from; day <= to; day++ {
			if hrn < hr1 {
				for hour := 0; hour <= hrn; hour++ {
					t.rateMap[hour+day*24] = rate
				}
				for hour := hr1; hour <= 23; hour++ {
					t.rateMap[hour+day*24] = rate
				}
			} else {
				for hour := hr1; hour <= hrn; hour++ {
					t.rateMap[hour+day*24] = rate
				}
			}
		}
	}
	if dayn < day1 {
		fillDays(0, dayn)
		fillDays(day1, 6)
	} else {
		fillDays(day1, dayn)
	}
}

func (t *Tariff) checkCovered() error {
	for hour, r := range t.rateMap {
		if r == nil {
			return fmt.Errorf("tariff: tariff %d leaves hour slot %d uncovered", t.ID(), hour)
		}
	}
	return nil
}

func (t *Tariff) computeMeanConsumptionPrice() float64 {
	mult := 1.0
	if t.spec.PowerType.IsProduction() {
		mult = t.productionMargin
	}
	sum := 0.0
	for _, r := range t.rateMap {
		if r.Fixed {
			sum += r.MinValue
		} else {
			sum += r.ExpectedMean
		}
	}
	return mult * sum / float64(len(t.rateMap))
}
