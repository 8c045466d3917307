package tariff

import (
	"math"
	"time"

	"github.com/gridwise/tariffsim/core/model"
)

// MarketData supplies bootstrap market price data for regulation-rate
// discounting. The bool result is false during bootstrap, when no market
// history exists yet.
type MarketData interface {
	MeanMarketPrice() (float64, bool)
}

// Default evaluation weights.
const (
	DefaultWtExpected    = 0.6
	DefaultWtMax         = 0.4
	DefaultWtRealized    = 0.8
	DefaultSoldThreshold = 10000.0
)

// Default regulation discount coefficients. The up-regulation discount is
// 0.5 at 4.4x the mean market price; the down-regulation curve is much
// steeper and centers near the market price itself.
const (
	DefaultUpregHalf    = 4.4
	DefaultUpregSlope   = 3.0
	DefaultDownregHalf  = 0.7
	DefaultDownregSlope = 15.0
)

// EvaluationHelper produces risk-adjusted cost estimates for tariffs. For
// variable rates it blends the broker's claimed expectedMean and maxValue
// with the tariff's realized price, weighted by how much energy the tariff
// has actually sold:
//
//	alpha*(normWtExpected*expectedMean + normWtMax*maxValue) + (1-alpha)*realized
//	alpha = 1 - wtRealized*(1 - 1/(1 + totalUsage/soldThreshold))
//
// A single helper is intended per customer model, re-targeted at each
// tariff by EstimateCost. Not safe for concurrent use.
type EvaluationHelper struct {
	wtExpected    float64
	wtMax         float64
	wtRealized    float64
	soldThreshold float64

	// expected regulation per timeslot, customer viewpoint:
	// curtailment and discharge non-positive, down-regulation non-negative
	expCurtail   float64
	expDischarge float64
	expDown      float64

	upregHalf    float64
	upregSlope   float64
	downregHalf  float64
	downregSlope float64

	market MarketData

	// evaluation state, valid between EstimateCost and the rate probes
	// it triggers
	normWtExpected float64
	normWtMax      float64
	alpha          float64
	tariff         *Tariff
}

// NewEvaluationHelper returns a helper with default weights. market may be
// nil, which behaves like bootstrap mode for regulation discounting.
func NewEvaluationHelper(market MarketData) *EvaluationHelper {
	h := &EvaluationHelper{
		wtExpected:    DefaultWtExpected,
		wtMax:         DefaultWtMax,
		wtRealized:    DefaultWtRealized,
		soldThreshold: DefaultSoldThreshold,
		upregHalf:     DefaultUpregHalf,
		upregSlope:    DefaultUpregSlope,
		downregHalf:   DefaultDownregHalf,
		downregSlope:  DefaultDownregSlope,
		market:        market,
	}
	h.normalizeWeights()
	return h
}

// SetCostFactors overrides the blending weights. wtRealized is clamped
// to [0,1].
func (h *EvaluationHelper) SetCostFactors(wtExpected, wtMax, wtRealized, soldThreshold float64) {
	h.wtExpected = wtExpected
	h.wtMax = wtMax
	h.wtRealized = math.Min(math.Max(wtRealized, 0.0), 1.0)
	h.soldThreshold = soldThreshold
	h.normalizeWeights()
}

// SetRegulationFactors sets the expected per-timeslot regulation
// quantities. Curtailment and discharge are non-positive, down-regulation
// non-negative; all default to zero.
func (h *EvaluationHelper) SetRegulationFactors(expCurtail, expDischarge, expDown float64) {
	h.expCurtail = expCurtail
	h.expDischarge = expDischarge
	h.expDown = expDown
}

// SetRegulationDiscount overrides the logistic discount coefficients.
func (h *EvaluationHelper) SetRegulationDiscount(upregHalf, upregSlope, downregHalf, downregSlope float64) {
	h.upregHalf = upregHalf
	h.upregSlope = upregSlope
	h.downregHalf = downregHalf
	h.downregSlope = downregSlope
}

// ExpectedRegulation returns the net expected regulation per timeslot.
func (h *EvaluationHelper) ExpectedRegulation() float64 {
	return h.expCurtail + h.expDischarge + h.expDown
}

// Alpha returns the realized-price blending factor from the last estimate.
func (h *EvaluationHelper) Alpha() float64 { return h.alpha }

// EstimateCost estimates the total cost of drawing the given per-timeslot
// usage profile from a tariff, starting one timeslot after start. Periodic
// payments are prorated per hour when includePeriodic is set; signup and
// withdrawal payments are never included. Tariffs with a regulation rate
// get a per-timeslot regulation adjustment: undiscounted in bootstrap mode,
// otherwise discounted by logistic curves over the ratio of regulation
// price to mean market price.
func (h *EvaluationHelper) EstimateCost(t *Tariff, usage []float64, start time.Time, includePeriodic bool) float64 {
	h.begin(t)
	result := 0.0
	when := start
	for _, kwh := range usage {
		when = when.Add(time.Hour)
		result += t.UsageCharge(when, kwh, h)
		if includePeriodic {
			result += t.PeriodicPayment() / 24.0
		}
	}
	adj := 0.0
	if t.HasRegulationRate() {
		mktPrice, ok := h.meanMarketPrice()
		if !ok {
			adj = h.naiveRegulation(t)
		} else {
			adj = h.discountedRegulation(t, mktPrice)
		}
	}
	return result + adj*float64(len(usage))
}

// EstimateCostArray is the per-timeslot variant of EstimateCost, without
// the regulation adjustment.
func (h *EvaluationHelper) EstimateCostArray(t *Tariff, usage []float64, start time.Time, includePeriodic bool) []float64 {
	h.begin(t)
	result := make([]float64, len(usage))
	when := start
	for i, kwh := range usage {
		when = when.Add(time.Hour)
		result[i] = t.UsageCharge(when, kwh, h)
		if includePeriodic {
			result[i] += t.PeriodicPayment() / 24.0
		}
	}
	return result
}

// WeightedValue blends a variable rate's claimed values with the target
// tariff's realized price. Implements model.ValueEstimator.
func (h *EvaluationHelper) WeightedValue(r *model.Rate) float64 {
	return h.alpha*(h.normWtExpected*r.ExpectedMean+h.normWtMax*r.MaxValue) +
		(1.0-h.alpha)*h.tariff.RealizedPrice()
}

func (h *EvaluationHelper) begin(t *Tariff) {
	h.tariff = t
	h.normalizeWeights()
	h.alpha = 1.0 - h.wtRealized*(1.0-1.0/(1.0+t.TotalUsage()/h.soldThreshold))
}

func (h *EvaluationHelper) meanMarketPrice() (float64, bool) {
	if h.market == nil {
		return 0.0, false
	}
	return h.market.MeanMarketPrice()
}

// naiveRegulation values regulation at face value, for bootstrap runs.
func (h *EvaluationHelper) naiveRegulation(t *Tariff) float64 {
	upreg := h.expCurtail + h.expDischarge
	return t.RegulationCharge(time.Time{}, upreg, false) +
		t.RegulationCharge(time.Time{}, h.expDown, false)
}

// discountedRegulation discounts over- or under-priced regulation with
// logistic curves over the price-to-market ratio.
func (h *EvaluationHelper) discountedRegulation(t *Tariff, meanMarketPrice float64) float64 {
	result := 0.0
	mktPrice := meanMarketPrice / -1000.0 // per-MWh price to customer-side per-kWh

	upregPrice := t.RegulationCharge(time.Time{}, -1.0, false)
	upregDiscount := h.upRegulationDiscount(upregPrice / mktPrice)
	upreg := h.expCurtail + h.expDischarge
	result += upregDiscount * t.RegulationCharge(time.Time{}, upreg, false)

	downregPrice := t.RegulationCharge(time.Time{}, 1.0, false)
	downregDiscount := h.downRegulationDiscount(2.0 + downregPrice/mktPrice)
	result += downregDiscount * t.RegulationCharge(time.Time{}, h.expDown, false)
	return result
}

func (h *EvaluationHelper) upRegulationDiscount(priceRatio float64) float64 {
	return 1.0 - 1.0/(1.0+math.Exp(-h.upregSlope*(priceRatio-h.upregHalf)))
}

func (h *EvaluationHelper) downRegulationDiscount(priceRatio float64) float64 {
	return 1.0 - 1.0/(1.0+math.Exp(-h.downregSlope*(priceRatio-h.downregHalf)))
}

func (h *EvaluationHelper) normalizeWeights() {
	sum := h.wtExpected + h.wtMax
	h.normWtExpected = h.wtExpected / sum
	h.normWtMax = h.wtMax / sum
}
