package customer

import (
	"math"
	"sort"
	"time"

	"github.com/gridwise/tariffsim/core/logger"
	"github.com/gridwise/tariffsim/core/model"
	"github.com/gridwise/tariffsim/core/subscription"
	"github.com/gridwise/tariffsim/core/tariff"
)

const (
	// lambdaMax bounds the logit sharpness at full rationality.
	lambdaMax = 50.0
	// maxLinearUtility is where utility compression starts.
	maxLinearUtility = 7.0
	// stdDurationDays is the standardized profile length used to scale
	// cost estimates.
	stdDurationDays = 2
	// signupFeePeriodHours amortizes negative signup fees.
	signupFeePeriodHours = 6.0
	// minExpirationInterval is the shortest minimum duration worth
	// worrying about when pricing early withdrawal.
	minExpirationInterval = 24 * time.Hour
	defaultProfileLength  = 168
	defaultEvalDepth      = 5
	defaultMaxChunkCount  = 200
)

// ModelAccessor is the customer model's side of the evaluation protocol:
// it supplies usage forecasts and the random samples that drive choice.
type ModelAccessor interface {
	// CapacityProfile predicts hourly usage under a tariff, starting at
	// the hour after now. Positive values are consumption.
	CapacityProfile(t *tariff.Tariff, now time.Time) ([]float64, time.Time, error)
	// BrokerSwitchFactor is the inconvenience of changing brokers,
	// larger when forced by a revocation.
	BrokerSwitchFactor(revoked bool) float64
	// TariffChoiceSample draws from [0,1) for the allocation walk.
	TariffChoiceSample() float64
	// InertiaSample draws from [0,1) for the attention check.
	InertiaSample() float64
	// ShiftingInconvenienceFactor reports the cost-like inconvenience of
	// shifting usage under a tariff, zero for non-shifting models.
	ShiftingInconvenienceFactor(t *tariff.Tariff) float64
	// NotifyTransfer announces a population move between subscriptions.
	NotifyTransfer(from, to *subscription.Subscription, count int)
}

// EvalData is the cached evaluation of one tariff.
type EvalData struct {
	Cost          float64
	Inconvenience float64
}

type tariffUtility struct {
	tariff      *tariff.Tariff
	utility     float64
	probability float64
}

// Evaluator scores the tariffs available to one customer population and
// reallocates the population among them. One instance per CustomerInfo,
// since cost evaluations are cached per tariff.
type Evaluator struct {
	accessor ModelAccessor
	customer *model.CustomerInfo
	tariffs  *tariff.Repo
	subs     *subscription.Repo
	helper   *tariff.EvaluationHelper
	log      logger.Logger

	touFactor              float64
	variablePricingFactor  float64
	interruptibilityFactor float64

	chunkSize         int
	maxChunkCount     int
	evalDepth         int
	inertia           float64
	signupBonusFactor float64
	rationality       float64
	inconvWeight      float64
	tariffSwitch      float64
	preferredDuration float64 // days
	evaluateAll       bool
	allocation        AllocationMethod
	totalOrderRules   [][]float64

	evalCounter   int
	evaluated     map[int64]EvalData
	allocations   map[int64]int
	candidates    map[int64]*tariff.Tariff
	profileLength int
}

// NewEvaluator builds an evaluator with the stock parameters. helper must
// share the market data used by the rest of the simulation.
func NewEvaluator(accessor ModelAccessor, customer *model.CustomerInfo,
	tariffs *tariff.Repo, subs *subscription.Repo,
	helper *tariff.EvaluationHelper, log logger.Logger) *Evaluator {
	return &Evaluator{
		accessor: accessor,
		customer: customer,
		tariffs:  tariffs,
		subs:     subs,
		helper:   helper,
		log:      log,

		touFactor:              0.2,
		variablePricingFactor:  0.5,
		interruptibilityFactor: 0.2,

		chunkSize:         1,
		maxChunkCount:     defaultMaxChunkCount,
		evalDepth:         defaultEvalDepth,
		inertia:           0.8,
		signupBonusFactor: 0.1,
		rationality:       0.9,
		inconvWeight:      0.2,
		tariffSwitch:      0.04,
		preferredDuration: 6,
		allocation:        AllocationLogitChoice,

		evaluated:     make(map[int64]EvalData),
		allocations:   make(map[int64]int),
		candidates:    make(map[int64]*tariff.Tariff),
		profileLength: defaultProfileLength,
	}
}

// WithChunkSize sets the target allocation chunk size.
func (e *Evaluator) WithChunkSize(size int) *Evaluator {
	if size > 0 {
		e.chunkSize = size
	} else {
		e.log.Errorf("evaluator: chunk size %d < 1", size)
	}
	return e
}

// WithTariffEvalDepth sets how many tariffs per broker and power type to
// consider.
func (e *Evaluator) WithTariffEvalDepth(depth int) *Evaluator {
	e.evalDepth = depth
	return e
}

// WithEvaluateAllTariffs disables the evaluation cache, for models whose
// usage profiles depend on current state.
func (e *Evaluator) WithEvaluateAllTariffs(value bool) *Evaluator {
	e.evaluateAll = value
	return e
}

// WithInertia sets the steady-state probability of not bothering to
// re-evaluate, in [0,1].
func (e *Evaluator) WithInertia(inertia float64) *Evaluator {
	e.inertia = inertia
	return e
}

// WithSignupBonusFactor sets the inertia multiplier applied when the
// current tariff paid a signup bonus.
func (e *Evaluator) WithSignupBonusFactor(factor float64) *Evaluator {
	e.signupBonusFactor = factor
	return e
}

// WithRationality sets choice sharpness: 1.0 always picks the best
// utility, 0 chooses at random.
func (e *Evaluator) WithRationality(r float64) *Evaluator {
	switch {
	case r < 0.0:
		e.log.Errorf("evaluator: rationality %v < 0", r)
		e.rationality = 0.01
	case r > 1.0:
		e.log.Errorf("evaluator: rationality %v > 1", r)
		e.rationality = 1.0
	default:
		e.rationality = r
	}
	return e
}

// WithInconvenienceWeight sets the weight of inconvenience against cost.
func (e *Evaluator) WithInconvenienceWeight(weight float64) *Evaluator {
	e.inconvWeight = weight
	return e
}

// WithTariffSwitchFactor sets the inconvenience of switching tariffs.
func (e *Evaluator) WithTariffSwitchFactor(factor float64) *Evaluator {
	e.tariffSwitch = factor
	return e
}

// WithPreferredDuration sets the preferred contract duration in days.
func (e *Evaluator) WithPreferredDuration(days float64) *Evaluator {
	e.preferredDuration = days
	return e
}

// WithAllocationMethod selects the allocation policy; total-order also
// needs rules.
func (e *Evaluator) WithAllocationMethod(m AllocationMethod, rules [][]float64) *Evaluator {
	e.allocation = m
	e.totalOrderRules = rules
	return e
}

// SetInconvenienceFactors sets the per-tariff inconvenience components.
// Values are not normalized here.
func (e *Evaluator) SetInconvenienceFactors(tou, variablePricing, interruptibility float64) {
	e.touFactor = tou
	e.variablePricingFactor = variablePricing
	e.interruptibilityFactor = interruptibility
}

// SetCostFactors delegates profile cost weighting to the helper.
func (e *Evaluator) SetCostFactors(wtExpected, wtMax, wtRealized, soldThreshold float64) {
	e.helper.SetCostFactors(wtExpected, wtMax, wtRealized, soldThreshold)
}

// SetRegulationFactors delegates expected regulation to the helper,
// clamping each value to its legal sign.
func (e *Evaluator) SetRegulationFactors(expCurtail, expDischarge, expDown float64) {
	if expCurtail > 0.0 {
		e.log.Errorf("evaluator: %s expected curtailment %v must be non-positive", e.customer.Name, expCurtail)
		expCurtail = 0.0
	}
	if expDischarge > 0.0 {
		e.log.Errorf("evaluator: %s expected discharge %v must be non-positive", e.customer.Name, expDischarge)
		expDischarge = 0.0
	}
	if expDown < 0.0 {
		e.log.Errorf("evaluator: %s expected down-regulation %v must be non-negative", e.customer.Name, expDown)
		expDown = 0.0
	}
	e.helper.SetRegulationFactors(expCurtail, expDischarge, expDown)
}

// scaleFactor is the ratio of the profile length to the standard
// evaluation duration.
func (e *Evaluator) scaleFactor() float64 {
	return float64(e.profileLength) / (stdDurationDays * 24.0)
}

// EvaluateTariffs scores the recent tariffs for this customer and moves
// population between subscriptions. Call once per tariff-publication
// cycle.
func (e *Evaluator) EvaluateTariffs(now time.Time) {
	e.allocations = make(map[int64]int)
	e.candidates = make(map[int64]*tariff.Tariff)

	seen := make(map[int64]bool)
	var newTariffs []*tariff.Tariff
	add := func(t *tariff.Tariff) {
		if t != nil && !seen[t.ID()] {
			seen[t.ID()] = true
			newTariffs = append(newTariffs, t)
		}
	}
	for _, t := range e.tariffs.FindRecentActive(e.evalDepth, e.customer.PowerType, now) {
		add(t)
	}
	// superseding tariffs of revoked subscriptions must be considered
	for _, sub := range e.subs.RevokedForCustomer(e.customer) {
		if next := sub.Tariff().SupersededBy(); next != nil && next.IsSubscribable(now) {
			add(next)
		}
	}

	actualInertia := rampedInertia(e.evalCounter, e.inertia)
	e.evalCounter++

	def := e.tariffs.Default(e.customer.PowerType)
	if def == nil {
		e.log.Errorf("evaluator: no default tariff for %s", e.customer.PowerType)
		return
	}
	defaultEval := e.evalFor(def, now)
	for _, t := range newTariffs {
		e.evalFor(t, now)
	}

	for _, sub := range e.subs.ActiveForCustomer(e.customer) {
		cur := sub.Tariff()
		withdrawPayment := cur.EarlyWithdrawPayment()
		committed := sub.Committed()
		expired := sub.ExpiredCustomerCount(now)
		if withdrawPayment == 0.0 || (expired > 0 && expired == committed) {
			e.evaluateAlternatives(sub, actualInertia, 0.0, committed, def, defaultEval, newTariffs, now)
		} else {
			// expired members leave for free, the rest pay
			e.evaluateAlternatives(sub, actualInertia, 0.0, expired, def, defaultEval, newTariffs, now)
			e.evaluateAlternatives(sub, actualInertia, withdrawPayment, committed-expired, def, defaultEval, newTariffs, now)
		}
	}
	e.applyAllocations(now)
}

// evalFor returns the cached evaluation of a tariff, computing it when
// missing or when caching is disabled.
func (e *Evaluator) evalFor(t *tariff.Tariff, now time.Time) EvalData {
	if !e.evaluateAll {
		if eval, ok := e.evaluated[t.ID()]; ok {
			return eval
		}
	}
	eval := EvalData{
		Cost:          e.forecastCost(t, now),
		Inconvenience: e.computeInconvenience(t),
	}
	e.log.Debugw("evaluator: tariff evaluated", map[string]any{
		"customer": e.customer.Name, "tariff": t.ID(),
		"cost": eval.Cost, "inconvenience": eval.Inconvenience,
	})
	e.evaluated[t.ID()] = eval
	return eval
}

// forecastCost estimates the standardized usage cost of a tariff from the
// model's capacity profile.
func (e *Evaluator) forecastCost(t *tariff.Tariff, now time.Time) float64 {
	profile, start, err := e.accessor.CapacityProfile(t, now)
	if err != nil || len(profile) == 0 {
		e.log.Errorf("evaluator: no capacity profile for %s under tariff %d: %v",
			e.customer.Name, t.ID(), err)
		return 0.0
	}
	e.profileLength = len(profile)
	shiftInconv := e.accessor.ShiftingInconvenienceFactor(t)
	cost := e.helper.EstimateCost(t, profile, start, true)
	if math.IsNaN(cost) {
		e.log.Errorf("evaluator: profile cost NaN for %s on tariff %d", e.customer.Name, t.ID())
	}
	scale := stdDurationDays * 24.0 / float64(e.profileLength)
	return (cost + shiftInconv) * scale
}

// computeInconvenience sums the per-tariff inconvenience components.
func (e *Evaluator) computeInconvenience(t *tariff.Tariff) float64 {
	result := 0.0
	if t.IsTimeOfUse() {
		result += e.touFactor
	}
	if t.IsVariableRate() {
		result += e.variablePricingFactor
	}
	if t.IsInterruptible() {
		result += e.interruptibilityFactor
	}
	return result
}

// computeSignupCost inflates signup fees by the ratio of preferred
// duration to the fee amortization period; bonuses scale with the profile.
func (e *Evaluator) computeSignupCost(t *tariff.Tariff) float64 {
	if t.SignupPayment() < 0.0 {
		return t.SignupPayment() * e.preferredDuration * 24.0 / signupFeePeriodHours
	}
	return t.SignupPayment() * e.scaleFactor()
}

// computeWithdrawCost penalizes long minimum durations with negative
// withdraw fees.
func (e *Evaluator) computeWithdrawCost(t *tariff.Tariff) float64 {
	if t.MinDuration() <= minExpirationInterval || t.EarlyWithdrawPayment() == 0.0 {
		return 0.0
	}
	annoyance := 1.0
	if t.EarlyWithdrawPayment() < 0.0 {
		annoyance = t.MinDuration().Hours() / (e.preferredDuration * 24.0)
	}
	return t.EarlyWithdrawPayment() * annoyance * e.scaleFactor()
}

// rampedInertia grows inertia from zero over the first evaluation cycles,
// so customers can leave the default tariff early in a run.
func rampedInertia(counter int, inertia float64) float64 {
	return math.Max(0.0, (1.0-math.Pow(2, float64(1-counter)))*inertia)
}

// constrainUtility compresses extreme utilities for numeric stability.
func constrainUtility(utility float64) float64 {
	if utility > maxLinearUtility {
		compressed := math.Log10(utility - maxLinearUtility)
		return math.Min(maxLinearUtility+compressed, maxLinearUtility*2)
	}
	if utility < -maxLinearUtility {
		return -maxLinearUtility
	}
	return utility
}

// normalizedDiff compares a cost estimate against the default tariff's.
func normalizedDiff(cost, defaultCost float64) float64 {
	if defaultCost == 0 {
		return 0.0
	}
	return (cost - defaultCost) / math.Abs(defaultCost)
}

// evaluateAlternatives scores the candidate set against one subscription
// and allocates part of its population. withdraw0 is the payment due for
// leaving the current tariff.
func (e *Evaluator) evaluateAlternatives(current *subscription.Subscription,
	inertia, withdraw0 float64, population int,
	def *tariff.Tariff, defaultEval EvalData,
	newTariffs []*tariff.Tariff, now time.Time) {
	if population == 0 {
		return
	}
	cur := current.Tariff()
	revoked := cur.IsRevoked()
	var replacement *tariff.Tariff
	if revoked {
		replacement = cur.SupersededBy()
		if replacement == nil {
			replacement = def
		}
		withdraw0 = 0.0
	}

	seen := make(map[int64]bool)
	var candidates []*tariff.Tariff
	add := func(t *tariff.Tariff) {
		if t != nil && !seen[t.ID()] {
			seen[t.ID()] = true
			candidates = append(candidates, t)
		}
	}
	for _, t := range newTariffs {
		// expired or revoked tariffs are not alternatives
		if t.IsSubscribable(now) {
			add(t)
		}
	}
	add(def)
	if !revoked {
		add(cur)
	}

	// final cost per candidate, with switch penalties applied
	costs := make(map[int64]EvalData, len(candidates))
	for _, t := range candidates {
		eval := e.evalFor(t, now)
		if t.ID() != cur.ID() && (replacement == nil || t.ID() != replacement.ID()) {
			eval.Inconvenience += e.tariffSwitch
			if t.Broker() != cur.Broker() {
				eval.Inconvenience += e.accessor.BrokerSwitchFactor(revoked)
			}
			eval.Cost += e.computeSignupCost(t)
			eval.Cost += withdraw0
			eval.Cost += e.computeWithdrawCost(t)
			if math.IsNaN(eval.Cost) {
				e.log.Errorf("evaluator: cost is NaN for tariff %d", t.ID())
			}
		}
		costs[t.ID()] = eval
	}

	evals := make([]tariffUtility, 0, len(candidates))
	for _, t := range candidates {
		final := costs[t.ID()]
		utility := normalizedDiff(final.Cost, defaultEval.Cost)
		utility -= e.inconvWeight * final.Inconvenience
		if math.IsNaN(utility) {
			e.log.Errorf("evaluator: utility is NaN for tariff %d", t.ID())
		}
		evals = append(evals, tariffUtility{tariff: t, utility: constrainUtility(utility)})
	}
	sort.Slice(evals, func(i, j int) bool {
		if evals[i].utility != evals[j].utility {
			return evals[i].utility > evals[j].utility
		}
		return evals[i].tariff.ID() > evals[j].tariff.ID()
	})

	if e.allocation == AllocationTotalOrder {
		e.allocateTotalOrder(cur, evals, costs, population)
		return
	}

	lambda := math.Pow(lambdaMax, e.rationality) - 1.0
	denominator := 0.0
	for _, tu := range evals {
		denominator += math.Exp(lambda * tu.utility)
	}
	for i := range evals {
		p := math.Exp(lambda*evals[i].utility) / denominator
		if math.IsNaN(p) {
			e.log.Errorf("evaluator: probability NaN, utility=%v denom=%v tariff %d",
				evals[i].utility, denominator, evals[i].tariff.ID())
			p = 0.0
		}
		evals[i].probability = p
	}

	currentSignup := e.computeSignupCost(cur)
	remaining := population
	chunk := remaining
	if e.customer.MultiContracting {
		chunk = e.chunkFor(population)
	}
	for remaining > 0 {
		count := remaining
		if chunk < count {
			count = chunk
		}
		remaining -= count
		inertiaSample := e.accessor.InertiaSample()
		if !revoked && withdraw0 <= 0.0 && currentSignup <= 0.0 && inertiaSample < inertia {
			// not paying attention this cycle
			continue
		}
		if currentSignup > 0.0 && inertiaSample < inertia*e.signupBonusFactor {
			// signup bonuses weaken inertia but don't remove it
			continue
		}
		sample := e.accessor.TariffChoiceSample()
		allocated := false
		for _, tu := range evals {
			if sample <= tu.probability {
				e.addAllocation(cur, tu.tariff, count)
				allocated = true
				break
			}
			sample -= tu.probability
		}
		if !allocated {
			e.log.Errorf("evaluator: %s failed to allocate, residual sample %v", e.customer.Name, sample)
		}
	}
}

// allocateTotalOrder hands out configured population fractions to the
// candidates ranked by estimated payment, best first. Ranks beyond the
// rule row get nothing. The rounded counts are adjusted to conserve the
// population.
func (e *Evaluator) allocateTotalOrder(cur *tariff.Tariff, evals []tariffUtility,
	costs map[int64]EvalData, population int) {
	n := len(evals)
	if n == 0 {
		return
	}
	ranked := append([]tariffUtility(nil), evals...)
	sort.Slice(ranked, func(i, j int) bool {
		ci, cj := costs[ranked[i].tariff.ID()].Cost, costs[ranked[j].tariff.ID()].Cost
		if ci != cj {
			// costs are payments from the customer viewpoint,
			// larger is better
			return ci > cj
		}
		return ranked[i].tariff.ID() > ranked[j].tariff.ID()
	})

	rule := e.ruleFor(n)
	counts := make([]int, n)
	total := 0
	first := -1
	for i := 0; i < n; i++ {
		if rule[i] <= 0.0 {
			continue
		}
		if first < 0 {
			first = i
		}
		counts[i] = int(math.Round(float64(population) * rule[i]))
		total += counts[i]
	}
	if first < 0 {
		first = 0
	}
	counts[first] += population - total
	for i, count := range counts {
		if count > 0 {
			e.addAllocation(cur, ranked[i].tariff, count)
		}
	}
}

// ruleFor returns the allocation-fraction row for n candidates, padded
// with zeros. With no configured rules everyone takes the best tariff.
func (e *Evaluator) ruleFor(n int) []float64 {
	rule := make([]float64, n)
	if len(e.totalOrderRules) == 0 {
		rule[0] = 1.0
		return rule
	}
	row := e.totalOrderRules[len(e.totalOrderRules)-1]
	if n <= len(e.totalOrderRules) {
		row = e.totalOrderRules[n-1]
	}
	copy(rule, row)
	return rule
}

func (e *Evaluator) chunkFor(population int) int {
	if population <= e.chunkSize {
		return population
	}
	chunk := population / e.maxChunkCount
	if chunk < e.chunkSize {
		return e.chunkSize
	}
	return chunk
}

// addAllocation tracks a population move from the current tariff to a
// chosen one.
func (e *Evaluator) addAllocation(cur, chosen *tariff.Tariff, count int) {
	if cur.ID() == chosen.ID() {
		return
	}
	e.allocations[cur.ID()] -= count
	e.allocations[chosen.ID()] += count
	e.candidates[cur.ID()] = cur
	e.candidates[chosen.ID()] = chosen
	e.accessor.NotifyTransfer(e.subs.Get(e.customer, cur), e.subs.Get(e.customer, chosen), count)
}

// applyAllocations turns the accumulated moves into subscription changes.
// Unsubscribes are deferred; the caller finalizes them at the end of the
// timeslot.
func (e *Evaluator) applyAllocations(now time.Time) {
	ids := make([]int64, 0, len(e.allocations))
	check := 0
	for id, count := range e.allocations {
		ids = append(ids, id)
		check += count
	}
	if check != 0 {
		e.log.Errorf("evaluator: allocations for %s do not conserve population: %d", e.customer.Name, check)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		count := e.allocations[id]
		t := e.candidates[id]
		switch {
		case count < 0:
			e.subs.Get(e.customer, t).Unsubscribe(-count)
			e.log.Infof("evaluator: %s drops %d members from tariff %d", e.customer.Name, -count, id)
		case count > 0:
			e.subs.Get(e.customer, t).Subscribe(count, now)
			e.log.Infof("evaluator: %s adds %d members to tariff %d", e.customer.Name, count, id)
		}
	}
}
