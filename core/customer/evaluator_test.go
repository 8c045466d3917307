package customer

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwise/tariffsim/core/model"
	"github.com/gridwise/tariffsim/core/subscription"
	"github.com/gridwise/tariffsim/core/tariff"
	"github.com/gridwise/tariffsim/infra/logger"
	"github.com/gridwise/tariffsim/internal/idgen"
)

var base = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) // a Monday

// scriptedAccessor drives the evaluator with a fixed usage profile and
// deterministic samples.
type scriptedAccessor struct {
	profile       []float64
	inertiaSample float64
	choiceSample  float64
	transfers     int
}

func (a *scriptedAccessor) CapacityProfile(t *tariff.Tariff, now time.Time) ([]float64, time.Time, error) {
	return a.profile, now.Add(time.Hour), nil
}
func (a *scriptedAccessor) BrokerSwitchFactor(revoked bool) float64 {
	if revoked {
		return 0.1
	}
	return 0.02
}
func (a *scriptedAccessor) TariffChoiceSample() float64 { return a.choiceSample }
func (a *scriptedAccessor) InertiaSample() float64      { return a.inertiaSample }
func (a *scriptedAccessor) ShiftingInconvenienceFactor(t *tariff.Tariff) float64 {
	return 0.0
}
func (a *scriptedAccessor) NotifyTransfer(from, to *subscription.Subscription, count int) {
	a.transfers++
}

func flatProfile(n int, v float64) []float64 {
	p := make([]float64, n)
	for i := range p {
		p[i] = v
	}
	return p
}

func addTariff(t *testing.T, repo *tariff.Repo, id int64, broker string, price float64, now time.Time) *tariff.Tariff {
	t.Helper()
	spec := model.NewTariffSpecification(id, broker, model.Consumption).
		AddRate(model.NewRate().WithValue(price))
	tf := tariff.New(spec, logger.NopLogger{})
	require.NoError(t, tf.Init(now))
	tf.SetState(tariff.Offered)
	require.NoError(t, repo.Add(tf))
	return tf
}

type fixture struct {
	tariffs  *tariff.Repo
	subs     *subscription.Repo
	customer *model.CustomerInfo
	accessor *scriptedAccessor
	eval     *Evaluator
	def      *tariff.Tariff
}

func newFixture(t *testing.T, population int) *fixture {
	t.Helper()
	tariffs := tariff.NewRepo(logger.NopLogger{})
	defSpec := model.NewTariffSpecification(1, "default", model.Consumption).
		AddRate(model.NewRate().WithValue(-0.30))
	def, err := tariffs.SetDefault(defSpec, base)
	require.NoError(t, err)

	subs := subscription.NewRepo(idgen.New(7), logger.NopLogger{})
	customer := &model.CustomerInfo{
		ID: 1, Name: "village", PowerType: model.Consumption, Population: population,
	}
	accessor := &scriptedAccessor{profile: flatProfile(48, 1.0), inertiaSample: 1.0}
	helper := tariff.NewEvaluationHelper(nil)
	eval := NewEvaluator(accessor, customer, tariffs, subs, helper, logger.NopLogger{})

	subs.Get(customer, def).Subscribe(population, base)
	return &fixture{tariffs: tariffs, subs: subs, customer: customer,
		accessor: accessor, eval: eval, def: def}
}

func committedOn(f *fixture, tf *tariff.Tariff) int {
	return f.subs.Get(f.customer, tf).Committed()
}

func TestRampedInertia(t *testing.T) {
	assert.Equal(t, 0.0, rampedInertia(0, 0.8))
	assert.Equal(t, 0.0, rampedInertia(1, 0.8))
	assert.InDelta(t, 0.4, rampedInertia(2, 0.8), 1e-9)
	assert.InDelta(t, 0.6, rampedInertia(3, 0.8), 1e-9)
	assert.InDelta(t, 0.8, rampedInertia(30, 0.8), 1e-9)
}

func TestConstrainUtility(t *testing.T) {
	assert.Equal(t, 3.0, constrainUtility(3.0))
	assert.InDelta(t, 7.0, constrainUtility(8.0), 1e-9) // log10(1) = 0
	assert.InDelta(t, 7.0+math.Log10(3.0), constrainUtility(10.0), 1e-9)
	assert.Equal(t, 14.0, constrainUtility(1e9))
	assert.Equal(t, -7.0, constrainUtility(-20.0))
}

func TestNormalizedDiff(t *testing.T) {
	// cheaper than the default: positive utility
	assert.InDelta(t, 0.5, normalizedDiff(-5.0, -10.0), 1e-9)
	assert.InDelta(t, -0.5, normalizedDiff(-15.0, -10.0), 1e-9)
	assert.Equal(t, 0.0, normalizedDiff(-5.0, 0.0))
}

func TestSignupAndWithdrawCostScaling(t *testing.T) {
	f := newFixture(t, 100)

	fee := model.NewTariffSpecification(10, "b1", model.Consumption).
		AddRate(model.NewRate().WithValue(-0.10))
	fee.SignupPayment = -10.0
	feeTariff := tariff.New(fee, logger.NopLogger{})
	require.NoError(t, feeTariff.Init(base))
	// negative fees amortize over the fee period: -10 * 6 days / 6 hours
	assert.InDelta(t, -240.0, f.eval.computeSignupCost(feeTariff), 1e-9)

	bonus := model.NewTariffSpecification(11, "b1", model.Consumption).
		AddRate(model.NewRate().WithValue(-0.10))
	bonus.SignupPayment = 5.0
	bonusTariff := tariff.New(bonus, logger.NopLogger{})
	require.NoError(t, bonusTariff.Init(base))
	// bonuses scale by profileLength / standard duration: 168/48
	assert.InDelta(t, 5.0*3.5, f.eval.computeSignupCost(bonusTariff), 1e-9)

	lockin := model.NewTariffSpecification(12, "b1", model.Consumption).
		AddRate(model.NewRate().WithValue(-0.10))
	lockin.MinDuration = 48 * time.Hour
	lockin.EarlyWithdrawPayment = -5.0
	lockinTariff := tariff.New(lockin, logger.NopLogger{})
	require.NoError(t, lockinTariff.Init(base))
	// annoyance 48h/144h, scale 3.5
	assert.InDelta(t, -5.0*(48.0/144.0)*3.5, f.eval.computeWithdrawCost(lockinTariff), 1e-9)

	short := model.NewTariffSpecification(13, "b1", model.Consumption).
		AddRate(model.NewRate().WithValue(-0.10))
	short.MinDuration = 12 * time.Hour
	short.EarlyWithdrawPayment = -5.0
	shortTariff := tariff.New(short, logger.NopLogger{})
	require.NoError(t, shortTariff.Init(base))
	assert.Equal(t, 0.0, f.eval.computeWithdrawCost(shortTariff))
}

func TestLogitChoiceMovesPopulationToCheaperTariff(t *testing.T) {
	f := newFixture(t, 100)
	cheap := addTariff(t, f.tariffs, 20, "b1", -0.10, base)

	f.eval.EvaluateTariffs(base)
	f.subs.ProcessDeferred(base)

	assert.Equal(t, 100, committedOn(f, cheap))
	assert.Equal(t, 0, committedOn(f, f.def))
	assert.Equal(t, 1, f.accessor.transfers)
}

func TestAllocationConservesPopulation(t *testing.T) {
	f := newFixture(t, 997)
	f.customer.MultiContracting = true
	addTariff(t, f.tariffs, 20, "b1", -0.10, base)
	addTariff(t, f.tariffs, 21, "b2", -0.20, base)

	f.eval.EvaluateTariffs(base)
	f.subs.ProcessDeferred(base)

	total := 0
	for _, sub := range f.subs.ForCustomer(f.customer) {
		total += sub.Committed()
	}
	assert.Equal(t, 997, total)
}

func TestTotalOrderAllocation(t *testing.T) {
	f := newFixture(t, 100)
	f.eval.WithAllocationMethod(AllocationTotalOrder, [][]float64{
		{1.0},
		{0.7, 0.3},
		{0.6, 0.3, 0.1},
	})
	cheap := addTariff(t, f.tariffs, 20, "b1", -0.10, base)
	mid := addTariff(t, f.tariffs, 21, "b2", -0.20, base)

	f.eval.EvaluateTariffs(base)
	f.subs.ProcessDeferred(base)

	// three candidates ranked cheap, mid, default
	assert.Equal(t, 60, committedOn(f, cheap))
	assert.Equal(t, 30, committedOn(f, mid))
	assert.Equal(t, 10, committedOn(f, f.def))
}

func TestInertiaSkipsEvaluationOnceRamped(t *testing.T) {
	f := newFixture(t, 100)
	f.eval.WithInertia(1.0)
	f.accessor.inertiaSample = 0.0
	cheap := addTariff(t, f.tariffs, 20, "b1", -0.10, base)

	// cycle 1: ramp keeps inertia at zero, population moves
	f.eval.EvaluateTariffs(base)
	f.subs.ProcessDeferred(base)
	require.Equal(t, 100, committedOn(f, cheap))

	// move everyone back to watch the third cycle stand still
	f.subs.Get(f.customer, cheap).Unsubscribe(100)
	f.subs.ProcessDeferred(base)
	f.subs.Get(f.customer, f.def).Subscribe(100, base)

	f.eval.EvaluateTariffs(base) // cycle 2, ramp still zero: moves again
	f.subs.ProcessDeferred(base)
	require.Equal(t, 100, committedOn(f, cheap))

	f.subs.Get(f.customer, cheap).Unsubscribe(100)
	f.subs.ProcessDeferred(base)
	f.subs.Get(f.customer, f.def).Subscribe(100, base)

	f.eval.EvaluateTariffs(base) // cycle 3: inertia 0.5, sample 0.0 stays put
	f.subs.ProcessDeferred(base)
	assert.Equal(t, 0, committedOn(f, cheap))
	assert.Equal(t, 100, committedOn(f, f.def))
}

func TestChunkSizing(t *testing.T) {
	f := newFixture(t, 100)
	assert.Equal(t, 1, f.eval.chunkFor(100))
	assert.Equal(t, 5, f.eval.chunkFor(1000))
	f.eval.WithChunkSize(10)
	assert.Equal(t, 10, f.eval.chunkFor(100))
	assert.Equal(t, 5, f.eval.chunkFor(5))
}

func TestRevokedSubscriptionForcesMove(t *testing.T) {
	f := newFixture(t, 100)
	doomed := addTariff(t, f.tariffs, 20, "b1", -0.10, base)

	f.eval.EvaluateTariffs(base)
	f.subs.ProcessDeferred(base)
	require.Equal(t, 100, committedOn(f, doomed))

	require.NoError(t, f.tariffs.Revoke(20))
	// revoked current tariff is not a candidate, so everyone leaves
	// regardless of inertia
	f.eval.WithInertia(1.0)
	f.accessor.inertiaSample = 0.0
	f.eval.EvaluateTariffs(base)
	f.subs.ProcessDeferred(base)

	assert.Equal(t, 0, committedOn(f, doomed))
	assert.Equal(t, 100, committedOn(f, f.def))
}

func TestSubscriberStructureNormalize(t *testing.T) {
	s := &SubscriberStructure{Name: "village"}
	s.SetDefaults()
	require.NoError(t, s.Normalize())
	sum := s.TouFactor + s.InterruptibilityFactor + s.VariablePricingFactor +
		s.TariffSwitchFactor + s.BrokerSwitchFactor
	assert.InDelta(t, 1.0, sum, 1e-9)

	s = &SubscriberStructure{Name: "village", Allocation: AllocationTotalOrder}
	s.SetDefaults() // keeps the configured method
	require.NoError(t, s.Normalize())
	assert.Equal(t, 1.0, s.Rationality)

	s = &SubscriberStructure{Name: "village", Allocation: "RANDOM"}
	assert.Error(t, s.Normalize())

	s = &SubscriberStructure{Name: "village", Allocation: AllocationLogitChoice, ExpUpRegulation: 1.0}
	assert.Error(t, s.Normalize())
}
