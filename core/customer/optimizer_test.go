package customer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwise/tariffsim/core/capacity"
	"github.com/gridwise/tariffsim/core/clock"
	"github.com/gridwise/tariffsim/core/model"
	"github.com/gridwise/tariffsim/core/subscription"
	"github.com/gridwise/tariffsim/core/tariff"
	"github.com/gridwise/tariffsim/core/weather"
	"github.com/gridwise/tariffsim/infra/logger"
	"github.com/gridwise/tariffsim/internal/idgen"
)

func steadyWeather(serials ...int) *weather.Store {
	store := weather.NewStore()
	for _, serial := range serials {
		store.AddReport(model.WeatherReport{TimeslotSerial: serial, Temperature: 20.0})
	}
	return store
}

func steadyStructure(t *testing.T, kwh float64) *capacity.Structure {
	t.Helper()
	dist, err := capacity.NewDistribution(capacity.DistConfig{Type: "DEGENERATE", Value: kwh}, 1)
	require.NoError(t, err)
	s := &capacity.Structure{
		Name:               "households",
		BaseType:           capacity.BasePopulation,
		PopulationCapacity: dist,
	}
	s.SetDefaults()
	return s
}

type optFixture struct {
	opt     *UtilityOptimizer
	tariffs *tariff.Repo
	subs    *subscription.Repo
	bundle  *Bundle
	def     *tariff.Tariff
	clk     *clock.Clock
}

func newOptFixture(t *testing.T, population int) *optFixture {
	t.Helper()
	log := logger.NopLogger{}
	tariffs := tariff.NewRepo(log)
	defSpec := model.NewTariffSpecification(1, "default", model.Consumption).
		AddRate(model.NewRate().WithValue(-0.30))
	def, err := tariffs.SetDefault(defSpec, base)
	require.NoError(t, err)

	subs := subscription.NewRepo(idgen.New(3), log)
	clk := clock.New(base, base, 1, clock.Timeslot, log)

	serials := make([]int, 25)
	for i := range serials {
		serials[i] = i
	}
	wx := steadyWeather(serials...)
	customer := &model.CustomerInfo{ID: 2, Name: "village", PowerType: model.Consumption, Population: population}
	orig, err := capacity.NewOriginator(steadyStructure(t, 120.0), customer, wx, 11, log)
	require.NoError(t, err)

	bundle := &Bundle{
		Customer:    customer,
		Structure:   &SubscriberStructure{Name: "village"},
		Originators: []*capacity.Originator{orig},
	}
	opt, err := NewUtilityOptimizer([]*Bundle{bundle}, tariffs, subs, nil, clk, 42, log)
	require.NoError(t, err)
	return &optFixture{opt: opt, tariffs: tariffs, subs: subs, bundle: bundle, def: def, clk: clk}
}

func TestSubSeedDistinctPerPurpose(t *testing.T) {
	assert.NotEqual(t, subSeed(42, "inertia-sampler"), subSeed(42, "tariff-selector"))
	assert.Equal(t, subSeed(42, "inertia-sampler"), subSeed(42, "inertia-sampler"))
}

func TestChoiceStreamsIndependentPerBundle(t *testing.T) {
	log := logger.NopLogger{}
	tariffs := tariff.NewRepo(log)
	subs := subscription.NewRepo(idgen.New(3), log)
	clk := clock.New(base, base, 1, clock.Timeslot, log)
	mk := func(id int64, name string) *Bundle {
		return &Bundle{
			Customer:  &model.CustomerInfo{ID: id, Name: name, PowerType: model.Consumption, Population: 10},
			Structure: &SubscriberStructure{Name: name},
		}
	}

	a, b := mk(2, "village"), mk(3, "suburb")
	both, err := NewUtilityOptimizer([]*Bundle{a, b}, tariffs, subs, nil, clk, 42, log)
	require.NoError(t, err)

	alone1 := mk(2, "village")
	alone, err := NewUtilityOptimizer([]*Bundle{alone1}, tariffs, subs, nil, clk, 42, log)
	require.NoError(t, err)

	accBoth := both.evaluators[a].accessor.(*bundleAccessor)
	accAlone := alone.evaluators[alone1].accessor.(*bundleAccessor)
	accOther := both.evaluators[b].accessor.(*bundleAccessor)

	// the village stream does not depend on the suburb bundle existing
	for i := 0; i < 8; i++ {
		assert.Equal(t, accAlone.TariffChoiceSample(), accBoth.TariffChoiceSample())
		assert.Equal(t, accAlone.InertiaSample(), accBoth.InertiaSample())
	}
	assert.NotEqual(t, accBoth.TariffChoiceSample(), accOther.TariffChoiceSample())
}

func TestSubscribeDefaultRequiresDefault(t *testing.T) {
	f := newOptFixture(t, 100)
	require.NoError(t, f.opt.SubscribeDefault(base))
	assert.Equal(t, 100, f.subs.Get(f.bundle.Customer, f.def).Committed())

	empty := tariff.NewRepo(logger.NopLogger{})
	bare, err := NewUtilityOptimizer([]*Bundle{f.bundle}, empty, f.subs, nil, f.clk, 42, logger.NopLogger{})
	require.NoError(t, err)
	assert.Error(t, bare.SubscribeDefault(base))
}

func TestStepRecordsUsage(t *testing.T) {
	f := newOptFixture(t, 100)
	require.NoError(t, f.opt.SubscribeDefault(base))
	require.NoError(t, f.opt.Step(base))

	// degenerate 120 kWh draw, full population committed, neutral skews
	assert.InDelta(t, 120.0, f.def.TotalUsage(), 1e-9)
	assert.InDelta(t, 120.0*-0.30, f.def.TotalCost(), 1e-9)
}

func TestEvaluateTariffsViaOptimizer(t *testing.T) {
	f := newOptFixture(t, 100)
	require.NoError(t, f.opt.SubscribeDefault(base))
	cheap := addTariff(t, f.tariffs, 20, "b1", -0.10, base)

	f.opt.EvaluateTariffs(base)
	f.subs.ProcessDeferred(base)

	assert.Equal(t, 100, f.subs.Get(f.bundle.Customer, cheap).Committed())
	assert.Equal(t, 0, f.subs.Get(f.bundle.Customer, f.def).Committed())
}

func TestStepHandlesRevokedSubscriptions(t *testing.T) {
	f := newOptFixture(t, 100)
	require.NoError(t, f.opt.SubscribeDefault(base))
	doomed := addTariff(t, f.tariffs, 20, "b1", -0.10, base)

	f.opt.EvaluateTariffs(base)
	f.subs.ProcessDeferred(base)
	require.Equal(t, 100, f.subs.Get(f.bundle.Customer, doomed).Committed())

	require.NoError(t, f.tariffs.Revoke(20))
	require.NoError(t, f.opt.Step(base))
	f.subs.ProcessDeferred(base)

	assert.Equal(t, 0, f.subs.Get(f.bundle.Customer, doomed).Committed())
	assert.Equal(t, 100, f.subs.Get(f.bundle.Customer, f.def).Committed())
}
