package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwise/tariffsim/core/model"
	"github.com/gridwise/tariffsim/core/tariff"
	"github.com/gridwise/tariffsim/infra/logger"
	"github.com/gridwise/tariffsim/internal/idgen"
)

var base = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func makeTariff(t *testing.T, id int64, pt model.PowerType, withReg bool) *tariff.Tariff {
	t.Helper()
	spec := model.NewTariffSpecification(id, "broker1", pt)
	rate := model.NewRate().WithValue(-0.15).WithMaxCurtailment(0.5)
	if pt.IsProduction() {
		rate = model.NewRate().WithValue(0.05)
	}
	spec.AddRate(rate)
	spec.MinDuration = 48 * time.Hour
	spec.EarlyWithdrawPayment = -5.0
	if withReg {
		spec.AddRegulationRate(&model.RegulationRate{UpPayment: 0.1, DownPayment: -0.02})
	}
	tf := tariff.New(spec, logger.NopLogger{})
	require.NoError(t, tf.Init(base))
	tf.SetState(tariff.Active)
	return tf
}

func household(population int) *model.CustomerInfo {
	return &model.CustomerInfo{ID: 1, Name: "households", PowerType: model.InterruptibleConsumption, Population: population}
}

func TestSubscribeAndDeferredUnsubscribe(t *testing.T) {
	tf := makeTariff(t, 1, model.InterruptibleConsumption, false)
	s := New(1, household(100), tf, logger.NopLogger{})

	s.Subscribe(60, base)
	s.Subscribe(40, base) // same horizon, merged record
	assert.Equal(t, 100, s.Committed())
	assert.Equal(t, 0, s.ExpiredCustomerCount(base))

	// all members are inside the 48h minimum: full penalty
	s.Unsubscribe(30)
	assert.Equal(t, 30, s.PendingUnsubscribe())
	penalty := s.DeferredUnsubscribe(30, base.Add(24*time.Hour))
	assert.InDelta(t, 30*-5.0, penalty, 1e-9)
	assert.Equal(t, 70, s.Committed())

	// past the horizon, withdrawal is free
	assert.Equal(t, 70, s.ExpiredCustomerCount(base.Add(48*time.Hour)))
	penalty = s.DeferredUnsubscribe(70, base.Add(49*time.Hour))
	assert.Equal(t, 0.0, penalty)
	assert.Equal(t, 0, s.Committed())
}

func TestUnsubscribeClampedToCommitted(t *testing.T) {
	tf := makeTariff(t, 2, model.InterruptibleConsumption, false)
	s := New(1, household(10), tf, logger.NopLogger{})
	s.Subscribe(10, base)
	s.DeferredUnsubscribe(25, base)
	assert.Equal(t, 0, s.Committed())
}

func TestUsePowerRecordsUsage(t *testing.T) {
	tf := makeTariff(t, 3, model.InterruptibleConsumption, false)
	s := New(1, household(100), tf, logger.NopLogger{})
	s.Subscribe(100, base)

	charge := s.UsePower(200.0, base)
	assert.InDelta(t, -30.0, charge, 1e-9)
	assert.InDelta(t, 200.0, tf.TotalUsage(), 1e-9)
}

func TestCurtailmentViaRatioControl(t *testing.T) {
	tf := makeTariff(t, 4, model.InterruptibleConsumption, false)
	s := New(1, household(100), tf, logger.NopLogger{})
	s.Subscribe(100, base)

	// no regulation rate: curtailment limited by the rate's max ratio
	s.PostRatioControl(1.0)
	s.UsePower(200.0, base)
	// max curtailment 0.5 of 200 kWh
	assert.InDelta(t, 100.0, tf.TotalUsage(), 1e-9)
	assert.InDelta(t, 100.0, s.Curtailment(), 1e-9)
	// second read is zero
	assert.Equal(t, 0.0, s.Curtailment())
}

func TestExercisedRegulationKeepsCurtailmentReadable(t *testing.T) {
	tf := makeTariff(t, 8, model.InterruptibleConsumption, false)
	s := New(1, household(100), tf, logger.NopLogger{})
	s.Subscribe(100, base)

	s.PostRatioControl(1.0)
	s.UsePower(10.0, base)

	// the reporting drain between timeslots sees the exercised energy
	assert.InDelta(t, 5.0, s.ExercisedRegulation(), 1e-9)
	assert.Equal(t, 0.0, s.ExercisedRegulation())

	// the customer model still finds its curtailment in the next slot
	assert.InDelta(t, 5.0, s.Curtailment(), 1e-9)
}

func TestEconomicRegulationWithRegulationRate(t *testing.T) {
	tf := makeTariff(t, 5, model.InterruptibleConsumption, true)
	s := New(1, household(100), tf, logger.NopLogger{})
	s.Subscribe(100, base)
	s.SetRegulationCapacity(RegulationCapacity{Up: 50.0, Down: -80.0})

	// curtail half the up capacity
	s.PostRatioControl(0.5)
	s.UsePower(200.0, base)
	assert.InDelta(t, 175.0, tf.TotalUsage(), 1e-9)
	assert.InDelta(t, 25.0, s.Regulation(), 1e-9)
	assert.InDelta(t, 25.0, s.RemainingRegulationCapacity().Up, 1e-9)

	// down-regulation consumes down capacity and raises usage
	s.SetRegulationCapacity(RegulationCapacity{Up: 50.0, Down: -80.0})
	s.PostRatioControl(-0.25)
	s.UsePower(200.0, base)
	assert.InDelta(t, 395.0, tf.TotalUsage(), 1e-9) // 175 + 220
	assert.InDelta(t, -20.0, s.Regulation(), 1e-9)
	assert.InDelta(t, -60.0, s.RemainingRegulationCapacity().Down, 1e-9)
}

func TestPostBalancingControl(t *testing.T) {
	tf := makeTariff(t, 6, model.InterruptibleConsumption, true)
	s := New(1, household(100), tf, logger.NopLogger{})
	s.Subscribe(100, base)
	s.SetRegulationCapacity(RegulationCapacity{Up: 50.0, Down: -80.0})
	s.UsePower(200.0, base)

	// 40 kWh of up-regulation: 4.0 credit at the 0.1 up payment, plus a
	// 6.0 refund correcting the usage recorded earlier in the slot
	charge := s.PostBalancingControl(-40.0, base)
	assert.InDelta(t, 10.0, charge, 1e-9)
	assert.InDelta(t, -40.0, s.Regulation(), 1e-9)
	assert.InDelta(t, 10.0, s.RemainingRegulationCapacity().Up, 1e-9)
}

func TestRemainingCapacityScaledForPendingUnsubscribes(t *testing.T) {
	tf := makeTariff(t, 7, model.InterruptibleConsumption, true)
	s := New(1, household(100), tf, logger.NopLogger{})
	s.Subscribe(100, base)
	s.SetRegulationCapacity(RegulationCapacity{Up: 50.0, Down: -80.0})
	s.Unsubscribe(50)
	rc := s.RemainingRegulationCapacity()
	assert.InDelta(t, 25.0, rc.Up, 1e-9)
	assert.InDelta(t, -40.0, rc.Down, 1e-9)
}

func TestRepoHandleRevoked(t *testing.T) {
	log := logger.NopLogger{}
	tariffs := tariff.NewRepo(log)
	defSpec := model.NewTariffSpecification(10, "default", model.Consumption).
		AddRate(model.NewRate().WithValue(-0.18))
	_, err := tariffs.SetDefault(defSpec, base)
	require.NoError(t, err)

	doomed := makeTariff(t, 11, model.InterruptibleConsumption, false)
	require.NoError(t, tariffs.Add(doomed))

	repo := NewRepo(idgen.New(5), log)
	cust := household(100)
	s := repo.Get(cust, doomed)
	s.Subscribe(100, base)

	require.NoError(t, tariffs.Revoke(11))
	moved := repo.HandleRevoked(s, tariffs, base.Add(time.Hour))
	require.NotNil(t, moved)
	assert.Equal(t, int64(10), moved.Tariff().ID())
	assert.Equal(t, 100, moved.Committed())
	assert.Equal(t, 0, s.Committed())
	assert.Len(t, repo.RevokedForCustomer(cust), 0)
}

func TestRepoGetIsStable(t *testing.T) {
	repo := NewRepo(idgen.New(5), logger.NopLogger{})
	tf := makeTariff(t, 12, model.InterruptibleConsumption, false)
	cust := household(10)
	a := repo.Get(cust, tf)
	b := repo.Get(cust, tf)
	assert.Same(t, a, b)
	assert.Len(t, repo.ForTariff(tf), 1)
	assert.Len(t, repo.ForCustomer(cust), 1)
}
