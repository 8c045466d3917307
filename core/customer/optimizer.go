package customer

import (
	"fmt"
	"hash/fnv"
	"time"

	"golang.org/x/exp/rand"

	"github.com/gridwise/tariffsim/core/capacity"
	"github.com/gridwise/tariffsim/core/clock"
	"github.com/gridwise/tariffsim/core/logger"
	"github.com/gridwise/tariffsim/core/model"
	"github.com/gridwise/tariffsim/core/subscription"
	"github.com/gridwise/tariffsim/core/tariff"
)

// Bundle groups one customer population with its capacity originators and
// tariff-choice behaviour.
type Bundle struct {
	Customer    *model.CustomerInfo
	Structure   *SubscriberStructure
	Originators []*capacity.Originator
}

// UtilityOptimizer manages tariff choice and energy use for a set of
// customer bundles. It owns one evaluator per bundle, each with its own
// seeded choice streams.
type UtilityOptimizer struct {
	bundles []*Bundle
	tariffs *tariff.Repo
	subs    *subscription.Repo
	clk     *clock.Clock
	log     logger.Logger

	evaluators   map[*Bundle]*Evaluator
	inertiaDists map[*Bundle]*capacity.Distribution

	transferHook func(customer *model.CustomerInfo, from, to *subscription.Subscription, count int)
}

// SetTransferHook installs a callback invoked for every population move
// between subscriptions, after the move has been applied.
func (o *UtilityOptimizer) SetTransferHook(hook func(customer *model.CustomerInfo, from, to *subscription.Subscription, count int)) {
	o.transferHook = hook
}

// subSeed derives a stable per-purpose seed from the base seed.
func subSeed(seed uint64, purpose string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(purpose))
	return seed ^ h.Sum64()
}

// NewUtilityOptimizer wires an evaluator for each bundle. market feeds the
// regulation discounting in the cost estimators; seed drives the inertia
// and tariff-choice samplers, one independent stream per bundle so the
// streams of one customer never depend on another being configured.
func NewUtilityOptimizer(bundles []*Bundle, tariffs *tariff.Repo, subs *subscription.Repo,
	market tariff.MarketData, clk *clock.Clock, seed uint64, log logger.Logger) (*UtilityOptimizer, error) {
	o := &UtilityOptimizer{
		bundles:      bundles,
		tariffs:      tariffs,
		subs:         subs,
		clk:          clk,
		log:          log,
		evaluators:   make(map[*Bundle]*Evaluator),
		inertiaDists: make(map[*Bundle]*capacity.Distribution),
	}
	for _, bundle := range bundles {
		st := bundle.Structure
		st.SetDefaults()
		if err := st.Normalize(); err != nil {
			return nil, err
		}
		chunk := bundle.Customer.Population / 1000
		if chunk < 1 {
			chunk = 1
		}
		helper := tariff.NewEvaluationHelper(market)
		acc := &bundleAccessor{
			o:              o,
			bundle:         bundle,
			inertiaSampler: rand.New(rand.NewSource(subSeed(seed, bundle.Customer.Name+"-inertia-sampler"))),
			tariffSelector: rand.New(rand.NewSource(subSeed(seed, bundle.Customer.Name+"-tariff-selector"))),
		}
		ev := NewEvaluator(acc, bundle.Customer,
			tariffs, subs, helper, log).
			WithChunkSize(chunk).
			WithTariffSwitchFactor(st.TariffSwitchFactor).
			WithPreferredDuration(float64(st.ExpectedDuration)).
			WithInconvenienceWeight(st.InconvenienceWeight).
			WithRationality(st.Rationality).
			WithAllocationMethod(st.Allocation, st.TotalOrderRules).
			WithEvaluateAllTariffs(true)
		ev.SetCostFactors(st.ExpMeanPriceWeight, st.MaxValuePriceWeight,
			st.RealizedPriceWeight, st.TariffVolumeThreshold)
		ev.SetInconvenienceFactors(st.TouFactor, st.VariablePricingFactor, st.InterruptibilityFactor)
		ev.SetRegulationFactors(st.ExpUpRegulation, 0.0, st.ExpDownRegulation)
		o.evaluators[bundle] = ev

		if st.Inertia != nil {
			dist, err := capacity.NewDistribution(*st.Inertia, subSeed(seed, st.Name+"-inertia"))
			if err != nil {
				return nil, err
			}
			o.inertiaDists[bundle] = dist
		}
	}
	return o, nil
}

// SubscribeDefault puts every bundle's full population on the default
// tariff for its power type, or the generic fallback. A missing default is
// fatal: nothing else in the simulation works without one.
func (o *UtilityOptimizer) SubscribeDefault(now time.Time) error {
	for _, bundle := range o.bundles {
		def := o.tariffs.Default(bundle.Customer.PowerType)
		if def == nil {
			return fmt.Errorf("customer: no default tariff for %s or its generic type",
				bundle.Customer.PowerType)
		}
		o.subs.Get(bundle.Customer, def).Subscribe(bundle.Customer.Population, now)
		o.log.Infof("customer: %s subscribes %d members to default tariff %d",
			bundle.Customer.Name, bundle.Customer.Population, def.ID())
	}
	return nil
}

// EvaluateTariffs runs one evaluation cycle for every bundle, drawing a
// fresh inertia value from the bundle's distribution when configured.
func (o *UtilityOptimizer) EvaluateTariffs(now time.Time) {
	for _, bundle := range o.bundles {
		ev := o.evaluators[bundle]
		if dist, ok := o.inertiaDists[bundle]; ok {
			ev.WithInertia(dist.Sample())
		} else {
			ev.WithInertia(0.7)
		}
		ev.EvaluateTariffs(now)
	}
}

// Step runs one timeslot of energy use: revoked subscriptions are moved
// first, then every active subscription records its capacity and posts its
// regulation capability.
func (o *UtilityOptimizer) Step(now time.Time) error {
	serial := o.clk.TimeslotSerial(now)
	for _, bundle := range o.bundles {
		for _, sub := range o.subs.RevokedForCustomer(bundle.Customer) {
			o.subs.HandleRevoked(sub, o.tariffs, now)
		}
		usageSign := 1.0
		if !bundle.Customer.PowerType.IsConsumption() {
			usageSign = -1.0
		}
		for _, sub := range o.subs.ActiveForCustomer(bundle.Customer) {
			acc := capacity.Accumulator{}
			for _, orig := range bundle.Originators {
				a, err := orig.UseCapacity(sub, serial, now)
				if err != nil {
					return err
				}
				acc.Add(a)
			}
			sub.UsePower(usageSign*acc.Capacity, now)
			sub.SetRegulationCapacity(subscription.RegulationCapacity{Up: acc.Up, Down: acc.Down})
		}
	}
	return nil
}

// bundleAccessor adapts one bundle to the evaluator's ModelAccessor. It
// carries the bundle's own choice streams.
type bundleAccessor struct {
	o      *UtilityOptimizer
	bundle *Bundle

	inertiaSampler *rand.Rand
	tariffSelector *rand.Rand
}

// CapacityProfile forecasts per-member hourly usage under a tariff,
// starting at the hour after now.
func (a *bundleAccessor) CapacityProfile(t *tariff.Tariff, now time.Time) ([]float64, time.Time, error) {
	serial := a.o.clk.TimeslotSerial(now)
	start := now.Add(clock.Timeslot)
	usageSign := 1.0
	if !a.bundle.Customer.PowerType.IsConsumption() {
		usageSign = -1.0
	}
	population := float64(a.bundle.Customer.Population)
	profile := make([]float64, capacity.ProfileLength)
	for _, orig := range a.bundle.Originators {
		for i := range profile {
			v, err := orig.ForecastCapacity(serial, serial+1+i, start.Add(time.Duration(i)*clock.Timeslot))
			if err != nil {
				return nil, time.Time{}, err
			}
			profile[i] += usageSign * v / population
		}
	}
	return profile, start, nil
}

func (a *bundleAccessor) BrokerSwitchFactor(revoked bool) float64 {
	factor := a.bundle.Structure.BrokerSwitchFactor
	if revoked {
		return factor * 5.0
	}
	return factor
}

func (a *bundleAccessor) TariffChoiceSample() float64 { return a.tariffSelector.Float64() }

func (a *bundleAccessor) InertiaSample() float64 { return a.inertiaSampler.Float64() }

func (a *bundleAccessor) ShiftingInconvenienceFactor(t *tariff.Tariff) float64 { return 0.0 }

func (a *bundleAccessor) NotifyTransfer(from, to *subscription.Subscription, count int) {
	a.o.log.Debugf("customer: %s moves %d members from tariff %d to %d",
		a.bundle.Customer.Name, count, from.Tariff().ID(), to.Tariff().ID())
	if a.o.transferHook != nil {
		a.o.transferHook(a.bundle.Customer, from, to, count)
	}
}
