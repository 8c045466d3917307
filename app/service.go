package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gridwise/tariffsim/config"
	"github.com/gridwise/tariffsim/core/capacity"
	"github.com/gridwise/tariffsim/core/clock"
	"github.com/gridwise/tariffsim/core/customer"
	"github.com/gridwise/tariffsim/core/events"
	coremetrics "github.com/gridwise/tariffsim/core/metrics"
	"github.com/gridwise/tariffsim/core/model"
	"github.com/gridwise/tariffsim/core/subscription"
	"github.com/gridwise/tariffsim/core/tariff"
	"github.com/gridwise/tariffsim/infra/logger"
	"github.com/gridwise/tariffsim/infra/metrics"
	"github.com/gridwise/tariffsim/infra/mqtt"
	"github.com/gridwise/tariffsim/internal/eventbus"
	"github.com/gridwise/tariffsim/internal/idgen"
)

// Service owns the simulation state and runs the timeslot loop.
type Service struct {
	cfg     *config.Config
	clk     *clock.Clock
	tariffs *tariff.Repo
	subs    *subscription.Repo
	opt     *customer.UtilityOptimizer
	bundles []*customer.Bundle
	sink    coremetrics.Sink
	bus     eventbus.EventBus
	pub     mqtt.Publisher
	log     logger.Logger
	start   time.Time
	runID   string

	// cumulative tariff totals at the end of the previous timeslot, used
	// to derive per-slot deltas
	prevUsage map[int64]float64
	prevCost  map[int64]float64
}

// New builds the full simulation from the configuration: tariff repo with
// defaults and offered tariffs, weather and market data, one bundle per
// customer, and the recording pipeline.
func New(cfg *config.Config) (*Service, error) {
	log := logger.New("service")
	start, err := cfg.Simulation.Start()
	if err != nil {
		return nil, err
	}

	sink, err := coremetrics.NewSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("app: metrics sink: %w", err)
	}
	bus := eventbus.New()

	var pub mqtt.Publisher
	if cfg.MQTT.Enabled {
		p, err := mqtt.NewPahoPublisher(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("app: mqtt publisher: %w", err)
		}
		pub = p
	}

	clk := clock.New(start, time.Now(), cfg.Simulation.Rate, clock.Timeslot, log)
	wx := cfg.Weather.Build()
	marketData := cfg.Market.Build()

	tariffs := tariff.NewRepo(logger.New("tariffs"))
	for _, tc := range cfg.Tariffs {
		spec, err := tc.Build()
		if err != nil {
			return nil, err
		}
		if tc.Default {
			if _, err := tariffs.SetDefault(spec, start); err != nil {
				return nil, err
			}
			continue
		}
		t := tariff.New(spec, logger.New("tariffs"))
		if err := t.Init(start); err != nil {
			return nil, err
		}
		t.SetState(tariff.Offered)
		if err := tariffs.Add(t); err != nil {
			return nil, err
		}
	}

	subs := subscription.NewRepo(idgen.New(2), logger.New("subscriptions"))

	var bundles []*customer.Bundle
	for i, cc := range cfg.Customers {
		info, err := cc.Build()
		if err != nil {
			return nil, err
		}
		structure := cc.Subscriber
		bundle := &customer.Bundle{Customer: info, Structure: &structure}
		for j, capCfg := range cc.Capacities {
			seed := cfg.Simulation.Seed + uint64(i)*1000 + uint64(j)*10
			s, err := capCfg.Build(seed)
			if err != nil {
				return nil, err
			}
			orig, err := capacity.NewOriginator(s, info, wx, seed, logger.New("capacity"))
			if err != nil {
				return nil, err
			}
			bundle.Originators = append(bundle.Originators, orig)
		}
		bundles = append(bundles, bundle)
	}

	opt, err := customer.NewUtilityOptimizer(bundles, tariffs, subs, marketData,
		clk, cfg.Simulation.Seed, logger.New("customers"))
	if err != nil {
		return nil, err
	}

	svc := &Service{
		cfg:       cfg,
		clk:       clk,
		tariffs:   tariffs,
		subs:      subs,
		opt:       opt,
		bundles:   bundles,
		sink:      sink,
		bus:       bus,
		pub:       pub,
		log:       log,
		start:     start,
		runID:     uuid.NewString(),
		prevUsage: make(map[int64]float64),
		prevCost:  make(map[int64]float64),
	}
	opt.SetTransferHook(func(cust *model.CustomerInfo, from, to *subscription.Subscription, count int) {
		bus.Publish(events.SubscriptionMoveEvent{
			Customer:   cust.Name,
			FromTariff: from.Tariff().ID(),
			ToTariff:   to.Tariff().ID(),
			Count:      count,
			Time:       clk.Now(),
		})
	})
	return svc, nil
}

// Run executes the configured number of timeslots and blocks until done or
// the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	s.log.Debugw("simulation starting", map[string]any{
		"run_id":  s.runID,
		"start":   s.start,
		"horizon": s.cfg.Simulation.Horizon,
		"tariffs": len(s.cfg.Tariffs),
		"bundles": len(s.bundles),
	})
	metrics.StartEventCollector(ctx, s.bus, s.sink)
	if s.pub != nil {
		mqtt.StartEventPublisher(ctx, s.bus, s.pub, s.cfg.MQTT.TopicPrefix)
	}
	if addr := s.cfg.Simulation.PromAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	if err := s.opt.SubscribeDefault(s.start); err != nil {
		return err
	}
	for _, t := range s.tariffs.ByState(tariff.Offered) {
		s.bus.Publish(events.TariffPublishedEvent{
			TariffID:  t.ID(),
			Broker:    t.Broker(),
			PowerType: t.PowerType(),
			Time:      s.start,
		})
	}

	interval := s.cfg.Simulation.PublicationInterval
	for serial := 0; serial < s.cfg.Simulation.Horizon; serial++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		now := s.clk.TimeslotTime(serial)
		s.clk.SetNow(now)
		s.clk.RunDue()

		s.revokeExpired(now)
		if serial > 0 && serial%interval == 0 {
			s.opt.EvaluateTariffs(now)
		}
		if err := s.opt.Step(now); err != nil {
			return err
		}
		penalty := s.subs.ProcessDeferred(now)

		s.bus.Publish(s.collectTimeslot(serial, now, penalty))
		s.snapshotPopulation(now)

		if err := s.pace(ctx); err != nil {
			return err
		}
	}
	s.log.Infof("simulation finished after %d timeslots", s.cfg.Simulation.Horizon)
	return nil
}

// revokeExpired kills offered tariffs whose expiration has passed.
func (s *Service) revokeExpired(now time.Time) {
	for _, t := range s.tariffs.ByState(tariff.Offered) {
		if !t.IsExpired(now) {
			continue
		}
		if err := s.tariffs.Revoke(t.ID()); err != nil {
			s.log.Errorf("revoke tariff %d: %v", t.ID(), err)
			continue
		}
		s.bus.Publish(events.TariffRevokedEvent{TariffID: t.ID(), Broker: t.Broker(), Time: now})
	}
}

// collectTimeslot derives the slot's energy and charge totals from the
// cumulative tariff counters and the subscriptions' regulation drains.
func (s *Service) collectTimeslot(serial int, now time.Time, penalty float64) events.TimeslotEvent {
	ev := events.TimeslotEvent{Serial: serial, Time: now, WithdrawPenalty: penalty, NetCharge: penalty}

	seen := make(map[int64]bool)
	for _, st := range []tariff.State{tariff.Offered, tariff.Active, tariff.Killed} {
		for _, t := range s.tariffs.ByState(st) {
			if seen[t.ID()] {
				continue
			}
			seen[t.ID()] = true
			du := t.TotalUsage() - s.prevUsage[t.ID()]
			dc := t.TotalCost() - s.prevCost[t.ID()]
			s.prevUsage[t.ID()] = t.TotalUsage()
			s.prevCost[t.ID()] = t.TotalCost()
			if t.PowerType().IsConsumption() {
				ev.ConsumptionKWh += du
			} else {
				ev.ProductionKWh += du
			}
			ev.NetCharge += dc
		}
	}

	for _, bundle := range s.bundles {
		for _, sub := range s.subs.ActiveForCustomer(bundle.Customer) {
			ev.ActiveSubscriptions++
			ev.NetCharge += sub.PeriodicCharge()
			reg := sub.ExercisedRegulation()
			if reg > 0 {
				ev.UpRegulationKWh += reg
			} else {
				ev.DownRegulationKWh += reg
			}
		}
	}
	return ev
}

// snapshotPopulation records committed population per subscription when the
// sink supports it.
func (s *Service) snapshotPopulation(now time.Time) {
	rec, ok := s.sink.(coremetrics.PopulationRecorder)
	if !ok {
		return
	}
	for _, bundle := range s.bundles {
		for _, sub := range s.subs.ActiveForCustomer(bundle.Customer) {
			_ = rec.RecordPopulation(coremetrics.PopulationSnapshot{
				Customer:  bundle.Customer.Name,
				TariffID:  sub.Tariff().ID(),
				Broker:    sub.Tariff().Broker(),
				Committed: sub.Committed(),
				Time:      now,
			})
		}
	}
}

// pace sleeps one scaled timeslot when a realtime rate is configured.
func (s *Service) pace(ctx context.Context) error {
	rate := s.cfg.Simulation.Rate
	if rate < 1 {
		return nil
	}
	timer := time.NewTimer(time.Duration(int64(clock.Timeslot) / rate))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Close releases the service's external connections.
func (s *Service) Close() error {
	if s.pub != nil {
		s.pub.Disconnect()
	}
	s.bus.Close()
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}
