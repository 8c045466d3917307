package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/gridwise/tariffsim/core/metrics"
)

// PromSink records simulation results in Prometheus metrics.
type PromSink struct {
	energy        *prometheus.CounterVec
	netCharge     prometheus.Gauge
	subscriptions prometheus.Gauge
	tariffEvents  *prometheus.CounterVec
	moves         *prometheus.CounterVec
	population    *prometheus.GaugeVec
}

// NewPromSink registers simulation metrics on the default Prometheus
// registerer. The Prometheus server should be started separately with
// StartPromServer.
func NewPromSink() (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	energy := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tariffsim_energy_kwh_total",
		Help: "Total energy per timeslot direction in kWh",
	}, []string{"direction"})
	netCharge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tariffsim_timeslot_net_charge",
		Help: "Net customer charge of the last completed timeslot",
	})
	subscriptions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tariffsim_active_subscriptions",
		Help: "Number of subscriptions with committed population",
	})
	tariffEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tariffsim_tariff_events_total",
		Help: "Total tariff lifecycle events",
	}, []string{"broker", "status"})
	moves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tariffsim_subscription_moves_total",
		Help: "Population members moved between tariffs",
	}, []string{"customer"})
	population := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tariffsim_committed_population",
		Help: "Committed population per customer and tariff",
	}, []string{"customer", "tariff"})

	for _, c := range []prometheus.Collector{energy, netCharge, subscriptions, tariffEvents, moves, population} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return &PromSink{
		energy:        energy,
		netCharge:     netCharge,
		subscriptions: subscriptions,
		tariffEvents:  tariffEvents,
		moves:         moves,
		population:    population,
	}, nil
}

// RecordTimeslot updates the energy counters and per-slot gauges.
func (s *PromSink) RecordTimeslot(stats coremetrics.TimeslotStats) error {
	s.energy.WithLabelValues("consumption").Add(stats.ConsumptionKWh)
	// production and down-regulation are non-positive kWh
	s.energy.WithLabelValues("production").Add(-stats.ProductionKWh)
	s.energy.WithLabelValues("up_regulation").Add(stats.UpRegulationKWh)
	s.energy.WithLabelValues("down_regulation").Add(-stats.DownRegulationKWh)
	s.netCharge.Set(stats.NetCharge)
	s.subscriptions.Set(float64(stats.ActiveSubscriptions))
	return nil
}

// RecordTariffEvent counts a tariff lifecycle transition.
func (s *PromSink) RecordTariffEvent(ev coremetrics.TariffEvent) error {
	s.tariffEvents.WithLabelValues(ev.Broker, ev.Status).Inc()
	return nil
}

// RecordSubscriptionMove counts moved population members.
func (s *PromSink) RecordSubscriptionMove(mv coremetrics.SubscriptionMove) error {
	s.moves.WithLabelValues(mv.Customer).Add(float64(mv.Count))
	return nil
}

// RecordPopulation sets the committed-population gauge.
func (s *PromSink) RecordPopulation(snap coremetrics.PopulationSnapshot) error {
	s.population.WithLabelValues(snap.Customer, strconv.FormatInt(snap.TariffID, 10)).Set(float64(snap.Committed))
	return nil
}
