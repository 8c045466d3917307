package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/gridwise/tariffsim/core/metrics"
)

func TestPromSink_RecordTimeslot(t *testing.T) {
	reg := prometheus.NewRegistry()
	sinkIf, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	sink, ok := sinkIf.(*PromSink)
	if !ok {
		t.Fatalf("expected PromSink")
	}
	stats := coremetrics.TimeslotStats{
		Serial:              5,
		Time:                time.Now(),
		ConsumptionKWh:      120.5,
		ProductionKWh:       -30,
		UpRegulationKWh:     12,
		DownRegulationKWh:   -6,
		NetCharge:           -41.2,
		ActiveSubscriptions: 3,
	}
	if err := sink.RecordTimeslot(stats); err != nil {
		t.Fatalf("record error: %v", err)
	}

	expected := `
# HELP tariffsim_energy_kwh_total Total energy per timeslot direction in kWh
# TYPE tariffsim_energy_kwh_total counter
tariffsim_energy_kwh_total{direction="consumption"} 120.5
tariffsim_energy_kwh_total{direction="down_regulation"} 6
tariffsim_energy_kwh_total{direction="production"} 30
tariffsim_energy_kwh_total{direction="up_regulation"} 12
`
	if err := testutil.CollectAndCompare(sink.energy, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}

	expectedCharge := `
# HELP tariffsim_timeslot_net_charge Net customer charge of the last completed timeslot
# TYPE tariffsim_timeslot_net_charge gauge
tariffsim_timeslot_net_charge -41.2
`
	if err := testutil.CollectAndCompare(sink.netCharge, strings.NewReader(expectedCharge)); err != nil {
		t.Errorf("unexpected net charge: %v", err)
	}
}

func TestPromSink_RecordTariffEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	sinkIf, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	sink := sinkIf.(*PromSink)
	ev := coremetrics.TariffEvent{TariffID: 7, Broker: "acme", Status: "published", Time: time.Now()}
	if err := sink.RecordTariffEvent(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	if err := sink.RecordTariffEvent(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}

	expected := `
# HELP tariffsim_tariff_events_total Total tariff lifecycle events
# TYPE tariffsim_tariff_events_total counter
tariffsim_tariff_events_total{broker="acme",status="published"} 2
`
	if err := testutil.CollectAndCompare(sink.tariffEvents, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}

func TestPromSink_RecordPopulation(t *testing.T) {
	reg := prometheus.NewRegistry()
	sinkIf, err := NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	sink := sinkIf.(*PromSink)
	if err := sink.RecordSubscriptionMove(coremetrics.SubscriptionMove{Customer: "village", Count: 40}); err != nil {
		t.Fatalf("record move: %v", err)
	}
	if err := sink.RecordPopulation(coremetrics.PopulationSnapshot{Customer: "village", TariffID: 3, Committed: 60}); err != nil {
		t.Fatalf("record population: %v", err)
	}
	if c := testutil.CollectAndCount(sink.moves); c == 0 {
		t.Errorf("move not recorded")
	}
	if v := testutil.ToFloat64(sink.population.WithLabelValues("village", "3")); v != 60 {
		t.Errorf("expected committed 60, got %v", v)
	}
}

// NewPromSinkWithRegistry must tolerate duplicate registration so two sinks
// can share the default registerer.
func TestPromSink_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPromSinkWithRegistry(reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewPromSinkWithRegistry(reg); err != nil {
		t.Fatalf("second registration: %v", err)
	}
}
