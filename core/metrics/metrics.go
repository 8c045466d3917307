// Package metrics defines interfaces and types for recording simulation
// metrics. Sinks like PromSink and InfluxSink record per-timeslot energy
// totals, tariff lifecycle events, and subscription moves, and can be
// combined with NewMultiSink. The factory helpers return a MultiSink
// automatically when multiple sinks are configured.
package metrics

import (
	"time"

	"github.com/gridwise/tariffsim/core/model"
)

// TimeslotStats is the aggregate outcome of one completed timeslot.
type TimeslotStats struct {
	Serial int
	Time   time.Time

	// energy totals in kWh, customer viewpoint
	ConsumptionKWh    float64
	ProductionKWh     float64
	UpRegulationKWh   float64
	DownRegulationKWh float64

	NetCharge       float64
	WithdrawPenalty float64

	ActiveSubscriptions int
}

// Sink records per-timeslot simulation results.
type Sink interface {
	RecordTimeslot(stats TimeslotStats) error
}

// TariffEvent captures a tariff lifecycle transition.
type TariffEvent struct {
	TariffID  int64
	Broker    string
	PowerType model.PowerType
	Status    string // "published" or "revoked"
	Time      time.Time
}

// TariffEventRecorder records tariff lifecycle events.
type TariffEventRecorder interface {
	RecordTariffEvent(ev TariffEvent) error
}

// SubscriptionMove captures a population transfer between tariffs.
type SubscriptionMove struct {
	Customer   string
	FromTariff int64
	ToTariff   int64
	Count      int
	Time       time.Time
}

// SubscriptionMoveRecorder records population transfers.
type SubscriptionMoveRecorder interface {
	RecordSubscriptionMove(mv SubscriptionMove) error
}

// PopulationSnapshot reports the committed population of one subscription.
type PopulationSnapshot struct {
	Customer  string
	TariffID  int64
	Broker    string
	Committed int
	Time      time.Time
}

// PopulationRecorder records subscription population snapshots.
type PopulationRecorder interface {
	RecordPopulation(snap PopulationSnapshot) error
}

// NopSink implements Sink and all recorder extensions with no-op methods.
type NopSink struct{}

func (NopSink) RecordTimeslot(TimeslotStats) error            { return nil }
func (NopSink) RecordTariffEvent(TariffEvent) error           { return nil }
func (NopSink) RecordSubscriptionMove(SubscriptionMove) error { return nil }
func (NopSink) RecordPopulation(PopulationSnapshot) error     { return nil }
