// Package events defines the simulation events emitted on the event bus.
//
// Available event types:
//   - TariffPublishedEvent: a broker offered a new tariff
//   - TariffRevokedEvent: a tariff was killed
//   - SubscriptionMoveEvent: population moved between subscriptions
//   - TimeslotEvent: per-timeslot energy and charge totals
package events

import (
	"time"

	"github.com/gridwise/tariffsim/core/model"
)

// TariffPublishedEvent is published when a tariff enters the offered state.
type TariffPublishedEvent struct {
	TariffID  int64
	Broker    string
	PowerType model.PowerType
	Time      time.Time
}

// TariffRevokedEvent is published when a tariff is killed.
type TariffRevokedEvent struct {
	TariffID int64
	Broker   string
	Time     time.Time
}

// SubscriptionMoveEvent is published for each population transfer decided
// during a tariff evaluation cycle.
type SubscriptionMoveEvent struct {
	Customer   string
	FromTariff int64
	ToTariff   int64
	Count      int
	Time       time.Time
}

// TimeslotEvent carries the aggregate outcome of one completed timeslot.
type TimeslotEvent struct {
	Serial int
	Time   time.Time

	// energy totals in kWh, customer viewpoint
	ConsumptionKWh    float64
	ProductionKWh     float64
	UpRegulationKWh   float64
	DownRegulationKWh float64

	// net charge across all subscriptions, customer viewpoint, including
	// early-withdraw penalties finalized this slot
	NetCharge       float64
	WithdrawPenalty float64

	ActiveSubscriptions int
}
