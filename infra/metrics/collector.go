package metrics

import (
	"context"

	"github.com/gridwise/tariffsim/core/events"
	coremetrics "github.com/gridwise/tariffsim/core/metrics"
	"github.com/gridwise/tariffsim/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for events.
// It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.Sink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				switch e := ev.(type) {
				case events.TimeslotEvent:
					_ = sink.RecordTimeslot(coremetrics.TimeslotStats{
						Serial:              e.Serial,
						Time:                e.Time,
						ConsumptionKWh:      e.ConsumptionKWh,
						ProductionKWh:       e.ProductionKWh,
						UpRegulationKWh:     e.UpRegulationKWh,
						DownRegulationKWh:   e.DownRegulationKWh,
						NetCharge:           e.NetCharge,
						WithdrawPenalty:     e.WithdrawPenalty,
						ActiveSubscriptions: e.ActiveSubscriptions,
					})
				case events.TariffPublishedEvent:
					if r, ok := sink.(coremetrics.TariffEventRecorder); ok {
						_ = r.RecordTariffEvent(coremetrics.TariffEvent{
							TariffID:  e.TariffID,
							Broker:    e.Broker,
							PowerType: e.PowerType,
							Status:    "published",
							Time:      e.Time,
						})
					}
				case events.TariffRevokedEvent:
					if r, ok := sink.(coremetrics.TariffEventRecorder); ok {
						_ = r.RecordTariffEvent(coremetrics.TariffEvent{
							TariffID: e.TariffID,
							Broker:   e.Broker,
							Status:   "revoked",
							Time:     e.Time,
						})
					}
				case events.SubscriptionMoveEvent:
					if r, ok := sink.(coremetrics.SubscriptionMoveRecorder); ok {
						_ = r.RecordSubscriptionMove(coremetrics.SubscriptionMove{
							Customer:   e.Customer,
							FromTariff: e.FromTariff,
							ToTariff:   e.ToTariff,
							Count:      e.Count,
							Time:       e.Time,
						})
					}
				}
			}
		}
	}()
}
