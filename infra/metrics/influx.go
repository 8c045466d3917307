package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/gridwise/tariffsim/core/metrics"
	"github.com/gridwise/tariffsim/infra/logger"
)

// InfluxSink writes simulation records to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordTimeslot writes the timeslot totals as one point.
func (s *InfluxSink) RecordTimeslot(stats coremetrics.TimeslotStats) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("timeslot_stats").
		AddTag("component", "simulation").
		AddField("serial", stats.Serial).
		AddField("consumption_kwh", round3(stats.ConsumptionKWh)).
		AddField("production_kwh", round3(stats.ProductionKWh)).
		AddField("up_regulation_kwh", round3(stats.UpRegulationKWh)).
		AddField("down_regulation_kwh", round3(stats.DownRegulationKWh)).
		AddField("net_charge", round3(stats.NetCharge)).
		AddField("withdraw_penalty", round3(stats.WithdrawPenalty)).
		AddField("active_subscriptions", stats.ActiveSubscriptions).
		SetTime(stats.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordTariffEvent writes a tariff lifecycle transition.
func (s *InfluxSink) RecordTariffEvent(ev coremetrics.TariffEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("tariff_event").
		AddTag("tariff_id", strconv.FormatInt(ev.TariffID, 10)).
		AddTag("broker", ev.Broker).
		AddTag("power_type", ev.PowerType.String()).
		AddTag("status", ev.Status).
		AddTag("component", "tariff_repo").
		AddField("count", 1).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSubscriptionMove writes a population transfer.
func (s *InfluxSink) RecordSubscriptionMove(mv coremetrics.SubscriptionMove) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("subscription_move").
		AddTag("customer", mv.Customer).
		AddTag("component", "utility_optimizer").
		AddField("from_tariff", mv.FromTariff).
		AddField("to_tariff", mv.ToTariff).
		AddField("count", mv.Count).
		SetTime(mv.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordPopulation writes a committed-population snapshot.
func (s *InfluxSink) RecordPopulation(snap coremetrics.PopulationSnapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("subscription_population").
		AddTag("customer", snap.Customer).
		AddTag("tariff_id", strconv.FormatInt(snap.TariffID, 10)).
		AddTag("broker", snap.Broker).
		AddField("committed", snap.Committed).
		SetTime(snap.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying InfluxDB client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
