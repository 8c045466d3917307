package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gridwise/tariffsim/core/capacity"
)

const sampleConfig = `simulation:
  base_time: "2026-06-01T00:00:00Z"
  horizon: 48
  publication_interval: 24
  seed: 7
  prom_addr: ":9090"
metrics:
  sinks:
    - type: "nop"
mqtt:
  enabled: false
  broker: "tcp://localhost:1883"
  client_id: "tariffsim"
market:
  mwh: [800, 950]
  price: [31.2, 42.5]
weather:
  reports:
    - serial: 0
      temperature: 18
    - serial: 1
      temperature: 19.5
      wind_speed: 3
  repeat: 48
tariffs:
  - id: 1
    broker: "default-broker"
    power_type: "CONSUMPTION"
    default: true
    rates:
      - value: -0.30
  - id: 2
    broker: "acme"
    power_type: "CONSUMPTION"
    min_duration_hours: 48
    early_withdraw_payment: -5
    periodic_payment: -0.5
    rates:
      - value: -0.12
        daily_begin: 22
        daily_end: 6
      - value: -0.22
        daily_begin: 7
        daily_end: 21
customers:
  - id: 10
    name: "village"
    power_type: "CONSUMPTION"
    population: 1000
    subscriber:
      allocation: "LOGIT_CHOICE"
    capacities:
      - structure:
          name: "base-load"
          base_type: "POPULATION"
        population:
          type: "NORMAL"
          mean: 120
          std_dev: 10
`

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Simulation.Horizon != 48 || cfg.Simulation.Seed != 7 {
		t.Fatalf("simulation section not decoded: %+v", cfg.Simulation)
	}
	if len(cfg.Metrics.Sinks) != 1 || cfg.Metrics.Sinks[0].Type != "nop" {
		t.Fatalf("metrics section not decoded: %+v", cfg.Metrics)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Fatalf("mqtt section not decoded: %+v", cfg.MQTT)
	}
	if len(cfg.Tariffs) != 2 || !cfg.Tariffs[0].Default {
		t.Fatalf("tariff section not decoded: %+v", cfg.Tariffs)
	}
	if len(cfg.Customers) != 1 || cfg.Customers[0].Population != 1000 {
		t.Fatalf("customer section not decoded: %+v", cfg.Customers)
	}

	spec, err := cfg.Tariffs[1].Build()
	if err != nil {
		t.Fatalf("build tariff: %v", err)
	}
	if len(spec.Rates) != 2 || spec.Rates[0].DailyBegin != 22 || spec.Rates[0].DailyEnd != 6 {
		t.Fatalf("rates not built: %+v", spec.Rates[0])
	}
	if spec.MinDuration.Hours() != 48 {
		t.Fatalf("min duration not built: %v", spec.MinDuration)
	}

	s, err := cfg.Customers[0].Capacities[0].Build(42)
	if err != nil {
		t.Fatalf("build capacity: %v", err)
	}
	if s.PopulationCapacity == nil {
		t.Fatalf("population distribution not built")
	}
	if len(s.HourlySkew) != 24 {
		t.Fatalf("defaults not applied: %d hourly entries", len(s.HourlySkew))
	}

	store := cfg.Weather.Build()
	if _, ok := store.Report(1); !ok {
		t.Fatalf("weather report missing")
	}
	if rep, ok := store.Report(47); !ok || rep.Temperature == 0 {
		t.Fatalf("weather series not extended: %+v", rep)
	}

	if mean, ok := cfg.Market.Build().MeanMarketPrice(); !ok || mean == 0 {
		t.Fatalf("market series not built: %v", mean)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TS_SIMULATION__HORIZON", "12")
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Simulation.Horizon != 12 {
		t.Fatalf("env override not applied: %d", cfg.Simulation.Horizon)
	}
}

func TestLoadRejectsMissingDefaultTariff(t *testing.T) {
	data := `tariffs:
  - id: 1
    broker: "acme"
    power_type: "CONSUMPTION"
    rates:
      - value: -0.2
`
	if _, err := Load(writeConfig(t, data)); err == nil {
		t.Fatalf("expected error for missing default tariff")
	}
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestTariffConfigValidate(t *testing.T) {
	tc := TariffConfig{ID: 3, PowerType: "CONSUMPTION", Rates: []RateConfig{{Value: -0.1}}}
	if err := tc.Validate(); err == nil {
		t.Fatalf("expected error for missing broker")
	}
	tc.Broker = "acme"
	if err := tc.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestCustomerConfigValidate(t *testing.T) {
	cc := CustomerConfig{ID: 1, Name: "plant", PowerType: "SOLAR_PRODUCTION", Population: 10}
	if err := cc.Validate(); err == nil {
		t.Fatalf("expected error for missing capacities")
	}
	cc.Capacities = []CapacityConfig{{
		Structure:  capacity.Structure{Name: "gen", BaseType: capacity.BasePopulation},
		Population: &capacity.DistConfig{Type: "DEGENERATE", Value: 50},
	}}
	if err := cc.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
