package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/gridwise/tariffsim/core/metrics"
	"github.com/gridwise/tariffsim/infra/mqtt"
)

type Config struct {
	Simulation SimulationConfig `koanf:"simulation"`
	Metrics    metrics.Config   `koanf:"metrics"`
	MQTT       mqtt.Config      `koanf:"mqtt"`
	Market     MarketConfig     `koanf:"market"`
	Weather    WeatherConfig    `koanf:"weather"`
	Tariffs    []TariffConfig   `koanf:"tariffs"`
	Customers  []CustomerConfig `koanf:"customers"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("TS_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "ts_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}
	cfg.Simulation.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section. Defaults must be applied first.
func (c *Config) Validate() error {
	if err := c.Simulation.Validate(); err != nil {
		return err
	}
	if err := c.Market.Validate(); err != nil {
		return err
	}
	if err := c.Weather.Validate(); err != nil {
		return err
	}
	defaults := 0
	for i := range c.Tariffs {
		if err := c.Tariffs[i].Validate(); err != nil {
			return err
		}
		if c.Tariffs[i].Default {
			defaults++
		}
	}
	if len(c.Tariffs) > 0 && defaults == 0 {
		return fmt.Errorf("config: at least one tariff must be marked default")
	}
	for i := range c.Customers {
		if err := c.Customers[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
