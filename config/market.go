package config

import (
	"fmt"

	"github.com/gridwise/tariffsim/core/market"
	"github.com/gridwise/tariffsim/core/model"
	"github.com/gridwise/tariffsim/core/weather"
)

// MarketConfig seeds the bootstrap market history used for variable-rate
// estimates.
type MarketConfig struct {
	MWh   []float64 `koanf:"mwh"`
	Price []float64 `koanf:"price"` // per MWh
}

// Build assembles the bootstrap series.
func (c MarketConfig) Build() *market.BootstrapData {
	return market.NewBootstrapData(c.MWh, c.Price)
}

// Validate checks the series line up.
func (c MarketConfig) Validate() error {
	if len(c.MWh) != len(c.Price) {
		return fmt.Errorf("config: market series length mismatch: %d mwh, %d price",
			len(c.MWh), len(c.Price))
	}
	return nil
}

// WeatherRowConfig is one observed weather report.
type WeatherRowConfig struct {
	Serial        int     `koanf:"serial"`
	Temperature   float64 `koanf:"temperature"`
	WindSpeed     float64 `koanf:"wind_speed"`
	WindDirection float64 `koanf:"wind_direction"`
	CloudCover    float64 `koanf:"cloud_cover"`
}

// WeatherConfig seeds the weather store. Rows cover the configured serials;
// the last row is reused for later timeslots when the series runs short.
type WeatherConfig struct {
	Reports []WeatherRowConfig `koanf:"reports"`
	// Repeat extends the series cyclically up to this serial.
	Repeat int `koanf:"repeat"`
}

// Build assembles the weather store.
func (c WeatherConfig) Build() *weather.Store {
	store := weather.NewStore()
	for _, row := range c.Reports {
		store.AddReport(model.WeatherReport{
			TimeslotSerial: row.Serial,
			Temperature:    row.Temperature,
			WindSpeed:      row.WindSpeed,
			WindDirection:  row.WindDirection,
			CloudCover:     row.CloudCover,
		})
	}
	if c.Repeat > 0 && len(c.Reports) > 0 {
		n := len(c.Reports)
		for serial := c.Reports[n-1].Serial + 1; serial <= c.Repeat; serial++ {
			row := c.Reports[serial%n]
			store.AddReport(model.WeatherReport{
				TimeslotSerial: serial,
				Temperature:    row.Temperature,
				WindSpeed:      row.WindSpeed,
				WindDirection:  row.WindDirection,
				CloudCover:     row.CloudCover,
			})
		}
	}
	return store
}

// Validate checks serial ordering.
func (c WeatherConfig) Validate() error {
	for i := 1; i < len(c.Reports); i++ {
		if c.Reports[i].Serial <= c.Reports[i-1].Serial {
			return fmt.Errorf("config: weather serials must increase: %d after %d",
				c.Reports[i].Serial, c.Reports[i-1].Serial)
		}
	}
	return nil
}
