package config

import (
	"fmt"
	"time"

	"github.com/gridwise/tariffsim/core/model"
)

func hours(n int) time.Duration {
	return time.Duration(n) * time.Hour
}

// RateConfig describes one pricing rule of a tariff.
type RateConfig struct {
	Value       float64 `koanf:"value"`
	DailyBegin  *int    `koanf:"daily_begin"`
	DailyEnd    *int    `koanf:"daily_end"`
	WeeklyBegin *int    `koanf:"weekly_begin"`
	WeeklyEnd   *int    `koanf:"weekly_end"`

	Variable       bool    `koanf:"variable"`
	MinValue       float64 `koanf:"min_value"`
	ExpectedMean   float64 `koanf:"expected_mean"`
	MaxValue       float64 `koanf:"max_value"`
	NoticeInterval int     `koanf:"notice_interval"`

	MaxCurtailment float64 `koanf:"max_curtailment"`
}

// RegulationRateConfig prices regulation exercise under a tariff.
type RegulationRateConfig struct {
	Response    string  `koanf:"response"` // "minutes" or "seconds"
	UpPayment   float64 `koanf:"up_payment"`
	DownPayment float64 `koanf:"down_payment"`
}

// TariffConfig describes one tariff offered at simulation start.
type TariffConfig struct {
	ID                   int64                  `koanf:"id"`
	Broker               string                 `koanf:"broker"`
	PowerType            string                 `koanf:"power_type"`
	MinDurationHours     int                    `koanf:"min_duration_hours"`
	SignupPayment        float64                `koanf:"signup_payment"`
	EarlyWithdrawPayment float64                `koanf:"early_withdraw_payment"`
	PeriodicPayment      float64                `koanf:"periodic_payment"`
	Expiration           string                 `koanf:"expiration"` // RFC 3339, optional
	Default              bool                   `koanf:"default"`
	Rates                []RateConfig           `koanf:"rates"`
	RegulationRates      []RegulationRateConfig `koanf:"regulation_rates"`
}

// Build assembles the tariff specification.
func (c TariffConfig) Build() (*model.TariffSpecification, error) {
	pt, err := model.ParsePowerType(c.PowerType)
	if err != nil {
		return nil, fmt.Errorf("config: tariff %d: %w", c.ID, err)
	}
	spec := model.NewTariffSpecification(c.ID, c.Broker, pt)
	spec.MinDuration = hours(c.MinDurationHours)
	spec.SignupPayment = c.SignupPayment
	spec.EarlyWithdrawPayment = c.EarlyWithdrawPayment
	spec.PeriodicPayment = c.PeriodicPayment
	if c.Expiration != "" {
		exp, err := time.Parse(time.RFC3339, c.Expiration)
		if err != nil {
			return nil, fmt.Errorf("config: tariff %d: parse expiration: %w", c.ID, err)
		}
		spec.Expiration = exp.UTC()
	}
	for _, rc := range c.Rates {
		r := model.NewRate()
		if rc.Variable {
			r.WithVariable(rc.MinValue, rc.ExpectedMean, rc.MaxValue).
				WithNoticeInterval(rc.NoticeInterval)
		} else {
			r.WithValue(rc.Value)
		}
		if rc.DailyBegin != nil {
			r.WithDailyBegin(*rc.DailyBegin)
		}
		if rc.DailyEnd != nil {
			r.WithDailyEnd(*rc.DailyEnd)
		}
		if rc.WeeklyBegin != nil {
			r.WithWeeklyBegin(*rc.WeeklyBegin)
		}
		if rc.WeeklyEnd != nil {
			r.WithWeeklyEnd(*rc.WeeklyEnd)
		}
		if rc.MaxCurtailment != 0 {
			r.WithMaxCurtailment(rc.MaxCurtailment)
		}
		spec.AddRate(r)
	}
	for _, rr := range c.RegulationRates {
		resp := model.ResponseMinutes
		if rr.Response == "seconds" {
			resp = model.ResponseSeconds
		}
		spec.AddRegulationRate(&model.RegulationRate{
			Response:    resp,
			UpPayment:   rr.UpPayment,
			DownPayment: rr.DownPayment,
		})
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return spec, nil
}

// Validate runs a full build to surface configuration mistakes at load time.
func (c TariffConfig) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("config: tariff %d has no broker", c.ID)
	}
	_, err := c.Build()
	return err
}
