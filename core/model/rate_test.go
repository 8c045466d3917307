package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(day, hour int) time.Time {
	// 2026-06-01 is a Monday
	return time.Date(2026, 6, day, hour, 0, 0, 0, time.UTC)
}

func TestRateAppliesDailyWraparound(t *testing.T) {
	r := NewRate().WithValue(-0.15).WithDailyBegin(22).WithDailyEnd(5)

	cases := []struct {
		hour int
		want bool
	}{
		{23, true},
		{3, true},
		{22, true},
		{5, true},
		{10, false},
		{21, false},
		{6, false},
	}
	for _, c := range cases {
		if got := r.Applies(at(1, c.hour)); got != c.want {
			t.Fatalf("hour %d: applies = %v, want %v", c.hour, got, c.want)
		}
	}
}

func TestRateAppliesWeeklyWindow(t *testing.T) {
	weekend := NewRate().WithValue(-0.10).WithWeeklyBegin(6).WithWeeklyEnd(7)

	assert.True(t, weekend.Applies(at(6, 12)))  // Saturday
	assert.True(t, weekend.Applies(at(7, 0)))   // Sunday
	assert.False(t, weekend.Applies(at(1, 12))) // Monday
	assert.False(t, weekend.Applies(at(5, 23))) // Friday

	// Sunday through Tuesday wraps past the end of the week.
	wrap := NewRate().WithValue(-0.10).WithWeeklyBegin(7).WithWeeklyEnd(2)
	assert.True(t, wrap.Applies(at(7, 8)))  // Sunday
	assert.True(t, wrap.Applies(at(2, 8)))  // Tuesday
	assert.False(t, wrap.Applies(at(4, 8))) // Thursday
}

func TestRateValidate(t *testing.T) {
	good := NewRate().WithValue(-0.12)
	require.NoError(t, good.Validate(Consumption))

	badDaily := NewRate().WithValue(-0.12).WithDailyBegin(25).WithDailyEnd(3)
	require.Error(t, badDaily.Validate(Consumption))

	unpaired := NewRate().WithValue(-0.12).WithDailyBegin(8)
	require.Error(t, unpaired.Validate(Consumption))

	// Consumption ordering: min closest to zero, mean between min and max.
	variable := NewRate().WithVariable(-0.05, -0.10, -0.50)
	require.NoError(t, variable.Validate(Consumption))

	meanOut := NewRate().WithVariable(-0.05, -0.60, -0.50)
	require.Error(t, meanOut.Validate(Consumption))

	// Production flips the ordering.
	prod := NewRate().WithVariable(0.02, 0.05, 0.20)
	require.NoError(t, prod.Validate(Production))
	require.Error(t, prod.Validate(Consumption))
}

func TestRateAddHourlyCharge(t *testing.T) {
	now := at(1, 0)
	r := NewRate().WithVariable(-0.05, -0.10, -0.50).WithNoticeInterval(3)
	r.ID = 42

	// Inside the notice window without the publish flag.
	late := HourlyCharge{AtTime: now.Add(1 * time.Hour), Value: -0.20}
	assert.False(t, r.AddHourlyCharge(late, now, false))
	assert.True(t, r.AddHourlyCharge(late, now, true))

	// Out of bounds on the consumption side.
	assert.False(t, r.AddHourlyCharge(HourlyCharge{AtTime: now.Add(6 * time.Hour), Value: -0.60}, now, false))
	assert.False(t, r.AddHourlyCharge(HourlyCharge{AtTime: now.Add(6 * time.Hour), Value: -0.01}, now, false))

	ok := HourlyCharge{AtTime: now.Add(6 * time.Hour), Value: -0.20}
	require.True(t, r.AddHourlyCharge(ok, now, false))
	assert.Equal(t, -0.20, r.Value(now.Add(6*time.Hour), nil))

	// A second charge at the same instant replaces the first.
	require.True(t, r.AddHourlyCharge(HourlyCharge{AtTime: now.Add(6 * time.Hour), Value: -0.30}, now, false))
	assert.Equal(t, -0.30, r.Value(now.Add(6*time.Hour), nil))
	assert.Len(t, r.HourlyCharges(), 2)
	for _, hc := range r.HourlyCharges() {
		assert.Equal(t, int64(42), hc.RateID)
	}

	// No charge recorded for the instant: fall back to the expected mean.
	assert.Equal(t, -0.10, r.Value(now.Add(12*time.Hour), nil))
}

func TestFixedRateValue(t *testing.T) {
	r := NewRate().WithValue(-0.15)
	assert.Equal(t, -0.15, r.Value(at(1, 10), nil))
	assert.False(t, r.AddHourlyCharge(HourlyCharge{AtTime: at(2, 0), Value: -0.1}, at(1, 0), true))
}

func TestPowerTypeRelations(t *testing.T) {
	assert.True(t, SolarProduction.IsProduction())
	assert.True(t, SolarProduction.CanUse(Production))
	assert.False(t, SolarProduction.CanUse(Consumption))
	assert.True(t, InterruptibleConsumption.CanUse(Consumption))
	assert.True(t, InterruptibleConsumption.IsInterruptible())
	assert.False(t, Consumption.IsInterruptible())
	assert.True(t, ElectricVehicle.IsStorage())

	pt, err := ParsePowerType("WIND_PRODUCTION")
	require.NoError(t, err)
	assert.Equal(t, WindProduction, pt)
	_, err = ParsePowerType("GEOTHERMAL")
	require.Error(t, err)
}

func TestSpecificationValidate(t *testing.T) {
	spec := NewTariffSpecification(7, "default", Consumption).
		AddRate(NewRate().WithValue(-0.12))
	spec.MinDuration = 48 * time.Hour
	require.NoError(t, spec.Validate())

	empty := NewTariffSpecification(8, "default", Consumption)
	require.Error(t, empty.Validate())

	noBroker := NewTariffSpecification(9, "", Consumption).
		AddRate(NewRate().WithValue(-0.12))
	require.Error(t, noBroker.Validate())
}
