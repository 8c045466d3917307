package model

import "fmt"

// PowerType classifies the energy flow covered by a tariff. Consumption
// types draw energy from the grid, production types feed into it, and
// storage types can do both.
type PowerType int

const (
	Consumption PowerType = iota
	InterruptibleConsumption
	ThermalStorageConsumption
	ElectricVehicle
	Production
	SolarProduction
	WindProduction
	BatteryStorage
)

var powerTypeNames = map[PowerType]string{
	Consumption:               "CONSUMPTION",
	InterruptibleConsumption:  "INTERRUPTIBLE_CONSUMPTION",
	ThermalStorageConsumption: "THERMAL_STORAGE_CONSUMPTION",
	ElectricVehicle:           "ELECTRIC_VEHICLE",
	Production:                "PRODUCTION",
	SolarProduction:           "SOLAR_PRODUCTION",
	WindProduction:            "WIND_PRODUCTION",
	BatteryStorage:            "BATTERY_STORAGE",
}

func (p PowerType) String() string {
	if s, ok := powerTypeNames[p]; ok {
		return s
	}
	return fmt.Sprintf("PowerType(%d)", int(p))
}

// ParsePowerType converts a config string into a PowerType.
func ParsePowerType(s string) (PowerType, error) {
	for p, name := range powerTypeNames {
		if name == s {
			return p, nil
		}
	}
	return Consumption, fmt.Errorf("model: unknown power type %q", s)
}

// IsConsumption reports whether energy flows toward the customer.
func (p PowerType) IsConsumption() bool {
	switch p {
	case Consumption, InterruptibleConsumption, ThermalStorageConsumption, ElectricVehicle:
		return true
	}
	return false
}

// IsProduction reports whether energy flows toward the grid.
func (p PowerType) IsProduction() bool {
	switch p {
	case Production, SolarProduction, WindProduction:
		return true
	}
	return false
}

// IsStorage reports whether the type can both absorb and supply energy.
func (p PowerType) IsStorage() bool {
	switch p {
	case ThermalStorageConsumption, ElectricVehicle, BatteryStorage:
		return true
	}
	return false
}

// IsInterruptible reports whether capacity of this type can be remotely
// curtailed or shifted.
func (p PowerType) IsInterruptible() bool {
	switch p {
	case InterruptibleConsumption, ThermalStorageConsumption, ElectricVehicle, BatteryStorage:
		return true
	}
	return false
}

// Generic maps a specialized type to its generic counterpart, used when
// looking up default tariffs.
func (p PowerType) Generic() PowerType {
	if p.IsProduction() {
		return Production
	}
	if p == BatteryStorage {
		return BatteryStorage
	}
	return Consumption
}

// CanUse reports whether a customer of type p can subscribe to a tariff of
// type other. A specialized type can always use its generic type.
func (p PowerType) CanUse(other PowerType) bool {
	if p == other {
		return true
	}
	return other == p.Generic()
}
