package model

// CustomerInfo describes one customer population visible to brokers:
// its size, power type, and regulation capability per member.
type CustomerInfo struct {
	ID         int64
	Name       string
	PowerType  PowerType
	Population int

	// Per-member regulation limits in kW. UpRegulationKW is the most that
	// can be taken from a member (curtailment/discharge, <= 0);
	// DownRegulationKW is the most that can be pushed to it (>= 0).
	ControllableKW   float64
	UpRegulationKW   float64
	DownRegulationKW float64
	StorageCapacity  float64

	MultiContracting bool
}
