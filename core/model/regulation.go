package model

import (
	"fmt"
	"math"
)

// RegulationResponse is the speed class of a regulation commitment.
type RegulationResponse int

const (
	// ResponseMinutes covers ramp-limited balancing, settled per timeslot.
	ResponseMinutes RegulationResponse = iota
	// ResponseSeconds covers fast AGC-style regulation.
	ResponseSeconds
)

// RegulationRate prices the exercise of regulation capacity under a tariff.
// UpPayment is the per-kWh credit to the customer for energy taken from it
// (curtailment or discharge, normally positive); DownPayment is the per-kWh
// charge for energy delivered to it (normally negative or zero).
type RegulationRate struct {
	ID          int64
	TariffID    int64
	Response    RegulationResponse
	UpPayment   float64
	DownPayment float64
}

// Validate rejects non-finite payments.
func (rr *RegulationRate) Validate() error {
	if math.IsNaN(rr.UpPayment) || math.IsInf(rr.UpPayment, 0) {
		return fmt.Errorf("model: regulation up-payment is %v", rr.UpPayment)
	}
	if math.IsNaN(rr.DownPayment) || math.IsInf(rr.DownPayment, 0) {
		return fmt.Errorf("model: regulation down-payment is %v", rr.DownPayment)
	}
	return nil
}
