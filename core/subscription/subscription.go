// Package subscription associates customer populations with tariffs and
// tracks the per-timeslot state that billing and balancing need: committed
// population, usage, exercised regulation, and remaining regulation
// capacity.
package subscription

import (
	"math"
	"time"

	"github.com/gridwise/tariffsim/core/logger"
	"github.com/gridwise/tariffsim/core/model"
	"github.com/gridwise/tariffsim/core/tariff"
)

// RegulationCapacity is the available regulation energy for one timeslot,
// in kWh. Up is energy that can be taken from the customer (non-negative);
// Down is energy that can be pushed to it (non-positive).
type RegulationCapacity struct {
	Up   float64
	Down float64
}

type expirationRecord struct {
	horizon time.Time
	count   int
}

// Subscription binds part of a customer population to one tariff. It is not
// safe for concurrent use; the simulation loop owns it.
type Subscription struct {
	ID       int64
	customer *model.CustomerInfo
	tariff   *tariff.Tariff

	committed          int
	pendingUnsubscribe int
	expirations        []expirationRecord

	// ratio posted by economic control for the current timeslot
	pendingRegulationRatio float64

	capacity RegulationCapacity

	// aggregate regulation exercised in the current timeslot,
	// positive for up-regulation
	regulation float64

	// regulation exercised since the last ExercisedRegulation call; a
	// separate counter so reporting never consumes the customer-model
	// accumulator behind Curtailment and Regulation
	exercised float64

	originalKWh    float64
	originalCharge float64

	log logger.Logger
}

// New creates an empty subscription for a customer on a tariff.
func New(id int64, customer *model.CustomerInfo, t *tariff.Tariff, log logger.Logger) *Subscription {
	return &Subscription{ID: id, customer: customer, tariff: t, log: log}
}

// Customer returns the subscribed customer population.
func (s *Subscription) Customer() *model.CustomerInfo { return s.customer }

// Tariff returns the subscribed tariff.
func (s *Subscription) Tariff() *tariff.Tariff { return s.tariff }

// Committed returns the number of population members on this subscription.
func (s *Subscription) Committed() int { return s.committed }

// HasRegulationRate reports whether the tariff prices regulation.
func (s *Subscription) HasRegulationRate() bool { return s.tariff.HasRegulationRate() }

// Subscribe commits count members, recording the instant after which they
// may withdraw without penalty.
func (s *Subscription) Subscribe(count int, now time.Time) {
	s.committed += count
	horizon := now.Add(s.tariff.MinDuration())
	if n := len(s.expirations); n > 0 && s.expirations[n-1].horizon.Equal(horizon) {
		s.expirations[n-1].count += count
		return
	}
	s.expirations = append(s.expirations, expirationRecord{horizon, count})
}

// Unsubscribe marks count members for removal at the end of the timeslot.
// The removal itself happens in DeferredUnsubscribe, so subscription counts
// stay stable between consumption and balancing.
func (s *Subscription) Unsubscribe(count int) {
	s.pendingUnsubscribe += count
}

// PendingUnsubscribe returns the count marked for deferred removal.
func (s *Subscription) PendingUnsubscribe() int { return s.pendingUnsubscribe }

// DeferredUnsubscribe removes count members and returns the early-withdraw
// penalty total for members still inside their minimum duration. Revoked
// tariffs never charge the penalty.
func (s *Subscription) DeferredUnsubscribe(count int, now time.Time) float64 {
	s.pendingUnsubscribe = 0
	if count > s.committed {
		s.log.Errorf("subscription: unsubscribe %d from %d on tariff %d for %s",
			count, s.committed, s.tariff.ID(), s.customer.Name)
		count = s.committed
	}
	penaltyCount := count - s.ExpiredCustomerCount(now)
	if penaltyCount < 0 {
		penaltyCount = 0
	}
	remaining := count
	for remaining > 0 && len(s.expirations) > 0 {
		if s.expirations[0].count <= remaining {
			remaining -= s.expirations[0].count
			s.expirations = s.expirations[1:]
		} else {
			s.expirations[0].count -= remaining
			remaining = 0
		}
	}
	s.committed -= count
	if s.committed == 0 {
		s.capacity = RegulationCapacity{}
		s.regulation = 0.0
		s.exercised = 0.0
	}
	if s.tariff.IsRevoked() {
		return 0.0
	}
	return float64(penaltyCount) * s.tariff.EarlyWithdrawPayment()
}

// ExpiredCustomerCount returns how many members may withdraw without
// penalty at the given instant.
func (s *Subscription) ExpiredCustomerCount(now time.Time) int {
	cc := 0
	for _, exp := range s.expirations {
		if !exp.horizon.After(now) {
			cc += exp.count
		}
	}
	return cc
}

// UsePower records aggregate consumption (positive) or production
// (negative) for the current timeslot, after applying any pending economic
// regulation, and returns the resulting charge from the customer viewpoint.
func (s *Subscription) UsePower(kwh float64, now time.Time) float64 {
	s.originalKWh = kwh - s.economicRegulation(kwh, now)
	s.originalCharge = s.tariff.RecordUsage(now, s.originalKWh)
	return s.originalCharge
}

// PeriodicCharge returns the prorated periodic payment for one timeslot
// across the committed population.
func (s *Subscription) PeriodicCharge() float64 {
	return float64(s.committed) * s.tariff.PeriodicPayment() / 24.0
}

// Curtailment returns the aggregate curtailed energy from the previous
// timeslot and resets it. Non-negative for consumption types, non-positive
// for production. Not idempotent.
func (s *Subscription) Curtailment() float64 {
	sgn := 1.0
	if s.tariff.PowerType().IsProduction() {
		sgn = -1.0
	}
	result := sgn * math.Max(sgn*s.regulation, 0.0)
	s.regulation = 0.0
	return result
}

// Regulation returns the aggregate regulation exercised in the previous
// timeslot and resets it. Positive is up-regulation. Not idempotent.
func (s *Subscription) Regulation() float64 {
	result := s.regulation
	s.regulation = 0.0
	return result
}

// ExercisedRegulation returns the regulation exercised since the previous
// call and resets its counter. Curtailment and Regulation are unaffected,
// so reporting may drain this every timeslot while the customer model
// still sees its curtailment in the next slot.
func (s *Subscription) ExercisedRegulation() float64 {
	result := s.exercised
	s.exercised = 0.0
	return result
}

// SetRegulationCapacity publishes the customer model's regulation
// capability for the current timeslot. Must be called every timeslot by
// models that offer regulation, otherwise the previous slot's value
// carries over.
func (s *Subscription) SetRegulationCapacity(cap RegulationCapacity) {
	s.capacity = cap
}

// RemainingRegulationCapacity returns the capacity still available after
// the customer model has run, scaled down for pending unsubscribes.
func (s *Subscription) RemainingRegulationCapacity() RegulationCapacity {
	if s.committed == 0 {
		return RegulationCapacity{}
	}
	if s.pendingUnsubscribe == 0 {
		return s.capacity
	}
	ratio := float64(s.committed-s.pendingUnsubscribe) / float64(s.committed)
	return RegulationCapacity{Up: s.capacity.Up * ratio, Down: s.capacity.Down * ratio}
}

// PostRatioControl posts an economic-control ratio for the current
// timeslot. Ratios in [0,1] curtail; under a regulation rate, [-1,0)
// dumps energy into storage and (1,2] discharges it.
func (s *Subscription) PostRatioControl(ratio float64) {
	s.pendingRegulationRatio = ratio
}

// PostBalancingControl applies exercised balancing regulation. kwh is an
// aggregate customer-viewpoint value, negative for up-regulation. Returns
// the net charge adjustment from the customer viewpoint.
func (s *Subscription) PostBalancingControl(kwh float64, now time.Time) float64 {
	correction := 0.0
	if s.tariff.HasRegulationRate() && signum(kwh) != signum(s.originalKWh) {
		correction = -s.tariff.RecordUsage(now, kwh)
	}
	regCharge := s.tariff.RegulationCharge(now, kwh, true)
	s.regulation += kwh
	s.exercised += kwh
	if kwh <= 0.0 {
		s.capacity.Up += kwh
	} else {
		s.capacity.Down += kwh
	}
	return regCharge - correction
}

// economicRegulation converts the pending control ratio into energy for
// this timeslot, consuming regulation capacity. Mirrors the three ratio
// regimes documented on PostRatioControl.
func (s *Subscription) economicRegulation(proposedUsage float64, now time.Time) float64 {
	result := 0.0
	ratio := s.pendingRegulationRatio
	if s.tariff.HasRegulationRate() {
		switch {
		case ratio < 0.0:
			// down-regulation, negative result
			result = -ratio * s.capacity.Down
			s.capacity.Down -= result
		case ratio > 1.0:
			// storage discharge beyond proposed usage
			if s.capacity.Up > proposedUsage {
				excess := s.capacity.Up - proposedUsage
				result = proposedUsage + (ratio-1.0)*excess
				s.capacity.Up -= result
			}
		default:
			result = ratio * s.capacity.Up
			s.capacity.Up -= result
		}
	} else {
		proposed := proposedUsage * ratio
		mur := s.tariff.MaxUpRegulation(now, proposedUsage)
		result = math.Min(proposed, mur)
		s.capacity.Up = mur - result
	}
	if result != 0.0 {
		s.log.Infof("subscription: economic control of %s by %v", s.customer.Name, result)
	}
	s.regulation += result
	s.exercised += result
	s.pendingRegulationRatio = 0.0
	return result
}

func signum(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
