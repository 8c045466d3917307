package subscription

import (
	"sort"
	"sync"
	"time"

	"github.com/gridwise/tariffsim/core/logger"
	"github.com/gridwise/tariffsim/core/model"
	"github.com/gridwise/tariffsim/core/tariff"
	"github.com/gridwise/tariffsim/internal/idgen"
)

// Repo indexes subscriptions by customer and by tariff. Safe for
// concurrent use.
type Repo struct {
	mu sync.RWMutex

	byCustomer map[int64][]*Subscription
	byTariff   map[int64][]*Subscription

	ids *idgen.Generator
	log logger.Logger
}

// NewRepo returns an empty subscription repository drawing ids from ids.
func NewRepo(ids *idgen.Generator, log logger.Logger) *Repo {
	return &Repo{
		byCustomer: make(map[int64][]*Subscription),
		byTariff:   make(map[int64][]*Subscription),
		ids:        ids,
		log:        log,
	}
}

// Get returns the subscription binding a customer to a tariff, creating an
// empty one if none exists.
func (r *Repo) Get(customer *model.CustomerInfo, t *tariff.Tariff) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byCustomer[customer.ID] {
		if s.Tariff().ID() == t.ID() {
			return s
		}
	}
	s := New(r.ids.Next(), customer, t, r.log)
	r.byCustomer[customer.ID] = append(r.byCustomer[customer.ID], s)
	r.byTariff[t.ID()] = append(r.byTariff[t.ID()], s)
	return s
}

// ForCustomer returns all subscriptions held by a customer.
func (r *Repo) ForCustomer(customer *model.CustomerInfo) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Subscription(nil), r.byCustomer[customer.ID]...)
}

// ActiveForCustomer returns the customer's subscriptions with committed
// members.
func (r *Repo) ActiveForCustomer(customer *model.CustomerInfo) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*Subscription
	for _, s := range r.byCustomer[customer.ID] {
		if s.Committed() > 0 {
			result = append(result, s)
		}
	}
	return result
}

// ForTariff returns all subscriptions on a tariff.
func (r *Repo) ForTariff(t *tariff.Tariff) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Subscription(nil), r.byTariff[t.ID()]...)
}

// RevokedForCustomer returns the customer's populated subscriptions whose
// tariff has been revoked.
func (r *Repo) RevokedForCustomer(customer *model.CustomerInfo) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*Subscription
	for _, s := range r.byCustomer[customer.ID] {
		if s.Committed() > 0 && s.Tariff().IsRevoked() {
			result = append(result, s)
		}
	}
	return result
}

// HandleRevoked moves the population of a revoked subscription to the
// superseding tariff, falling back to the default tariff for the power
// type. Returns the replacement subscription, or nil when there was
// nothing to move.
func (r *Repo) HandleRevoked(s *Subscription, tariffs *tariff.Repo, now time.Time) *Subscription {
	if !s.Tariff().IsRevoked() {
		r.log.Warnf("subscription: tariff %d is not revoked", s.Tariff().ID())
		return s
	}
	count := s.Committed()
	if count == 0 {
		return nil
	}
	next := s.Tariff().SupersededBy()
	if next == nil || !next.IsSubscribable(now) {
		next = tariffs.Default(s.Tariff().PowerType())
	}
	if next == nil {
		r.log.Errorf("subscription: no replacement for revoked tariff %d", s.Tariff().ID())
		return nil
	}
	s.Unsubscribe(count)
	s.DeferredUnsubscribe(count, now)
	replacement := r.Get(s.Customer(), next)
	replacement.Subscribe(count, now)
	r.log.Infof("subscription: tariff %d superseded by %d for %d members of %s",
		s.Tariff().ID(), next.ID(), count, s.Customer().Name)
	return replacement
}

// ProcessDeferred finalizes all pending unsubscribes at the end of a
// timeslot and returns the total early-withdraw penalty charged, from the
// customer viewpoint. Customers are processed in id order.
func (r *Repo) ProcessDeferred(now time.Time) float64 {
	r.mu.Lock()
	ids := make([]int64, 0, len(r.byCustomer))
	for id := range r.byCustomer {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	total := 0.0
	for _, id := range ids {
		r.mu.RLock()
		subs := append([]*Subscription(nil), r.byCustomer[id]...)
		r.mu.RUnlock()
		for _, s := range subs {
			if pending := s.PendingUnsubscribe(); pending > 0 {
				total += s.DeferredUnsubscribe(pending, now)
			}
		}
	}
	return total
}
