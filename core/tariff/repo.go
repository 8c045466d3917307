package tariff

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gridwise/tariffsim/core/logger"
	"github.com/gridwise/tariffsim/core/model"
)

// Repo holds all tariffs in a run, indexed by id, broker, and power type.
// Safe for concurrent use.
type Repo struct {
	mu sync.RWMutex

	tariffs  map[int64]*Tariff
	removed  map[int64]bool
	defaults map[model.PowerType]*Tariff
	byBroker map[string][]*Tariff // newest first
	brokers  []string             // sorted, for deterministic iteration

	log logger.Logger
}

// NewRepo returns an empty tariff repository.
func NewRepo(log logger.Logger) *Repo {
	return &Repo{
		tariffs:  make(map[int64]*Tariff),
		removed:  make(map[int64]bool),
		defaults: make(map[model.PowerType]*Tariff),
		byBroker: make(map[string][]*Tariff),
		log:      log,
	}
}

// Add publishes a tariff. The tariff must already be initialized. Duplicate
// and previously removed ids are rejected. Predecessors named by the spec's
// supersedes list get their replacement pointer set, provided their power
// type is compatible.
func (r *Repo) Add(t *Tariff) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.removed[t.ID()] || r.tariffs[t.ID()] != nil {
		return fmt.Errorf("tariff: duplicate tariff id %d", t.ID())
	}
	r.tariffs[t.ID()] = t
	if _, seen := r.byBroker[t.Broker()]; !seen {
		r.brokers = append(r.brokers, t.Broker())
		sort.Strings(r.brokers)
	}
	r.byBroker[t.Broker()] = append([]*Tariff{t}, r.byBroker[t.Broker()]...)

	for _, supID := range t.Spec().Supersedes {
		prev, ok := r.tariffs[supID]
		if !ok {
			r.log.Errorf("tariff: superseded tariff %d not found", supID)
			continue
		}
		if prev.PowerType() != t.PowerType() && !prev.PowerType().CanUse(t.PowerType()) {
			r.log.Errorf("tariff: tariff %d (%s) cannot supersede %d (%s)",
				t.ID(), t.PowerType(), supID, prev.PowerType())
			continue
		}
		prev.SetSupersededBy(t)
	}
	return nil
}

// Find returns the tariff with the given id, or nil.
func (r *Repo) Find(id int64) *Tariff {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tariffs[id]
}

// SetDefault installs a tariff as the fallback for its power type. The
// tariff is initialized and published as part of the call.
func (r *Repo) SetDefault(spec *model.TariffSpecification, now time.Time) (*Tariff, error) {
	t := New(spec, r.log)
	if err := t.Init(now); err != nil {
		return nil, err
	}
	t.SetState(Active)
	if err := r.Add(t); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.defaults[spec.PowerType] = t
	r.mu.Unlock()
	return t, nil
}

// Default returns the default tariff for a power type, falling back to the
// generic type. Nil when neither exists.
func (r *Repo) Default(pt model.PowerType) *Tariff {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.defaults[pt]; ok {
		return t
	}
	return r.defaults[pt.Generic()]
}

// FindActive returns subscribable tariffs exactly matching the power type.
func (r *Repo) FindActive(pt model.PowerType, now time.Time) []*Tariff {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*Tariff
	for _, broker := range r.brokers {
		for _, t := range r.byBroker[broker] {
			if t.PowerType() == pt && t.IsSubscribable(now) {
				result = append(result, t)
			}
		}
	}
	return result
}

// FindRecentActive returns up to n of the newest subscribable tariffs per
// broker and per power type that a customer of the given type can use.
func (r *Repo) FindRecentActive(n int, pt model.PowerType, now time.Time) []*Tariff {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*Tariff
	counter := make(map[model.PowerType]int)
	for _, broker := range r.brokers {
		for k := range counter {
			delete(counter, k)
		}
		for _, t := range r.byBroker[broker] {
			tpt := t.PowerType()
			if t.IsSubscribable(now) && pt.CanUse(tpt) && counter[tpt] < n {
				result = append(result, t)
				counter[tpt]++
			}
		}
	}
	return result
}

// ByState returns all tariffs in the given lifecycle state.
func (r *Repo) ByState(s State) []*Tariff {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*Tariff
	for _, broker := range r.brokers {
		for _, t := range r.byBroker[broker] {
			if t.State() == s {
				result = append(result, t)
			}
		}
	}
	return result
}

// Revoke kills a tariff. Existing subscriptions are handled by the
// customer models on their next step.
func (r *Repo) Revoke(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tariffs[id]
	if !ok {
		return fmt.Errorf("tariff: cannot revoke unknown tariff %d", id)
	}
	t.SetState(Killed)
	r.log.Infof("tariff: revoked tariff %d from %s", id, t.Broker())
	return nil
}

// Remove deletes a tariff and blocks its id from re-insertion.
func (r *Repo) Remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tariffs[id]
	if !ok {
		return
	}
	delete(r.tariffs, id)
	r.removed[id] = true
	list := r.byBroker[t.Broker()]
	for i, cand := range list {
		if cand.ID() == id {
			r.byBroker[t.Broker()] = append(list[:i], list[i+1:]...)
			break
		}
	}
}
