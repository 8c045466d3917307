// Package clock keeps simulated time and runs scheduled actions. Simulated
// time is derived from the wall clock: it starts at a configured base
// instant and advances at a configurable multiple of real time, truncated
// to timeslot boundaries.
package clock

import (
	"container/heap"
	"sync"
	"time"

	"github.com/gridwise/tariffsim/core/logger"
)

// Timeslot is the simulation's atomic time unit.
const Timeslot = time.Hour

// Action is a deferred piece of work scheduled against simulated time.
// It receives the simulated time at which it runs.
type Action func(now time.Time)

type scheduled struct {
	due time.Time
	seq uint64
	fn  Action
}

type actionQueue []*scheduled

func (q actionQueue) Len() int { return len(q) }
func (q actionQueue) Less(i, j int) bool {
	if !q[i].due.Equal(q[j].due) {
		return q[i].due.Before(q[j].due)
	}
	return q[i].seq < q[j].seq
}
func (q actionQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *actionQueue) Push(x any)        { *q = append(*q, x.(*scheduled)) }
func (q *actionQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// Clock maps wall-clock time onto simulated time and holds the queue of
// scheduled actions. All methods are safe for concurrent use.
type Clock struct {
	mu sync.Mutex

	base   time.Time     // simulated instant at which the run begins
	start  time.Time     // wall-clock instant matching base
	rate   int64         // simulated time units per wall-clock unit
	modulo time.Duration // granularity of simulated time

	now  time.Time
	busy bool

	queue actionQueue
	seq   uint64

	log logger.Logger
}

// New returns a Clock whose simulated time begins at base and advances rate
// times faster than the wall clock, truncated to multiples of modulo.
func New(base time.Time, start time.Time, rate int64, modulo time.Duration, log logger.Logger) *Clock {
	if rate < 1 {
		rate = 1
	}
	if modulo <= 0 {
		modulo = Timeslot
	}
	return &Clock{
		base:   base.UTC(),
		start:  start,
		rate:   rate,
		modulo: modulo,
		now:    base.UTC(),
		log:    log,
	}
}

// Base returns the simulated start instant.
func (c *Clock) Base() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base
}

// Now returns the current simulated time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// SetNow forces the simulated time, bypassing the wall-clock mapping. It is
// intended for tests and bootstrap replay.
func (c *Clock) SetNow(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

// Advance recomputes simulated time from the wall clock and runs any actions
// that have come due. If a previous Advance is still executing actions, the
// update is skipped and the wall-clock origin is pushed forward by one
// timeslot's worth of real time, so the missed slot is made up rather than
// dropped.
func (c *Clock) Advance(wall time.Time) {
	c.mu.Lock()
	if c.busy {
		c.start = c.start.Add(time.Duration(int64(Timeslot) / c.rate))
		c.mu.Unlock()
		c.log.Warnf("clock: advance overlap, shifting origin by one slot")
		return
	}
	c.busy = true
	elapsed := wall.Sub(c.start)
	raw := c.base.Add(time.Duration(int64(elapsed) * c.rate))
	c.now = raw.Add(-time.Duration(raw.Sub(c.base) % c.modulo))
	c.mu.Unlock()

	c.runDue()

	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

// At schedules fn to run when simulated time reaches due. Scheduling in the
// past is allowed; the action runs on the next RunDue. Actions scheduled for
// the same instant run in scheduling order.
func (c *Clock) At(due time.Time, fn Action) {
	c.mu.Lock()
	c.seq++
	heap.Push(&c.queue, &scheduled{due: due.UTC(), seq: c.seq, fn: fn})
	c.mu.Unlock()
}

// RunDue executes every queued action whose due time is not after the
// current simulated time. Each action is removed from the queue before it
// runs, so an action may schedule further work, including for the same
// instant.
func (c *Clock) RunDue() {
	c.runDue()
}

func (c *Clock) runDue() {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 || c.queue[0].due.After(c.now) {
			c.mu.Unlock()
			return
		}
		item := heap.Pop(&c.queue).(*scheduled)
		now := c.now
		c.mu.Unlock()
		item.fn(now)
	}
}

// Pending returns the number of queued actions.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// TimeslotSerial converts a simulated instant into the number of whole
// timeslots since the base instant.
func (c *Clock) TimeslotSerial(t time.Time) int {
	c.mu.Lock()
	base := c.base
	c.mu.Unlock()
	return int(t.Sub(base) / Timeslot)
}

// TimeslotTime is the inverse of TimeslotSerial.
func (c *Clock) TimeslotTime(serial int) time.Time {
	c.mu.Lock()
	base := c.base
	c.mu.Unlock()
	return base.Add(time.Duration(serial) * Timeslot)
}

// CurrentSerial returns the timeslot serial of the current simulated time.
func (c *Clock) CurrentSerial() int {
	return c.TimeslotSerial(c.Now())
}

// HourOfDay returns the hour 0..23 of a simulated instant.
func HourOfDay(t time.Time) int {
	return t.UTC().Hour()
}

// DayOfWeek returns the day of week with 1=Monday..7=Sunday.
func DayOfWeek(t time.Time) int {
	d := int(t.UTC().Weekday())
	if d == 0 {
		return 7
	}
	return d
}
