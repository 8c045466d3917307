// Package idgen issues entity ids that are unique within a simulation run.
// Ids combine a small prefix, identifying the id space (tariffs, rates,
// subscriptions), with a monotonically increasing counter, so ids from the
// same space sort in creation order.
package idgen

import (
	"fmt"
	"sync/atomic"
)

const multiplier = 100000000

// Generator hands out ids for a fixed prefix. The zero value is not usable;
// create one with New.
type Generator struct {
	prefix  int64
	counter atomic.Int64
}

// New returns a Generator for the given prefix. Prefixes must be positive
// and unique per id space within a run.
func New(prefix int) *Generator {
	return &Generator{prefix: int64(prefix)}
}

// Next returns the next id for this generator's prefix. Successive calls
// return strictly increasing values.
func (g *Generator) Next() int64 {
	return g.prefix*multiplier + g.counter.Add(1)
}

// Prefix extracts the prefix from an id produced by a Generator.
func Prefix(id int64) int {
	return int(id / multiplier)
}

// String formats an id as prefix.counter for logs.
func String(id int64) string {
	return fmt.Sprintf("%d.%d", id/multiplier, id%multiplier)
}
