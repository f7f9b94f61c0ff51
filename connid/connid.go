package connid

import (
	"strconv"
	"sync/atomic"
)

// ID identifies one accepted connection for the lifetime of the process.
type ID uint64

// String formats the ID as "c-<n>", the form used in log fields.
func (id ID) String() string {
	return "c-" + strconv.FormatUint(uint64(id), 10)
}

// Generator hands out monotonically increasing IDs. The zero value is ready
// to use and its first ID is 1. Safe for concurrent use.
type Generator struct {
	last atomic.Uint64
}

// NewGenerator returns a Generator whose first ID is start+1.
//
// Parameters:
//   - start: The value the counter starts from
//
// Returns:
//   - A new Generator
func NewGenerator(start uint64) *Generator {
	g := &Generator{}
	g.last.Store(start)
	return g
}

// Next returns the next ID.
func (g *Generator) Next() ID {
	return ID(g.last.Add(1))
}

// Last returns the most recently issued ID, or the start value if none has
// been issued yet.
func (g *Generator) Last() ID {
	return ID(g.last.Load())
}
