// Package tracker keeps the set of live connections so a stopping server can
// close them. It is built on sync.Map: handlers add and remove their own
// entry, only Stop iterates.
package tracker

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/cyberinferno/folioserve/connid"
)

// Tracker is a concurrent registry of live connections keyed by connection
// ID. The zero value is ready to use. Must not be copied after first use.
type Tracker struct {
	m     sync.Map
	count atomic.Int64
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{}
}

// Add registers conn under id. Adding an id twice replaces the connection
// without changing Len.
func (t *Tracker) Add(id connid.ID, conn net.Conn) {
	if _, loaded := t.m.Swap(id, conn); !loaded {
		t.count.Add(1)
	}
}

// Remove unregisters id. Removing an unknown id is a no-op.
func (t *Tracker) Remove(id connid.ID) {
	if _, loaded := t.m.LoadAndDelete(id); loaded {
		t.count.Add(-1)
	}
}

// Get returns the connection registered under id.
func (t *Tracker) Get(id connid.ID) (net.Conn, bool) {
	v, ok := t.m.Load(id)
	if !ok {
		return nil, false
	}

	return v.(net.Conn), true
}

// Len returns the number of registered connections.
func (t *Tracker) Len() int {
	return int(t.count.Load())
}

// Range calls f for each registered connection until f returns false.
func (t *Tracker) Range(f func(id connid.ID, conn net.Conn) bool) {
	t.m.Range(func(k, v any) bool {
		return f(k.(connid.ID), v.(net.Conn))
	})
}

// CloseAll closes every registered connection and returns how many it
// closed. Entries stay registered; their handlers remove them on exit.
func (t *Tracker) CloseAll() int {
	n := 0
	t.Range(func(_ connid.ID, conn net.Conn) bool {
		_ = conn.Close()
		n++
		return true
	})

	return n
}
