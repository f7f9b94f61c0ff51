package tcpserver

import "sync/atomic"

// Stats is a point-in-time view of server activity.
type Stats struct {
	Accepted         uint64
	Served           uint64
	WriteFailures    uint64
	ShutdownFailures uint64
	AcceptFailures   uint64
	Active           int
}

type counters struct {
	accepted         atomic.Uint64
	served           atomic.Uint64
	writeFailures    atomic.Uint64
	shutdownFailures atomic.Uint64
	acceptFailures   atomic.Uint64
}

func (c *counters) record(st State) {
	switch st {
	case Closed:
		c.served.Add(1)
	case WriteFailed:
		c.writeFailures.Add(1)
	case ShutdownFailed:
		c.shutdownFailures.Add(1)
	}
}

func (c *counters) snapshot(active int) Stats {
	return Stats{
		Accepted:         c.accepted.Load(),
		Served:           c.served.Load(),
		WriteFailures:    c.writeFailures.Load(),
		ShutdownFailures: c.shutdownFailures.Load(),
		AcceptFailures:   c.acceptFailures.Load(),
		Active:           active,
	}
}
