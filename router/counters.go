package router

import "sync/atomic"

// RouterCounters tracks router activity using atomic counters. All fields
// are safe for concurrent access: route learning/relay, service
// advertisement, and dispatch outcomes.
type RouterCounters struct {
	RoutesLearned      atomic.Uint32 // new RemoteNode entries inserted
	RoutesRelayed      atomic.Uint32 // NET_ROUTE updates accepted and relayed
	ServicesAdvertised atomic.Uint32 // NET_SERVICE packets ingested
	PacketsQueued      atomic.Uint32 // packets buffered awaiting a provider
	PacketsDispatched  atomic.Uint32 // packets successfully dispatched (local or forwarded)
	DispatchFailures   atomic.Uint32 // Send calls that returned a non-nil error
}

// CountersSnapshot is a plain-value copy of RouterCounters for reading.
type CountersSnapshot struct {
	RoutesLearned      uint32
	RoutesRelayed      uint32
	ServicesAdvertised uint32
	PacketsQueued      uint32
	PacketsDispatched  uint32
	DispatchFailures   uint32
}

// Snapshot returns a consistent point-in-time copy of all counters.
func (c *RouterCounters) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		RoutesLearned:      c.RoutesLearned.Load(),
		RoutesRelayed:      c.RoutesRelayed.Load(),
		ServicesAdvertised: c.ServicesAdvertised.Load(),
		PacketsQueued:      c.PacketsQueued.Load(),
		PacketsDispatched:  c.PacketsDispatched.Load(),
		DispatchFailures:   c.DispatchFailures.Load(),
	}
}

// Reset zeroes all counters.
func (c *RouterCounters) Reset() {
	c.RoutesLearned.Store(0)
	c.RoutesRelayed.Store(0)
	c.ServicesAdvertised.Store(0)
	c.PacketsQueued.Store(0)
	c.PacketsDispatched.Store(0)
	c.DispatchFailures.Store(0)
}
