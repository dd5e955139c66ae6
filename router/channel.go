package router

import "github.com/alnmesh/alnrouter/codec"

// PacketHandler is invoked by a Channel for every packet it receives.
type PacketHandler func(ch Channel, pkt *codec.Packet)

// Channel is a full-duplex transport between this router and exactly one
// neighbor. Concrete implementations (transport/pipe, transport/tcpchan,
// transport/serialchan, transport/mqttchan) are collaborators — this
// package never imports them, only the interface.
type Channel interface {
	// Send transmits pkt to the neighbor on the other end of the channel.
	Send(pkt *codec.Packet) error
	// Listen registers onPacket to be called for every packet the channel
	// receives, scheduled via sel.
	Listen(sel Selector, onPacket PacketHandler)
	// Close tears down the channel.
	Close() error
	// SetOnClose installs the callback fired when the peer disconnects.
	// The router sets this to its own eviction callback in AddChannel.
	SetOnClose(fn func(Channel))
}

// Selector is the host's scheduling abstraction for channel read loops.
// A blocking, single-threaded `select()`-style host (as in the reference
// Python implementation) would implement this by returning ready callbacks
// from a central loop; idiomatic Go instead runs each channel's read loop
// on its own goroutine, so the default Selector just schedules onto a new
// goroutine. The interface is kept so a host can still plug in a different
// scheduling discipline (e.g. a bounded worker pool) without touching the
// router or any Channel implementation.
type Selector interface {
	// Spawn schedules fn to run, returning immediately.
	Spawn(fn func())
}

// GoroutineSelector is the default Selector: every Spawn call runs fn on a
// fresh goroutine.
type GoroutineSelector struct{}

// Spawn implements Selector.
func (GoroutineSelector) Spawn(fn func()) {
	go fn()
}
