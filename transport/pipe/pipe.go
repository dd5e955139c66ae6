// Package pipe provides an in-process, in-memory Channel implementation.
// It is useful for tests and for simulating a multi-node mesh within a
// single process, without any real transport underneath.
package pipe

import (
	"errors"
	"sync"

	"github.com/alnmesh/alnrouter/codec"
	"github.com/alnmesh/alnrouter/router"
)

// Compile-time interface check.
var _ router.Channel = (*Pipe)(nil)

// ErrClosed is returned by Send once the pipe has been closed.
var ErrClosed = errors.New("pipe: channel closed")

// ErrBacklogFull is returned by Send when the peer has not yet called
// Listen and its pre-Listen backlog (maxPending packets) is already full.
var ErrBacklogFull = errors.New("pipe: peer backlog full")

// maxPending bounds the backlog of packets a Pipe holds for a peer that has
// not yet called Listen, modeling the way a real socket's OS-level receive
// buffer holds bytes delivered before the reader starts. An unbounded
// in-memory queue would turn a slow test setup into an unbounded leak.
const maxPending = 64

// Pipe is one half of an in-memory channel pair. Packets sent on one end
// are delivered to the other end's registered PacketHandler. A packet sent
// before the receiving end has called Listen is buffered (like a real
// transport's receive buffer) and delivered as soon as Listen installs a
// handler.
type Pipe struct {
	mu      sync.Mutex
	peer    *Pipe
	closed  bool
	onClose func(router.Channel)
	handler router.PacketHandler
	pending []*codec.Packet
}

// NewPair creates two connected Pipe endpoints: packets sent on a are
// delivered to b's handler, and vice versa.
func NewPair() (a, b *Pipe) {
	a = &Pipe{}
	b = &Pipe{}
	a.peer = b
	b.peer = a
	return a, b
}

// Send delivers pkt to the peer's registered handler, if any.
func (p *Pipe) Send(pkt *codec.Packet) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	peer := p.peer
	p.mu.Unlock()

	peer.mu.Lock()
	if peer.closed {
		peer.mu.Unlock()
		return ErrClosed
	}
	handler := peer.handler
	if handler == nil {
		if len(peer.pending) >= maxPending {
			peer.mu.Unlock()
			return ErrBacklogFull
		}
		peer.pending = append(peer.pending, pkt.Clone())
		peer.mu.Unlock()
		return nil
	}
	peer.mu.Unlock()

	handler(peer, pkt.Clone())
	return nil
}

// Listen registers onPacket to be invoked for every packet this end
// receives, first flushing any packets that arrived before Listen was
// called. The sending peer's Send hands each packet to sel.Spawn, so with
// the default GoroutineSelector a slow handler does not block the sender.
func (p *Pipe) Listen(sel router.Selector, onPacket router.PacketHandler) {
	p.mu.Lock()
	p.handler = func(ch router.Channel, pkt *codec.Packet) {
		sel.Spawn(func() { onPacket(ch, pkt) })
	}
	handler := p.handler
	backlog := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, pkt := range backlog {
		handler(p, pkt)
	}
}

// Close marks this end closed and fires the peer's on_close callback, if
// one is installed (mirroring a real transport detecting the remote end
// hanging up).
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	peer := p.peer
	p.mu.Unlock()

	peer.mu.Lock()
	peerOnClose := peer.onClose
	peer.mu.Unlock()
	if peerOnClose != nil {
		peerOnClose(peer)
	}
	return nil
}

// SetOnClose installs the callback fired when this end observes its peer
// closing.
func (p *Pipe) SetOnClose(fn func(router.Channel)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClose = fn
}
