package router

import (
	"errors"
	"sync"

	"github.com/alnmesh/alnrouter/codec"
)

// fakeChannel is a hand-rolled Channel fake for driving the router directly,
// recording every packet written to it. Tests call r.onPacket and the
// exported dispatch methods themselves rather than going through Listen, so
// fakeChannel's Listen is a no-op.
type fakeChannel struct {
	mu      sync.Mutex
	sent    []*codec.Packet
	closed  bool
	onClose func(Channel)
}

var errFakeChannelClosed = errors.New("fakeChannel: closed")

func (f *fakeChannel) Send(pkt *codec.Packet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errFakeChannelClosed
	}
	f.sent = append(f.sent, pkt.Clone())
	return nil
}

func (f *fakeChannel) Listen(sel Selector, onPacket PacketHandler) {}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) SetOnClose(fn func(Channel)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onClose = fn
}

func (f *fakeChannel) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeChannel) lastSent() *codec.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeChannel) allSent() []*codec.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*codec.Packet, len(f.sent))
	copy(out, f.sent)
	return out
}
