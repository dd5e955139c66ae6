package router

import (
	"testing"

	"github.com/alnmesh/alnrouter/codec"
)

func newTestRouter(selfAddr codec.Address) *Router {
	return New(Config{SelfAddr: selfAddr})
}

// Invariant 1: after AddChannel(c), c is in the channel set and a NET_QUERY
// has been written to it exactly once.
func TestAddChannel_RegistersAndSendsQueryOnce(t *testing.T) {
	r := newTestRouter(1)
	fc := &fakeChannel{}

	r.AddChannel(fc)

	if fc.sentCount() != 1 {
		t.Fatalf("sentCount = %d, want 1", fc.sentCount())
	}
	sent := fc.lastSent()
	if !sent.IsNetState() || sent.NetState != codec.NetStateQuery {
		t.Errorf("sent packet = %+v, want a NET_QUERY", sent)
	}

	r.mu.Lock()
	present := r.channelPresent(fc)
	r.mu.Unlock()
	if !present {
		t.Error("channel not present in router's channel set after AddChannel")
	}
}

func TestRemoveChannel_RemovesFromSet(t *testing.T) {
	r := newTestRouter(1)
	fc := &fakeChannel{}
	r.AddChannel(fc)

	r.RemoveChannel(fc)

	r.mu.Lock()
	present := r.channelPresent(fc)
	r.mu.Unlock()
	if present {
		t.Error("channel still present after RemoveChannel")
	}
}

func TestClose_ClosesAllChannels(t *testing.T) {
	r := newTestRouter(1)
	fc1 := &fakeChannel{}
	fc2 := &fakeChannel{}
	r.AddChannel(fc1)
	r.AddChannel(fc2)

	r.Close()

	if !fc1.closed || !fc2.closed {
		t.Error("Close did not close every registered channel")
	}
}

// AddChannel's on_close wiring: the router removes a channel from its set
// when the channel reports itself closed.
func TestAddChannel_OnCloseRemovesChannel(t *testing.T) {
	r := newTestRouter(1)
	fc := &fakeChannel{}
	r.AddChannel(fc)

	fc.mu.Lock()
	onClose := fc.onClose
	fc.mu.Unlock()
	if onClose == nil {
		t.Fatal("AddChannel did not install an on_close callback")
	}
	onClose(fc)

	r.mu.Lock()
	present := r.channelPresent(fc)
	r.mu.Unlock()
	if present {
		t.Error("channel still present after firing on_close")
	}
}
