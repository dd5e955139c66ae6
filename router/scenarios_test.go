package router_test

import (
	"testing"
	"time"

	"github.com/alnmesh/alnrouter/codec"
	"github.com/alnmesh/alnrouter/router"
	"github.com/alnmesh/alnrouter/transport/pipe"
)

// waitForSend retries send until it succeeds or the deadline passes. Route
// and service gossip propagate asynchronously across goroutine-scheduled
// channel handlers, so scenario tests converge by polling rather than
// asserting on a single attempt.
func waitForSend(t *testing.T, send func() error) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var last error
	for time.Now().Before(deadline) {
		if err := send(); err == nil {
			return
		} else {
			last = err
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition never converged, last error: %v", last)
}

// S1: two-node discovery. A=1 and B=2 connected by one channel each side;
// after convergence each side can route to the other.
func TestScenario_TwoNodeDiscovery(t *testing.T) {
	a, b := pipe.NewPair()

	ra := router.New(router.Config{SelfAddr: 1})
	rb := router.New(router.Config{SelfAddr: 2})
	defer ra.Close()
	defer rb.Close()

	ra.AddChannel(a)
	rb.AddChannel(b)

	waitForSend(t, func() error {
		return ra.Send(&codec.Packet{DestAddr: 2, Data: []byte("ping")})
	})
	waitForSend(t, func() error {
		return rb.Send(&codec.Packet{DestAddr: 1, Data: []byte("pong")})
	})
}

// S2: three-node relay. A=1—B=2—C=3. After convergence A can reach a
// service on C through B.
func TestScenario_ThreeNodeRelay(t *testing.T) {
	ab1, ab2 := pipe.NewPair()
	bc1, bc2 := pipe.NewPair()

	ra := router.New(router.Config{SelfAddr: 1})
	rb := router.New(router.Config{SelfAddr: 2})
	rc := router.New(router.Config{SelfAddr: 3})
	defer ra.Close()
	defer rb.Close()
	defer rc.Close()

	// Register the service before wiring bc2 so C's first response to B's
	// NET_QUERY (the only point at which C's table is exported) already
	// includes it; registering afterward would never be gossiped, since
	// nothing re-queries or pushes on registration alone.
	var received *codec.Packet
	rc.RegisterService(50, func(pkt *codec.Packet) { received = pkt })

	ra.AddChannel(ab1)
	rb.AddChannel(ab2)
	rb.AddChannel(bc1)
	rc.AddChannel(bc2)

	waitForSend(t, func() error {
		return ra.Send(&codec.Packet{ServiceID: 50, Data: []byte("via-b")})
	})

	deadline := time.Now().Add(2 * time.Second)
	for received == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if received == nil {
		t.Fatal("service handler on C was never invoked")
	}
	if string(received.Data) != "via-b" {
		t.Errorf("Data = %q, want %q", received.Data, "via-b")
	}
}

// S3, reduced to a single provider: only B registers service 42, and A's
// Send by serviceID alone reaches B's handler end to end. A locally
// registered service always advertises load 0 (load measurement is a
// caller hook this module does not implement — see DESIGN.md), so two
// real routers cannot report different loads; the load-comparison logic
// itself (select_service choosing the minimum among several reported
// loads) is covered directly against the router's internal tables in
// dispatch_test.go's TestSelectService_RemoteMinLoadWins and
// TestSend_ServiceSelectionByLoad.
func TestScenario_ServiceSelection_SingleProviderReachable(t *testing.T) {
	ab1, ab2 := pipe.NewPair()

	ra := router.New(router.Config{SelfAddr: 1})
	rb := router.New(router.Config{SelfAddr: 2})
	defer ra.Close()
	defer rb.Close()

	var got *codec.Packet
	rb.RegisterService(42, func(pkt *codec.Packet) { got = pkt })

	ra.AddChannel(ab1)
	rb.AddChannel(ab2)

	waitForSend(t, func() error {
		return ra.Send(&codec.Packet{ServiceID: 42, Data: []byte("pick-me")})
	})

	deadline := time.Now().Add(2 * time.Second)
	for got == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got == nil {
		t.Fatal("service handler on B was never invoked")
	}
}

// S6: context handler, end to end through AddChannel/Send plumbing rather
// than direct dispatch internals.
func TestScenario_ContextHandlerEndToEnd(t *testing.T) {
	r := router.New(router.Config{SelfAddr: 1})
	defer r.Close()

	done := make(chan *codec.Packet, 1)
	ctx := r.RegisterContextHandler(func(pkt *codec.Packet) { done <- pkt })

	if err := r.Send(&codec.Packet{DestAddr: 1, ContextID: ctx, Data: []byte("reply")}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case pkt := <-done:
		if string(pkt.Data) != "reply" {
			t.Errorf("Data = %q, want %q", pkt.Data, "reply")
		}
	case <-time.After(time.Second):
		t.Fatal("context handler was never invoked")
	}
}
