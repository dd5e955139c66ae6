package router

import (
	"testing"
	"time"

	"github.com/alnmesh/alnrouter/clock"
	"github.com/alnmesh/alnrouter/codec"
	"github.com/alnmesh/alnrouter/netproto"
)

// newTestRouterWithClock builds a router with a fake clock so expiry can be
// driven deterministically instead of sleeping.
func newTestRouterWithClock(selfAddr codec.Address, expiry time.Duration) (r *Router, advance func(time.Time)) {
	clk := clock.New()
	now := time.Unix(0, 0)
	clk.SetNowFunc(func() time.Time { return now })

	r = New(Config{
		SelfAddr:    selfAddr,
		RouteExpiry: expiry,
		Clock:       clk,
	})
	advance = func(t time.Time) { now = t }
	return r, advance
}

func TestSweepExpiredRoutes_EvictsStaleRoute(t *testing.T) {
	r, advance := newTestRouterWithClock(1, time.Minute)
	fc := &fakeChannel{}
	r.AddChannel(fc)

	r.onPacket(fc, netproto.MakeRouteSharePacket(2, 5, 1))

	r.mu.Lock()
	_, known := r.remoteNodeMap[5]
	r.mu.Unlock()
	if !known {
		t.Fatal("route to 5 was not recorded")
	}

	advance(time.Unix(0, 0).Add(2 * time.Minute))
	r.sweepExpiredRoutes()

	r.mu.Lock()
	_, stillKnown := r.remoteNodeMap[5]
	r.mu.Unlock()
	if stillKnown {
		t.Error("route to 5 was not evicted after RouteExpiry elapsed")
	}
}

func TestSweepExpiredRoutes_KeepsFreshRoute(t *testing.T) {
	r, advance := newTestRouterWithClock(1, time.Minute)
	fc := &fakeChannel{}
	r.AddChannel(fc)

	r.onPacket(fc, netproto.MakeRouteSharePacket(2, 5, 1))

	advance(time.Unix(0, 0).Add(30 * time.Second))
	r.sweepExpiredRoutes()

	r.mu.Lock()
	_, known := r.remoteNodeMap[5]
	r.mu.Unlock()
	if !known {
		t.Error("route to 5 was evicted before RouteExpiry elapsed")
	}
}

func TestExportRoutes_OmitsExpiredRoute(t *testing.T) {
	r, advance := newTestRouterWithClock(1, time.Minute)
	fc := &fakeChannel{}
	r.AddChannel(fc)

	r.onPacket(fc, netproto.MakeRouteSharePacket(2, 5, 1))

	advance(time.Unix(0, 0).Add(2 * time.Minute))

	r.mu.Lock()
	exported := r.exportRoutes()
	r.mu.Unlock()

	for _, pkt := range exported {
		dest, _, _, err := netproto.ParseRouteSharePacket(pkt)
		if err != nil {
			t.Fatalf("ParseRouteSharePacket: %v", err)
		}
		if dest == 5 {
			t.Error("exportRoutes included a route past its RouteExpiry")
		}
	}
}
