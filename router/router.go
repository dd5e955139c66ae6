// Package router implements the ALN mesh router: neighbor discovery,
// distance-vector route propagation, service advertisement and selection
// with load-based tie-breaking, packet dispatch (local handler vs.
// forwarded), and a request/response context registry.
//
// This corresponds to the reference implementation's Router
// (original_source/python/aln/router.py), generalized to evict routes by
// lastSeen (the original only declares the field) and with a handful of
// latent bugs in the original fixed rather than reproduced — see
// DESIGN.md for the per-bug decision.
package router

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alnmesh/alnrouter/clock"
	"github.com/alnmesh/alnrouter/codec"
	"github.com/alnmesh/alnrouter/netproto"
)

// DefaultSweepInterval is how often the route-expiry sweep runs when
// Config.RouteExpiry is nonzero and Start is called.
const DefaultSweepInterval = 30 * time.Second

// HandlerFunc is the contract for local service and context handlers:
// invoked with the packet addressed to this router, always after the
// router's mutex has been released.
type HandlerFunc func(pkt *codec.Packet)

// Config configures a Router.
type Config struct {
	// SelfAddr is this router's own 16-bit address. Must be nonzero
	// (provisioned); address 0 is reserved for "unset".
	SelfAddr codec.Address

	// RouteExpiry is the TTL applied to RemoteNode.LastSeen: entries older
	// than this are omitted from export_routes and, if Start is called,
	// swept from remoteNodeMap by a background ticker. Zero disables
	// eviction entirely — it is an optional hook, not a mandatory timeout.
	RouteExpiry time.Duration

	// SweepInterval is the resolution of the background eviction ticker.
	// Only used when RouteExpiry > 0 and Start is called. Default: 30s.
	SweepInterval time.Duration

	// Selector schedules Channel read loops. Defaults to GoroutineSelector.
	Selector Selector

	// Clock is the timestamp source used to stamp RemoteNode.LastSeen and
	// to judge expiry. Defaults to clock.New() (the system clock). Tests
	// override it with a fake nowFn to drive eviction deterministically.
	Clock *clock.Clock

	// Logger for router events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Router owns the channel set, routing table, service tables, and local
// handler registries for one ALN node, and implements its gossip protocol
// and dispatch logic.
type Router struct {
	cfg Config
	log *slog.Logger
	sel Selector
	clk *clock.Clock

	mu             sync.Mutex
	channels       []Channel
	remoteNodeMap  map[codec.Address]*RemoteNode
	serviceMap     map[codec.Address]HandlerFunc
	contextMap     map[codec.Address]HandlerFunc
	serviceLoadMap map[codec.Address]map[codec.Address]uint16
	serviceQueue   map[codec.Address][]*codec.Packet

	Counters RouterCounters

	cancel    context.CancelFunc
	sweepDone chan struct{}
}

// New creates a Router with the given configuration. cfg.SelfAddr must be
// nonzero.
func New(cfg Config) *Router {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	sel := cfg.Selector
	if sel == nil {
		sel = GoroutineSelector{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Router{
		cfg:            cfg,
		log:            logger.WithGroup("router"),
		sel:            sel,
		clk:            clk,
		remoteNodeMap:  make(map[codec.Address]*RemoteNode),
		serviceMap:     make(map[codec.Address]HandlerFunc),
		contextMap:     make(map[codec.Address]HandlerFunc),
		serviceLoadMap: make(map[codec.Address]map[codec.Address]uint16),
		serviceQueue:   make(map[codec.Address][]*codec.Packet),
	}
}

// Start begins the background route-expiry sweep, if Config.RouteExpiry is
// nonzero. Safe to call even when RouteExpiry is zero (it is then a no-op).
func (r *Router) Start(ctx context.Context) {
	if r.cfg.RouteExpiry <= 0 {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.sweepDone = make(chan struct{})
	go r.sweepLoop(ctx)
}

// Stop cancels the background sweep and waits for it to finish. Safe to
// call even if Start was never called or RouteExpiry is zero.
func (r *Router) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.sweepDone
		r.cancel = nil
	}
}

func (r *Router) sweepLoop(ctx context.Context) {
	defer close(r.sweepDone)
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepExpiredRoutes()
		}
	}
}

func (r *Router) sweepExpiredRoutes() {
	now := r.clk.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for addr, node := range r.remoteNodeMap {
		if now.Sub(node.LastSeen) > r.cfg.RouteExpiry {
			delete(r.remoteNodeMap, addr)
			r.log.Debug("evicted expired route", "dest", addr, "lastSeen", node.LastSeen)
		}
	}
}

// AddChannel registers a channel, subscribes to its incoming packets, and
// immediately solicits the neighbor's routing and service tables with a
// NET_QUERY packet. Corresponds to Router.add_channel.
func (r *Router) AddChannel(ch Channel) {
	ch.SetOnClose(func(c Channel) { r.RemoveChannel(c) })

	r.mu.Lock()
	r.channels = append(r.channels, ch)
	r.mu.Unlock()

	ch.Listen(r.sel, r.onPacket)

	r.mu.Lock()
	err := ch.Send(netproto.MakeQueryPacket())
	r.mu.Unlock()
	if err != nil {
		r.log.Warn("failed to send NET_QUERY to new channel", "error", err)
	}
}

// RemoveChannel removes ch from the channel set. Existing RemoteNode
// entries whose Channel equals ch are left in place — the next
// advertisement on another channel will correct or replace them.
// Corresponds to Router.remove_channel.
func (r *Router) RemoveChannel(ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.channels {
		if c == ch {
			r.channels = append(r.channels[:i], r.channels[i+1:]...)
			return
		}
	}
}

// Close stops the router and closes every registered channel. Corresponds
// to Router.close.
func (r *Router) Close() {
	r.mu.Lock()
	channels := make([]Channel, len(r.channels))
	copy(channels, r.channels)
	r.channels = nil
	r.mu.Unlock()

	for _, ch := range channels {
		if err := ch.Close(); err != nil {
			r.log.Debug("error closing channel", "error", err)
		}
	}
	r.Stop()
}

// RegisterService registers handler as the local provider for serviceID.
// Corresponds to Router.register_service.
func (r *Router) RegisterService(serviceID codec.Address, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.serviceMap[serviceID] = handler
}

// UnregisterService removes the local handler for serviceID, if any. This
// is a no-op if no handler was registered. Corresponds to
// Router.unregister_service (the reference implementation has a `pol`/`pop`
// typo here; this is the corrected "remove if present" behavior).
func (r *Router) UnregisterService(serviceID codec.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.serviceMap, serviceID)
}

// onPacket is the per-channel callback installed via Channel.Listen.
// Corresponds to Router.on_packet.
func (r *Router) onPacket(ch Channel, pkt *codec.Packet) {
	if pkt.IsNetState() {
		r.mu.Lock()
		r.handleNetState(ch, pkt)
		r.mu.Unlock()
		return
	}
	if err := r.Send(pkt); err != nil {
		r.log.Debug("dispatch failed", "error", err)
	}
}

// channelPresent reports whether ch is still a member of the router's
// channel set. Must be called with r.mu held.
func (r *Router) channelPresent(ch Channel) bool {
	for _, c := range r.channels {
		if c == ch {
			return true
		}
	}
	return false
}

// broadcastExcept sends pkt on every registered channel except exclude.
// Must be called with r.mu held: channel I/O happens under the lock in
// this design.
func (r *Router) broadcastExcept(pkt *codec.Packet, exclude Channel) {
	for _, ch := range r.channels {
		if ch == exclude {
			continue
		}
		if err := ch.Send(pkt); err != nil {
			r.log.Warn("failed to relay packet", "error", err)
		}
	}
}

// sortedAddresses returns the keys of m in ascending order, for
// deterministic export ordering.
func sortedAddresses[V any](m map[codec.Address]V) []codec.Address {
	addrs := make([]codec.Address, 0, len(m))
	for a := range m {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}
