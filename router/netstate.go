package router

import (
	"sort"

	"github.com/alnmesh/alnrouter/codec"
	"github.com/alnmesh/alnrouter/netproto"
)

// handleNetState dispatches a control-plane packet to the appropriate
// ingest routine. Must be called with r.mu held. Corresponds to
// Router.handle_netstate.
func (r *Router) handleNetState(ch Channel, pkt *codec.Packet) {
	switch pkt.NetState {
	case codec.NetStateRoute:
		r.handleRouteIngest(ch, pkt)
	case codec.NetStateService:
		r.handleServiceIngest(ch, pkt)
	case codec.NetStateQuery:
		r.handleQueryIngest(ch, pkt)
	default:
		r.log.Debug("dropping netstate packet with unrecognized state", "state", pkt.NetState)
	}
}

// handleRouteIngest processes a NET_ROUTE advertisement. Must be called
// with r.mu held.
func (r *Router) handleRouteIngest(ch Channel, pkt *codec.Packet) {
	dest, nextHop, cost, err := netproto.ParseRouteSharePacket(pkt)
	if err != nil {
		r.log.Debug("failed to parse NET_ROUTE", "error", err)
		return
	}
	if dest == r.cfg.SelfAddr {
		// Never record a route to ourselves.
		return
	}
	if cost >= maxCost {
		// A saturated cost means unreachable: neither recorded nor relayed.
		return
	}

	now := r.clk.Now()
	existing, known := r.remoteNodeMap[dest]
	if !known {
		r.remoteNodeMap[dest] = &RemoteNode{
			Address:  dest,
			NextHop:  nextHop,
			Cost:     cost,
			Channel:  ch,
			LastSeen: now,
		}
		r.Counters.RoutesLearned.Add(1)
		// A newly learned route is relayed like an accepted update.
		r.broadcastExcept(netproto.MakeRouteSharePacket(r.cfg.SelfAddr, dest, incrementedCost(cost)), ch)
		return
	}

	channelMissing := !r.channelPresent(existing.Channel)
	if !(channelMissing || cost < existing.Cost || existing.Cost == 0) {
		// Higher (or equal, non-improving) cost from a neighbor whose
		// channel is still present: silently drop.
		return
	}

	existing.NextHop = nextHop
	existing.Channel = ch
	existing.Cost = cost
	existing.LastSeen = now

	relay := netproto.MakeRouteSharePacket(r.cfg.SelfAddr, dest, incrementedCost(cost))
	r.broadcastExcept(relay, ch)
	r.Counters.RoutesRelayed.Add(1)
}

// handleServiceIngest processes a NET_SERVICE advertisement. Must be
// called with r.mu held.
func (r *Router) handleServiceIngest(ch Channel, pkt *codec.Packet) {
	provider, serviceID, load, err := netproto.ParseServiceSharePacket(pkt)
	if err != nil {
		r.log.Debug("failed to parse NET_SERVICE", "error", err)
		return
	}

	if r.serviceLoadMap[serviceID] == nil {
		r.serviceLoadMap[serviceID] = make(map[codec.Address]uint16)
	}
	r.serviceLoadMap[serviceID][provider] = load
	r.Counters.ServicesAdvertised.Add(1)

	// Gossip the advertisement onward (split horizon: never echo on the
	// channel it arrived on).
	r.broadcastExcept(pkt, ch)

	// Drain any packets waiting on this service.
	queue, pending := r.serviceQueue[serviceID]
	if !pending {
		return
	}
	for _, queued := range queue {
		route, reachable := r.remoteNodeMap[provider]
		if !reachable {
			r.log.Debug("no route for advertised service", "service", serviceID, "provider", provider)
			continue
		}
		queued.DestAddr = provider
		queued.NextAddr = route.NextHop
		if err := ch.Send(queued); err != nil {
			r.log.Warn("failed to flush queued packet", "service", serviceID, "error", err)
		}
	}
	delete(r.serviceQueue, serviceID)
}

// handleQueryIngest responds to a NET_QUERY with this router's full
// routing and service tables. Must be called with r.mu held.
func (r *Router) handleQueryIngest(ch Channel, _ *codec.Packet) {
	for _, p := range r.exportRoutes() {
		if err := ch.Send(p); err != nil {
			r.log.Warn("failed to send route export", "error", err)
		}
	}
	for _, p := range r.exportServices() {
		if err := ch.Send(p); err != nil {
			r.log.Warn("failed to send service export", "error", err)
		}
	}
}

// exportRoutes produces one self-route (cost 1) followed by one route per
// remoteNodeMap entry whose LastSeen is within RouteExpiry (if configured).
// Must be called with r.mu held. Corresponds to Router.export_routes.
func (r *Router) exportRoutes() []*codec.Packet {
	routes := make([]*codec.Packet, 0, len(r.remoteNodeMap)+1)
	routes = append(routes, netproto.MakeRouteSharePacket(r.cfg.SelfAddr, r.cfg.SelfAddr, 1))

	now := r.clk.Now()
	for _, addr := range sortedAddresses(r.remoteNodeMap) {
		node := r.remoteNodeMap[addr]
		if r.cfg.RouteExpiry > 0 && now.Sub(node.LastSeen) > r.cfg.RouteExpiry {
			continue
		}
		routes = append(routes, netproto.MakeRouteSharePacket(r.cfg.SelfAddr, node.Address, incrementedCost(node.Cost)))
	}
	return routes
}

// exportServices produces one entry per locally registered service
// (load 0: measuring load is a caller hook not implemented here),
// followed by, for each remotely known service, its providers ordered
// ascending by load. Must be called with r.mu held.
// Corresponds to Router.export_services.
func (r *Router) exportServices() []*codec.Packet {
	services := make([]*codec.Packet, 0)

	for _, serviceID := range sortedAddresses(r.serviceMap) {
		services = append(services, netproto.MakeServiceSharePacket(r.cfg.SelfAddr, serviceID, 0))
	}

	for _, serviceID := range sortedAddresses(r.serviceLoadMap) {
		loads := r.serviceLoadMap[serviceID]
		type provider struct {
			addr codec.Address
			load uint16
		}
		providers := make([]provider, 0, len(loads))
		for addr, load := range loads {
			providers = append(providers, provider{addr, load})
		}
		sort.Slice(providers, func(i, j int) bool {
			if providers[i].load != providers[j].load {
				return providers[i].load < providers[j].load
			}
			return providers[i].addr < providers[j].addr
		})
		for _, p := range providers {
			services = append(services, netproto.MakeServiceSharePacket(p.addr, serviceID, p.load))
		}
	}
	return services
}
