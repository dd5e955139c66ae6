package router

import (
	"fmt"
	"math/rand/v2"

	"github.com/alnmesh/alnrouter/codec"
)

// Send dispatches pkt: to a registered local handler if it is addressed to
// this router, to service selection if addressed by serviceID only, or
// forwarded to the correct next-hop channel. Returns nil on success, one
// of the sentinel errors in errors.go describing why dispatch failed, or,
// when forwarding, the outbound channel's own Send error unwrapped.
//
// Corresponds to Router.send.
func (r *Router) Send(pkt *codec.Packet) error {
	var handler HandlerFunc

	err := func() error {
		r.mu.Lock()
		defer r.mu.Unlock()

		if !pkt.SrcAddr.IsSet() {
			pkt.SrcAddr = r.cfg.SelfAddr
		}

		if !pkt.DestAddr.IsSet() && pkt.ServiceID.IsSet() {
			dest, found := r.selectServiceLocked(pkt.ServiceID)
			if !found {
				r.enqueueForService(pkt.ServiceID, pkt)
				return fmt.Errorf("%w: service %d", ErrServiceUnavailable, pkt.ServiceID)
			}
			pkt.DestAddr = dest
		}

		if pkt.DestAddr == r.cfg.SelfAddr {
			if h, ok := r.serviceMap[pkt.ServiceID]; ok {
				handler = h
				return nil
			}
			if h, ok := r.contextMap[pkt.ContextID]; ok {
				handler = h
				return nil
			}
			return fmt.Errorf("%w: service %d, context %d", ErrHandlerMissing, pkt.ServiceID, pkt.ContextID)
		}

		if !pkt.NextAddr.IsSet() || pkt.NextAddr == r.cfg.SelfAddr {
			route, ok := r.remoteNodeMap[pkt.DestAddr]
			if !ok {
				return fmt.Errorf("%w: dest %d", ErrNoRoute, pkt.DestAddr)
			}
			pkt.SrcAddr = r.cfg.SelfAddr
			pkt.NextAddr = route.NextHop
			if err := route.Channel.Send(pkt); err != nil {
				return err
			}
			return nil
		}

		return fmt.Errorf("%w: dest %d, next %d", ErrUnroutable, pkt.DestAddr, pkt.NextAddr)
	}()

	if err != nil {
		r.Counters.DispatchFailures.Add(1)
		return err
	}

	r.Counters.PacketsDispatched.Add(1)

	// Local handler invocation happens after the lock is released, so a
	// handler calling back into the router (e.g. to Send a reply) cannot
	// deadlock.
	if handler != nil {
		handler(pkt)
	}
	return nil
}

// enqueueForService buffers pkt on serviceQueue[serviceID] awaiting a
// reachable provider. Must be called with r.mu held.
func (r *Router) enqueueForService(serviceID codec.Address, pkt *codec.Packet) {
	r.serviceQueue[serviceID] = append(r.serviceQueue[serviceID], pkt)
	r.Counters.PacketsQueued.Add(1)
}

// selectServiceLocked returns the address that should handle serviceID: a
// local handler always wins if registered, otherwise the remote provider
// reporting the lowest load. Must be called with r.mu held. Corresponds to
// Router.select_service.
func (r *Router) selectServiceLocked(serviceID codec.Address) (codec.Address, bool) {
	if _, ok := r.serviceMap[serviceID]; ok {
		return r.cfg.SelfAddr, true
	}

	loads, ok := r.serviceLoadMap[serviceID]
	if !ok || len(loads) == 0 {
		return 0, false
	}

	var best codec.Address
	var bestLoad uint16
	first := true
	for addr, load := range loads {
		if first || load < bestLoad {
			best, bestLoad, first = addr, load, false
		}
	}
	return best, true
}

// RegisterContextHandler allocates a fresh random contextID in [2, 65535]
// not already present in contextMap, binds handler to it, and returns the
// id. Corresponds to Router.register_context_handler.
func (r *Router) RegisterContextHandler(handler HandlerFunc) codec.Address {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id codec.Address
	for {
		id = codec.Address(rand.IntN(65534) + 2) // [2, 65535]
		if _, exists := r.contextMap[id]; !exists {
			break
		}
	}
	r.contextMap[id] = handler
	return id
}

// ReleaseContext removes the binding for contextID, if any. Idempotent.
// Corresponds to Router.release_context.
func (r *Router) ReleaseContext(contextID codec.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.contextMap, contextID)
}
