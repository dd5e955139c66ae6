// Package netproto builds and parses the three netstate control packets
// the ALN router gossip protocol runs on: NET_QUERY, NET_ROUTE, and
// NET_SERVICE. All three share the same wire layout: big-endian uint16
// fields, no framing of their own (framing is a Channel concern).
//
// This is the direct Go translation of the original implementation's
// makeNetQueryPacket / makeNetworkRouteSharePacket /
// parseNetworkRouteSharePacket / makeNetworkServiceSharePacket /
// parseNetworkServiceSharePacket.
package netproto

import (
	"errors"
	"fmt"

	"github.com/alnmesh/alnrouter/codec"
	"github.com/alnmesh/alnrouter/wire"
)

// Wire sizes for the control payloads.
const (
	RoutePayloadSize   = 2 * wire.Uint16Size // destAddr, cost
	ServicePayloadSize = 3 * wire.Uint16Size // hostAddr, serviceID, load
)

var (
	// ErrWrongNetState is returned when parsing a packet whose NetState
	// does not match the expected control kind.
	ErrWrongNetState = errors.New("netproto: unexpected net state")
	// ErrBadPayloadLength is returned when a control payload's length does
	// not match the fixed layout for its kind.
	ErrBadPayloadLength = errors.New("netproto: bad payload length")
)

// MakeQueryPacket builds a NET_QUERY packet: an empty-payload control
// packet sent to a newly connected neighbor to solicit their full routing
// and service tables.
func MakeQueryPacket() *codec.Packet {
	return &codec.Packet{
		ControlFlags: codec.CFNetState,
		NetState:     codec.NetStateQuery,
	}
}

// MakeRouteSharePacket builds a NET_ROUTE advertisement: srcAddr carries
// the advertising node, and the payload carries destAddr and cost.
func MakeRouteSharePacket(srcAddr, destAddr codec.Address, cost uint16) *codec.Packet {
	data := make([]byte, 0, RoutePayloadSize)
	data = append(data, wire.WriteUint16(uint16(destAddr))...)
	data = append(data, wire.WriteUint16(cost)...)
	return &codec.Packet{
		ControlFlags: codec.CFNetState,
		NetState:     codec.NetStateRoute,
		SrcAddr:      srcAddr,
		Data:         data,
	}
}

// ParseRouteSharePacket parses a NET_ROUTE packet, returning the advertised
// destination, the advertising neighbor (the packet's SrcAddr), and the
// advertised cost.
func ParseRouteSharePacket(p *codec.Packet) (dest codec.Address, nextHop codec.Address, cost uint16, err error) {
	if p.NetState != codec.NetStateRoute {
		return 0, 0, 0, fmt.Errorf("%w: got %s, want %s", ErrWrongNetState, p.NetState, codec.NetStateRoute)
	}
	if len(p.Data) != RoutePayloadSize {
		return 0, 0, 0, fmt.Errorf("%w: got %d bytes, want %d", ErrBadPayloadLength, len(p.Data), RoutePayloadSize)
	}
	dest = codec.Address(wire.ReadUint16(p.Data[0:2]))
	cost = wire.ReadUint16(p.Data[2:4])
	return dest, p.SrcAddr, cost, nil
}

// MakeServiceSharePacket builds a NET_SERVICE advertisement for a single
// provider/service/load triple.
func MakeServiceSharePacket(hostAddr codec.Address, serviceID codec.Address, load uint16) *codec.Packet {
	data := make([]byte, 0, ServicePayloadSize)
	data = append(data, wire.WriteUint16(uint16(hostAddr))...)
	data = append(data, wire.WriteUint16(uint16(serviceID))...)
	data = append(data, wire.WriteUint16(load)...)
	return &codec.Packet{
		ControlFlags: codec.CFNetState,
		NetState:     codec.NetStateService,
		Data:         data,
	}
}

// ParseServiceSharePacket parses a NET_SERVICE packet, returning the
// provider address, the service id, and the reported load.
func ParseServiceSharePacket(p *codec.Packet) (providerAddr codec.Address, serviceID codec.Address, load uint16, err error) {
	if p.NetState != codec.NetStateService {
		return 0, 0, 0, fmt.Errorf("%w: got %s, want %s", ErrWrongNetState, p.NetState, codec.NetStateService)
	}
	if len(p.Data) != ServicePayloadSize {
		return 0, 0, 0, fmt.Errorf("%w: got %d bytes, want %d", ErrBadPayloadLength, len(p.Data), ServicePayloadSize)
	}
	providerAddr = codec.Address(wire.ReadUint16(p.Data[0:2]))
	serviceID = codec.Address(wire.ReadUint16(p.Data[2:4]))
	load = wire.ReadUint16(p.Data[4:6])
	return providerAddr, serviceID, load, nil
}
