package router

import (
	"time"

	"github.com/alnmesh/alnrouter/codec"
)

// maxCost is the saturation point for the distance-vector cost metric.
// A 16-bit cost field can only represent up to 65535; once a route's cost
// reaches this value it is treated as unreachable and never incremented
// further.
const maxCost = 65535

// RemoteNode is a forwarding entry for a single non-local destination.
type RemoteNode struct {
	Address  codec.Address
	NextHop  codec.Address
	Cost     uint16
	Channel  Channel
	LastSeen time.Time
}

// incrementedCost returns cost+1, saturating at maxCost instead of
// wrapping around a 16-bit boundary.
func incrementedCost(cost uint16) uint16 {
	if cost >= maxCost {
		return maxCost
	}
	return cost + 1
}
