package router

import "errors"

// Sentinel errors returned by Send. Parse and channel failures are handled
// locally and never propagated; dispatch failures are surfaced to the
// caller as one of these wrapped with the offending address/service/
// context id via fmt.Errorf("%w: ...", ...). The one exception is a failed
// write on the forwarding channel, whose error Send returns as is.
var (
	// ErrNoRoute is returned when no RemoteNode entry exists for a
	// packet's destination address.
	ErrNoRoute = errors.New("router: no route")

	// ErrServiceUnavailable is returned when a packet addressed by
	// serviceID has no known local or remote provider. The packet is
	// queued rather than dropped; the caller is informed with this error
	// as a non-fatal, soft-failure indication.
	ErrServiceUnavailable = errors.New("router: service unavailable, packet queued")

	// ErrHandlerMissing is returned when a packet is addressed to this
	// router but neither its serviceID nor its contextID matches a
	// registered local handler.
	ErrHandlerMissing = errors.New("router: handler not registered")

	// ErrUnroutable is returned when a packet arrives with a nextAddr
	// that names neither this router nor "unset" — it should never have
	// reached this node.
	ErrUnroutable = errors.New("router: packet unroutable")
)
