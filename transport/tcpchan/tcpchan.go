// Package tcpchan provides a Channel implementation over a net.Conn
// stream, framing each Packet with a 4-byte big-endian length prefix. A
// read-loop goroutine assembles frames off the socket and dispatches
// decoded packets to a registered handler.
package tcpchan

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/alnmesh/alnrouter/codec"
	"github.com/alnmesh/alnrouter/router"
)

// Compile-time interface check.
var _ router.Channel = (*Channel)(nil)

const (
	// lengthPrefixSize is the width of the frame's length prefix.
	lengthPrefixSize = 4
	// maxFrameSize guards against a corrupt or hostile length prefix
	// causing an unbounded allocation.
	maxFrameSize = 1 << 20
)

var (
	// ErrNotConnected is returned by Send once the connection has closed.
	ErrNotConnected = errors.New("tcpchan: not connected")
	// ErrFrameTooLarge is returned when a peer sends a length prefix
	// larger than maxFrameSize.
	ErrFrameTooLarge = errors.New("tcpchan: frame too large")
)

// Config configures a Channel.
type Config struct {
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Channel wraps a net.Conn as a router.Channel.
type Channel struct {
	cfg  Config
	log  *slog.Logger
	conn net.Conn

	mu      sync.Mutex
	closed  bool
	onClose func(router.Channel)
}

// New wraps conn as a Channel. The read loop starts only when Listen is
// called.
func New(conn net.Conn, cfg Config) *Channel {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Channel{
		cfg:  cfg,
		log:  cfg.Logger.WithGroup("tcpchan"),
		conn: conn,
	}
}

// Send writes pkt to the connection, framed with a 4-byte length prefix.
func (c *Channel) Send(pkt *codec.Packet) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.mu.Unlock()

	payload := pkt.WriteTo()
	frame := make([]byte, lengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(frame[:lengthPrefixSize], uint32(len(payload)))
	copy(frame[lengthPrefixSize:], payload)

	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("tcpchan: write: %w", err)
	}
	return nil
}

// Listen starts the read loop on a goroutine scheduled via sel, dispatching
// each decoded packet to onPacket.
func (c *Channel) Listen(sel router.Selector, onPacket router.PacketHandler) {
	sel.Spawn(func() { c.readLoop(onPacket) })
}

func (c *Channel) readLoop(onPacket router.PacketHandler) {
	prefix := make([]byte, lengthPrefixSize)
	for {
		if _, err := io.ReadFull(c.conn, prefix); err != nil {
			c.handleDisconnect(err)
			return
		}
		frameLen := binary.BigEndian.Uint32(prefix)
		if frameLen > maxFrameSize {
			c.log.Error("oversized frame, closing connection", "size", frameLen)
			c.handleDisconnect(ErrFrameTooLarge)
			return
		}

		payload := make([]byte, frameLen)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			c.handleDisconnect(err)
			return
		}

		var pkt codec.Packet
		if err := pkt.ReadFrom(payload); err != nil {
			c.log.Debug("failed to parse packet", "error", err)
			continue
		}
		onPacket(c, &pkt)
	}
}

func (c *Channel) handleDisconnect(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	onClose := c.onClose
	c.mu.Unlock()

	if !errors.Is(err, io.EOF) {
		c.log.Debug("connection read error", "error", err)
	}
	if onClose != nil {
		onClose(c)
	}
}

// Close closes the underlying connection.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

// SetOnClose installs the callback fired when the connection is observed
// to have disconnected (a read error, including EOF).
func (c *Channel) SetOnClose(fn func(router.Channel)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}
