// Package serialchan provides a Channel implementation over a real serial
// port, for nodes connected by a physical or virtual serial link. Frames
// are length-prefixed (see transport/tcpchan), carrying this module's
// codec.Packet.
package serialchan

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/alnmesh/alnrouter/codec"
	"github.com/alnmesh/alnrouter/router"
	"go.bug.st/serial"
)

// Compile-time interface check.
var _ router.Channel = (*Channel)(nil)

const (
	// DefaultBaudRate is the default baud rate for ALN serial links.
	DefaultBaudRate = 115200

	lengthPrefixSize = 4
	maxFrameSize     = 1 << 20
	readBufSize      = 1024
)

var (
	// ErrPortRequired is returned by Open if Config.Port is empty.
	ErrPortRequired = errors.New("serialchan: port is required")
	// ErrNotConnected is returned by Send once the port has closed.
	ErrNotConnected = errors.New("serialchan: not connected")
)

// Config holds the configuration for a serial Channel.
type Config struct {
	// Port is the serial port path (e.g. "/dev/ttyUSB0" or "COM3").
	Port string
	// BaudRate is the serial baud rate. Defaults to 115200.
	BaudRate int
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Channel wraps a serial port as a router.Channel.
type Channel struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	port    serial.Port
	closed  bool
	onClose func(router.Channel)
}

// Open opens the configured serial port and returns a ready-to-use
// Channel. The caller should register it with a Router (which will call
// Listen) to begin reading.
func Open(cfg Config) (*Channel, error) {
	if cfg.Port == "" {
		return nil, ErrPortRequired
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("serialchan: opening port: %w", err)
	}

	return &Channel{
		cfg:  cfg,
		log:  cfg.Logger.WithGroup("serialchan"),
		port: port,
	}, nil
}

// Send writes pkt to the serial port, framed with a 4-byte length prefix.
func (c *Channel) Send(pkt *codec.Packet) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNotConnected
	}
	port := c.port
	c.mu.Unlock()

	payload := pkt.WriteTo()
	frame := make([]byte, lengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(frame[:lengthPrefixSize], uint32(len(payload)))
	copy(frame[lengthPrefixSize:], payload)

	if _, err := port.Write(frame); err != nil {
		return fmt.Errorf("serialchan: write: %w", err)
	}
	return nil
}

// Listen starts the read loop on a goroutine scheduled via sel.
func (c *Channel) Listen(sel router.Selector, onPacket router.PacketHandler) {
	sel.Spawn(func() { c.readLoop(onPacket) })
}

func (c *Channel) readLoop(onPacket router.PacketHandler) {
	buf := make([]byte, readBufSize)
	var assembly []byte

	for {
		c.mu.Lock()
		port := c.port
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}

		n, err := port.Read(buf)
		if err != nil {
			c.handleDisconnect(err)
			return
		}
		if n == 0 {
			continue
		}

		assembly = append(assembly, buf[:n]...)
		assembly = c.processFrames(assembly, onPacket)
	}
}

// processFrames extracts complete length-prefixed frames from data and
// dispatches decoded packets. Returns any remaining bytes that don't yet
// form a complete frame.
func (c *Channel) processFrames(data []byte, onPacket router.PacketHandler) []byte {
	for len(data) >= lengthPrefixSize {
		frameLen := int(binary.BigEndian.Uint32(data[:lengthPrefixSize]))
		if frameLen > maxFrameSize {
			c.log.Error("oversized frame, dropping buffered data", "size", frameLen)
			return nil
		}
		if len(data) < lengthPrefixSize+frameLen {
			return data // wait for more data
		}

		payload := data[lengthPrefixSize : lengthPrefixSize+frameLen]
		data = data[lengthPrefixSize+frameLen:]

		var pkt codec.Packet
		if err := pkt.ReadFrom(payload); err != nil {
			c.log.Debug("failed to parse packet", "error", err)
			continue
		}
		onPacket(c, &pkt)
	}
	return data
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
		c.log.Debug("serial read error", "error", err)
	}
	if onClose != nil {
		onClose(c)
	}
}

// Close closes the serial port.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	port := c.port
	c.mu.Unlock()
	return port.Close()
}

// SetOnClose installs the callback fired when the port is observed to have
// disconnected.
func (c *Channel) SetOnClose(fn func(router.Channel)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}
