// Package mqttchan provides a Channel implementation over an MQTT broker,
// for nodes that reach each other only through a shared broker rather than
// a direct link.
//
// Packets are base64-encoded and published to "{TopicPrefix}/{MeshID}".
package mqttchan

import (
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/alnmesh/alnrouter/codec"
	"github.com/alnmesh/alnrouter/router"
	paho "github.com/eclipse/paho.mqtt.golang"
)

// Compile-time interface check.
var _ router.Channel = (*Channel)(nil)

// DefaultTopicPrefix is the default MQTT topic prefix for ALN packets.
const DefaultTopicPrefix = "alnmesh"

var (
	// ErrBrokerRequired is returned by Open if Config.Broker is empty.
	ErrBrokerRequired = errors.New("mqttchan: broker URL is required")
	// ErrMeshIDRequired is returned by Open if Config.MeshID is empty.
	ErrMeshIDRequired = errors.New("mqttchan: mesh ID is required")
	// ErrConnectTimeout is returned by Open if the broker never acknowledges
	// the connection within the configured timeout.
	ErrConnectTimeout = errors.New("mqttchan: connection timeout")
	// ErrNotConnected is returned by Send when the broker connection has
	// been lost or closed.
	ErrNotConnected = errors.New("mqttchan: not connected")
)

// Config holds the configuration for an MQTT Channel.
type Config struct {
	// Broker is the MQTT broker URL (e.g. "tcp://broker.example.com:1883").
	Broker string
	// Username for MQTT authentication. Leave empty if not required.
	Username string
	// Password for MQTT authentication. Leave empty if not required.
	Password string
	// UseTLS enables TLS for the MQTT connection.
	UseTLS bool
	// ClientID is the MQTT client identifier. If empty, a random one is
	// generated.
	ClientID string
	// TopicPrefix is the MQTT topic prefix (default: "alnmesh").
	TopicPrefix string
	// MeshID identifies the shared mesh segment reachable through this
	// broker. The channel subscribes to and publishes on
	// "{TopicPrefix}/{MeshID}".
	MeshID string
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Channel implements router.Channel over an MQTT broker connection. All
// nodes sharing a MeshID and broker see every packet published on the
// topic, so this channel behaves like a broadcast link from the router's
// perspective.
type Channel struct {
	cfg    Config
	client paho.Client
	log    *slog.Logger

	mu        sync.Mutex
	connected bool
	closed    bool
	onClose   func(router.Channel)
}

// Open connects to the configured MQTT broker. It does not subscribe: the
// returned Channel begins receiving packets only once Listen is called,
// which subscribes to the mesh topic with the packet handler.
func Open(cfg Config) (*Channel, error) {
	if cfg.Broker == "" {
		return nil, ErrBrokerRequired
	}
	if cfg.MeshID == "" {
		return nil, ErrMeshIDRequired
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Channel{
		cfg: cfg,
		log: cfg.Logger.WithGroup("mqttchan"),
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "alnrouter-" + randomString(16)
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(2 * time.Minute).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnected).
		SetConnectionLostHandler(c.onConnectionLost)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	c.client = paho.NewClient(opts)

	token := c.client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return nil, ErrConnectTimeout
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("mqttchan: connecting to broker: %w", token.Error())
	}

	return c, nil
}

func (c *Channel) topic() string {
	return c.cfg.TopicPrefix + "/" + c.cfg.MeshID
}

// Send publishes pkt, base64-encoded, to the mesh topic.
func (c *Channel) Send(pkt *codec.Packet) error {
	c.mu.Lock()
	connected := c.connected && !c.closed
	c.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	payload := base64.StdEncoding.EncodeToString(pkt.WriteTo())
	token := c.client.Publish(c.topic(), 0, false, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return errors.New("mqttchan: timeout publishing")
	}
	return token.Error()
}

// Listen subscribes to the mesh topic, dispatching each decoded packet
// (scheduled via sel, since paho invokes message callbacks on its own
// goroutine already) to onPacket.
func (c *Channel) Listen(sel router.Selector, onPacket router.PacketHandler) {
	c.client.Subscribe(c.topic(), 0, func(_ paho.Client, msg paho.Message) {
		sel.Spawn(func() { c.handleMessage(msg, onPacket) })
	})
}

func (c *Channel) handleMessage(msg paho.Message, onPacket router.PacketHandler) {
	raw, err := base64.StdEncoding.DecodeString(string(msg.Payload()))
	if err != nil {
		c.log.Debug("failed to decode base64 payload", "error", err)
		return
	}

	var pkt codec.Packet
	if err := pkt.ReadFrom(raw); err != nil {
		c.log.Debug("failed to parse packet", "error", err)
		return
	}
	onPacket(c, &pkt)
}

func (c *Channel) onConnected(_ paho.Client) {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	c.log.Info("connected to MQTT broker", "broker", c.cfg.Broker, "mesh_id", c.cfg.MeshID)
}

func (c *Channel) onConnectionLost(_ paho.Client, err error) {
	c.mu.Lock()
	alreadyClosed := c.closed
	c.connected = false
	c.closed = true
	onClose := c.onClose
	c.mu.Unlock()

	c.log.Error("MQTT connection lost", "error", err)
	if !alreadyClosed && onClose != nil {
		onClose(c)
	}
}

// Close disconnects from the broker.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.mu.Unlock()

	c.client.Disconnect(1000)
	return nil
}

// SetOnClose installs the callback fired when the broker connection is
// lost. Close does not fire it.
func (c *Channel) SetOnClose(fn func(router.Channel)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

func randomString(n int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}
