package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/edoardooldani/honeysensor/pkg/logging"
)

// ClientConfig configures the mTLS WebSocket client.
type ClientConfig struct {
	URL            string
	TLSConfig      *tls.Config
	RingBufferSize int
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
}

// DefaultClientConfig returns a ClientConfig holding the default ring
// buffer size, reconnect delay and dial timeout; URL and TLSConfig are left
// unset.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RingBufferSize: DefaultRingBufferSize,
		ReconnectDelay: 5 * time.Second,
		DialTimeout:    10 * time.Second,
	}
}

// Client ships alerts to the collector over a reconnecting mTLS WebSocket
// session. Outbound packets are accepted via Send regardless
// of current connection state. They are queued to a live channel of 4096
// slots whether or not a session is up; only when that channel is full do
// they go to the ring buffer, which drops its oldest entry on overflow.
// The writer drains the ring before the live channel on each connect.
type Client struct {
	cfg     ClientConfig
	outbox  chan Packet
	ring    *ringBuffer
	session *Session
}

// NewClient builds a Client. Call Run to start the connect/reconnect
// supervisor; it blocks until ctx is cancelled.
func NewClient(cfg ClientConfig) *Client {
	if cfg.RingBufferSize <= 0 {
		cfg.RingBufferSize = DefaultRingBufferSize
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	return &Client{
		cfg:    cfg,
		outbox: make(chan Packet, 4096),
		ring:   newRingBuffer(cfg.RingBufferSize),
	}
}

// Send enqueues a packet for delivery. It never blocks: when the live
// channel is full, the packet lands in the ring buffer instead. The
// connection state does not affect where a packet goes.
func (c *Client) Send(p Packet) {
	select {
	case c.outbox <- p:
	default:
		c.ring.push(p)
		packetsBuffered.Inc()
	}
}

// Session returns the client's current session, or nil before the first
// successful handshake.
func (c *Client) Session() *Session {
	return c.session
}

// Run is the reconnect supervisor: it dials,
// handshakes, runs the writer/reader pair to completion, and after any
// failure sleeps cfg.ReconnectDelay before retrying. It returns only when
// ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	log := logging.WithContext(ctx)
	for {
		if ctx.Err() != nil {
			return
		}

		if err := c.runOnce(ctx); err != nil {
			log.Warn("transport: session ended", "error", err)
			reconnects.Inc()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	dialer := &websocket.Dialer{
		TLSClientConfig:  c.cfg.TLSConfig,
		HandshakeTimeout: c.cfg.DialTimeout,
		Subprotocols:     []string{"h2"},
	}

	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, http.Header{})
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	if resp != nil {
		defer resp.Body.Close()
	}
	defer conn.Close()

	tlsConn, ok := conn.UnderlyingConn().(*tls.Conn)
	if !ok {
		return fmt.Errorf("underlying connection is not TLS")
	}
	sessionID, err := DeriveSessionID(tlsConn)
	if err != nil {
		return fmt.Errorf("derive session id: %w", err)
	}
	c.session = NewSession(sessionID)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- c.writeLoop(runCtx, conn) }()
	go func() { errCh <- c.readLoop(runCtx, conn) }()

	select {
	case <-ctx.Done():
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		return nil
	case err := <-errCh:
		return err
	}
}

func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	for _, p := range c.ring.drain() {
		if err := c.writePacket(conn, p); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-c.outbox:
			if err := c.writePacket(conn, p); err != nil {
				return err
			}
		}
	}
}

func (c *Client) writePacket(conn *websocket.Conn, p Packet) error {
	p.Header.ID = c.session.NextID()
	data, err := Encode(p)
	if err != nil {
		return fmt.Errorf("encode packet: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return err
	}
	packetsSent.Inc()
	return nil
}

// readLoop drains inbound control frames. gorilla/websocket answers Pings
// with Pongs automatically via its default ping handler; this loop just needs to
// keep calling ReadMessage so control frames get dispatched, and to
// surface a Close as an error so the supervisor reconnects.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, _, err := conn.ReadMessage(); err != nil {
			return fmt.Errorf("read: %w", err)
		}
	}
}
