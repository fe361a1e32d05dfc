package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/otobid/otobid/go/internal/auction/events"
	"github.com/otobid/otobid/go/internal/auction/room"
)

// Config holds configuration for the WebSocket transport
type Config struct {
	// URL is the auction server's WebSocket endpoint
	URL string

	// Token is an optional bearer token; absent means a read-only guest
	// connection, same as the server's own policy.
	Token string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64

	// ReconnectMinWait and ReconnectMaxWait bound the backoff between dial
	// attempts. Reconnection itself is unbounded.
	ReconnectMinWait time.Duration
	ReconnectMaxWait time.Duration

	EventBuffer int
}

// DefaultConfig returns default WebSocket transport configuration
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		MaxMessageSize:   32 * 1024,
		ReconnectMinWait: time.Second,
		ReconnectMaxWait: 30 * time.Second,
		EventBuffer:      256,
	}
}

// ErrNotConnected is returned for outbound commands while the socket is down
var ErrNotConnected = errors.New("websocket transport not connected")

// Client is a room.Transport over a single WebSocket connection. It dials,
// reads inbound event frames into a typed channel, and redials forever with
// capped backoff when the connection drops. Every successful dial is reported
// on the conn state channel so sessions can re-run their join handshake.
type Client struct {
	cfg Config

	eventsCh chan events.Envelope
	statesCh chan room.ConnState

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewClient creates a WebSocket transport client
func NewClient(cfg Config) *Client {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultConfig(cfg.URL).EventBuffer
	}
	return &Client{
		cfg:      cfg,
		eventsCh: make(chan events.Envelope, cfg.EventBuffer),
		statesCh: make(chan room.ConnState, 8),
	}
}

// Start runs the dial/read/redial loop until the context is cancelled
func (c *Client) Start(ctx context.Context) {
	wait := c.cfg.ReconnectMinWait

	for {
		if ctx.Err() != nil || c.isClosed() {
			return
		}

		conn, err := c.dial(ctx)
		if err != nil {
			log.Warn().
				Err(err).
				Str("url", c.cfg.URL).
				Dur("retry_in", wait).
				Msg("websocket dial failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			wait *= 2
			if wait > c.cfg.ReconnectMaxWait {
				wait = c.cfg.ReconnectMaxWait
			}
			continue
		}

		wait = c.cfg.ReconnectMinWait
		c.setConn(conn)
		c.pushState(room.StateConnected)
		log.Info().Str("url", c.cfg.URL).Msg("websocket connected")

		pingCtx, cancelPing := context.WithCancel(ctx)
		go c.pingLoop(pingCtx, conn)

		c.readLoop(ctx, conn)

		cancelPing()
		c.setConn(nil)
		conn.Close()
		c.pushState(room.StateDisconnected)
		log.Warn().Str("url", c.cfg.URL).Msg("websocket disconnected")
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}

	var header http.Header
	if c.cfg.Token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + c.cfg.Token}}
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	return conn, err
}

// readLoop consumes inbound frames until the connection fails
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(c.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		return nil
	})

	for {
		var env events.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("unexpected websocket close")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		select {
		case c.eventsCh <- env:
		case <-ctx.Done():
			return
		default:
			log.Warn().
				Str("event", string(env.Event)).
				Msg("event buffer full, dropping inbound event")
		}
	}
}

// pingLoop keeps the connection alive while it is up
func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.writePing(conn); err != nil {
				log.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

// writePing sends a ping under the write mutex. The connection allows only
// one writer at a time, so pings and outbound commands share the lock.
func (c *Client) writePing(conn *websocket.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return ErrNotConnected
	}
	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.PingMessage, nil)
}

// Join implements room.Transport
func (c *Client) Join(ctx context.Context, auctionID string) error {
	cmd, err := events.NewJoinCommand(auctionID)
	if err != nil {
		return err
	}
	return c.send(cmd)
}

// Leave implements room.Transport
func (c *Client) Leave(ctx context.Context, auctionID string) error {
	cmd, err := events.NewLeaveCommand(auctionID)
	if err != nil {
		return err
	}
	return c.send(cmd)
}

// PlaceBid implements room.Transport
func (c *Client) PlaceBid(ctx context.Context, auctionID string, amount int64) error {
	cmd, err := events.NewPlaceBidCommand(auctionID, amount)
	if err != nil {
		return err
	}
	return c.send(cmd)
}

// Events implements room.Transport
func (c *Client) Events() <-chan events.Envelope { return c.eventsCh }

// ConnStates implements room.Transport
func (c *Client) ConnStates() <-chan room.ConnState { return c.statesCh }

// Close implements room.Transport
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *Client) send(env events.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteJSON(env)
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *Client) pushState(state room.ConnState) {
	select {
	case c.statesCh <- state:
	default:
		log.Warn().Str("state", state.String()).Msg("conn state buffer full, dropping state change")
	}
}
