package hub

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weiawesome/flow-market/internal/config"
	"github.com/weiawesome/flow-market/pkg/log"
)

// ErrSendBufferFull is returned when a private frame cannot be queued.
var ErrSendBufferFull = errors.New("send buffer full")

// Client is one browser connection. Room membership lives in the hub.
type Client struct {
	ID   string
	Hub  *Hub
	Conn *websocket.Conn
	// Send holds encoded frames waiting for WritePump. The hub closes it.
	Send chan []byte

	ctx    context.Context
	limits config.WebSocketConfig

	// guarded by Hub.mu
	rooms  map[string]struct{}
	closed bool
}

// NewClient wraps conn. Zero limits in cfg take the package defaults.
func NewClient(ctx context.Context, id string, hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	limits := fillLimits(cfg)
	return &Client{
		ID:     id,
		Hub:    hub,
		Conn:   conn,
		Send:   make(chan []byte, limits.SendBuffer),
		ctx:    log.Tag(ctx, log.FieldConnID, id),
		limits: limits,
		rooms:  make(map[string]struct{}),
	}
}

var defaultLimits = config.WebSocketConfig{
	PingInterval:   25 * time.Second,
	PongWait:       60 * time.Second,
	WriteWait:      10 * time.Second,
	MaxMessageSize: 8192,
	SendBuffer:     256,
}

func fillLimits(cfg config.WebSocketConfig) config.WebSocketConfig {
	d := defaultLimits
	if cfg.PingInterval > 0 {
		d.PingInterval = cfg.PingInterval
	}
	if cfg.PongWait > 0 {
		d.PongWait = cfg.PongWait
	}
	if cfg.WriteWait > 0 {
		d.WriteWait = cfg.WriteWait
	}
	if cfg.MaxMessageSize > 0 {
		d.MaxMessageSize = cfg.MaxMessageSize
	}
	if cfg.SendBuffer > 0 {
		d.SendBuffer = cfg.SendBuffer
	}
	return d
}

// Context is scoped to the connection and tags log lines with its id.
func (c *Client) Context() context.Context {
	return c.ctx
}

// ReadPump hands every text frame to dispatch, one at a time, until the
// peer goes away. It then unregisters the client.
func (c *Client) ReadPump(dispatch func(*Client, []byte)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.limits.MaxMessageSize)
	extend := func() error { return c.Conn.SetReadDeadline(time.Now().Add(c.limits.PongWait)) }
	extend()
	c.Conn.SetPongHandler(func(string) error { return extend() })

	for {
		kind, frame, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				l := log.Ctx(c.ctx)
				l.Debug().Err(err).Msg("connection dropped")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		dispatch(c, frame)
	}
}

// WritePump is the only writer on Conn. It flushes queued frames and pings
// on an interval; it exits when Send is closed or a write fails.
func (c *Client) WritePump() {
	ping := time.NewTicker(c.limits.PingInterval)
	defer func() {
		ping.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			if !ok {
				c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if c.write(websocket.TextMessage, frame) != nil {
				return
			}
			// Flush whatever queued up behind this frame before sleeping again.
			for n := len(c.Send); n > 0; n-- {
				if c.write(websocket.TextMessage, <-c.Send) != nil {
					return
				}
			}

		case <-ping.C:
			if c.write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (c *Client) write(kind int, data []byte) error {
	c.Conn.SetWriteDeadline(time.Now().Add(c.limits.WriteWait))
	return c.Conn.WriteMessage(kind, data)
}

// SendMessage queues message for this client alone. Messages to a client
// that already disconnected are dropped silently.
func (c *Client) SendMessage(message interface{}) error {
	frame, err := json.Marshal(message)
	if err != nil {
		return err
	}

	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	if c.closed {
		return nil
	}
	select {
	case c.Send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}
