package ws

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/oakline/atrium/internal/collab"
)

const (
	DefaultSendBuffer      = 64
	DefaultMaxMessageBytes = 64 * 1024
)

// Client is one websocket connection bound to a participant. It satisfies
// collab.Conn; sends never block the caller, a full buffer drops the event
// instead.
type Client struct {
	id     string
	conn   *connWrapper
	logger *zap.SugaredLogger

	mu     sync.Mutex
	events chan *collab.Event
	closed bool
}

type ClientOptions struct {
	SendBuffer      int
	MaxMessageBytes int64
}

func NewClient(conn *websocket.Conn, id string, opts ClientOptions, logger *zap.SugaredLogger) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = DefaultMaxMessageBytes
	}
	conn.SetReadLimit(opts.MaxMessageBytes)

	return &Client{
		id:     id,
		conn:   newConnWrapper(conn),
		events: make(chan *collab.Event, opts.SendBuffer),
		logger: logger.Named("ws").With("connectionId", id),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Send enqueues the event for the write pump. It reports false when the
// buffer is full or the connection is gone, leaving disconnect handling to
// the read pump.
func (c *Client) Send(ev *collab.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	c.mu.Unlock()
}

// ReadPump reads envelopes sequentially, so messages from one connection are
// applied in arrival order. It owns connection teardown.
func (c *Client) ReadPump(ctx context.Context, coordinator *collab.Coordinator) {
	defer func() {
		coordinator.HandleDisconnect(ctx, c)
		c.shutdown()
		_ = c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warnw("read error", "error", err)
			}
			return
		}

		coordinator.HandleMessage(ctx, c, raw)
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for ev := range c.events {
		if err := c.conn.WriteJSON(ev); err != nil {
			c.logger.Warnw("write error", "error", err)
			return
		}
	}
}
