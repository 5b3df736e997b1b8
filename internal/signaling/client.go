package signaling

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pairwave/signaling-relay/internal/metrics"
	"github.com/pairwave/signaling-relay/internal/ratelimit"
)

const (
	// Outbound queue depth per connection. A peer that cannot drain this many
	// pending events loses the overflow rather than stalling the hub.
	sendQueueDepth = 32

	writeTimeout = 10 * time.Second
)

// client owns one WebSocket and pumps frames between it and the hub. The
// read pump is the only reader and the write pump the only writer, as the
// websocket package requires; close frames therefore go through the write
// pump too.
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	log  *slog.Logger

	idleTimeout  time.Duration
	pingInterval time.Duration
	maxMsgBytes  int64
	limiter      *ratelimit.TokenBucket

	send chan Envelope

	mu        sync.Mutex
	closeCode int
	closeText string
	closeOnce sync.Once
	done      chan struct{}
}

func newClient(id string, hub *Hub, conn *websocket.Conn, log *slog.Logger, cfg ServerConfig) *client {
	var limiter *ratelimit.TokenBucket
	if cfg.MaxMessagesPerSecond > 0 {
		limiter = ratelimit.NewTokenBucket(hub.clock, cfg.MaxMessagesPerSecond, cfg.MaxMessagesPerSecond)
	}
	return &client{
		id:           id,
		hub:          hub,
		conn:         conn,
		log:          log.With("socket_id", id),
		idleTimeout:  cfg.WSIdleTimeout,
		pingInterval: cfg.WSPingInterval,
		maxMsgBytes:  cfg.MaxMessageBytes,
		limiter:      limiter,
		send:         make(chan Envelope, sendQueueDepth),
		closeCode:    websocket.CloseNormalClosure,
		done:         make(chan struct{}),
	}
}

// Enqueue implements Sender. It never blocks; a full queue drops the event.
func (c *client) Enqueue(env Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

// Close implements Sender. It signals the write pump to flush queued events,
// send a close frame, and tear down the socket. Safe to call from any
// goroutine, repeatedly.
func (c *client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// closeWith records the close frame the write pump should send, then closes.
func (c *client) closeWith(code int, reason string) {
	c.mu.Lock()
	c.closeCode = code
	c.closeText = reason
	c.mu.Unlock()
	c.Close()
}

func (c *client) closeFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.FormatCloseMessage(c.closeCode, c.closeText)
}

func (c *client) run() {
	go c.writePump()
	c.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.Close()
		c.hub.Disconnect(c.id, ReasonTransportClosed)
	}()

	if c.maxMsgBytes > 0 {
		c.conn.SetReadLimit(c.maxMsgBytes)
	}
	c.resetReadDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.resetReadDeadline()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("read failed", "err", err)
			}
			return
		}
		c.resetReadDeadline()

		if c.limiter != nil && !c.limiter.Allow(1) {
			c.hub.Metrics().Inc(metrics.DropReasonRateLimited)
			c.log.Warn("message rate limit exceeded, closing")
			c.closeWith(websocket.ClosePolicyViolation, "message rate limit exceeded")
			return
		}

		c.hub.Handle(c.id, data)
	}
}

// writePump is the sole writer on the socket. It multiplexes queued signaling
// events with keepalive pings, and on shutdown drains the queue before the
// close frame so a last notification still reaches the client.
func (c *client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env := <-c.send:
			if !c.writeEnvelope(env) {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			for {
				select {
				case env := <-c.send:
					if !c.writeEnvelope(env) {
						return
					}
				default:
					c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					c.conn.WriteMessage(websocket.CloseMessage, c.closeFrame())
					return
				}
			}
		}
	}
}

func (c *client) writeEnvelope(env Envelope) bool {
	data, err := json.Marshal(env)
	if err != nil {
		c.log.Error("marshal outbound", "event", env.Event, "err", err)
		return true
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data) == nil
}

func (c *client) resetReadDeadline() {
	if c.idleTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
	}
}
