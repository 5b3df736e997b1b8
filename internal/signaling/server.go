package signaling

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pairwave/signaling-relay/internal/metrics"
	"github.com/pairwave/signaling-relay/internal/origin"
)

// ServerConfig carries the per-connection limits the WebSocket endpoint
// enforces.
type ServerConfig struct {
	// MaxConnections caps concurrently registered connections. Zero means
	// unlimited.
	MaxConnections int

	// WSIdleTimeout closes a socket that produced no frames (including pongs)
	// for this long. This is the transport watchdog; the registry-level idle
	// reaper has its own, much longer, threshold.
	WSIdleTimeout time.Duration

	// WSPingInterval is the keepalive ping cadence. Must be shorter than
	// WSIdleTimeout or healthy idle sockets get cut.
	WSPingInterval time.Duration

	// MaxMessageBytes bounds a single inbound frame. Zero means unlimited.
	MaxMessageBytes int64

	// MaxMessagesPerSecond rate-limits inbound frames per connection. A
	// violation closes the socket. Zero disables the limiter.
	MaxMessagesPerSecond int64
}

// Server terminates WebSocket connections and binds each to the hub.
type Server struct {
	hub      *Hub
	log      *slog.Logger
	cfg      ServerConfig
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, allowedOrigins []string, cfg ServerConfig, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		hub: hub,
		log: log,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Non-browser clients send no Origin header; admit them.
				h := r.Header.Get("Origin")
				if h == "" {
					return true
				}
				return origin.IsAllowed(allowedOrigins, h, r.Host)
			},
		},
	}
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.log.Debug("websocket upgrade rejected", "remote", r.RemoteAddr, "err", err)
		return
	}

	if s.cfg.MaxConnections > 0 && s.hub.ActiveConnections() >= s.cfg.MaxConnections {
		s.hub.Metrics().Inc(metrics.DropReasonQuota)
		s.log.Warn("connection quota reached, refusing socket", "remote", r.RemoteAddr)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many connections"),
			time.Now().Add(writeTimeout))
		conn.Close()
		return
	}

	id := uuid.NewString()
	c := newClient(id, s.hub, conn, s.log, s.cfg)
	s.hub.Connect(id, c)
	c.run()
}
