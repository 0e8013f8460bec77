package websocket

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"licensegate/internal/config"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	defaultPongWait = 60 * time.Second

	// Clients only send heartbeats
	maxMessageSize = 512
)

// Connection is the part of *websocket.Conn the pumps use
type Connection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
}

// Client is a middleman between the websocket connection and the hub
type Client struct {
	hub         *Hub
	conn        Connection
	send        chan []byte
	id          string
	connectedAt time.Time
	pongWait    time.Duration
	pingPeriod  time.Duration
	logger      *slog.Logger
}

// NewClient wraps conn; the client is not registered until Serve is called
func NewClient(hub *Hub, conn Connection) *Client {
	id := uuid.New().String()
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		id:          id,
		connectedAt: time.Now(),
		pongWait:    defaultPongWait,
		pingPeriod:  (defaultPongWait * 9) / 10,
		logger:      hub.logger.With(slog.String("client_id", id)),
	}
}

// ID returns the client id sent in the connect message
func (c *Client) ID() string {
	return c.id
}

// Serve registers the client and starts its pumps. A stopped hub closes the
// connection instead.
func (c *Client) Serve() {
	select {
	case c.hub.register <- c:
	case <-c.hub.Done():
		c.conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// readPump discards client messages and unregisters on close
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.Done():
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("unexpected websocket close", slog.String("error", err.Error()))
			}
			return
		}
	}
}

// writePump writes hub messages and pings until the send channel closes
func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("failed to write message", slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandlerConfig tunes upgraded connections. Zero values take defaults.
type HandlerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	PingPeriod      time.Duration
	PongWait        time.Duration
	// AllowedOrigins are accepted in addition to the request's own host
	AllowedOrigins []string
}

// HandlerConfigFrom builds a HandlerConfig from the websocket section
func HandlerConfigFrom(cfg config.WebSocketConfig, allowedOrigins []string) HandlerConfig {
	return HandlerConfig{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		PingPeriod:      cfg.PingPeriod,
		PongWait:        cfg.PongWait,
		AllowedOrigins:  allowedOrigins,
	}
}

func (c HandlerConfig) withDefaults() HandlerConfig {
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 1024
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = 1024
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
	// pings must arrive before the peer's read deadline
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = (c.PongWait * 9) / 10
	}
	return c
}

// Handler upgrades requests to websocket connections served by hub. The
// desktop UI is same-origin; cfg.AllowedOrigins adds others.
func Handler(hub *Hub, cfg HandlerConfig) http.HandlerFunc {
	cfg = cfg.withDefaults()
	upgrader := websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host {
				return true
			}
			for _, o := range cfg.AllowedOrigins {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
			return
		}
		client := NewClient(hub, conn)
		client.pongWait = cfg.PongWait
		client.pingPeriod = cfg.PingPeriod
		client.Serve()
	}
}
