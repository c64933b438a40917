package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout    = 10 * time.Second
	idleTimeout     = 60 * time.Second
	keepalive       = idleTimeout * 9 / 10
	maxFrameBytes   = 4096
	sendBufferSize  = 256
	upgradeBufBytes = 1024
)

// Client is one live-feed connection.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
}

// ClientMessage is a control frame sent by a client.
type ClientMessage struct {
	Type     string `json:"type"`
	Category string `json:"category,omitempty"`
}

// NewClient wraps an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: logger.With("client_id", id),
	}
}

// readLoop handles control frames until the connection fails, then
// unregisters the client.
func (c *Client) readLoop() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameBytes)
	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	}
	_ = extend("")
	c.conn.SetPongHandler(extend)

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(frame, &msg); err != nil {
			c.logger.Debug("invalid client frame", "error", err)
			c.sendError("invalid message format")
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg ClientMessage) {
	switch msg.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe:
		category, ok := NormalizeCategory(msg.Category)
		if !ok {
			c.sendError("category must look like Map-Difficulty")
			return
		}
		if msg.Type == MessageTypeSubscribe {
			c.hub.Subscribe(c, category)
			c.enqueue(Message{Type: MessageTypeSubscribed, Category: category})
			return
		}
		c.hub.Unsubscribe(c, category)
		c.enqueue(Message{Type: MessageTypeUnsubscribed, Category: category})

	case MessageTypePing:
		c.enqueue(Message{Type: MessageTypePong})

	default:
		c.sendError("unknown message type")
	}
}

// writeLoop sends queued messages, one frame each, and keeps the connection
// alive with pings. It exits when the hub closes send.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(keepalive)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendError(text string) {
	c.enqueue(Message{Type: MessageTypeError, Data: map[string]string{"error": text}})
}

// enqueue queues msg, dropping it when the client is not keeping up.
func (c *Client) enqueue(msg Message) {
	msg.Timestamp = time.Now()
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal message", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("client buffer full, dropping reply", "type", msg.Type)
	}
}

// ServeWs upgrades the request and attaches the connection to hub.
func ServeWs(hub *Hub, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  upgradeBufBytes,
		WriteBufferSize: upgradeBufBytes,
		CheckOrigin: func(r *http.Request) bool {
			return hub.originAllowed(r.Header.Get("Origin"))
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err, "origin", r.Header.Get("Origin"))
		return
	}

	client := NewClient(hub, conn, logger)
	hub.Register(client)
	go client.writeLoop()
	go client.readLoop()

	client.logger.Debug("websocket connected", "remote", r.RemoteAddr)
}
