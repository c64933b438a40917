package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sgracers-leaderboard/internal/domain"
)

// Message types
const (
	MessageTypeRecordUpdate = "record_update"
	MessageTypeSubscribe    = "subscribe"
	MessageTypeUnsubscribe  = "unsubscribe"
	MessageTypeSubscribed   = "subscribed"
	MessageTypeUnsubscribed = "unsubscribed"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"
)

// Message is the envelope of every frame sent to clients.
type Message struct {
	Type      string      `json:"type"`
	Category  string      `json:"category,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub tracks connected clients and fans record updates out to them. Clients
// with no subscriptions receive every update; subscribed clients receive
// only their categories.
type Hub struct {
	// Subscribed clients by category ("Impact-Hard")
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	// Clients per subscription count, for the firehose check
	subscriptions map[*Client]int

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	origins map[string]struct{}

	mu     sync.RWMutex
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client   *Client
	category string
}

// NewHub creates a new Hub. allowedOrigins limits which browser origins may
// connect; empty allows all.
func NewHub(logger *slog.Logger, allowedOrigins []string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	return &Hub{
		clients:       make(map[string]map[*Client]bool),
		allClients:    make(map[*Client]bool),
		subscriptions: make(map[*Client]int),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		broadcast:     make(chan *Message, 256),
		subscribe:     make(chan *subscriptionRequest, 64),
		unsubscribe:   make(chan *subscriptionRequest, 64),
		origins:       origins,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				delete(h.subscriptions, client)
				for category, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, category)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[req.category]; !ok {
				h.clients[req.category] = make(map[*Client]bool)
			}
			if !h.clients[req.category][req.client] {
				h.clients[req.category][req.client] = true
				h.subscriptions[req.client]++
			}
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "category", req.category)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.category]; ok && clients[req.client] {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.category)
				}
				if h.subscriptions[req.client]--; h.subscriptions[req.client] <= 0 {
					delete(h.subscriptions, req.client)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "category", req.category)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// recipients returns the clients that should receive a message for
// category. Callers hold h.mu.
func (h *Hub) recipients(category string) []*Client {
	var out []*Client
	for client := range h.allClients {
		if h.subscriptions[client] == 0 || h.clients[category][client] {
			out = append(out, client)
		}
	}
	return out
}

func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	for _, client := range h.recipients(message.Category) {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

// PublishRecord announces a new personal best to interested clients. It
// never blocks; updates are dropped when the hub is backed up.
func (h *Hub) PublishRecord(update domain.RecordUpdate) {
	message := &Message{
		Type:      MessageTypeRecordUpdate,
		Category:  domain.Category(update.Map, update.Difficulty),
		Data:      update,
		Timestamp: update.Timestamp,
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "category", message.Category)
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe limits client to updates for category, in addition to any
// categories it already follows.
func (h *Hub) Subscribe(client *Client, category string) {
	h.subscribe <- &subscriptionRequest{client: client, category: category}
}

// Unsubscribe removes a category subscription.
func (h *Hub) Unsubscribe(client *Client, category string) {
	h.unsubscribe <- &subscriptionRequest{client: client, category: category}
}

// GetSubscriberCount returns the number of subscribers for a category
func (h *Hub) GetSubscriberCount(category string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[category])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}

// Categories returns the subscribed categories and their subscriber counts.
func (h *Hub) Categories() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int, len(h.clients))
	for category, clients := range h.clients {
		out[category] = len(clients)
	}
	return out
}

func (h *Hub) originAllowed(origin string) bool {
	if len(h.origins) == 0 || origin == "" {
		return true
	}
	_, ok := h.origins[origin]
	return ok
}

// NormalizeCategory resolves "impact-hard" or "impact_hard" to "Impact-Hard".
// ok is false when either part is missing.
func NormalizeCategory(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	i := strings.LastIndexAny(raw, "-_")
	if i < 0 {
		return "", false
	}
	nm, mapOK := domain.NormalizeMap(raw[:i])
	nd, diffOK := domain.NormalizeDifficulty(raw[i+1:])
	if !mapOK || !diffOK {
		return "", false
	}
	return domain.Category(nm, nd), true
}
