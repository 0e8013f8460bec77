// Package websocket streams queue and license events to connected UI clients.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"licensegate/internal/infrastructure"
	"licensegate/pkg/contracts/events"
)

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	logger  *slog.Logger
	metrics *Metrics
	clock   infrastructure.Clock
	done    chan struct{}
}

// NewHub creates a hub; a nil metrics value records nothing
func NewHub(logger *slog.Logger, metrics *Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics, _ = NewMetrics(nil)
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		metrics:    metrics,
		clock:      infrastructure.SystemClock{},
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is cancelled, then
// closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.metrics.connected(ctx)

			h.logger.Info("client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id))
			h.sendTo(client, events.MessageTypeConnect, events.ConnectData{
				Protocol: events.ProtocolVersion,
				ClientID: client.id,
			})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				count := len(h.clients)
				h.mu.Unlock()
				h.metrics.disconnected(ctx)
				h.logger.Info("client unregistered",
					slog.Int("total_clients", count),
					slog.String("client_id", client.id),
					slog.Duration("connection_duration", time.Since(client.connectedAt)))
			} else {
				h.mu.Unlock()
			}

		case message := <-h.broadcast:
			h.fanOut(ctx, message)
		}
	}
}

// Done is closed once Run has returned
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// fanOut sends message to every client. A client whose send buffer is full
// is disconnected rather than waited for.
func (h *Hub) fanOut(ctx context.Context, message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- message:
			h.metrics.sent(ctx)
		default:
			close(client.send)
			delete(h.clients, client)
			h.metrics.dropped(ctx)
			h.logger.Warn("client send buffer full, disconnecting",
				slog.String("client_id", client.id))
		}
	}
}

// Broadcast queues a message of type t for every client. It never blocks;
// when the broadcast queue is full the message is dropped.
func (h *Hub) Broadcast(ctx context.Context, t events.MessageType, data interface{}) {
	payload, err := h.encode(ctx, t, data)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.metrics.dropped(ctx)
		h.logger.WarnContext(ctx, "broadcast queue full, message dropped",
			slog.String("message_type", string(t)))
	}
}

func (h *Hub) sendTo(client *Client, t events.MessageType, data interface{}) {
	payload, err := h.encode(context.Background(), t, data)
	if err != nil {
		return
	}
	select {
	case client.send <- payload:
	default:
		h.logger.Warn("failed to send message, client buffer full",
			slog.String("client_id", client.id))
	}
}

func (h *Hub) encode(ctx context.Context, t events.MessageType, data interface{}) ([]byte, error) {
	msg := events.WebSocketMessage{
		BaseMessage: events.BaseMessage{
			ID:        uuid.New().String(),
			Type:      t,
			Timestamp: h.clock.Now(),
			TraceID:   infrastructure.GetTraceID(ctx),
		},
		Data: data,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to marshal message",
			slog.String("message_type", string(t)),
			slog.String("error", err.Error()))
		return nil, err
	}
	return payload, nil
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
