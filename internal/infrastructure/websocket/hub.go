package websocket

import (
	"context"
	"log/slog"
	"sync"
)

// Broadcaster interface for broadcasting pipeline events to WebSocket
// clients.
type Broadcaster interface {
	Broadcast(traceID string, event *WSEvent)
}

// broadcastMsg represents a message to be broadcast to clients
type broadcastMsg struct {
	traceID string
	event   *WSEvent
}

// Hub manages WebSocket connections and broadcasting pipeline events to
// clients. It implements the Broadcaster interface.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Channel for registering clients
	register chan *Client

	// Channel for unregistering clients
	unregister chan *Client

	// Channel for broadcasting events
	broadcast chan *broadcastMsg

	// Subscription index for fast lookup
	byTraceID map[string]map[*Client]bool

	logger *slog.Logger
	mu     sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMsg, 256),
		byTraceID:  make(map[string]map[*Client]bool),
		logger:     logger,
	}
}

// Run starts the hub's main event loop. It returns when the context is
// cancelled. This should be called in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastEvent(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	h.logger.Debug("client registered",
		"client_id", client.id,
		"total_clients", len(h.clients))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	close(client.send)

	client.subs.mu.RLock()
	for traceID := range client.subs.traces {
		if clients, ok := h.byTraceID[traceID]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.byTraceID, traceID)
			}
		}
	}
	client.subs.mu.RUnlock()

	h.logger.Debug("client unregistered",
		"client_id", client.id,
		"total_clients", len(h.clients))
}

// Subscribe indexes a client for a trace.
func (h *Hub) Subscribe(client *Client, traceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.byTraceID[traceID] == nil {
		h.byTraceID[traceID] = make(map[*Client]bool)
	}
	h.byTraceID[traceID][client] = true

	client.subs.mu.Lock()
	client.subs.traces[traceID] = true
	client.subs.mu.Unlock()
}

// Unsubscribe drops a client's trace subscription.
func (h *Hub) Unsubscribe(client *Client, traceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.byTraceID[traceID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.byTraceID, traceID)
		}
	}

	client.subs.mu.Lock()
	delete(client.subs.traces, traceID)
	client.subs.mu.Unlock()
}

// Broadcast sends an event to clients subscribed to the trace, or to all
// clients when traceID is empty. Implements the Broadcaster interface.
func (h *Hub) Broadcast(traceID string, event *WSEvent) {
	select {
	case h.broadcast <- &broadcastMsg{traceID: traceID, event: event}:
	default:
		// Broadcast buffer full; dropping is preferable to stalling the
		// pipeline.
	}
}

func (h *Hub) broadcastEvent(msg *broadcastMsg) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := make(map[*Client]bool)
	if msg.traceID != "" {
		for client := range h.byTraceID[msg.traceID] {
			targets[client] = true
		}
		// Clients with no explicit subscriptions receive everything.
		for client := range h.clients {
			if client.subs.empty() {
				targets[client] = true
			}
		}
	} else {
		for client := range h.clients {
			targets[client] = true
		}
	}

	for client := range targets {
		select {
		case client.send <- msg.event:
		default:
			// Client send buffer full, skip this message
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.byTraceID = make(map[string]map[*Client]bool)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
