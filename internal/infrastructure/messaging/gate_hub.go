// Package messaging fans gate status changes out to every open tab of a visitor.
package messaging

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/logging"
)

// StreamClient represents a single connected browser tab.
type StreamClient struct {
	Conn        *websocket.Conn
	IdentityKey string
	Send        chan []byte

	closeOnce sync.Once
}

// NewStreamClient creates a client with a buffered send queue.
func NewStreamClient(conn *websocket.Conn, identityKey string, buffer int) *StreamClient {
	if buffer <= 0 {
		buffer = 16
	}
	return &StreamClient{Conn: conn, IdentityKey: identityKey, Send: make(chan []byte, buffer)}
}

func (c *StreamClient) close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// Event is the message written to stream clients.
type Event struct {
	Type   string `json:"type"`
	Status any    `json:"status,omitempty"`
}

// GateHub tracks stream clients by identity key.
type GateHub struct {
	clients map[string]map[*StreamClient]bool
	mu      sync.RWMutex
	logger  *logging.ChanneledLogger
}

// NewGateHub creates an empty hub.
func NewGateHub(logger *logging.ChanneledLogger) *GateHub {
	return &GateHub{
		clients: make(map[string]map[*StreamClient]bool),
		logger:  logger,
	}
}

// Register adds client under its identity key.
func (h *GateHub) Register(client *StreamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.IdentityKey]; !ok {
		h.clients[client.IdentityKey] = make(map[*StreamClient]bool)
	}
	h.clients[client.IdentityKey][client] = true
	h.logger.Stream().Debug("Stream client registered", "identity", logging.MaskIdentity(client.IdentityKey))
}

// Unregister removes client and closes its send queue. It is safe to call
// more than once.
func (h *GateHub) Unregister(client *StreamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[client.IdentityKey]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			if len(clients) == 0 {
				delete(h.clients, client.IdentityKey)
			}
		}
	}
	client.close()
	h.logger.Stream().Debug("Stream client unregistered", "identity", logging.MaskIdentity(client.IdentityKey))
}

// Rekey moves every client subscribed under from to to, so tabs follow a
// visitor across the anonymous to email transition.
func (h *GateHub) Rekey(from, to string) {
	if from == to {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	moving, ok := h.clients[from]
	if !ok {
		return
	}
	delete(h.clients, from)
	if _, ok := h.clients[to]; !ok {
		h.clients[to] = make(map[*StreamClient]bool)
	}
	for client := range moving {
		client.IdentityKey = to
		h.clients[to][client] = true
	}
}

// Publish sends event to every client of identityKey. Slow clients whose
// queue is full miss the event rather than block the caller.
func (h *GateHub) Publish(identityKey string, event Event) int {
	message, err := json.Marshal(event)
	if err != nil {
		h.logger.Stream().Error("Failed to marshal stream event", "error", err.Error())
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.clients[identityKey] {
		select {
		case client.Send <- message:
			delivered++
		default:
			h.logger.Stream().Warn("Stream client queue full, dropping event", "identity", logging.MaskIdentity(identityKey))
		}
	}
	h.logger.LogStreamEvent(event.Type, identityKey, delivered)
	return delivered
}

// SendTo delivers event to one registered client. It reports false when the
// client is gone or its queue is full.
func (h *GateHub) SendTo(client *StreamClient, event Event) bool {
	message, err := json.Marshal(event)
	if err != nil {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[client.IdentityKey][client] {
		return false
	}
	select {
	case client.Send <- message:
		return true
	default:
		return false
	}
}

// ClientCount returns the number of clients for identityKey, or all clients
// when identityKey is empty.
func (h *GateHub) ClientCount(identityKey string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if identityKey != "" {
		return len(h.clients[identityKey])
	}
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

// CloseAll unregisters every client. Used during shutdown.
func (h *GateHub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, clients := range h.clients {
		for client := range clients {
			client.close()
		}
		delete(h.clients, key)
	}
}
