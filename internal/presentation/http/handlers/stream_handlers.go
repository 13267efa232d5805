package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AtRiskMedia/drillgate/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/drillgate/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/drillgate/internal/presentation/http/middleware"
)

const (
	writeWait      = 10 * time.Second
	maxInboundSize = 512
)

// StreamOptions sizes the websocket stream.
type StreamOptions struct {
	PingInterval   time.Duration
	SendBuffer     int
	AllowedOrigins []string
}

// StreamHandlers upgrades status stream requests to websockets
type StreamHandlers struct {
	gateService GateOperations
	hub         *messaging.GateHub
	logger      *logging.ChanneledLogger
	opts        StreamOptions
	upgrader    websocket.Upgrader
}

// NewStreamHandlers creates stream handlers with injected dependencies
func NewStreamHandlers(gateService GateOperations, hub *messaging.GateHub, logger *logging.ChanneledLogger, opts StreamOptions) *StreamHandlers {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	h := &StreamHandlers{
		gateService: gateService,
		hub:         hub,
		logger:      logger,
		opts:        opts,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// GetStream handles GET /api/v1/gate/stream. Every tab of the same identity
// receives the status after each mutation.
func (h *StreamHandlers) GetStream(c *gin.Context) {
	v, ok := middleware.GetVisitor(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "visitor context not found"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, http.Header{middleware.DeviceHeader: []string{v.DeviceID}})
	if err != nil {
		h.logger.Stream().Warn("Websocket upgrade failed", "error", err.Error())
		return
	}

	client := messaging.NewStreamClient(conn, h.gateService.IdentityKeyFor(v), h.opts.SendBuffer)
	h.hub.Register(client)

	if status, err := h.gateService.Status(c.Request.Context(), v, ""); err == nil {
		h.hub.SendTo(client, messaging.Event{Type: "status", Status: status})
	} else {
		h.logger.Stream().Warn("Failed to load initial stream status", "error", err.Error())
	}

	go h.writePump(client)
	h.readPump(client)
}

// readPump discards inbound frames and unregisters the client when the
// connection drops.
func (h *StreamHandlers) readPump(client *messaging.StreamClient) {
	defer h.hub.Unregister(client)

	pongWait := h.opts.PingInterval * 2
	client.Conn.SetReadLimit(maxInboundSize)
	_ = client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Stream().Debug("Stream client closed unexpectedly", "error", err.Error())
			}
			return
		}
	}
}

func (h *StreamHandlers) writePump(client *messaging.StreamClient) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandlers) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
