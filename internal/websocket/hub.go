package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/contentforge/api/internal/metrics"
	"github.com/contentforge/api/internal/model"
	"github.com/contentforge/api/pkg/response"
)

const (
	sendBufferSize = 256
	pingInterval   = 30 * time.Second
	writeWait      = 10 * time.Second
)

// RoomName returns the group name a user's connections join
func RoomName(userID string) string {
	return "user:" + userID
}

// Client represents one authenticated WebSocket connection
type Client struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient creates a client for userID. conn may be nil in tests.
func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBufferSize),
	}
}

// trySend queues msg without blocking. Returns false if the client is
// closed or its buffer is full.
func (c *Client) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// BroadcastMessage is a frame addressed to one group
type BroadcastMessage struct {
	Room    string
	Event   string
	Message []byte
}

// TokenValidator resolves a bearer token to a user id
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// Hub maintains authenticated connections grouped by user
type Hub struct {
	// Clients grouped by room
	groups map[string]map[*Client]struct{}

	// Broadcast messages to room members
	broadcast chan *BroadcastMessage

	mu      sync.RWMutex
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHub creates a new Hub
func NewHub(log *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		groups:    make(map[string]map[*Client]struct{}),
		broadcast: make(chan *BroadcastMessage, sendBufferSize),
		log:       log.With("component", "websocket"),
		metrics:   m,
	}
}

// Run delivers broadcast messages until ctx is done, then closes every client
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg *BroadcastMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.groups[msg.Room]
	if !ok {
		return
	}

	delivered := 0
	for client := range clients {
		if client.trySend(msg.Message) {
			delivered++
			continue
		}
		// Slow or closed consumer
		h.removeLocked(client)
	}
	h.metrics.EventDelivered(msg.Event, delivered)
}

// Register adds a client to its user's group
func (h *Hub) Register(client *Client) {
	room := RoomName(client.UserID)

	h.mu.Lock()
	if h.groups[room] == nil {
		h.groups[room] = make(map[*Client]struct{})
	}
	h.groups[room][client] = struct{}{}
	h.mu.Unlock()

	h.metrics.SocketConnected()
	h.log.Info("Client connected", "userId", client.UserID, "connectionId", client.ID)
}

// Unregister removes a client; the group is dropped once it is empty
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	removed := h.removeLocked(client)
	h.mu.Unlock()

	if removed {
		h.log.Info("Client disconnected", "userId", client.UserID, "connectionId", client.ID)
	}
}

func (h *Hub) removeLocked(client *Client) bool {
	room := RoomName(client.UserID)
	clients, ok := h.groups[room]
	if !ok {
		return false
	}
	if _, ok := clients[client]; !ok {
		return false
	}
	delete(clients, client)
	client.close()
	if len(clients) == 0 {
		delete(h.groups, room)
	}
	h.metrics.SocketDisconnected()
	return true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.groups {
		for client := range clients {
			h.removeLocked(client)
		}
	}
}

// EmitToUser pushes a named event to every connection of userID. A user
// with no connections is a no-op.
func (h *Hub) EmitToUser(userID, event string, payload interface{}) {
	room := RoomName(userID)
	if h.UserConnections(userID) == 0 {
		h.log.Debug("No connections for user, event skipped", "userId", userID, "event", event)
		return
	}

	data, err := json.Marshal(model.WSEventMessage{Event: event, Data: payload})
	if err != nil {
		h.log.Error("Failed to marshal event", "event", event, "error", err)
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{Room: room, Event: event, Message: data}:
	default:
		h.log.Warn("Broadcast queue full, event dropped", "userId", userID, "event", event)
	}
}

// UserConnections returns the number of live connections for userID
func (h *Hub) UserConnections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[RoomName(userID)])
}

// UpgradeMiddleware authenticates the handshake before the upgrade. The
// token comes from the Authorization header or the token query parameter.
// Rejected handshakes never touch the registry.
func UpgradeMiddleware(validator TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return response.UpgradeRequired(c)
		}

		token := c.Query("token")
		if header := c.Get("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				token = parts[1]
			}
		}
		if token == "" {
			return response.Unauthorized(c, "Authentication error: token missing")
		}

		userID, err := validator.ValidateToken(token)
		if err != nil || userID == "" {
			return response.Unauthorized(c, "Authentication error: invalid token")
		}

		c.Locals("userId", userID)
		return c.Next()
	}
}

// Handler returns the fiber websocket handler for authenticated connections
func (h *Hub) Handler() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		userID, _ := c.Locals("userId").(string)
		h.HandleConnection(c, userID)
	})
}

// HandleConnection runs the read and write loops of one connection
func (h *Hub) HandleConnection(c *websocket.Conn, userID string) {
	client := NewClient(userID, c)

	h.Register(client)

	// Writer goroutine
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer c.Close()
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				_ = c.SetWriteDeadline(time.Now().Add(writeWait))
				if !ok {
					_ = c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				_ = c.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("WebSocket error", "userId", userID, "error", err)
			}
			break
		}

		// Handle client keep-alive frames
		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == model.WSMessageTypePing {
			pong, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			client.trySend(pong)
		}
	}

	// The connection must not be touched after this handler returns
	h.Unregister(client)
	<-writerDone
}
