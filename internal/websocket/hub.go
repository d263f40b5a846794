package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/kuber/server/domain"
	"github.com/satriahrh/kuber/server/domain/repositories"
	"github.com/satriahrh/kuber/server/internal/metrics"
	"github.com/satriahrh/kuber/server/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	sendBufferSize = 256
)

var (
	errClientClosed = errors.New("client connection closed")
	errSendTimeout  = errors.New("timed out queueing message")
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of connected realtime clients keyed by session id.
type Hub struct {
	// Registered clients.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// stopped is closed when Run returns
	stopped chan struct{}

	// active counts sessions whose connection or background work is still
	// running. No session is added once draining is set.
	active   sync.WaitGroup
	draining bool

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	orchestrator *usecase.Orchestrator
	sessionRepo  repositories.SessionRepository
	config       usecase.RealtimeConfig
	metrics      *metrics.Metrics

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(
	orchestrator *usecase.Orchestrator,
	sessionRepo repositories.SessionRepository,
	config usecase.RealtimeConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		clients:      make(map[string]*Client),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		stopped:      make(chan struct{}),
		orchestrator: orchestrator,
		sessionRepo:  sessionRepo,
		config:       config,
		metrics:      m,
		logger:       logger,
	}
}

// Run starts the hub's main loop. It returns when ctx is done, after closing
// every connected client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.sessionID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("sessionID", client.sessionID))

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.sessionID]; ok && current == client {
				delete(h.clients, client.sessionID)
			}
			h.mu.Unlock()
			client.Close()
			h.logger.Info("Client unregistered", zap.String("sessionID", client.sessionID))

		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				client.Close()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			h.logger.Info("Hub stopped")
			return
		}
	}
}

// Wait blocks until Run has returned and every session has finished its
// background work, or until ctx is done.
func (h *Hub) Wait(ctx context.Context) error {
	select {
	case <-h.stopped:
	case <-ctx.Done():
		return ctx.Err()
	}

	h.mu.Lock()
	h.draining = true
	h.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		h.active.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		h.logger.Info("All realtime sessions drained")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// track counts a new session unless the hub is draining
func (h *Hub) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.draining {
		return false
	}
	h.active.Add(1)
	return true
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Disconnect closes the connection of the given session. It reports whether
// the session was connected.
func (h *Hub) Disconnect(sessionID string) bool {
	h.mu.RLock()
	client, ok := h.clients[sessionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	client.Close()
	return true
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// done is closed once the connection should end
	done      chan struct{}
	closeOnce sync.Once

	sessionID string
	session   *usecase.RealtimeSession
	validator *MessageValidator

	// Logger
	logger *zap.Logger
}

// Ensure Client implements the Emitter interface
var _ usecase.Emitter = (*Client)(nil)

// HandleWebSocket upgrades the request and starts a realtime session on it.
func HandleWebSocket(hub *Hub, c echo.Context, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan WriteData, sendBufferSize),
		done:      make(chan struct{}),
		validator: NewMessageValidator(),
		logger:    logger,
	}
	client.session = usecase.NewRealtimeSession(hub.orchestrator, hub.sessionRepo, client, hub.config, hub.metrics, logger)

	if err := client.session.Open(c.Request().Context()); err != nil {
		logger.Error("Failed to open realtime session", zap.Error(err))
		conn.Close()
		return nil
	}
	client.sessionID = client.session.ID()
	client.logger = logger.With(zap.String("sessionID", client.sessionID))

	if !hub.track() {
		client.session.Close()
		conn.Close()
		return nil
	}

	select {
	case client.hub.register <- client:
	case <-client.hub.stopped:
		client.session.Close()
		conn.Close()
		hub.active.Done()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// Emit queues a server event for the write pump
func (c *Client) Emit(event domain.ServerEvent) error {
	data, err := EncodeEvent(event)
	if err != nil {
		return err
	}

	timer := time.NewTimer(writeWait)
	defer timer.Stop()

	select {
	case <-c.done:
		return errClientClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errClientClosed
	case <-timer.C:
		return errSendTimeout
	}
}

// Close ends the connection once queued messages are written. It is safe to
// call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump pumps messages from the websocket connection to the session.
func (c *Client) readPump() {
	defer func() {
		c.session.Close()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopped:
			c.Close()
		}
		c.conn.Close()
		c.session.Wait()
		c.hub.active.Done()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ctx := context.Background()
	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			event, err := c.validator.ValidateMessage(message)
			if err != nil {
				c.logger.Warn("Rejected client message", zap.Error(err))
				c.Emit(domain.NewErrorEvent(err.Error()))
				continue
			}
			c.session.HandleEvent(ctx, event)
		case websocket.BinaryMessage:
			// Binary frames carry raw audio
			c.session.AppendAudio(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the session to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				c.Close()
				return
			}

		case <-c.done:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Client) write(message WriteData) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(message.Type, message.Payload)
}

// flush writes whatever is still queued
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				return
			}
		default:
			return
		}
	}
}
