package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"chatapp/core"
	"chatapp/metrics"
	"chatapp/util/goroutine"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocket configuration constants
const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum message size allowed from peer.
	maxMessageSize = 512

	// sendChannelSize bounds the per-client queue; a full queue drops the client
	sendChannelSize = 256

	// enqueueTimeout bounds how long SendToUser waits for the hub loop
	enqueueTimeout = time.Second
)

// WebSocketMessage is the envelope of every event pushed to clients
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// client is a single websocket connection of an authenticated user
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

// directMessage is a payload addressed to every socket of one user
type directMessage struct {
	userID  string
	payload []byte
}

// Hub tracks the open sockets of every online user. A user may hold several
// sockets (one per tab). All mutation happens on the Start goroutine.
type Hub struct {
	// userID -> set of that user's clients
	clients map[string]map[*client]struct{}

	direct     chan directMessage
	register   chan *client
	unregister chan *client

	// Guards clients for readers outside the hub loop
	mu sync.RWMutex

	logger *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub. It must be started with Start before use.
func NewHub(logger *zap.SugaredLogger, ctx context.Context) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		clients:    make(map[string]map[*client]struct{}),
		direct:     make(chan directMessage, sendChannelSize),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger,
		ctx:        hubCtx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Start runs the hub event loop until Stop is called or the parent context
// is cancelled. Must be called exactly once.
func (h *Hub) Start() {
	defer close(h.done)

	h.logger.Info("WebSocket hub started")

	for {
		select {
		case <-h.ctx.Done():
			h.mu.Lock()
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
					c.conn.Close()
				}
			}
			h.clients = make(map[string]map[*client]struct{})
			h.mu.Unlock()
			h.updateGauges()
			h.logger.Info("WebSocket hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[c.userID]
			if !ok {
				set = make(map[*client]struct{})
				h.clients[c.userID] = set
			}
			set[c] = struct{}{}
			h.mu.Unlock()
			h.logger.Debugw("WebSocket client registered",
				"user_id", c.userID,
				"user_sockets", len(set))
			h.updateGauges()
			h.broadcastOnlineUsers()

		case c := <-h.unregister:
			if h.removeClient(c) {
				h.logger.Debugw("WebSocket client unregistered", "user_id", c.userID)
				h.updateGauges()
				h.broadcastOnlineUsers()
			}

		case msg := <-h.direct:
			h.mu.RLock()
			targets := make([]*client, 0, len(h.clients[msg.userID]))
			for c := range h.clients[msg.userID] {
				targets = append(targets, c)
			}
			h.mu.RUnlock()

			if h.deliverAll(targets, msg.payload) {
				h.broadcastOnlineUsers()
			}
		}
	}
}

// removeClient drops c and closes its queue. Reports whether c was registered.
func (h *Hub) removeClient(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.userID]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
	return true
}

// deliver queues payload for c, dropping c when its queue is full so one
// slow client cannot stall the hub. Reports whether c was dropped.
func (h *Hub) deliver(c *client, payload []byte) bool {
	select {
	case c.send <- payload:
		return false
	default:
		if !h.removeClient(c) {
			return false
		}
		c.conn.Close()
		h.logger.Warnw("Dropped slow WebSocket client", "user_id", c.userID)
		h.updateGauges()
		return true
	}
}

// deliverAll queues payload for every target. Reports whether any was dropped.
func (h *Hub) deliverAll(targets []*client, payload []byte) bool {
	dropped := false
	for _, c := range targets {
		if h.deliver(c, payload) {
			dropped = true
		}
	}
	return dropped
}

// broadcastOnlineUsers sends the online user list to every client. Drops
// during a round change the list, so it is sent again until a round
// completes without one.
func (h *Hub) broadcastOnlineUsers() {
	for {
		payload, err := encodeEvent(core.EventOnlineUsers, h.OnlineUsers())
		if err != nil {
			h.logger.Errorw("Failed to marshal online users", "error", err)
			return
		}

		h.mu.RLock()
		targets := make([]*client, 0, len(h.clients))
		for _, set := range h.clients {
			for c := range set {
				targets = append(targets, c)
			}
		}
		h.mu.RUnlock()

		if !h.deliverAll(targets, payload) {
			return
		}
	}
}

func (h *Hub) updateGauges() {
	h.mu.RLock()
	users := len(h.clients)
	sockets := 0
	for _, set := range h.clients {
		sockets += len(set)
	}
	h.mu.RUnlock()

	metrics.OnlineUsers.Set(float64(users))
	metrics.WebSocketClients.Set(float64(sockets))
}

// SendToUser pushes an event to every socket of userID. Users without open
// sockets are skipped silently.
func (h *Hub) SendToUser(userID, msgType string, data interface{}) error {
	payload, err := encodeEvent(msgType, data)
	if err != nil {
		h.logger.Errorw("Failed to marshal WebSocket message",
			"type", msgType,
			"error", err)
		return err
	}

	select {
	case h.direct <- directMessage{userID: userID, payload: payload}:
		return nil
	case <-h.ctx.Done():
		return h.ctx.Err()
	case <-time.After(enqueueTimeout):
		h.logger.Warnw("WebSocket send timeout", "type", msgType, "user_id", userID)
		return nil
	}
}

// IsOnline reports whether userID has at least one open socket
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// OnlineUsers returns the IDs of users with open sockets, sorted
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// ClientCount returns the number of open sockets across all users
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// Stop closes every client and waits for the hub loop to exit
func (h *Hub) Stop() {
	h.cancel()
	<-h.done
}

func encodeEvent(msgType string, data interface{}) ([]byte, error) {
	return json.Marshal(WebSocketMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// readPump detects disconnection; clients are not expected to send anything
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debugw("WebSocket unexpected close", "user_id", c.userID, "error", err)
			}
			return
		}
	}
}

// writePump writes queued events, one JSON document per frame, and keeps
// the connection alive with pings
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
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

// newUpgrader accepts browser connections only from allowedOrigin.
// Requests without an Origin header come from non-browser clients.
func newUpgrader(allowedOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origin == allowedOrigin
		},
	}
}

// serveWs authenticates the caller and upgrades the connection. The token
// comes from the session cookie or, for non-browser clients, the token
// query parameter.
func (a *API) serveWs(w http.ResponseWriter, r *http.Request) {
	token := GetCookies(r.Context())[core.AuthCookieName]
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized - No Token Provided", nil, a.logger)
		return
	}

	claims, err := validateJWT(token, a.config)
	if err != nil || a.isTokenRevoked(r.Context(), claims.ID) {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized - Invalid Token", err, a.logger)
		return
	}

	user, err := a.lookupUser(r.Context(), claims.UserID)
	if err != nil {
		writeStorageError(w, err, a.logger)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error response
		a.logger.Warnw("WebSocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:    a.hub,
		conn:   conn,
		userID: user.ID,
		send:   make(chan []byte, sendChannelSize),
	}

	select {
	case a.hub.register <- c:
	case <-a.hub.ctx.Done():
		conn.Close()
		return
	}

	go func() {
		defer goroutine.Recover("ws-write", a.logger)
		c.writePump()
	}()
	go func() {
		defer goroutine.Recover("ws-read", a.logger)
		c.readPump()
	}()
}
