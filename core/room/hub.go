package room

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"syncfm/logger"

	"github.com/gorilla/websocket"
)

const (
	readLimit    = 4096
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	writeWait    = 10 * time.Second
	sendBufSize  = 64
	broadcastBuf = 256
)

// Hub owns the live websocket connections and fans events out to them.
// It knows nothing about rooms or playback: recipients are named by
// connection id, and the registry decides who those are. Delivery is
// best-effort; a client whose send buffer stays full is evicted.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan *fanout

	done chan struct{}
}

// fanout is one event addressed to a set of connections.
type fanout struct {
	recipients []string
	message    []byte
	excludeID  string
}

// NewHub creates a hub; call Run in its own goroutine.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *fanout, broadcastBuf),
		done:       make(chan struct{}),
	}
}

// Run drives the hub main loop until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.deliver(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop shuts down the hub and closes every connection's send channel.
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// A reconnect reusing the id kicks the old connection.
	if old, exists := h.clients[client.ID]; exists {
		h.removeClient(old)
	}
	h.clients[client.ID] = client

	logger.Info("client connected", logger.String("conn", client.ID))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeClient(client)
}

// removeClient needs the lock held.
func (h *Hub) removeClient(client *Client) {
	if current, ok := h.clients[client.ID]; ok && current == client {
		delete(h.clients, client.ID)
		client.closeSend()
		logger.Info("client disconnected", logger.String("conn", client.ID))
	}
}

func (h *Hub) deliver(msg *fanout) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(msg.recipients))
	for _, id := range msg.recipients {
		if id == msg.excludeID {
			continue
		}
		if client, ok := h.clients[id]; ok {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if !client.trySend(msg.message) {
			// Send buffer full, drop the connection. Runs on the hub
			// goroutine, so evict directly instead of re-queueing.
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		client.closeSend()
	}
	h.clients = make(map[string]*Client)
}

// Register hands a new connection to the hub loop.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a connection from the hub loop.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast queues an event for a set of connections, skipping excludeID.
func (h *Hub) Broadcast(recipients []string, evt *Event, excludeID string) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	h.broadcast <- &fanout{
		recipients: recipients,
		message:    data,
		excludeID:  excludeID,
	}
	return nil
}

// SendToClient delivers an event to a single connection.
func (h *Hub) SendToClient(connID string, evt *Event) error {
	h.mu.RLock()
	client := h.clients[connID]
	h.mu.RUnlock()

	if client == nil {
		return fmt.Errorf("connection not found: %s", connID)
	}
	return client.SendEvent(evt)
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ========== Client ==========

// Client is one websocket connection. The hub closes send when it evicts
// the client, while the manager keeps unicasting on the same pointer from
// the read-pump goroutine, so every write and the close go through the
// mutex-guarded helpers below.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewClient wraps an upgraded connection.
func NewClient(id string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:   id,
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
}

// ReadPump reads commands until the connection drops, passing each parsed
// event to handler. Heartbeats are answered here and never reach handler.
func (c *Client) ReadPump(ctx context.Context, handler func(ctx context.Context, client *Client, evt *Event)) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn("websocket read error",
						logger.ErrorField(err),
						logger.String("conn", c.ID))
				}
				return
			}

			var evt Event
			if err := json.Unmarshal(message, &evt); err != nil {
				logger.Warn("invalid message format",
					logger.ErrorField(err),
					logger.String("conn", c.ID))
				continue
			}

			if evt.Type == EvtPing {
				pong, _ := NewEvent(EvtPong, nil)
				if data, err := json.Marshal(pong); err == nil {
					c.trySend(data)
				}
				continue
			}

			handler(ctx, c, &evt)
		}
	}
}

// WritePump drains the send channel onto the wire and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
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
				// Hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Coalesce whatever is already queued.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

// SendEvent queues an event on this connection. A full buffer or an already
// evicted client drops the event rather than blocking or panicking.
func (c *Client) SendEvent(evt *Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	c.trySend(data)
	return nil
}

// trySend queues a raw message, reporting false when the buffer is full.
// Sends after closeSend are silently dropped.
func (c *Client) trySend(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return true
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// closeSend shuts the send channel exactly once.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
