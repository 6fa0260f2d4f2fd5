// Package push delivers job results to browsers over WebSocket.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/KamdynS/streamdemo/queue"
)

// EventJobResult is the event name carried by job result messages.
const EventJobResult = "job_result"

// Message is the envelope of every frame sent to clients.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Options tunes a Hub. Zero values select the defaults.
type Options struct {
	// SendBuffer is the number of messages queued per client before the
	// client is considered too slow and dropped.
	SendBuffer int
	WriteWait  time.Duration
	PongWait   time.Duration
	// CheckOrigin defaults to accepting every origin.
	CheckOrigin func(r *http.Request) bool
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 16
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.CheckOrigin == nil {
		o.CheckOrigin = func(*http.Request) bool { return true }
	}
	return o
}

// Hub tracks connected clients and broadcasts messages to all of them.
type Hub struct {
	opts     Options
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub returns an empty hub.
func NewHub(opts Options) *Hub {
	opts = opts.withDefaults()
	return &Hub{
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: opts.CheckOrigin},
		clients:  make(map[*client]struct{}),
	}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	addr string
	send chan []byte
	once sync.Once
}

// ServeHTTP upgrades the request and serves the client until it goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		log.Printf("[Push] upgrade failed: %v", err)
		return
	}
	c := &client{hub: h, conn: conn, addr: r.RemoteAddr, send: make(chan []byte, h.opts.SendBuffer)}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(h.opts.WriteWait))
		_ = conn.Close()
		return
	}
	log.Printf("[Push] client connected: %s (clients=%d)", r.RemoteAddr, h.ClientCount())

	go c.writePump()
	c.readPump()
	log.Printf("[Push] client disconnected: %s (clients=%d)", r.RemoteAddr, h.ClientCount())
}

// Publish broadcasts a job result. It implements worker.Publisher.
func (h *Hub) Publish(_ context.Context, result *queue.Result) error {
	n, err := h.Broadcast(EventJobResult, result)
	if err != nil {
		return err
	}
	log.Printf("[Push] broadcast %s for %s to %d clients", EventJobResult, result.RequestID, n)
	return nil
}

// Broadcast sends {"event":event,"data":data} to every client and reports how
// many clients it was queued for. Clients whose buffer is full are dropped.
func (h *Hub) Broadcast(event string, data any) (int, error) {
	frame, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		return 0, fmt.Errorf("encode %s message: %w", event, err)
	}

	h.mu.RLock()
	var slow []*client
	sent := 0
	for c := range h.clients {
		select {
		case c.send <- frame:
			sent++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Printf("[Push] dropping slow client %s", c.addr)
		h.unregister(c)
	}
	return sent, nil
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
	return nil
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

// unregister removes c and closes its send channel, which makes the write
// pump send a close frame and shut the connection.
func (h *Hub) unregister(c *client) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		close(c.send)
	})
}

// readPump discards inbound messages and keeps the read deadline alive via
// pongs. It returns when the peer goes away.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.opts.PongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	pingPeriod := c.hub.opts.PongWait * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
