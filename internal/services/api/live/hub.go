// Package live pushes dashboard events to admin websocket clients.
package live

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zmooth/zmooth/internal/services/shared/events"
)

const (
	defaultSnapshotInterval = 30 * time.Second
	sendBuffer              = 32
	writeWait               = 10 * time.Second
	pongWait                = 60 * time.Second
	pingPeriod              = 20 * time.Second
	maxMessageSize          = 1024
)

// SnapshotFunc produces the overview payload.
type SnapshotFunc func(ctx context.Context) (any, error)

// Hub fans events out to connected clients and implements events.Publisher.
type Hub struct {
	snapshot SnapshotFunc
	interval time.Duration
	upgrader websocket.Upgrader
	clock    func() time.Time

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub builds a hub. Origins limits browser origins; empty allows any.
func NewHub(snapshot SnapshotFunc, interval time.Duration, origins []string) *Hub {
	if interval <= 0 {
		interval = defaultSnapshotInterval
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		allowed[origin] = struct{}{}
	}
	return &Hub{
		snapshot: snapshot,
		interval: interval,
		clock:    time.Now,
		clients:  make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowed) == 0 {
					return true
				}
				_, ok := allowed[origin]
				if !ok {
					_, ok = allowed["*"]
				}
				return ok
			},
		},
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish queues e for every client. Clients whose buffer is full are
// dropped.
func (h *Hub) Publish(e events.Event) {
	if e.At.IsZero() {
		e.At = h.clock().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		log.Printf("live: encode %s: %v", e.Type, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			delete(h.clients, c)
			c.close()
		}
	}
}

// Run publishes an overview snapshot every interval until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			if h.Clients() == 0 {
				continue
			}
			if e, ok := h.overview(ctx); ok {
				h.Publish(e)
			}
		}
	}
}

func (h *Hub) overview(ctx context.Context) (events.Event, bool) {
	if h.snapshot == nil {
		return events.Event{}, false
	}
	data, err := h.snapshot(ctx)
	if err != nil {
		log.Printf("live: overview: %v", err)
		return events.Event{}, false
	}
	return events.Event{Type: events.Overview, Data: data, At: h.clock().UTC()}, true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

// ServeHTTP upgrades an authenticated request, sends the current overview
// and streams events until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("live: upgrade: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if e, ok := h.overview(r.Context()); ok {
		if payload, err := json.Marshal(e); err == nil {
			c.send <- payload
		}
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	log.Printf("live: client connected (%d total)", total)

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	total := len(h.clients)
	h.mu.Unlock()
	log.Printf("live: client disconnected (%d total)", total)
}

// readLoop discards client messages; it exists to process pongs and notice
// disconnects.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
