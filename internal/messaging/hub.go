// Package messaging pushes task thread events to connected websocket clients.
package messaging

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	// sendQueue is how many frames may wait for a slow subscriber before it
	// is dropped.
	sendQueue = 32
)

// Event is the frame written to subscribers.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// client owns one connection. Frames are queued on send and written by a
// single goroutine, so gorilla's one-writer rule holds and a stalled socket
// never blocks a broadcaster.
type client struct {
	conn *websocket.Conn
	send chan []byte
	quit chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn, send: make(chan []byte, sendQueue), quit: make(chan struct{})}
}

// enqueue reports false when the client's queue is full.
func (c *client) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// drop asks the writer to close the connection.
func (c *client) drop() {
	c.once.Do(func() { close(c.quit) })
}

// writeLoop drains the queue and pings until done or dropped.
func (c *client) writeLoop(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-c.quit:
			_ = c.conn.Close()
			return
		case payload := <-c.send:
			if err := c.write(websocket.TextMessage, payload); err != nil {
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *client) write(messageType int, payload []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, payload)
}

// Hub tracks the open connections of every task thread.
type Hub struct {
	mu      sync.RWMutex
	threads map[string]map[*client]struct{}
	log     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{threads: make(map[string]map[*client]struct{}), log: logger}
}

// Broadcast queues one event for every subscriber of taskID and returns
// without waiting on the network. A subscriber whose queue is full is
// dropped; its read loop then unregisters it.
func (h *Hub) Broadcast(taskID, eventType string, data any) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		h.log.Error("encode thread event", "task_id", taskID, "type", eventType, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.threads[taskID]))
	for c := range h.threads[taskID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.enqueue(payload) {
			h.log.Warn("drop slow thread subscriber", "task_id", taskID, "type", eventType)
			c.drop()
		}
	}
}

// Subscribers returns how many connections are open on taskID.
func (h *Hub) Subscribers(taskID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.threads[taskID])
}

func (h *Hub) register(taskID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.threads[taskID]
	if !ok {
		set = make(map[*client]struct{})
		h.threads[taskID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(taskID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.threads[taskID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.threads, taskID)
	}
}
