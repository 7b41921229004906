package broadcast

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/freedomchat/backend/internal/logger"
	"github.com/freedomchat/backend/internal/metrics"
)

// Conn is one connected client.
type Conn struct {
	ID string
	WS *websocket.Conn
	// bounded outbound queue (backpressure)
	Out chan []byte
}

// Hub tracks live connections and room membership, and implements
// Broadcaster on top of them.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	// room -> member ids
	rooms map[string]map[string]struct{}
	// client id -> rooms joined (for LeaveAll on disconnect)
	joined map[string]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		conns:  make(map[string]*Conn),
		rooms:  make(map[string]map[string]struct{}),
		joined: make(map[string]map[string]struct{}),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	h.conns[c.ID] = c
	h.mu.Unlock()
	metrics.OnlineConns.Inc()
}

// Unregister drops a connection and its room memberships.
func (h *Hub) Unregister(clientID string) {
	h.LeaveAll(clientID)
	h.mu.Lock()
	if _, ok := h.conns[clientID]; ok {
		delete(h.conns, clientID)
		metrics.OnlineConns.Dec()
	}
	h.mu.Unlock()
}

// Get returns the connection for a client id.
func (h *Hub) Get(clientID string) (*Conn, bool) {
	h.mu.RLock()
	c, ok := h.conns[clientID]
	h.mu.RUnlock()
	return c, ok
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	n := len(h.conns)
	h.mu.RUnlock()
	return n
}

func (h *Hub) Join(room, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[clientID]; !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]struct{})
	}
	h.rooms[room][clientID] = struct{}{}
	if h.joined[clientID] == nil {
		h.joined[clientID] = make(map[string]struct{})
	}
	h.joined[clientID][room] = struct{}{}
}

func (h *Hub) Leave(room, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(room, clientID)
}

func (h *Hub) LeaveAll(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.joined[clientID] {
		h.leaveLocked(room, clientID)
	}
}

func (h *Hub) leaveLocked(room, clientID string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, clientID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.joined[clientID]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(h.joined, clientID)
		}
	}
}

func (h *Hub) Emit(room, event string, data interface{}) {
	payload, err := encode(event, data)
	if err != nil {
		return
	}
	h.mu.RLock()
	for id := range h.rooms[room] {
		if c, ok := h.conns[id]; ok {
			h.push(c, payload)
		}
	}
	h.mu.RUnlock()
}

func (h *Hub) EmitTo(clientID, event string, data interface{}) {
	payload, err := encode(event, data)
	if err != nil {
		return
	}
	h.mu.RLock()
	c, ok := h.conns[clientID]
	h.mu.RUnlock()
	if ok {
		h.push(c, payload)
	}
}

func (h *Hub) EmitAll(event string, data interface{}) {
	payload, err := encode(event, data)
	if err != nil {
		return
	}
	h.mu.RLock()
	for _, c := range h.conns {
		h.push(c, payload)
	}
	h.mu.RUnlock()
}

// push enqueues without blocking; a full queue means the client is not
// draining and the message is dropped.
func (h *Hub) push(c *Conn, payload []byte) {
	select {
	case c.Out <- payload:
		metrics.WSPushOK.Inc()
	default:
		metrics.WSPushBackpressure.Inc()
		logger.Warn("dropping message, outbound queue full", "client", c.ID)
	}
}

func encode(event string, data interface{}) ([]byte, error) {
	b, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		logger.Error("encode broadcast payload", "event", event, "err", err)
		return nil, err
	}
	return b, nil
}
