package websocket

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Conn is the part of *websocket.Conn the hub writes to.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

type Client struct {
	UserID uuid.UUID
	Conn   Conn

	mu sync.Mutex
}

func (c *Client) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteJSON(v)
}

// Hub tracks open notification sockets per user. A user may be connected from
// several tabs at once.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[uuid.UUID]map[*Client]struct{})}
}

func (h *Hub) Register(userID uuid.UUID, conn Conn) *Client {
	client := &Client{UserID: userID, Conn: conn}
	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
	h.mu.Unlock()
	log.Printf("Client registered: %s", userID)
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(h.clients, client.UserID)
	}
	log.Printf("Client unregistered: %s", client.UserID)
}

// Push sends payload to every socket of userID. Sockets that fail are closed and dropped.
func (h *Hub) Push(userID uuid.UUID, payload interface{}) bool {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := false
	for _, c := range targets {
		if err := c.write(payload); err != nil {
			log.Printf("Error sending notification to client %s: %v", userID, err)
			c.Conn.Close()
			h.Unregister(c)
			continue
		}
		delivered = true
	}
	return delivered
}

func (h *Hub) Connected(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
