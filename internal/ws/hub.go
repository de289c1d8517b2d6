package ws

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Client is one websocket subscribed to a checkout UI instance.
type Client struct {
	Key    string
	UserID uint
	Send   chan []byte
	hub    *Hub
	mu     sync.Mutex
	closed bool
}

func NewClient(key string, userID uint) *Client {
	return &Client{Key: key, UserID: userID, Send: make(chan []byte, 64)}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
	if c.hub != nil {
		c.hub.unregister(c)
	}
}

// enqueue drops the message when the client is closed or not keeping up.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// Hub fans checkout updates out to the sockets watching each session key.
// One key can have several sockets (e.g. the same tab reconnecting).
type Hub struct {
	mu    sync.RWMutex
	byKey map[string]map[*Client]struct{}
	log   zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		byKey: make(map[string]map[*Client]struct{}),
		log:   log,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.hub = h
	if h.byKey[c.Key] == nil {
		h.byKey[c.Key] = make(map[*Client]struct{})
	}
	h.byKey[c.Key][c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.byKey[c.Key]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(h.byKey, c.Key)
		}
	}
}

// Broadcast sends payload to every socket registered under key.
func (h *Hub) Broadcast(key string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("ws: marshal broadcast")
		return
	}
	h.mu.RLock()
	m := h.byKey[key]
	clients := make([]*Client, 0, len(m))
	for c := range m {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		if !c.enqueue(data) {
			h.log.Debug().Str("key", key).Msg("ws: dropped update for slow client")
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, m := range h.byKey {
		n += len(m)
	}
	return n
}

// CloseAll disconnects every client; used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	var clients []*Client
	for _, m := range h.byKey {
		for c := range m {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.Close()
	}
}
