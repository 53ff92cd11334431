package service

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// event is the wire shape pushed to every connected admin client.
type event struct {
	Scope string      `json:"scope"`
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// Hub fans store change notifications out to connected websocket
// clients. One Hub serves every device; clients filter client-side by
// scope if they only care about one device.
type Hub struct {
	log zerolog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

// NewHub builds an empty hub. Callers wire it to a store via
// store.Subscribe(scope, hub.Broadcast).
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:     log.With().Str("component", "admin-event-hub").Logger(),
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// Broadcast matches store.Subscriber's signature: it marshals the
// notification and fans it out to every connected client.
func (h *Hub) Broadcast(scope, key string, value interface{}) {
	body, err := json.Marshal(event{Scope: scope, Key: key, Value: value})
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to marshal admin event")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- body:
		default:
			h.log.Warn().Msg("admin event client too slow, dropping message")
		}
	}
}

// Join registers conn and returns its outbound channel plus a leave
// function the caller must defer.
func (h *Hub) Join(conn *websocket.Conn) (<-chan []byte, func()) {
	ch := make(chan []byte, 32)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		close(ch)
	}
}
