// Package ws implements the realtime push channel of the admin console. The
// dashboard keeps one WebSocket open and receives fire-and-forget event
// frames; delivery failures drop the client, they never fail the operation
// that produced the event.
package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event is the frame pushed to connected dashboard clients.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	TS      int64       `json:"ts"`
}

// Hub tracks connected WebSocket clients and fans events out to them.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*websocket.Conn
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*websocket.Conn),
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// Handler is the fiber websocket handler. It parks the connection until the
// peer closes it; the read loop exists only to notice disconnects.
func (h *Hub) Handler(c *websocket.Conn) {
	id := uuid.NewString()

	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()

	log.Debug().Str("client", id).Msg("websocket client connected")

	defer func() {
		h.remove(id)
		_ = c.Close()
		log.Debug().Str("client", id).Msg("websocket client disconnected")
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, id)
}

// Broadcast sends an event frame to every connected client. Clients whose
// write fails are dropped. Safe to call from any goroutine.
func (h *Hub) Broadcast(eventType string, payload interface{}) {
	frame, err := json.Marshal(Event{
		Type:    eventType,
		Payload: payload,
		TS:      time.Now().UnixMilli(),
	})
	if err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("failed to encode websocket event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.clients {
		if err := c.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Debug().Err(err).Str("client", id).Msg("dropping websocket client")
			_ = c.Close()
			delete(h.clients, id)
		}
	}
}
