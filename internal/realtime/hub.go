package realtime

import (
	"sync"

	"github.com/rs/zerolog"

	"mesto/internal/metrics"
)

// Conn is one realtime connection. Implementations wrap the actual socket.
type Conn interface {
	ID() string
	Send(payload []byte) error
}

// Hub tracks which connection sits in which rooms and delivers each payload
// to a connection at most once, however many matched rooms it joined.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]Conn
	conns  map[string][]string
	logger *zerolog.Logger
}

func NewHub(logger *zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[string]Conn),
		conns:  make(map[string][]string),
		logger: logger,
	}
}

// Join adds the connection to the rooms, on top of any it already joined.
func (h *Hub) Join(conn Conn, rooms ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range rooms {
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[string]Conn)
			h.rooms[room] = members
		}
		if _, joined := members[conn.ID()]; joined {
			continue
		}
		members[conn.ID()] = conn
		h.conns[conn.ID()] = append(h.conns[conn.ID()], room)
	}
}

// Disconnect removes the connection from every room it joined.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range h.conns[connID] {
		delete(h.rooms[room], connID)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.conns, connID)
}

// Broadcast sends the payload to every connection present in at least one of
// the rooms, once per connection.
func (h *Hub) Broadcast(rooms []string, payload []byte) {
	h.mu.RLock()
	targets := make(map[string]Conn)
	for _, room := range rooms {
		for id, conn := range h.rooms[room] {
			targets[id] = conn
		}
	}
	h.mu.RUnlock()

	for id, conn := range targets {
		if err := conn.Send(payload); err != nil {
			h.logger.Warn().Err(err).Str("conn_id", id).Msg("realtime delivery failed")
			continue
		}
		metrics.IncRealtimeDelivery()
	}
}

// RoomSize reports the member count of a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
