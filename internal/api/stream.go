package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"mesto/internal/models"
	"mesto/internal/realtime"
)

// sseConn adapts a server-sent-events response into a hub connection. Send
// never blocks; a viewer that stops reading loses frames instead of stalling
// the broadcast.
type sseConn struct {
	id string
	ch chan []byte
}

func newSSEConn() *sseConn {
	return &sseConn{id: uuid.New().String(), ch: make(chan []byte, 64)}
}

func (c *sseConn) ID() string { return c.id }

func (c *sseConn) Send(payload []byte) error {
	select {
	case c.ch <- payload:
		return nil
	default:
		return fmt.Errorf("connection %s is not keeping up", c.id)
	}
}

// handleStream admits a realtime token and streams hub deliveries as SSE
// frames. Staff viewers watch the venue firehose, narrowed to one table's
// day when the table parameter is given; customers get their private room.
func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	grant, err := s.minter.Admit(r.Context(), token)
	if err != nil {
		if errors.Is(err, realtime.ErrInvalidToken) || errors.Is(err, realtime.ErrTokenConsumed) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("token admission failed")
		writeError(w, http.StatusInternalServerError, "admission failed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	day := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		day, err = parseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	var rooms []string
	if grant.Role == models.RoleOwner || grant.Role == models.RoleEmployee {
		if table := r.URL.Query().Get("table"); table != "" {
			rooms = append(rooms, realtime.DayRoom(table, day))
		} else {
			rooms = append(rooms, realtime.VenueRoom(grant.VenueID))
		}
	} else {
		rooms = append(rooms, realtime.ClientRoom(grant.UserID))
	}

	conn := newSSEConn()
	s.hub.Join(conn, rooms...)
	defer s.hub.Disconnect(conn.ID())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case payload := <-conn.ch:
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
