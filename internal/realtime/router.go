package realtime

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"mesto/internal/events"
)

// Message is the wire frame delivered to connections.
type Message struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// customerView is the reduced payload customers receive in their private
// room: no actor identity, no other-party details.
type customerView struct {
	ReservationID string    `json:"reservation_id"`
	Status        string    `json:"status"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
}

// Router subscribes to the event bus and fans each reservation event out to
// the matching rooms.
type Router struct {
	hub    *Hub
	bridge *Bridge
	logger *zerolog.Logger
}

// NewRouter wires the router into the bus. A nil bridge keeps the fan-out
// local to this process.
func NewRouter(hub *Hub, bridge *Bridge, bus *events.EventBus, logger *zerolog.Logger) *Router {
	r := &Router{hub: hub, bridge: bridge, logger: logger}
	bus.SubscribeAll(r.handle)
	return r
}

func (r *Router) handle(e *events.Event) error {
	var payload events.ReservationEventPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		r.logger.Error().Err(err).Str("event", e.Type).Msg("failed to decode event payload")
		return err
	}

	r.Deliver(e.Type, payload)

	if r.bridge != nil {
		if err := r.bridge.Publish(e.Type, payload); err != nil {
			r.logger.Warn().Err(err).Str("event", e.Type).Msg("failed to mirror event to redis")
		}
	}
	return nil
}

// Deliver pushes one event into the local hub: the full payload to the
// venue's rooms, the reduced view to the customer's private room.
func (r *Router) Deliver(eventType string, payload events.ReservationEventPayload) {
	full, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to marshal payload")
		return
	}
	frame, err := json.Marshal(Message{Event: eventType, Payload: full})
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to marshal frame")
		return
	}

	rooms := RoomsFor(payload.TableID, payload.StartTime, payload.EndTime)
	rooms = append(rooms, VenueRoom(payload.VenueID))
	r.hub.Broadcast(rooms, frame)

	if payload.ClientID != "" {
		reduced, err := json.Marshal(customerView{
			ReservationID: payload.ReservationID,
			Status:        payload.Status,
			StartTime:     payload.StartTime,
			EndTime:       payload.EndTime,
		})
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to marshal customer view")
			return
		}
		clientFrame, err := json.Marshal(Message{Event: eventType, Payload: reduced})
		if err != nil {
			return
		}
		r.hub.Broadcast([]string{ClientRoom(payload.ClientID)}, clientFrame)
	}
}
