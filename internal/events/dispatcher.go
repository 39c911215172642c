package events

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

// Dispatcher is the outbound notification surface. Implementations own
// delivery channels and localization; the engine only hands them structured
// transition payloads.
type Dispatcher interface {
	Notify(eventType string, payload ReservationEventPayload) error
}

// AttachDispatcher subscribes the dispatcher to every lifecycle event.
// Dispatch failures are logged and swallowed; a dead notification channel
// must not fail the transition that triggered it.
func AttachDispatcher(bus *EventBus, d Dispatcher, logger *zerolog.Logger) {
	bus.SubscribeAll(func(e *Event) error {
		var payload ReservationEventPayload
		if err := json.Unmarshal(e.Payload, &payload); err != nil {
			logger.Error().Err(err).Str("event", e.Type).Msg("failed to decode event for dispatch")
			return err
		}
		if err := d.Notify(e.Type, payload); err != nil {
			logger.Warn().Err(err).Str("event", e.Type).Msg("notification dispatch failed")
		}
		return nil
	})
}

// LogDispatcher records transitions without delivering anywhere. It stands in
// until a real channel (push, SMS, chat) is plugged behind the interface.
type LogDispatcher struct {
	logger *zerolog.Logger
}

func NewLogDispatcher(logger *zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Notify(eventType string, payload ReservationEventPayload) error {
	d.logger.Info().
		Str("event", eventType).
		Str("reservation_id", payload.ReservationID).
		Str("client_id", payload.ClientID).
		Str("status", payload.Status).
		Msg("notification")
	return nil
}
