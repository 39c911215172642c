package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"mesto/internal/events"
)

const eventsChannel = "mesto:reservation_events"

// bridgeFrame is the envelope mirrored through redis between instances.
type bridgeFrame struct {
	Event   string                         `json:"event"`
	Payload events.ReservationEventPayload `json:"payload"`
	Origin  string                         `json:"origin"`
}

// Bridge mirrors reservation events through redis pub/sub so viewers
// connected to one instance see transitions applied on another. Frames carry
// the origin instance id to drop the local echo.
type Bridge struct {
	client   *redis.Client
	instance string
	logger   *zerolog.Logger
}

func NewBridge(client *redis.Client, instanceID string, logger *zerolog.Logger) *Bridge {
	return &Bridge{client: client, instance: instanceID, logger: logger}
}

// Publish mirrors one event to the shared channel.
func (b *Bridge) Publish(eventType string, payload events.ReservationEventPayload) error {
	frame, err := json.Marshal(bridgeFrame{Event: eventType, Payload: payload, Origin: b.instance})
	if err != nil {
		return fmt.Errorf("failed to marshal bridge frame: %w", err)
	}
	if err := b.client.Publish(context.Background(), eventsChannel, frame).Err(); err != nil {
		return fmt.Errorf("failed to publish bridge frame: %w", err)
	}
	return nil
}

// Listen consumes mirrored events until the context ends, delivering frames
// from other instances into the local router.
func (b *Bridge) Listen(ctx context.Context, router *Router) {
	sub := b.client.Subscribe(ctx, eventsChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var frame bridgeFrame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				b.logger.Warn().Err(err).Msg("failed to decode bridge frame")
				continue
			}
			if frame.Origin == b.instance {
				continue
			}
			router.Deliver(frame.Event, frame.Payload)
		}
	}
}
