package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/locus/internal/interfaces"
)

// AllEventTypes lists every domain event the application publishes
var AllEventTypes = []interfaces.EventType{
	interfaces.EventPlacesSearchStarted,
	interfaces.EventPlacesSearchCompleted,
	interfaces.EventPlacesSearchFailed,
	interfaces.EventConnectivityChanged,
	interfaces.EventHistoryUpdated,
	interfaces.EventPlaceSelected,
}

// NewLoggerSubscriber creates an event handler that logs all events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().Str("event_type", string(event.Type))

		if payload, ok := event.Payload.(map[string]interface{}); ok {
			for _, field := range []string{"query", "place_id", "error"} {
				if v, ok := payload[field].(string); ok && v != "" {
					logEvent = logEvent.Str(field, v)
				}
			}
			if count, ok := payload["count"].(int); ok {
				logEvent = logEvent.Int("count", count)
			}
			if offline, ok := payload["offline"].(bool); ok {
				logEvent = logEvent.Bool("offline", offline)
			}
		}

		logEvent.Msg("Event published")
		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	for _, eventType := range AllEventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Debug().
		Int("event_type_count", len(AllEventTypes)).
		Msg("Logger subscribed to all event types")

	return nil
}
