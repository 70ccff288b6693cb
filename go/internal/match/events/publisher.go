package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Publisher is how the orchestrator announces state changes. Implementations
// must not block the caller for long; the lifecycle loop publishes inline.
type Publisher interface {
	Publish(matchID string, eventType EventType, payload interface{})
}

// SubjectForEvent returns the NATS subject an event type is published on.
func SubjectForEvent(eventType EventType) string {
	return fmt.Sprintf("match.events.%s", eventType)
}

// NATSPublisher publishes match events onto core NATS subjects under
// match.events.>. Publish failures are logged and dropped; events are
// advisory for downstream consumers, never load-bearing for the machine.
type NATSPublisher struct {
	nc *nats.Conn
}

// NewNATSPublisher wraps an established NATS connection.
func NewNATSPublisher(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

func (p *NATSPublisher) Publish(matchID string, eventType EventType, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to marshal event payload")
		return
	}

	event := MatchEvent{
		ID:        uuid.New().String(),
		MatchID:   matchID,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	raw, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to marshal event envelope")
		return
	}

	if err := p.nc.Publish(SubjectForEvent(eventType), raw); err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish match event")
		return
	}

	log.Debug().
		Str("event_type", string(eventType)).
		Str("match_id", matchID).
		Msg("match event published")
}

// NopPublisher discards every event. Used when no bus is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(string, EventType, interface{}) {}
