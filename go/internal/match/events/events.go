package events

import (
	"encoding/json"
	"time"
)

// MatchEvent is the envelope published for every state change the
// orchestrator makes.
type MatchEvent struct {
	ID        string          `json:"id"`
	MatchID   string          `json:"match_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType identifies the payload carried by a MatchEvent.
type EventType string

const (
	EventTypeMatchInitialized  EventType = "MatchInitialized"
	EventTypePhaseChanged      EventType = "PhaseChanged"
	EventTypePlayerAdmitted    EventType = "PlayerAdmitted"
	EventTypePlayerLeft        EventType = "PlayerLeft"
	EventTypeReadyChanged      EventType = "ReadyChanged"
	EventTypeMapBanned         EventType = "MapBanned"
	EventTypeMapVoteResolved   EventType = "MapVoteResolved"
	EventTypeMapsSelected      EventType = "MapsSelected"
	EventTypeMatchPaused       EventType = "MatchPaused"
	EventTypeMatchUnpaused     EventType = "MatchUnpaused"
	EventTypeTeamCorrected     EventType = "TeamCorrected"
	EventTypeRoundCompleted    EventType = "RoundCompleted"
	EventTypeMatchCompleted    EventType = "MatchCompleted"
)

// ParseEventPayload parses an event's data into the payload struct for its
// type. Unknown types yield a nil payload, not an error.
func ParseEventPayload(event *MatchEvent) (interface{}, error) {
	switch event.Type {
	case EventTypeMatchInitialized:
		return unmarshalPayload[MatchInitializedPayload](event.Data)
	case EventTypePhaseChanged:
		return unmarshalPayload[PhaseChangedPayload](event.Data)
	case EventTypePlayerAdmitted:
		return unmarshalPayload[PlayerAdmittedPayload](event.Data)
	case EventTypePlayerLeft:
		return unmarshalPayload[PlayerLeftPayload](event.Data)
	case EventTypeReadyChanged:
		return unmarshalPayload[ReadyChangedPayload](event.Data)
	case EventTypeMapBanned:
		return unmarshalPayload[MapBannedPayload](event.Data)
	case EventTypeMapVoteResolved:
		return unmarshalPayload[MapVoteResolvedPayload](event.Data)
	case EventTypeMapsSelected:
		return unmarshalPayload[MapsSelectedPayload](event.Data)
	case EventTypeMatchPaused:
		return unmarshalPayload[MatchPausedPayload](event.Data)
	case EventTypeMatchUnpaused:
		return unmarshalPayload[MatchUnpausedPayload](event.Data)
	case EventTypeTeamCorrected:
		return unmarshalPayload[TeamCorrectedPayload](event.Data)
	case EventTypeRoundCompleted:
		return unmarshalPayload[RoundCompletedPayload](event.Data)
	case EventTypeMatchCompleted:
		return unmarshalPayload[MatchCompletedPayload](event.Data)
	default:
		return nil, nil
	}
}

func unmarshalPayload[T any](data json.RawMessage) (T, error) {
	var payload T
	err := json.Unmarshal(data, &payload)
	return payload, err
}
