package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventPayloadReturnsTypedPayload(t *testing.T) {
	data, err := json.Marshal(RoundCompletedPayload{
		Round:      3,
		WinnerTeam: "TEAM2",
		Team1Score: 1,
		Team2Score: 2,
	})
	require.NoError(t, err)

	payload, err := ParseEventPayload(&MatchEvent{
		Type: EventTypeRoundCompleted,
		Data: data,
	})
	require.NoError(t, err)

	round, ok := payload.(RoundCompletedPayload)
	require.True(t, ok)
	assert.Equal(t, 3, round.Round)
	assert.Equal(t, "TEAM2", round.WinnerTeam)
	assert.Equal(t, 2, round.Team2Score)
}

func TestParseEventPayloadUnknownTypeIsNil(t *testing.T) {
	payload, err := ParseEventPayload(&MatchEvent{
		Type: EventType("SomethingElse"),
		Data: json.RawMessage(`{"x":1}`),
	})
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestParseEventPayloadMalformedData(t *testing.T) {
	_, err := ParseEventPayload(&MatchEvent{
		Type: EventTypeMatchPaused,
		Data: json.RawMessage(`{`),
	})
	require.Error(t, err)
}
