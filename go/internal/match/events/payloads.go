package events

import (
	"time"

	"github.com/mcdev12/scrimmage/go/internal/models"
)

// MatchInitializedPayload is emitted once when a config passes validation
// and the machine enters the waiting phase.
type MatchInitializedPayload struct {
	MatchID        string   `json:"match_id"`
	Team1Name      string   `json:"team1_name"`
	Team2Name      string   `json:"team2_name"`
	Maplist        []string `json:"maplist"`
	NumMaps        int      `json:"num_maps"`
	PlayersPerTeam int      `json:"players_per_team"`
}

// PhaseChangedPayload is emitted on every lifecycle transition.
type PhaseChangedPayload struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedAt time.Time `json:"changed_at"`
}

// PlayerAdmittedPayload is emitted when a player is placed on the roster.
type PlayerAdmittedPayload struct {
	SteamID     string `json:"steam_id"`
	Name        string `json:"name"`
	Team        string `json:"team"`
	Reconnected bool   `json:"reconnected"`
}

// PlayerLeftPayload is emitted when a roster player disconnects.
type PlayerLeftPayload struct {
	SteamID string `json:"steam_id"`
}

// ReadyChangedPayload is emitted whenever a player's ready flag changes.
type ReadyChangedPayload struct {
	SteamID     string `json:"steam_id"`
	Ready       bool   `json:"ready"`
	Team1Ready  int    `json:"team1_ready"`
	Team2Ready  int    `json:"team2_ready"`
	ReadyNeeded int    `json:"ready_needed"`
}

// MapBannedPayload is emitted for each valid veto ban.
type MapBannedPayload struct {
	Map       string   `json:"map"`
	Team      string   `json:"team"`
	Remaining []string `json:"remaining"`
}

// MapVoteResolvedPayload is emitted when a voting round eliminates a map,
// whether by quorum or by timeout tie-break.
type MapVoteResolvedPayload struct {
	Eliminated string   `json:"eliminated"`
	ByTimeout  bool     `json:"by_timeout"`
	Remaining  []string `json:"remaining"`
}

// MapsSelectedPayload is emitted when the veto finishes with the series
// map list.
type MapsSelectedPayload struct {
	Maps []string `json:"maps"`
}

// MatchPausedPayload is emitted when a pause is granted.
type MatchPausedPayload struct {
	Team        string    `json:"team"`
	CreditsLeft int       `json:"credits_left"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// MatchUnpausedPayload is emitted when a pause is lifted, whether by
// request or by budget expiry.
type MatchUnpausedPayload struct {
	Forced bool `json:"forced"`
}

// TeamCorrectedPayload is emitted after a deferred team-switch correction
// has been applied.
type TeamCorrectedPayload struct {
	SteamID      string `json:"steam_id"`
	ObservedTeam string `json:"observed_team"`
	AssignedTeam string `json:"assigned_team"`
}

// RoundCompletedPayload is emitted per round while the match is live.
type RoundCompletedPayload struct {
	Round      int       `json:"round"`
	WinnerTeam string    `json:"winner_team"`
	Team1Score int       `json:"team1_score"`
	Team2Score int       `json:"team2_score"`
	EndedAt    time.Time `json:"ended_at"`
}

// MatchCompletedPayload is emitted once on the transition to the terminal
// state.
type MatchCompletedPayload struct {
	Result models.MatchResult `json:"result"`
}
