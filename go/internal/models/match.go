package models

import (
	"time"
)

// MatchState is the authoritative phase of a match. Values are ordinal and
// ordered comparisons (state < MatchStateRunning) are part of the contract,
// so new states must only ever be appended in lifecycle order.
type MatchState int

const (
	MatchStateNone MatchState = iota
	MatchStateWaitingForPlayers
	MatchStateVeto
	MatchStateWarmup
	MatchStateRunning
	MatchStatePaused
	MatchStateOver
)

var matchStateNames = map[MatchState]string{
	MatchStateNone:              "NONE",
	MatchStateWaitingForPlayers: "WAITING_FOR_PLAYERS_READY",
	MatchStateVeto:              "VETO",
	MatchStateWarmup:            "WARMUP",
	MatchStateRunning:           "RUNNING",
	MatchStatePaused:            "PAUSED",
	MatchStateOver:              "OVER",
}

func (s MatchState) String() string {
	if name, ok := matchStateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Before reports whether s comes strictly before other in lifecycle order.
// MatchStatePaused is a sub-state of MatchStateRunning, so it is not Before it.
func (s MatchState) Before(other MatchState) bool {
	return s < other
}

// Team identifies a match side. The numeric values match the engine's team
// slots so observed teams from game events compare directly.
type Team int

const (
	TeamUnassigned Team = 0
	TeamSpectator  Team = 1
	Team1          Team = 2
	Team2          Team = 3
)

var teamNames = map[Team]string{
	TeamUnassigned: "UNASSIGNED",
	TeamSpectator:  "SPECTATOR",
	Team1:          "TEAM1",
	Team2:          "TEAM2",
}

func (t Team) String() string {
	if name, ok := teamNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Opponent returns the other playing side, or TeamUnassigned if t is not a
// playing side.
func (t Team) Opponent() Team {
	switch t {
	case Team1:
		return Team2
	case Team2:
		return Team1
	default:
		return TeamUnassigned
	}
}

// TeamMode defines how players are assigned to sides.
type TeamMode string

const (
	// TeamModeFixed assigns players from the per-team rosters in the config.
	TeamModeFixed TeamMode = "FIXED"
	// TeamModeOpen fills whichever side has room, first come first served.
	TeamModeOpen TeamMode = "OPEN"
)

// PlayerConnectionState tracks a roster entry's connection to the server.
type PlayerConnectionState int

const (
	PlayerNeverConnected PlayerConnectionState = iota
	PlayerConnected
	PlayerDisconnected
)

var connectionStateNames = map[PlayerConnectionState]string{
	PlayerNeverConnected: "NEVER_CONNECTED",
	PlayerConnected:      "CONNECTED",
	PlayerDisconnected:   "DISCONNECTED",
}

func (s PlayerConnectionState) String() string {
	if name, ok := connectionStateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// MatchPlayer is a roster entry. Entries are created on admission and live
// until match teardown; a disconnect only flips the connection state so a
// reconnecting player resumes the same slot.
type MatchPlayer struct {
	SteamID    string                `json:"steam_id"`
	Name       string                `json:"name"`
	Team       Team                  `json:"team"`
	Connection PlayerConnectionState `json:"connection"`
	Ready      bool                  `json:"ready"`
}

// TeamConfig describes one side of the match.
type TeamConfig struct {
	Name string `json:"name" yaml:"name"`
	Flag string `json:"flag" yaml:"flag"`
	// Players lists platform user IDs pre-assigned to this side. Only
	// consulted in TeamModeFixed.
	Players []string `json:"players,omitempty" yaml:"players,omitempty"`
}

// MatchConfig is the immutable description of a match, supplied by an
// external loader and consumed read-only by the orchestrator.
type MatchConfig struct {
	MatchID           string            `json:"matchid" yaml:"matchid"`
	Maplist           []string          `json:"maplist" yaml:"maplist"`
	Team1             TeamConfig        `json:"team1" yaml:"team1"`
	Team2             TeamConfig        `json:"team2" yaml:"team2"`
	NumMaps           int               `json:"num_maps" yaml:"num_maps"`
	PlayersPerTeam    int               `json:"players_per_team" yaml:"players_per_team"`
	MinPlayersToReady int               `json:"min_players_to_ready" yaml:"min_players_to_ready"`
	MaxRounds         int               `json:"max_rounds" yaml:"max_rounds"`
	MaxOvertimeRounds int               `json:"max_overtime_rounds" yaml:"max_overtime_rounds"`
	VoteTimeoutMS     int64             `json:"vote_timeout" yaml:"vote_timeout"`
	VoteMap           string            `json:"vote_map" yaml:"vote_map"`
	TeamMode          TeamMode          `json:"team_mode" yaml:"team_mode"`
	VetoMode          string            `json:"veto_mode" yaml:"veto_mode"`
	VetoFirst         string            `json:"veto_first" yaml:"veto_first"`
	TeamTimeoutMax    int               `json:"team_timeout_max" yaml:"team_timeout_max"`
	TeamTimeoutTime   int               `json:"team_timeout_time" yaml:"team_timeout_time"`
	CVars             map[string]string `json:"cvars,omitempty" yaml:"cvars,omitempty"`

	EventulaApistatsURL   string `json:"eventula_apistats_url,omitempty" yaml:"eventula_apistats_url,omitempty"`
	EventulaApistatsToken string `json:"eventula_apistats_token,omitempty" yaml:"eventula_apistats_token,omitempty"`
	EventulaDemoUploadURL string `json:"eventula_demo_upload_url,omitempty" yaml:"eventula_demo_upload_url,omitempty"`
}

// VoteTimeout returns the veto vote countdown as a duration.
func (c MatchConfig) VoteTimeout() time.Duration {
	return time.Duration(c.VoteTimeoutMS) * time.Millisecond
}

// TeamTimeoutBudget returns the per-pause time budget as a duration.
func (c MatchConfig) TeamTimeoutBudget() time.Duration {
	return time.Duration(c.TeamTimeoutTime) * time.Second
}

// VetoFirstTeam returns the side that takes the first ban.
func (c MatchConfig) VetoFirstTeam() Team {
	if c.VetoFirst == Team2.String() {
		return Team2
	}
	return Team1
}

// TeamName returns the configured display name for a side.
func (c MatchConfig) TeamName(t Team) string {
	switch t {
	case Team1:
		return c.Team1.Name
	case Team2:
		return c.Team2.Name
	default:
		return t.String()
	}
}

// RoundResult records one completed round while the match is live.
type RoundResult struct {
	MatchID    string    `json:"match_id"`
	Round      int       `json:"round"`
	WinnerTeam Team      `json:"winner_team"`
	Team1Score int       `json:"team1_score"`
	Team2Score int       `json:"team2_score"`
	EndedAt    time.Time `json:"ended_at"`
}

// MatchResult summarizes a finished match.
type MatchResult struct {
	MatchID      string    `json:"match_id"`
	Map          string    `json:"map"`
	WinnerTeam   Team      `json:"winner_team"`
	Team1Name    string    `json:"team1_name"`
	Team2Name    string    `json:"team2_name"`
	Team1Score   int       `json:"team1_score"`
	Team2Score   int       `json:"team2_score"`
	RoundsPlayed int       `json:"rounds_played"`
	DemoName     string    `json:"demo_name,omitempty"`
	CompletedAt  time.Time `json:"completed_at"`
}
