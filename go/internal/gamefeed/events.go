package gamefeed

import (
	"encoding/json"
	"time"
)

// GameEvent is the envelope the game server agent publishes for every engine
// event, on game.events.<type>.
type GameEvent struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Engine event types the feed reacts to. Everything else is ignored.
const (
	EventPlayerConnectFull = "player_connect_full"
	EventPlayerDisconnect  = "player_disconnect"
	EventPlayerTeam        = "player_team"
	EventPlayerSpawn       = "player_spawn"
	EventRoundPrestart     = "round_prestart"
	EventRoundFreezeEnd    = "round_freeze_end"
	EventRoundEnd          = "round_end"
	EventWinPanelMatch     = "cs_win_panel_match"
	EventServerCvar        = "server_cvar"
)

// PlayerConnectPayload carries a fully-connected player. The team is the
// engine's numeric team slot.
type PlayerConnectPayload struct {
	SteamID string `json:"steam_id"`
	Name    string `json:"name"`
	Team    int    `json:"team"`
}

// PlayerDisconnectPayload carries a player leaving the server.
type PlayerDisconnectPayload struct {
	SteamID string `json:"steam_id"`
	Reason  string `json:"reason,omitempty"`
}

// PlayerTeamPayload carries an engine-side team change.
type PlayerTeamPayload struct {
	SteamID string `json:"steam_id"`
	Team    int    `json:"team"`
}

// PlayerSpawnPayload carries a player spawning in.
type PlayerSpawnPayload struct {
	SteamID string `json:"steam_id"`
}

// RoundEndPayload carries the completed round's winner slot and the running
// team scores.
type RoundEndPayload struct {
	Winner     int `json:"winner"`
	Team1Score int `json:"team1_score"`
	Team2Score int `json:"team2_score"`
}

// ServerCvarPayload carries a convar change broadcast by the server.
type ServerCvarPayload struct {
	Name  string `json:"cvar_name"`
	Value string `json:"cvar_value"`
}
