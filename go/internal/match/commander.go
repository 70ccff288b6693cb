package match

import (
	"github.com/mcdev12/scrimmage/go/internal/models"
)

// PlayerHandle is the host's view of a connected player, as reported by the
// game server control surface.
type PlayerHandle struct {
	SteamID string      `json:"steam_id"`
	Name    string      `json:"name"`
	Team    models.Team `json:"team"`
}

// Commander is the server control surface the orchestrator drives. All
// methods are fire-and-forget side effects from the machine's perspective;
// the host owns execution and failure handling.
type Commander interface {
	ApplySettings(cfg models.MatchConfig)
	SwitchMap(name string)
	GetAllPlayers() []PlayerHandle
	GetAvailableMaps() []string
	SendMessage(text string)
	EndWarmup()
	PauseServer()
	UnpauseServer()
	DisableCheats()
	SetupRoundBackup(matchID string)
	StartDemoRecording(matchID string)
	StopDemoRecording()
	ResetServerSettings()

	SwitchPlayerTeam(steamID string, team models.Team)
	KickPlayer(steamID string, reason string)
	SetPlayerCash(steamID string, amount int)
}
