package gameserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrimmage/go/clients"
	"github.com/mcdev12/scrimmage/go/internal/match"
	"github.com/mcdev12/scrimmage/go/internal/models"
)

const commandTimeout = 10 * time.Second

// Client drives the game server through its agent's HTTP console API. It is
// the production implementation of the orchestrator's control surface; every
// command is fire-and-forget with failures logged, matching the contract.
type Client struct {
	base *clients.BaseClient
}

// NewClient builds a client for the agent at baseURL. apiKey, when set, is
// sent as a bearer token.
func NewClient(baseURL, apiKey string) *Client {
	base := clients.NewBaseClient(baseURL)
	base.SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		base.SetBearerToken(apiKey)
	}
	return &Client{base: base}
}

type commandRequest struct {
	Command string `json:"command"`
}

// exec sends one console command to the server.
func (c *Client) exec(command string) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	body, err := json.Marshal(commandRequest{Command: command})
	if err != nil {
		log.Error().Err(err).Str("command", command).Msg("failed to marshal console command")
		return
	}

	if _, err := c.base.Post(ctx, "/api/command", bytes.NewReader(body)); err != nil {
		log.Error().Err(err).Str("command", command).Msg("console command failed")
		return
	}
	log.Debug().Str("command", command).Msg("console command executed")
}

// ApplySettings pushes the tournament convar batch for a loaded match.
func (c *Client) ApplySettings(cfg models.MatchConfig) {
	c.exec(fmt.Sprintf("mp_teamname_1 %q", cfg.Team1.Name))
	c.exec(fmt.Sprintf("mp_teamname_2 %q", cfg.Team2.Name))
	if cfg.Team1.Flag != "" {
		c.exec(fmt.Sprintf("mp_teamflag_1 %s", cfg.Team1.Flag))
	}
	if cfg.Team2.Flag != "" {
		c.exec(fmt.Sprintf("mp_teamflag_2 %s", cfg.Team2.Flag))
	}
	c.exec(fmt.Sprintf("mp_maxrounds %d", cfg.MaxRounds))
	c.exec(fmt.Sprintf("mp_overtime_maxrounds %d", cfg.MaxOvertimeRounds))
	c.exec(fmt.Sprintf("mp_team_timeout_max %d", cfg.TeamTimeoutMax))
	c.exec(fmt.Sprintf("mp_team_timeout_time %d", cfg.TeamTimeoutTime))
	c.exec("mp_tournament 1")

	for name, value := range cfg.CVars {
		c.exec(fmt.Sprintf("%s %s", name, value))
	}
}

// ResetServerSettings restores the defaults the settings batch touched.
func (c *Client) ResetServerSettings() {
	c.exec("mp_teamname_1 \"\"")
	c.exec("mp_teamname_2 \"\"")
	c.exec("mp_tournament 0")
	c.exec("mp_backup_round_file backup")
	c.exec("exec gamemode_competitive")
}

func (c *Client) SwitchMap(name string) {
	c.exec(fmt.Sprintf("changelevel %s", name))
}

func (c *Client) SendMessage(text string) {
	c.exec(fmt.Sprintf("say %s", text))
}

func (c *Client) EndWarmup() {
	c.exec("mp_warmup_end")
}

func (c *Client) PauseServer() {
	c.exec("mp_pause_match")
}

func (c *Client) UnpauseServer() {
	c.exec("mp_unpause_match")
}

func (c *Client) DisableCheats() {
	c.exec("sv_cheats 0")
}

// SetupRoundBackup points round backups at a per-match file prefix so a
// crashed server can restore the right match.
func (c *Client) SetupRoundBackup(matchID string) {
	c.exec(fmt.Sprintf("mp_backup_round_file Scrimmage_%s_", matchID))
}

// StartDemoRecording names demos after the match and start time.
func (c *Client) StartDemoRecording(matchID string) {
	demoName := fmt.Sprintf("Scrimmage_Match_%s_%s", matchID, time.Now().UTC().Format("2006-01-02T15-04-05"))
	c.exec(fmt.Sprintf("tv_record %s", demoName))
}

func (c *Client) StopDemoRecording() {
	c.exec("tv_stoprecord")
}

// playerInfo is the agent's wire form of a connected player.
type playerInfo struct {
	SteamID string `json:"steam_id"`
	Name    string `json:"name"`
	Team    int    `json:"team"`
}

// GetAllPlayers lists the players currently on the server. Failures return
// an empty list; the orchestrator treats the roster as empty and admits
// players as they connect.
func (c *Client) GetAllPlayers() []match.PlayerHandle {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	data, err := c.base.Get(ctx, "/api/players")
	if err != nil {
		log.Error().Err(err).Msg("failed to list server players")
		return nil
	}

	var infos []playerInfo
	if err := json.Unmarshal(data, &infos); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal server players")
		return nil
	}

	handles := make([]match.PlayerHandle, 0, len(infos))
	for _, info := range infos {
		handles = append(handles, match.PlayerHandle{
			SteamID: info.SteamID,
			Name:    info.Name,
			Team:    models.Team(info.Team),
		})
	}
	return handles
}

// GetAvailableMaps lists the maps installed on the server.
func (c *Client) GetAvailableMaps() []string {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	data, err := c.base.Get(ctx, "/api/maps")
	if err != nil {
		log.Error().Err(err).Msg("failed to list server maps")
		return nil
	}

	var maps []string
	if err := json.Unmarshal(data, &maps); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal server maps")
		return nil
	}
	return maps
}

func (c *Client) SwitchPlayerTeam(steamID string, team models.Team) {
	c.exec(fmt.Sprintf("css_switchteam %s %d", steamID, int(team)))
}

func (c *Client) KickPlayer(steamID string, reason string) {
	c.exec(fmt.Sprintf("kickid %s %q", steamID, reason))
}

func (c *Client) SetPlayerCash(steamID string, amount int) {
	c.exec(fmt.Sprintf("css_setcash %s %d", steamID, amount))
}
