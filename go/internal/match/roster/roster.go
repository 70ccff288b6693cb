package roster

import (
	"errors"
	"sync"

	"github.com/mcdev12/scrimmage/go/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	// ErrRosterFull means the player's side has no free slot.
	ErrRosterFull = errors.New("roster full")
	// ErrNotInMatch means the player is not part of this match's lineup.
	ErrNotInMatch = errors.New("player not in match")
	// ErrPlayerNotFound means the player was never admitted to the roster.
	ErrPlayerNotFound = errors.New("player not found in roster")
)

// Registry is the authoritative mapping from player identity to assigned
// team and connection/readiness status. Admission and the per-team capacity
// check happen under one lock, so no two concurrent admissions can both
// succeed past capacity.
type Registry struct {
	mu sync.Mutex

	playersPerTeam int
	mode           models.TeamMode
	team1IDs       map[string]bool
	team2IDs       map[string]bool

	players map[string]*models.MatchPlayer
}

// NewRegistry builds a registry from the match config's team descriptors.
func NewRegistry(cfg models.MatchConfig) *Registry {
	return &Registry{
		playersPerTeam: cfg.PlayersPerTeam,
		mode:           cfg.TeamMode,
		team1IDs:       idSet(cfg.Team1.Players),
		team2IDs:       idSet(cfg.Team2.Players),
		players:        make(map[string]*models.MatchPlayer),
	}
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// TryAdmit admits a player, assigning their side. A player who already holds
// a slot is re-marked connected with readiness cleared (the reconnect path,
// reported through the second return). Returns ErrNotInMatch or ErrRosterFull
// without side effects on rejection.
func (r *Registry) TryAdmit(steamID, name string) (models.Team, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.players[steamID]; ok {
		existing.Connection = models.PlayerConnected
		existing.Ready = false
		if name != "" {
			existing.Name = name
		}
		log.Info().Str("steam_id", steamID).Str("team", existing.Team.String()).Msg("player reconnected, readiness cleared")
		return existing.Team, true, nil
	}

	team, err := r.assignTeam(steamID)
	if err != nil {
		return models.TeamUnassigned, false, err
	}

	r.players[steamID] = &models.MatchPlayer{
		SteamID:    steamID,
		Name:       name,
		Team:       team,
		Connection: models.PlayerConnected,
	}

	log.Info().Str("steam_id", steamID).Str("team", team.String()).Msg("player admitted to roster")
	return team, false, nil
}

// assignTeam resolves the side for a new player. Caller holds the lock.
func (r *Registry) assignTeam(steamID string) (models.Team, error) {
	switch r.mode {
	case models.TeamModeFixed:
		var team models.Team
		switch {
		case r.team1IDs[steamID]:
			team = models.Team1
		case r.team2IDs[steamID]:
			team = models.Team2
		default:
			return models.TeamUnassigned, ErrNotInMatch
		}
		if r.countLocked(team) >= r.playersPerTeam {
			return models.TeamUnassigned, ErrRosterFull
		}
		return team, nil

	default: // TeamModeOpen
		if r.countLocked(models.Team1) < r.playersPerTeam {
			return models.Team1, nil
		}
		if r.countLocked(models.Team2) < r.playersPerTeam {
			return models.Team2, nil
		}
		return models.TeamUnassigned, ErrRosterFull
	}
}

func (r *Registry) countLocked(team models.Team) int {
	n := 0
	for _, p := range r.players {
		if p.Team == team {
			n++
		}
	}
	return n
}

// SetDisconnected marks a player disconnected and clears readiness. The slot
// is kept so a reconnect resumes it.
func (r *Registry) SetDisconnected(steamID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[steamID]
	if !ok {
		return
	}
	p.Connection = models.PlayerDisconnected
	p.Ready = false
}

// SetReady sets a player's ready flag and returns the new value.
func (r *Registry) SetReady(steamID string, ready bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[steamID]
	if !ok {
		return false, ErrPlayerNotFound
	}
	p.Ready = ready
	return p.Ready, nil
}

// ToggleReady flips a player's ready flag and returns the new value.
func (r *Registry) ToggleReady(steamID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[steamID]
	if !ok {
		return false, ErrPlayerNotFound
	}
	p.Ready = !p.Ready
	return p.Ready, nil
}

// TeamOf returns the configured side for an admitted player.
func (r *Registry) TeamOf(steamID string) (models.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[steamID]
	if !ok {
		return models.TeamUnassigned, ErrPlayerNotFound
	}
	return p.Team, nil
}

// ReadyCount returns the number of ready and connected players on a side.
func (r *Registry) ReadyCount(team models.Team) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, p := range r.players {
		if p.Team == team && p.Connection == models.PlayerConnected && p.Ready {
			n++
		}
	}
	return n
}

// ConnectedCount returns the number of connected players on a side.
func (r *Registry) ConnectedCount(team models.Team) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, p := range r.players {
		if p.Team == team && p.Connection == models.PlayerConnected {
			n++
		}
	}
	return n
}

// ResetReady clears every player's ready flag.
func (r *Registry) ResetReady() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.players {
		p.Ready = false
	}
}

// Players returns a snapshot of all roster entries.
func (r *Registry) Players() []models.MatchPlayer {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.MatchPlayer, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, *p)
	}
	return out
}
