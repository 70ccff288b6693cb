package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mcdev12/scrimmage/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrConfigInvalid marks a match config that must not reach the orchestrator.
// Everything wrapped with it is fatal to match start.
var ErrConfigInvalid = errors.New("match config invalid")

const defaultLoadTimeout = 30 * time.Second

// Provider loads match configs from a local path or a remote URL. A zero
// Provider is usable; the HTTP client is only needed for remote loads.
type Provider struct {
	client *http.Client
}

// NewProvider creates a config provider with a default HTTP timeout.
func NewProvider() *Provider {
	return &Provider{
		client: &http.Client{Timeout: defaultLoadTimeout},
	}
}

// LoadFile reads and validates a match config from a local JSON file.
func (p *Provider) LoadFile(path string) (*models.MatchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read match config %s: %w", path, err)
	}
	return parseAndValidate(data)
}

// LoadURL fetches and validates a match config from a remote endpoint. The
// URL is normalized to https before the request; authToken, when set, is sent
// as a bearer token.
func (p *Provider) LoadURL(ctx context.Context, rawURL, authToken string) (*models.MatchConfig, error) {
	url := NormalizeHTTPS(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create config request: %w", err)
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch match config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("config endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read config response: %w", err)
	}

	cfg, err := parseAndValidate(data)
	if err != nil {
		return nil, err
	}

	log.Info().Str("match_id", cfg.MatchID).Str("url", url).Msg("loaded match config")
	return cfg, nil
}

func parseAndValidate(data []byte) (*models.MatchConfig, error) {
	var cfg models.MatchConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrConfigInvalid, err)
	}

	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *models.MatchConfig) {
	if cfg.NumMaps == 0 {
		cfg.NumMaps = 1
	}
	if cfg.PlayersPerTeam == 0 {
		cfg.PlayersPerTeam = 5
	}
	if cfg.MinPlayersToReady == 0 {
		cfg.MinPlayersToReady = 5
	}
	if cfg.MaxRounds == 0 {
		cfg.MaxRounds = 24
	}
	if cfg.MaxOvertimeRounds == 0 {
		cfg.MaxOvertimeRounds = 6
	}
	if cfg.VoteTimeoutMS == 0 {
		cfg.VoteTimeoutMS = 60000
	}
	if cfg.VoteMap == "" {
		cfg.VoteMap = "de_dust2"
	}
	if cfg.TeamMode == "" {
		cfg.TeamMode = models.TeamModeFixed
	}
	if cfg.TeamTimeoutMax == 0 {
		cfg.TeamTimeoutMax = 3
	}
	if cfg.TeamTimeoutTime == 0 {
		cfg.TeamTimeoutTime = 30
	}
	if cfg.VetoMode == "" {
		cfg.VetoMode = "BAN"
	}
	if cfg.VetoFirst == "" {
		cfg.VetoFirst = models.Team1.String()
	}
	if len(cfg.Maplist) == 0 {
		// No pool configured: fall back to a single-map vote pool.
		cfg.Maplist = []string{cfg.VoteMap}
		cfg.NumMaps = 1
	}

	cfg.EventulaApistatsURL = normalizeOptionalHTTPS(cfg.EventulaApistatsURL)
	cfg.EventulaDemoUploadURL = normalizeOptionalHTTPS(cfg.EventulaDemoUploadURL)
}

// Validate checks the invariants a config must hold before the orchestrator
// may be initialized. Errors wrap ErrConfigInvalid.
func Validate(cfg *models.MatchConfig) error {
	if cfg.MatchID == "" {
		return fmt.Errorf("%w: matchid is required", ErrConfigInvalid)
	}
	if cfg.Team1.Name == "" || cfg.Team2.Name == "" {
		return fmt.Errorf("%w: both team names are required", ErrConfigInvalid)
	}
	if cfg.PlayersPerTeam < 1 {
		return fmt.Errorf("%w: players_per_team must be positive", ErrConfigInvalid)
	}
	if cfg.MinPlayersToReady < 1 || cfg.MinPlayersToReady > cfg.PlayersPerTeam {
		return fmt.Errorf("%w: min_players_to_ready must be in [1, players_per_team]", ErrConfigInvalid)
	}
	if cfg.NumMaps < 1 {
		return fmt.Errorf("%w: num_maps must be positive", ErrConfigInvalid)
	}
	if len(cfg.Maplist) < cfg.NumMaps {
		return fmt.Errorf("%w: maplist has %d maps, need at least num_maps=%d", ErrConfigInvalid, len(cfg.Maplist), cfg.NumMaps)
	}
	if seen := duplicateMap(cfg.Maplist); seen != "" {
		return fmt.Errorf("%w: duplicate map %q in maplist", ErrConfigInvalid, seen)
	}
	if cfg.MaxRounds < 1 || cfg.MaxOvertimeRounds < 0 {
		return fmt.Errorf("%w: max_rounds must be positive and max_overtime_rounds non-negative", ErrConfigInvalid)
	}
	if cfg.VoteTimeoutMS < 0 {
		return fmt.Errorf("%w: vote_timeout must be non-negative", ErrConfigInvalid)
	}
	if cfg.TeamMode != models.TeamModeFixed && cfg.TeamMode != models.TeamModeOpen {
		return fmt.Errorf("%w: unknown team_mode %q", ErrConfigInvalid, cfg.TeamMode)
	}
	if cfg.VetoMode != "BAN" && cfg.VetoMode != "VOTE" {
		return fmt.Errorf("%w: unknown veto_mode %q", ErrConfigInvalid, cfg.VetoMode)
	}
	if cfg.VetoFirst != "" && cfg.VetoFirst != models.Team1.String() && cfg.VetoFirst != models.Team2.String() {
		return fmt.Errorf("%w: veto_first must be %s or %s", ErrConfigInvalid, models.Team1, models.Team2)
	}
	if cfg.TeamMode == models.TeamModeFixed {
		if len(cfg.Team1.Players) < cfg.MinPlayersToReady || len(cfg.Team2.Players) < cfg.MinPlayersToReady {
			return fmt.Errorf("%w: fixed team mode requires at least min_players_to_ready players per team", ErrConfigInvalid)
		}
	}
	return nil
}

func duplicateMap(maps []string) string {
	seen := make(map[string]bool, len(maps))
	for _, m := range maps {
		if seen[m] {
			return m
		}
		seen[m] = true
	}
	return ""
}

// NormalizeHTTPS forces a secure-transport scheme onto a URL. Plain http
// schemes are upgraded, bare hosts are prefixed.
func NormalizeHTTPS(rawURL string) string {
	switch {
	case rawURL == "":
		return ""
	case strings.HasPrefix(rawURL, "https://"):
		return rawURL
	case strings.HasPrefix(rawURL, "http://"):
		return "https://" + strings.TrimPrefix(rawURL, "http://")
	default:
		return "https://" + rawURL
	}
}

func normalizeOptionalHTTPS(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	return NormalizeHTTPS(rawURL)
}
