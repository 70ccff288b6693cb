package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrimmage/go/clients"
	"github.com/mcdev12/scrimmage/go/internal/models"
)

// Reporter pushes round and match results to a tournament platform's stats
// endpoints. Everything is best-effort: a dead stats backend never affects
// the match.
type Reporter struct {
	stats         *clients.BaseClient
	demoUploadURL string
	token         string
}

// New builds a reporter from the match config's platform endpoints. Returns
// nil when no stats URL is configured; callers treat a nil reporter as
// reporting disabled.
func New(cfg models.MatchConfig) *Reporter {
	if cfg.EventulaApistatsURL == "" {
		return nil
	}

	stats := clients.NewBaseClient(cfg.EventulaApistatsURL)
	stats.SetHeader("Content-Type", "application/json")
	if cfg.EventulaApistatsToken != "" {
		stats.SetBearerToken(cfg.EventulaApistatsToken)
	}

	return &Reporter{
		stats:         stats,
		demoUploadURL: cfg.EventulaDemoUploadURL,
		token:         cfg.EventulaApistatsToken,
	}
}

type roundReport struct {
	MatchID    string    `json:"match_id"`
	Round      int       `json:"round"`
	WinnerTeam string    `json:"winner_team"`
	Team1Score int       `json:"team1_score"`
	Team2Score int       `json:"team2_score"`
	EndedAt    time.Time `json:"ended_at"`
}

type finalReport struct {
	MatchID      string    `json:"match_id"`
	Map          string    `json:"map"`
	WinnerTeam   string    `json:"winner_team"`
	Team1Name    string    `json:"team1_name"`
	Team2Name    string    `json:"team2_name"`
	Team1Score   int       `json:"team1_score"`
	Team2Score   int       `json:"team2_score"`
	RoundsPlayed int       `json:"rounds_played"`
	CompletedAt  time.Time `json:"completed_at"`
}

// ReportRound posts one completed round to the stats endpoint.
func (r *Reporter) ReportRound(ctx context.Context, round models.RoundResult) error {
	report := roundReport{
		MatchID:    round.MatchID,
		Round:      round.Round,
		WinnerTeam: round.WinnerTeam.String(),
		Team1Score: round.Team1Score,
		Team2Score: round.Team2Score,
		EndedAt:    round.EndedAt,
	}
	return r.post(ctx, "", report)
}

// ReportFinal posts the match result to the stats endpoint.
func (r *Reporter) ReportFinal(ctx context.Context, result models.MatchResult) error {
	report := finalReport{
		MatchID:      result.MatchID,
		Map:          result.Map,
		WinnerTeam:   result.WinnerTeam.String(),
		Team1Name:    result.Team1Name,
		Team2Name:    result.Team2Name,
		Team1Score:   result.Team1Score,
		Team2Score:   result.Team2Score,
		RoundsPlayed: result.RoundsPlayed,
		CompletedAt:  result.CompletedAt,
	}
	return r.post(ctx, "/final", report)
}

func (r *Reporter) post(ctx context.Context, endpoint string, report interface{}) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal stats report: %w", err)
	}
	if _, err := r.stats.Post(ctx, endpoint, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("post stats report: %w", err)
	}
	return nil
}

// UploadDemo sends a recorded demo file to the platform's upload endpoint as
// a multipart form.
func (r *Reporter) UploadDemo(ctx context.Context, path string) error {
	if r.demoUploadURL == "" {
		log.Debug().Msg("no demo upload endpoint configured, skipping upload")
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open demo %s: %w", path, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("demo", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create demo form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy demo into form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finish demo form: %w", err)
	}

	upload := clients.NewBaseClient(r.demoUploadURL)
	upload.SetHeader("Content-Type", writer.FormDataContentType())
	if r.token != "" {
		upload.SetBearerToken(r.token)
	}

	if _, err := upload.Post(ctx, "", &buf); err != nil {
		return fmt.Errorf("upload demo %s: %w", path, err)
	}

	log.Info().Str("demo", filepath.Base(path)).Msg("demo uploaded")
	return nil
}
