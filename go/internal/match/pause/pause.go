package pause

import (
	"errors"
	"time"

	"github.com/mcdev12/scrimmage/go/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNoCreditsLeft means the team has spent all its pause credits.
	ErrNoCreditsLeft = errors.New("no pause credits left")
	// ErrNotPaused means there is no pause to lift.
	ErrNotPaused = errors.New("match is not paused")
	// ErrAlreadyPaused means a pause is already in effect.
	ErrAlreadyPaused = errors.New("match is already paused")
)

// Manager tracks each team's pause credits and the time budget of the
// current pause. It owns no timers itself: the lifecycle machine reads
// Deadline and schedules the forced-unpause expiry.
type Manager struct {
	credits   map[models.Team]int
	perPause  time.Duration
	elapsed   map[models.Team]time.Duration
	paused    bool
	pausedBy  models.Team
	pausedAt  time.Time
	deadline  time.Time
}

// NewManager gives each side the configured number of pause credits, each
// bounded by the per-pause time budget.
func NewManager(creditsPerTeam int, perPause time.Duration) *Manager {
	return &Manager{
		credits: map[models.Team]int{
			models.Team1: creditsPerTeam,
			models.Team2: creditsPerTeam,
		},
		perPause: perPause,
		elapsed:  make(map[models.Team]time.Duration),
	}
}

// RequestPause spends one of the team's credits and opens a pause window
// ending at the returned deadline.
func (m *Manager) RequestPause(team models.Team, now time.Time) (time.Time, error) {
	if m.paused {
		return time.Time{}, ErrAlreadyPaused
	}
	if m.credits[team] <= 0 {
		return time.Time{}, ErrNoCreditsLeft
	}

	m.credits[team]--
	m.paused = true
	m.pausedBy = team
	m.pausedAt = now
	m.deadline = now.Add(m.perPause)

	log.Info().
		Str("team", team.String()).
		Int("credits_left", m.credits[team]).
		Time("expires_at", m.deadline).
		Msg("pause granted")

	return m.deadline, nil
}

// RequestUnpause lifts the current pause. Any team may lift it.
func (m *Manager) RequestUnpause(now time.Time) error {
	if !m.paused {
		return ErrNotPaused
	}
	m.close(now)
	return nil
}

// Expire force-lifts the pause once its time budget is exhausted. Returns
// false if no pause is open or the deadline has not passed yet.
func (m *Manager) Expire(now time.Time) bool {
	if !m.paused || now.Before(m.deadline) {
		return false
	}
	log.Info().Str("team", m.pausedBy.String()).Msg("pause budget exhausted, forcing unpause")
	m.close(now)
	return true
}

func (m *Manager) close(now time.Time) {
	m.elapsed[m.pausedBy] += now.Sub(m.pausedAt)
	m.paused = false
	m.pausedBy = models.TeamUnassigned
	m.deadline = time.Time{}
}

// Paused reports whether a pause is currently in effect and which team
// requested it.
func (m *Manager) Paused() (models.Team, bool) {
	return m.pausedBy, m.paused
}

// Deadline returns the forced-unpause deadline of the open pause, if any.
func (m *Manager) Deadline() (time.Time, bool) {
	return m.deadline, m.paused
}

// CreditsLeft returns the team's remaining pause credits.
func (m *Manager) CreditsLeft(team models.Team) int {
	return m.credits[team]
}

// Elapsed returns the cumulative pause time a team has consumed.
func (m *Manager) Elapsed(team models.Team) time.Duration {
	return m.elapsed[team]
}
