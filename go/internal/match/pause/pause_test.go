package pause

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/scrimmage/go/internal/models"
)

func TestPauseSpendsOneCredit(t *testing.T) {
	m := NewManager(2, 30*time.Second)
	now := time.Unix(1000, 0)

	deadline, err := m.RequestPause(models.Team1, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(30*time.Second), deadline)
	assert.Equal(t, 1, m.CreditsLeft(models.Team1))
	assert.Equal(t, 2, m.CreditsLeft(models.Team2))

	team, paused := m.Paused()
	assert.True(t, paused)
	assert.Equal(t, models.Team1, team)
}

func TestPauseWhilePausedIsRejected(t *testing.T) {
	m := NewManager(2, 30*time.Second)
	now := time.Unix(1000, 0)

	_, err := m.RequestPause(models.Team1, now)
	require.NoError(t, err)

	_, err = m.RequestPause(models.Team2, now)
	assert.ErrorIs(t, err, ErrAlreadyPaused)
	// The rejected request must not burn the other team's credit.
	assert.Equal(t, 2, m.CreditsLeft(models.Team2))
}

func TestPauseWithoutCreditsIsRejected(t *testing.T) {
	m := NewManager(1, time.Second)
	now := time.Unix(0, 0)

	_, err := m.RequestPause(models.Team1, now)
	require.NoError(t, err)
	require.NoError(t, m.RequestUnpause(now.Add(time.Second)))

	_, err = m.RequestPause(models.Team1, now.Add(2*time.Second))
	assert.ErrorIs(t, err, ErrNoCreditsLeft)
}

func TestUnpauseWithoutPauseIsRejected(t *testing.T) {
	m := NewManager(1, time.Second)
	err := m.RequestUnpause(time.Unix(0, 0))
	assert.ErrorIs(t, err, ErrNotPaused)
}

func TestExpireForcesUnpauseAtDeadline(t *testing.T) {
	m := NewManager(1, 30*time.Second)
	now := time.Unix(1000, 0)

	deadline, err := m.RequestPause(models.Team2, now)
	require.NoError(t, err)

	assert.False(t, m.Expire(deadline.Add(-time.Millisecond)))
	assert.True(t, m.Expire(deadline))

	_, paused := m.Paused()
	assert.False(t, paused)
	assert.False(t, m.Expire(deadline.Add(time.Minute)))
}

func TestElapsedAccumulatesPerTeam(t *testing.T) {
	m := NewManager(3, time.Minute)
	now := time.Unix(0, 0)

	_, err := m.RequestPause(models.Team1, now)
	require.NoError(t, err)
	require.NoError(t, m.RequestUnpause(now.Add(10*time.Second)))

	_, err = m.RequestPause(models.Team1, now.Add(20*time.Second))
	require.NoError(t, err)
	require.NoError(t, m.RequestUnpause(now.Add(25*time.Second)))

	assert.Equal(t, 15*time.Second, m.Elapsed(models.Team1))
	assert.Equal(t, time.Duration(0), m.Elapsed(models.Team2))
}
