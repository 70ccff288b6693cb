package match_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/scrimmage/go/internal/match"
	"github.com/mcdev12/scrimmage/go/internal/match/events"
	"github.com/mcdev12/scrimmage/go/internal/match/pause"
	"github.com/mcdev12/scrimmage/go/internal/match/roster"
	"github.com/mcdev12/scrimmage/go/internal/match/veto"
	"github.com/mcdev12/scrimmage/go/internal/models"
)

type fakeCommander struct {
	mu           sync.Mutex
	calls        []string
	players      []match.PlayerHandle
	switchedMaps []string
	teamSwitches map[string]models.Team
	kicked       []string
}

func newFakeCommander() *fakeCommander {
	return &fakeCommander{teamSwitches: make(map[string]models.Team)}
}

func (c *fakeCommander) record(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *fakeCommander) callCount(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call == name {
			n++
		}
	}
	return n
}

func (c *fakeCommander) ApplySettings(models.MatchConfig) { c.record("ApplySettings") }

func (c *fakeCommander) SwitchMap(name string) {
	c.mu.Lock()
	c.switchedMaps = append(c.switchedMaps, name)
	c.mu.Unlock()
	c.record("SwitchMap")
}

func (c *fakeCommander) GetAllPlayers() []match.PlayerHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]match.PlayerHandle(nil), c.players...)
}

func (c *fakeCommander) GetAvailableMaps() []string { return nil }
func (c *fakeCommander) SendMessage(string)         { c.record("SendMessage") }
func (c *fakeCommander) EndWarmup()                 { c.record("EndWarmup") }
func (c *fakeCommander) PauseServer()               { c.record("PauseServer") }
func (c *fakeCommander) UnpauseServer()             { c.record("UnpauseServer") }
func (c *fakeCommander) DisableCheats()             { c.record("DisableCheats") }
func (c *fakeCommander) SetupRoundBackup(string)    { c.record("SetupRoundBackup") }
func (c *fakeCommander) StartDemoRecording(string)  { c.record("StartDemoRecording") }
func (c *fakeCommander) StopDemoRecording()         { c.record("StopDemoRecording") }
func (c *fakeCommander) ResetServerSettings()       { c.record("ResetServerSettings") }

func (c *fakeCommander) SwitchPlayerTeam(steamID string, team models.Team) {
	c.mu.Lock()
	c.teamSwitches[steamID] = team
	c.mu.Unlock()
	c.record("SwitchPlayerTeam")
}

func (c *fakeCommander) KickPlayer(steamID string, _ string) {
	c.mu.Lock()
	c.kicked = append(c.kicked, steamID)
	c.mu.Unlock()
	c.record("KickPlayer")
}

func (c *fakeCommander) SetPlayerCash(string, int) { c.record("SetPlayerCash") }

func (c *fakeCommander) teamSwitchFor(steamID string) (models.Team, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	team, ok := c.teamSwitches[steamID]
	return team, ok
}

func (c *fakeCommander) lastSwitchedMap() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.switchedMaps) == 0 {
		return ""
	}
	return c.switchedMaps[len(c.switchedMaps)-1]
}

func testConfig() models.MatchConfig {
	return models.MatchConfig{
		MatchID:           "match-42",
		Maplist:           []string{"de_mirage"},
		Team1:             models.TeamConfig{Name: "Alpha"},
		Team2:             models.TeamConfig{Name: "Bravo"},
		NumMaps:           1,
		PlayersPerTeam:    2,
		MinPlayersToReady: 2,
		MaxRounds:         24,
		MaxOvertimeRounds: 6,
		VoteTimeoutMS:     60000,
		VoteMap:           "de_dust2",
		TeamMode:          models.TeamModeOpen,
		VetoMode:          "BAN",
		TeamTimeoutMax:    3,
		TeamTimeoutTime:   30,
	}
}

func startMatch(t *testing.T, cfg models.MatchConfig, cmd match.Commander, clk clockwork.Clock) *match.Match {
	t.Helper()

	m, err := match.New(cfg, cmd, events.NopPublisher{}, clk)
	require.NoError(t, err)

	m.Start(context.Background())
	t.Cleanup(m.Stop)

	require.Eventually(t, func() bool {
		return m.State() == models.MatchStateWaitingForPlayers
	}, time.Second, time.Millisecond)
	return m
}

// connectFour admits two players per side in open mode: p1/p2 land on team 1,
// p3/p4 on team 2.
func connectFour(t *testing.T, m *match.Match) {
	t.Helper()
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		require.NoError(t, m.OnPlayerConnect(match.PlayerHandle{SteamID: id, Name: id}))
	}
}

func readyAll(t *testing.T, m *match.Match) {
	t.Helper()
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		ready, err := m.ToggleReady(id)
		require.NoError(t, err)
		require.True(t, ready)
	}
}

func makeLive(t *testing.T, m *match.Match) {
	t.Helper()
	connectFour(t, m)
	readyAll(t, m)
	require.Equal(t, models.MatchStateWarmup, m.State())
	m.OnRoundFreezeEnd()
	require.Eventually(t, func() bool {
		return m.State() == models.MatchStateRunning
	}, time.Second, time.Millisecond)
}

func TestInitializeSeedsRosterFromServer(t *testing.T) {
	cmd := newFakeCommander()
	cmd.players = []match.PlayerHandle{
		{SteamID: "p1", Name: "one", Team: models.Team1},
		{SteamID: "spec", Name: "watcher", Team: models.TeamSpectator},
	}

	m := startMatch(t, testConfig(), cmd, clockwork.NewFakeClock())

	team, err := m.PlayerTeam("p1")
	require.NoError(t, err)
	assert.Equal(t, models.Team1, team)

	_, err = m.PlayerTeam("spec")
	assert.ErrorIs(t, err, roster.ErrPlayerNotFound)
	assert.Equal(t, 1, cmd.callCount("ApplySettings"))
}

func TestInitializeRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MatchID = ""

	_, err := match.New(cfg, newFakeCommander(), events.NopPublisher{}, clockwork.NewFakeClock())
	require.Error(t, err)
}

func TestAdmissionRespectsCapacity(t *testing.T) {
	cmd := newFakeCommander()
	m := startMatch(t, testConfig(), cmd, clockwork.NewFakeClock())
	connectFour(t, m)

	err := m.OnPlayerConnect(match.PlayerHandle{SteamID: "p5", Name: "p5"})
	assert.ErrorIs(t, err, roster.ErrRosterFull)
}

func TestFixedModeRejectsOutsiders(t *testing.T) {
	cfg := testConfig()
	cfg.TeamMode = models.TeamModeFixed
	cfg.Team1.Players = []string{"p1", "p2"}
	cfg.Team2.Players = []string{"p3", "p4"}

	cmd := newFakeCommander()
	m := startMatch(t, cfg, cmd, clockwork.NewFakeClock())

	require.NoError(t, m.OnPlayerConnect(match.PlayerHandle{SteamID: "p3", Name: "p3"}))
	team, err := m.PlayerTeam("p3")
	require.NoError(t, err)
	assert.Equal(t, models.Team2, team)

	err = m.OnPlayerConnect(match.PlayerHandle{SteamID: "intruder", Name: "intruder"})
	assert.ErrorIs(t, err, roster.ErrNotInMatch)
}

func TestReadyThresholdAdvancesExactlyOnce(t *testing.T) {
	cmd := newFakeCommander()
	m := startMatch(t, testConfig(), cmd, clockwork.NewFakeClock())
	connectFour(t, m)

	for _, id := range []string{"p1", "p2", "p3"} {
		_, err := m.ToggleReady(id)
		require.NoError(t, err)
	}
	assert.Equal(t, models.MatchStateWaitingForPlayers, m.State())

	_, err := m.ToggleReady("p4")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStateWarmup, m.State())
	assert.Equal(t, "de_mirage", cmd.lastSwitchedMap())
	assert.Equal(t, 1, cmd.callCount("SwitchMap"))

	_, err = m.ToggleReady("p1")
	assert.ErrorIs(t, err, match.ErrIllegalTransition)
	assert.Equal(t, 1, cmd.callCount("SwitchMap"))
}

func TestDisconnectClearsReadiness(t *testing.T) {
	cmd := newFakeCommander()
	m := startMatch(t, testConfig(), cmd, clockwork.NewFakeClock())
	connectFour(t, m)

	for _, id := range []string{"p1", "p2", "p3"} {
		_, err := m.ToggleReady(id)
		require.NoError(t, err)
	}

	m.OnPlayerDisconnect("p1")
	require.NoError(t, m.OnPlayerConnect(match.PlayerHandle{SteamID: "p1", Name: "p1"}))

	// p1's earlier readiness must not count after the reconnect.
	_, err := m.ToggleReady("p4")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStateWaitingForPlayers, m.State())

	_, err = m.ToggleReady("p1")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStateWarmup, m.State())
}

func TestBanVetoAlternatesTeams(t *testing.T) {
	cfg := testConfig()
	cfg.Maplist = []string{"de_ancient", "de_inferno", "de_nuke"}

	cmd := newFakeCommander()
	m := startMatch(t, cfg, cmd, clockwork.NewFakeClock())
	connectFour(t, m)
	readyAll(t, m)
	require.Equal(t, models.MatchStateVeto, m.State())

	// Team 1 bans first; a team 2 player acting out of turn is rejected.
	err := m.BanMap("p3", "de_ancient")
	assert.ErrorIs(t, err, veto.ErrNotYourTurn)

	require.NoError(t, m.BanMap("p1", "de_ancient"))
	err = m.BanMap("p2", "de_inferno")
	assert.ErrorIs(t, err, veto.ErrNotYourTurn)

	require.NoError(t, m.BanMap("p3", "de_inferno"))
	assert.Equal(t, models.MatchStateWarmup, m.State())
	assert.Equal(t, "de_nuke", cmd.lastSwitchedMap())

	err = m.BanMap("p1", "de_nuke")
	assert.ErrorIs(t, err, match.ErrIllegalTransition)
}

func TestBanVetoRejectsUnknownAndBannedMaps(t *testing.T) {
	cfg := testConfig()
	cfg.Maplist = []string{"de_ancient", "de_inferno", "de_nuke"}

	cmd := newFakeCommander()
	m := startMatch(t, cfg, cmd, clockwork.NewFakeClock())
	connectFour(t, m)
	readyAll(t, m)

	err := m.BanMap("p1", "de_dust2")
	assert.ErrorIs(t, err, veto.ErrUnknownMap)

	require.NoError(t, m.BanMap("p1", "de_ancient"))
	err = m.BanMap("p3", "de_ancient")
	assert.ErrorIs(t, err, veto.ErrAlreadyBanned)
}

func TestVoteVetoResolvesOnQuorum(t *testing.T) {
	cfg := testConfig()
	cfg.VetoMode = "VOTE"
	cfg.Maplist = []string{"de_ancient", "de_inferno"}

	cmd := newFakeCommander()
	clk := clockwork.NewFakeClock()
	m := startMatch(t, cfg, cmd, clk)
	connectFour(t, m)
	readyAll(t, m)
	require.Equal(t, models.MatchStateVeto, m.State())

	require.NoError(t, m.VoteMap("p1", "de_ancient"))
	require.NoError(t, m.VoteMap("p2", "de_ancient"))
	require.NoError(t, m.VoteMap("p3", "de_inferno"))
	require.Equal(t, models.MatchStateVeto, m.State())

	// Fourth vote completes the quorum; majority eliminates de_ancient.
	require.NoError(t, m.VoteMap("p4", "de_ancient"))
	assert.Equal(t, models.MatchStateWarmup, m.State())
	assert.Equal(t, "de_inferno", cmd.lastSwitchedMap())
}

func TestVoteVetoTimeoutBreaksTieDeterministically(t *testing.T) {
	cfg := testConfig()
	cfg.VetoMode = "VOTE"
	cfg.Maplist = []string{"de_ancient", "de_inferno"}

	cmd := newFakeCommander()
	clk := clockwork.NewFakeClock()
	m := startMatch(t, cfg, cmd, clk)
	connectFour(t, m)
	readyAll(t, m)
	require.Equal(t, models.MatchStateVeto, m.State())

	// No votes at all: the timeout eliminates the first map in pool order.
	clk.Advance(cfg.VoteTimeout())
	require.Eventually(t, func() bool {
		return m.State() == models.MatchStateWarmup
	}, time.Second, time.Millisecond)
	assert.Equal(t, "de_inferno", cmd.lastSwitchedMap())
}

func TestFreezeEndGoesLiveOnlyWhenTeamsFull(t *testing.T) {
	cmd := newFakeCommander()
	m := startMatch(t, testConfig(), cmd, clockwork.NewFakeClock())
	connectFour(t, m)
	readyAll(t, m)
	require.Equal(t, models.MatchStateWarmup, m.State())

	m.OnPlayerDisconnect("p4")
	m.OnRoundFreezeEnd()

	snap, err := m.Snapshot()
	require.NoError(t, err)
	require.Equal(t, models.MatchStateWarmup.String(), snap.State)
	assert.Equal(t, 0, cmd.callCount("StartDemoRecording"))

	require.NoError(t, m.OnPlayerConnect(match.PlayerHandle{SteamID: "p4", Name: "p4"}))
	m.OnRoundFreezeEnd()
	require.Eventually(t, func() bool {
		return m.State() == models.MatchStateRunning
	}, time.Second, time.Millisecond)

	assert.Equal(t, 1, cmd.callCount("EndWarmup"))
	assert.Equal(t, 1, cmd.callCount("DisableCheats"))
	assert.Equal(t, 1, cmd.callCount("SetupRoundBackup"))
	assert.Equal(t, 1, cmd.callCount("StartDemoRecording"))

	// Later freeze ends while running must not re-run the live sequence.
	m.OnRoundFreezeEnd()
	snap, err = m.Snapshot()
	require.NoError(t, err)
	require.Equal(t, models.MatchStateRunning.String(), snap.State)
	assert.Equal(t, 1, cmd.callCount("StartDemoRecording"))
}

func TestRoundEndIgnoredBeforeLive(t *testing.T) {
	cmd := newFakeCommander()
	m := startMatch(t, testConfig(), cmd, clockwork.NewFakeClock())
	connectFour(t, m)

	m.OnRoundEnd(models.Team1, 1, 0)
	m.OnMatchOver()

	snap, err := m.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 0, snap.RoundsPlayed)
	assert.Equal(t, models.MatchStateWaitingForPlayers.String(), snap.State)
}

func TestRoundEndTracksScore(t *testing.T) {
	cmd := newFakeCommander()
	m := startMatch(t, testConfig(), cmd, clockwork.NewFakeClock())
	makeLive(t, m)

	m.OnRoundEnd(models.Team1, 1, 0)
	m.OnRoundEnd(models.Team2, 1, 1)
	m.OnRoundEnd(models.Team1, 2, 1)

	require.Eventually(t, func() bool {
		snap, err := m.Snapshot()
		return err == nil && snap.RoundsPlayed == 3
	}, time.Second, time.Millisecond)

	snap, err := m.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Team1Score)
	assert.Equal(t, 1, snap.Team2Score)
}

func TestMatchOverProducesResultAndTearsDown(t *testing.T) {
	cmd := newFakeCommander()
	m := startMatch(t, testConfig(), cmd, clockwork.NewFakeClock())
	makeLive(t, m)

	m.OnRoundEnd(models.Team1, 13, 7)
	m.OnMatchOver()

	require.Eventually(t, func() bool {
		return m.State() == models.MatchStateOver
	}, time.Second, time.Millisecond)

	snap, err := m.Snapshot()
	require.NoError(t, err)
	require.NotNil(t, snap.Result)
	assert.Equal(t, models.Team1, snap.Result.WinnerTeam)
	assert.Equal(t, 13, snap.Result.Team1Score)
	assert.Equal(t, 7, snap.Result.Team2Score)
	assert.Equal(t, "de_mirage", snap.Result.Map)

	assert.Equal(t, 1, cmd.callCount("StopDemoRecording"))
	assert.Equal(t, 1, cmd.callCount("ResetServerSettings"))

	err = m.RequestPause("p1")
	assert.ErrorIs(t, err, match.ErrIllegalTransition)
}

func TestPauseSpendsCreditsAndUnpauses(t *testing.T) {
	cfg := testConfig()
	cfg.TeamTimeoutMax = 1

	cmd := newFakeCommander()
	m := startMatch(t, cfg, cmd, clockwork.NewFakeClock())
	makeLive(t, m)

	require.NoError(t, m.RequestPause("p1"))
	assert.Equal(t, models.MatchStatePaused, m.State())
	assert.Equal(t, 1, cmd.callCount("PauseServer"))

	err := m.RequestPause("p3")
	assert.ErrorIs(t, err, pause.ErrAlreadyPaused)

	// The opposing team may lift the pause.
	require.NoError(t, m.RequestUnpause("p3"))
	assert.Equal(t, models.MatchStateRunning, m.State())
	assert.Equal(t, 1, cmd.callCount("UnpauseServer"))

	err = m.RequestPause("p1")
	assert.ErrorIs(t, err, pause.ErrNoCreditsLeft)
	require.NoError(t, m.RequestPause("p3"))
}

func TestPauseBudgetExpiryForcesUnpause(t *testing.T) {
	cmd := newFakeCommander()
	clk := clockwork.NewFakeClock()
	m := startMatch(t, testConfig(), cmd, clk)
	makeLive(t, m)

	require.NoError(t, m.RequestPause("p1"))
	require.Equal(t, models.MatchStatePaused, m.State())

	clk.Advance(testConfig().TeamTimeoutBudget())
	require.Eventually(t, func() bool {
		return m.State() == models.MatchStateRunning
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, cmd.callCount("UnpauseServer"))
}

func TestUnpauseWhileRunningIsRejected(t *testing.T) {
	cmd := newFakeCommander()
	m := startMatch(t, testConfig(), cmd, clockwork.NewFakeClock())
	makeLive(t, m)

	err := m.RequestUnpause("p1")
	assert.ErrorIs(t, err, pause.ErrNotPaused)
}

func TestTeamObservationTriggersDeferredCorrection(t *testing.T) {
	cmd := newFakeCommander()
	m := startMatch(t, testConfig(), cmd, clockwork.NewFakeClock())
	makeLive(t, m)

	// p1 is assigned to team 1 but the engine reports them on team 2.
	m.OnPlayerTeamObserved("p1", models.Team2)

	require.Eventually(t, func() bool {
		team, ok := cmd.teamSwitchFor("p1")
		return ok && team == models.Team1
	}, time.Second, time.Millisecond)
}

func TestTeamObservationMatchingAssignmentIsNoop(t *testing.T) {
	cmd := newFakeCommander()
	m := startMatch(t, testConfig(), cmd, clockwork.NewFakeClock())
	makeLive(t, m)

	m.OnPlayerTeamObserved("p1", models.Team1)
	m.OnRoundEnd(models.Team1, 1, 0)

	require.Eventually(t, func() bool {
		snap, err := m.Snapshot()
		return err == nil && snap.RoundsPlayed == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, 0, cmd.callCount("SwitchPlayerTeam"))
}

func TestStopMakesOperationsFail(t *testing.T) {
	cmd := newFakeCommander()
	m := startMatch(t, testConfig(), cmd, clockwork.NewFakeClock())
	m.Stop()

	err := m.OnPlayerConnect(match.PlayerHandle{SteamID: "p1", Name: "p1"})
	assert.ErrorIs(t, err, match.ErrMatchStopped)
}

func TestStopWithoutStartDoesNotBlock(t *testing.T) {
	m, err := match.New(testConfig(), newFakeCommander(), events.NopPublisher{}, clockwork.NewFakeClock())
	require.NoError(t, err)

	m.Stop()
	m.Stop()

	err = m.OnPlayerConnect(match.PlayerHandle{SteamID: "p1", Name: "p1"})
	assert.ErrorIs(t, err, match.ErrMatchStopped)
}

func TestBanVetoStartingTeamIsConfigurable(t *testing.T) {
	cfg := testConfig()
	cfg.Maplist = []string{"de_ancient", "de_inferno", "de_nuke"}
	cfg.VetoFirst = models.Team2.String()

	cmd := newFakeCommander()
	m := startMatch(t, cfg, cmd, clockwork.NewFakeClock())
	connectFour(t, m)
	readyAll(t, m)
	require.Equal(t, models.MatchStateVeto, m.State())

	err := m.BanMap("p1", "de_ancient")
	assert.ErrorIs(t, err, veto.ErrNotYourTurn)

	require.NoError(t, m.BanMap("p3", "de_ancient"))
	require.NoError(t, m.BanMap("p1", "de_inferno"))
	assert.Equal(t, models.MatchStateWarmup, m.State())
	assert.Equal(t, "de_nuke", cmd.lastSwitchedMap())
}

// A quorum vote landing at the deadline races the expiry notification. The
// loser of that race must not close the freshly opened round: a three map
// pool needs two eliminations, so the match may only reach warmup after the
// second round runs its own countdown.
func TestVoteQuorumRacingTimeoutKeepsNextRoundOpen(t *testing.T) {
	cfg := testConfig()
	cfg.VetoMode = "VOTE"
	cfg.Maplist = []string{"de_ancient", "de_inferno", "de_nuke"}

	for attempt := 0; attempt < 4; attempt++ {
		cmd := newFakeCommander()
		clk := clockwork.NewFakeClock()
		m := startMatch(t, cfg, cmd, clk)
		connectFour(t, m)
		readyAll(t, m)
		require.Equal(t, models.MatchStateVeto, m.State())

		require.NoError(t, m.VoteMap("p1", "de_ancient"))
		require.NoError(t, m.VoteMap("p2", "de_ancient"))
		require.NoError(t, m.VoteMap("p3", "de_ancient"))

		// Fire the round deadline and complete the quorum at the same
		// instant. Either resolution eliminates de_ancient; the vote can
		// lose the race and find the map already gone.
		clk.Advance(cfg.VoteTimeout())
		_ = m.VoteMap("p4", "de_ancient")

		require.Eventually(t, func() bool {
			snap, err := m.Snapshot()
			return err == nil && len(snap.RemainingMaps) == 2
		}, time.Second, time.Millisecond)

		assert.Never(t, func() bool {
			return m.State() == models.MatchStateWarmup
		}, 100*time.Millisecond, 5*time.Millisecond)

		clk.Advance(cfg.VoteTimeout())
		require.Eventually(t, func() bool {
			return m.State() == models.MatchStateWarmup
		}, time.Second, time.Millisecond)

		m.Stop()
	}
}

func TestMatchOverWhilePausedLiftsPause(t *testing.T) {
	cmd := newFakeCommander()
	m := startMatch(t, testConfig(), cmd, clockwork.NewFakeClock())
	makeLive(t, m)

	m.OnRoundEnd(models.Team1, 13, 7)
	require.NoError(t, m.RequestPause("p1"))
	require.Equal(t, models.MatchStatePaused, m.State())

	m.OnMatchOver()
	require.Eventually(t, func() bool {
		return m.State() == models.MatchStateOver
	}, time.Second, time.Millisecond)

	assert.Equal(t, 1, cmd.callCount("UnpauseServer"))
	assert.Equal(t, 1, cmd.callCount("StopDemoRecording"))
}
