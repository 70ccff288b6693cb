package gamefeed

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/scrimmage/go/internal/match"
	"github.com/mcdev12/scrimmage/go/internal/match/events"
	"github.com/mcdev12/scrimmage/go/internal/models"
)

type stubCommander struct {
	mu     sync.Mutex
	kicked []string
	cash   map[string]int
}

func newStubCommander() *stubCommander {
	return &stubCommander{cash: make(map[string]int)}
}

func (c *stubCommander) ApplySettings(models.MatchConfig)       {}
func (c *stubCommander) SwitchMap(string)                       {}
func (c *stubCommander) GetAllPlayers() []match.PlayerHandle    { return nil }
func (c *stubCommander) GetAvailableMaps() []string             { return nil }
func (c *stubCommander) SendMessage(string)                     {}
func (c *stubCommander) EndWarmup()                             {}
func (c *stubCommander) PauseServer()                           {}
func (c *stubCommander) UnpauseServer()                         {}
func (c *stubCommander) DisableCheats()                         {}
func (c *stubCommander) SetupRoundBackup(string)                {}
func (c *stubCommander) StartDemoRecording(string)              {}
func (c *stubCommander) StopDemoRecording()                     {}
func (c *stubCommander) ResetServerSettings()                   {}
func (c *stubCommander) SwitchPlayerTeam(string, models.Team)   {}

func (c *stubCommander) KickPlayer(steamID string, _ string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kicked = append(c.kicked, steamID)
}

func (c *stubCommander) SetPlayerCash(steamID string, amount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cash[steamID] = amount
}

func (c *stubCommander) kickedPlayers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.kicked...)
}

func (c *stubCommander) cashFor(steamID string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	amount, ok := c.cash[steamID]
	return amount, ok
}

func testMatch(t *testing.T, cmd match.Commander) *match.Match {
	t.Helper()

	cfg := models.MatchConfig{
		MatchID:           "feed-test",
		Maplist:           []string{"de_mirage"},
		Team1:             models.TeamConfig{Name: "Alpha", Players: []string{"a1", "a2"}},
		Team2:             models.TeamConfig{Name: "Bravo", Players: []string{"b1", "b2"}},
		NumMaps:           1,
		PlayersPerTeam:    2,
		MinPlayersToReady: 2,
		MaxRounds:         24,
		VoteTimeoutMS:     60000,
		TeamMode:          models.TeamModeFixed,
		VetoMode:          "BAN",
		TeamTimeoutMax:    3,
		TeamTimeoutTime:   30,
	}

	m, err := match.New(cfg, cmd, events.NopPublisher{}, clockwork.NewFakeClock())
	require.NoError(t, err)
	m.Start(context.Background())
	t.Cleanup(m.Stop)

	require.Eventually(t, func() bool {
		return m.State() == models.MatchStateWaitingForPlayers
	}, time.Second, time.Millisecond)
	return m
}

func mustEvent(t *testing.T, eventType string, payload interface{}) GameEvent {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return GameEvent{Type: eventType, Data: data}
}

func TestConnectAdmitsRosterPlayers(t *testing.T) {
	cmd := newStubCommander()
	m := testMatch(t, cmd)
	f := NewFeed(m, cmd)

	err := f.HandleEvent(mustEvent(t, EventPlayerConnectFull, PlayerConnectPayload{
		SteamID: "a1", Name: "alice", Team: int(models.Team1),
	}))
	require.NoError(t, err)

	team, err := m.PlayerTeam("a1")
	require.NoError(t, err)
	assert.Equal(t, models.Team1, team)
	assert.Empty(t, cmd.kickedPlayers())
}

func TestConnectKicksOutsiders(t *testing.T) {
	cmd := newStubCommander()
	m := testMatch(t, cmd)
	f := NewFeed(m, cmd)

	err := f.HandleEvent(mustEvent(t, EventPlayerConnectFull, PlayerConnectPayload{
		SteamID: "intruder", Name: "eve", Team: int(models.Team1),
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"intruder"}, cmd.kickedPlayers())
}

func TestSpawnTopsUpCashBeforeLive(t *testing.T) {
	cmd := newStubCommander()
	m := testMatch(t, cmd)
	f := NewFeed(m, cmd)

	require.NoError(t, f.HandleEvent(mustEvent(t, EventPlayerConnectFull, PlayerConnectPayload{
		SteamID: "a1", Name: "alice", Team: int(models.Team1),
	})))

	require.NoError(t, f.HandleEvent(mustEvent(t, EventPlayerSpawn, PlayerSpawnPayload{SteamID: "a1"})))
	amount, ok := cmd.cashFor("a1")
	require.True(t, ok)
	assert.Equal(t, warmupCash, amount)

	// Spawns from players outside the roster get nothing.
	require.NoError(t, f.HandleEvent(mustEvent(t, EventPlayerSpawn, PlayerSpawnPayload{SteamID: "ghost"})))
	_, ok = cmd.cashFor("ghost")
	assert.False(t, ok)
}

func TestRoundEventsReachTheMatch(t *testing.T) {
	cmd := newStubCommander()
	m := testMatch(t, cmd)
	f := NewFeed(m, cmd)

	for _, id := range []string{"a1", "a2", "b1", "b2"} {
		require.NoError(t, f.HandleEvent(mustEvent(t, EventPlayerConnectFull, PlayerConnectPayload{
			SteamID: id, Name: id,
		})))
		_, err := m.ToggleReady(id)
		require.NoError(t, err)
	}
	require.Equal(t, models.MatchStateWarmup, m.State())

	require.NoError(t, f.HandleEvent(mustEvent(t, EventRoundFreezeEnd, struct{}{})))
	require.Eventually(t, func() bool {
		return m.State() == models.MatchStateRunning
	}, time.Second, time.Millisecond)

	require.NoError(t, f.HandleEvent(mustEvent(t, EventRoundEnd, RoundEndPayload{
		Winner: int(models.Team1), Team1Score: 1, Team2Score: 0,
	})))
	require.NoError(t, f.HandleEvent(mustEvent(t, EventWinPanelMatch, struct{}{})))

	require.Eventually(t, func() bool {
		return m.State() == models.MatchStateOver
	}, time.Second, time.Millisecond)

	snap, err := m.Snapshot()
	require.NoError(t, err)
	require.NotNil(t, snap.Result)
	assert.Equal(t, models.Team1, snap.Result.WinnerTeam)
}

func TestUnknownEventsAreIgnored(t *testing.T) {
	cmd := newStubCommander()
	m := testMatch(t, cmd)
	f := NewFeed(m, cmd)

	require.NoError(t, f.HandleEvent(GameEvent{Type: "weapon_fire", Data: json.RawMessage(`{}`)}))
}

func TestCvarSuppression(t *testing.T) {
	assert.True(t, ShouldSuppressCvarBroadcast("mp_teamname_1"))
	assert.True(t, ShouldSuppressCvarBroadcast("mp_tournament"))
	assert.True(t, ShouldSuppressCvarBroadcast("tv_delay"))
	assert.False(t, ShouldSuppressCvarBroadcast("sv_cheats"))
	assert.False(t, ShouldSuppressCvarBroadcast("mp_friendlyfire"))
}
