package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrimmage/go/internal/config"
	"github.com/mcdev12/scrimmage/go/internal/match/events"
	"github.com/mcdev12/scrimmage/go/internal/match/pause"
	"github.com/mcdev12/scrimmage/go/internal/match/roster"
	"github.com/mcdev12/scrimmage/go/internal/match/veto"
	"github.com/mcdev12/scrimmage/go/internal/models"
)

var (
	// ErrIllegalTransition means the operation is not valid in the match's
	// current phase.
	ErrIllegalTransition = errors.New("operation not valid in current match phase")
	// ErrMatchStopped means the orchestrator loop has been shut down.
	ErrMatchStopped = errors.New("match orchestrator stopped")
)

const (
	timerVeto  = "veto"
	timerPause = "pause"
)

// Match is the orchestrator for one competitive match. All mutating traffic
// funnels through a single inbox consumed by one goroutine, so handlers never
// race each other; reads that must not block (State, PlayerTeam) are served
// from an atomic mirror and the lock-guarded roster instead.
type Match struct {
	cfg       models.MatchConfig
	commander Commander
	pub       events.Publisher
	clock     clockwork.Clock

	roster *roster.Registry
	veto   *veto.Engine
	pauses *pause.Manager

	inbox chan message
	// deferred holds control-surface corrections queued by handlers. They
	// run on the loop goroutine after the current handler returns, never
	// inside one.
	deferred []func()

	state       models.MatchState
	stateMirror atomic.Int32

	selectedMaps []string
	currentMap   string
	team1Score   int
	team2Score   int
	roundsPlayed int
	result       *models.MatchResult

	timers map[string]*armedTimer

	cancel   context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once
}

type armedTimer struct {
	timer    clockwork.Timer
	deadline time.Time
	stop     chan struct{}
}

// New builds an orchestrator for a validated match config. The config is
// re-checked here so a Match can never exist around a broken one.
func New(cfg models.MatchConfig, commander Commander, pub events.Publisher, clock clockwork.Clock) (*Match, error) {
	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	m := &Match{
		cfg:       cfg,
		commander: commander,
		pub:       pub,
		clock:     clock,
		roster:    roster.NewRegistry(cfg),
		veto: veto.NewEngine(
			veto.Mode(cfg.VetoMode),
			cfg.Maplist,
			cfg.NumMaps,
			cfg.VetoFirstTeam(),
			cfg.VoteTimeout(),
			cfg.PlayersPerTeam*2,
		),
		pauses: pause.NewManager(cfg.TeamTimeoutMax, cfg.TeamTimeoutBudget()),
		inbox:  make(chan message, 64),
		timers: make(map[string]*armedTimer),
		done:   make(chan struct{}),
	}
	m.state = models.MatchStateNone
	m.stateMirror.Store(int32(models.MatchStateNone))
	return m, nil
}

// Start launches the orchestrator loop. It applies server settings, seeds the
// roster from players already on the server, and opens the waiting phase.
func (m *Match) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	go m.run(ctx)
}

// Stop shuts the loop down and waits for it to exit. Pending operations fail
// with ErrMatchStopped. Stopping a match that was never started just marks it
// stopped.
func (m *Match) Stop() {
	if m.cancel == nil {
		m.closeDone()
		return
	}
	m.cancel()
	<-m.done
}

func (m *Match) closeDone() {
	m.doneOnce.Do(func() { close(m.done) })
}

// Done is closed when the orchestrator loop has exited.
func (m *Match) Done() <-chan struct{} { return m.done }

// Config returns the match config the orchestrator was built from.
func (m *Match) Config() models.MatchConfig { return m.cfg }

// State returns the current phase. Safe from any goroutine.
func (m *Match) State() models.MatchState {
	return models.MatchState(m.stateMirror.Load())
}

// PlayerTeam returns the assigned side of an admitted player. Safe from any
// goroutine; the roster guards itself.
func (m *Match) PlayerTeam(steamID string) (models.Team, error) {
	return m.roster.TeamOf(steamID)
}

// ---- messages -------------------------------------------------------------

type message interface{ isMatchMsg() }

type connectMsg struct {
	player PlayerHandle
	reply  chan error
}

type disconnectMsg struct{ steamID string }

type teamObservedMsg struct {
	steamID  string
	observed models.Team
}

type toggleReadyMsg struct {
	steamID string
	reply   chan toggleReadyResult
}

type toggleReadyResult struct {
	ready bool
	err   error
}

type banMapMsg struct {
	steamID string
	mapName string
	reply   chan error
}

type voteMapMsg struct {
	steamID string
	mapName string
	reply   chan error
}

type pauseMsg struct {
	steamID string
	reply   chan error
}

type unpauseMsg struct {
	steamID string
	reply   chan error
}

type roundFreezeEndMsg struct{}

type roundEndMsg struct {
	winner     models.Team
	team1Score int
	team2Score int
}

type matchOverMsg struct{}

// timerFiredMsg carries the deadline the timer was armed for, so a firing
// that raced a cancel-and-rearm can be told apart from the live countdown.
type timerFiredMsg struct {
	key      string
	deadline time.Time
}

type snapshotMsg struct{ reply chan Snapshot }

func (connectMsg) isMatchMsg()      {}
func (disconnectMsg) isMatchMsg()   {}
func (teamObservedMsg) isMatchMsg() {}
func (toggleReadyMsg) isMatchMsg()  {}
func (banMapMsg) isMatchMsg()       {}
func (voteMapMsg) isMatchMsg()      {}
func (pauseMsg) isMatchMsg()        {}
func (unpauseMsg) isMatchMsg()      {}
func (roundFreezeEndMsg) isMatchMsg() {}
func (roundEndMsg) isMatchMsg()     {}
func (matchOverMsg) isMatchMsg()    {}
func (timerFiredMsg) isMatchMsg()   {}
func (snapshotMsg) isMatchMsg()     {}

// ---- public API -----------------------------------------------------------

// OnPlayerConnect admits a connecting player. A non-nil error is the host's
// signal to kick: ErrNotInMatch, ErrRosterFull or ErrMatchStopped.
func (m *Match) OnPlayerConnect(player PlayerHandle) error {
	reply := make(chan error, 1)
	if !m.post(connectMsg{player: player, reply: reply}) {
		return ErrMatchStopped
	}
	return m.awaitErr(reply)
}

// OnPlayerDisconnect records a roster player leaving the server. The slot is
// kept for reconnects.
func (m *Match) OnPlayerDisconnect(steamID string) {
	m.post(disconnectMsg{steamID: steamID})
}

// OnPlayerTeamObserved reports the side the engine placed a player on. A
// mismatch against the assigned side is corrected at the next safe
// scheduling point, never inside the reporting dispatch.
func (m *Match) OnPlayerTeamObserved(steamID string, observed models.Team) {
	m.post(teamObservedMsg{steamID: steamID, observed: observed})
}

// ToggleReady flips a player's ready flag during the waiting phase and
// returns the new value.
func (m *Match) ToggleReady(steamID string) (bool, error) {
	reply := make(chan toggleReadyResult, 1)
	if !m.post(toggleReadyMsg{steamID: steamID, reply: reply}) {
		return false, ErrMatchStopped
	}
	select {
	case res := <-reply:
		return res.ready, res.err
	case <-m.done:
		return false, ErrMatchStopped
	}
}

// BanMap eliminates a map on behalf of the acting player's team during the
// veto phase.
func (m *Match) BanMap(steamID, mapName string) error {
	reply := make(chan error, 1)
	if !m.post(banMapMsg{steamID: steamID, mapName: mapName, reply: reply}) {
		return ErrMatchStopped
	}
	return m.awaitErr(reply)
}

// VoteMap records a player's vote to eliminate a map in the open voting
// round.
func (m *Match) VoteMap(steamID, mapName string) error {
	reply := make(chan error, 1)
	if !m.post(voteMapMsg{steamID: steamID, mapName: mapName, reply: reply}) {
		return ErrMatchStopped
	}
	return m.awaitErr(reply)
}

// RequestPause spends one of the player's team's pause credits.
func (m *Match) RequestPause(steamID string) error {
	reply := make(chan error, 1)
	if !m.post(pauseMsg{steamID: steamID, reply: reply}) {
		return ErrMatchStopped
	}
	return m.awaitErr(reply)
}

// RequestUnpause lifts the current pause. Either team may lift it.
func (m *Match) RequestUnpause(steamID string) error {
	reply := make(chan error, 1)
	if !m.post(unpauseMsg{steamID: steamID, reply: reply}) {
		return ErrMatchStopped
	}
	return m.awaitErr(reply)
}

// OnRoundFreezeEnd reports a freeze time ending. During warmup this is the
// go-live checkpoint; in every other phase it is ignored.
func (m *Match) OnRoundFreezeEnd() {
	m.post(roundFreezeEndMsg{})
}

// OnRoundEnd records a completed round. Ignored before the match is live.
func (m *Match) OnRoundEnd(winner models.Team, team1Score, team2Score int) {
	m.post(roundEndMsg{winner: winner, team1Score: team1Score, team2Score: team2Score})
}

// OnMatchOver finishes the match. Ignored before the match is live.
func (m *Match) OnMatchOver() {
	m.post(matchOverMsg{})
}

// Snapshot returns a point-in-time view of the whole match for dumping and
// the read API.
func (m *Match) Snapshot() (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if !m.post(snapshotMsg{reply: reply}) {
		return Snapshot{}, ErrMatchStopped
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-m.done:
		return Snapshot{}, ErrMatchStopped
	}
}

// Snapshot is a consistent copy of the orchestrator's observable state.
type Snapshot struct {
	MatchID       string               `json:"matchid"`
	State         string               `json:"state"`
	CurrentMap    string               `json:"current_map,omitempty"`
	SelectedMaps  []string             `json:"selected_maps,omitempty"`
	RemainingMaps []string             `json:"remaining_maps,omitempty"`
	Players       []models.MatchPlayer `json:"players"`
	Team1Score    int                  `json:"team1_score"`
	Team2Score    int                  `json:"team2_score"`
	RoundsPlayed  int                  `json:"rounds_played"`
	PauseCredits  map[string]int       `json:"pause_credits"`
	Config        models.MatchConfig   `json:"config"`
	Result        *models.MatchResult  `json:"result,omitempty"`
}

func (m *Match) post(msg message) bool {
	// Check for shutdown first: the buffered inbox could otherwise accept a
	// message no loop will ever consume.
	select {
	case <-m.done:
		return false
	default:
	}
	select {
	case m.inbox <- msg:
		return true
	case <-m.done:
		return false
	}
}

// awaitErr waits for a handler reply, bailing out if the loop shuts down
// before the message is dispatched.
func (m *Match) awaitErr(reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-m.done:
		return ErrMatchStopped
	}
}

// ---- loop -----------------------------------------------------------------

func (m *Match) run(ctx context.Context) {
	defer m.closeDone()
	defer m.stopAllTimers()

	m.initialize()
	m.drainDeferred()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.inbox:
			m.dispatch(msg)
			m.drainDeferred()
		}
	}
}

func (m *Match) dispatch(msg message) {
	switch msg := msg.(type) {
	case connectMsg:
		msg.reply <- m.handleConnect(msg.player)
	case disconnectMsg:
		m.handleDisconnect(msg.steamID)
	case teamObservedMsg:
		m.handleTeamObserved(msg.steamID, msg.observed)
	case toggleReadyMsg:
		msg.reply <- m.handleToggleReady(msg.steamID)
	case banMapMsg:
		msg.reply <- m.handleBanMap(msg.steamID, msg.mapName)
	case voteMapMsg:
		msg.reply <- m.handleVoteMap(msg.steamID, msg.mapName)
	case pauseMsg:
		msg.reply <- m.handlePause(msg.steamID)
	case unpauseMsg:
		msg.reply <- m.handleUnpause(msg.steamID)
	case roundFreezeEndMsg:
		m.handleRoundFreezeEnd()
	case roundEndMsg:
		m.handleRoundEnd(msg)
	case matchOverMsg:
		m.handleMatchOver()
	case timerFiredMsg:
		m.handleTimerFired(msg.key, msg.deadline)
	case snapshotMsg:
		msg.reply <- m.buildSnapshot()
	}
}

// drainDeferred runs queued corrections on the loop goroutine, outside any
// handler dispatch. Corrections queued by corrections run in the same drain.
func (m *Match) drainDeferred() {
	for len(m.deferred) > 0 {
		pending := m.deferred
		m.deferred = nil
		for _, fn := range pending {
			fn()
		}
	}
}

func (m *Match) initialize() {
	m.commander.ApplySettings(m.cfg)

	for _, p := range m.commander.GetAllPlayers() {
		if p.Team == models.TeamSpectator {
			continue
		}
		player := p
		team, _, err := m.roster.TryAdmit(player.SteamID, player.Name)
		if err != nil {
			m.deferKick(player.SteamID, "not part of this match")
			continue
		}
		if player.Team != team {
			m.scheduleTeamCorrection(player.SteamID, player.Team, team)
		}
	}

	m.setState(models.MatchStateWaitingForPlayers)
	m.pub.Publish(m.cfg.MatchID, events.EventTypeMatchInitialized, events.MatchInitializedPayload{
		MatchID:        m.cfg.MatchID,
		Team1Name:      m.cfg.Team1.Name,
		Team2Name:      m.cfg.Team2.Name,
		Maplist:        m.cfg.Maplist,
		NumMaps:        m.cfg.NumMaps,
		PlayersPerTeam: m.cfg.PlayersPerTeam,
	})
	m.commander.SendMessage(fmt.Sprintf(
		"Match %s loaded: %s vs %s. Type !ready when you are ready to play.",
		m.cfg.MatchID, m.cfg.Team1.Name, m.cfg.Team2.Name,
	))
}

func (m *Match) setState(next models.MatchState) {
	if m.state == next {
		return
	}
	prev := m.state
	m.state = next
	m.stateMirror.Store(int32(next))

	log.Info().
		Str("match_id", m.cfg.MatchID).
		Str("from", prev.String()).
		Str("to", next.String()).
		Msg("match phase changed")

	m.pub.Publish(m.cfg.MatchID, events.EventTypePhaseChanged, events.PhaseChangedPayload{
		From:      prev.String(),
		To:        next.String(),
		ChangedAt: m.clock.Now().UTC(),
	})
}

// ---- handlers -------------------------------------------------------------

func (m *Match) handleConnect(p PlayerHandle) error {
	if m.state == models.MatchStateOver {
		return ErrIllegalTransition
	}

	team, reconnected, err := m.roster.TryAdmit(p.SteamID, p.Name)
	if err != nil {
		return err
	}

	m.pub.Publish(m.cfg.MatchID, events.EventTypePlayerAdmitted, events.PlayerAdmittedPayload{
		SteamID:     p.SteamID,
		Name:        p.Name,
		Team:        team.String(),
		Reconnected: reconnected,
	})

	if p.Team != models.TeamUnassigned && p.Team != team {
		m.scheduleTeamCorrection(p.SteamID, p.Team, team)
	}

	if m.state == models.MatchStateWaitingForPlayers {
		m.commander.SendMessage(fmt.Sprintf(
			"Welcome %s, you are on %s. Type !ready when you are ready to play.",
			p.Name, m.cfg.TeamName(team),
		))
	}
	return nil
}

func (m *Match) handleDisconnect(steamID string) {
	if _, err := m.roster.TeamOf(steamID); err != nil {
		return
	}
	m.roster.SetDisconnected(steamID)
	m.pub.Publish(m.cfg.MatchID, events.EventTypePlayerLeft, events.PlayerLeftPayload{SteamID: steamID})

	if m.state == models.MatchStateWaitingForPlayers {
		m.announceReadyCounts()
	}
}

func (m *Match) handleTeamObserved(steamID string, observed models.Team) {
	if m.state == models.MatchStateNone || m.state == models.MatchStateOver {
		return
	}
	assigned, err := m.roster.TeamOf(steamID)
	if err != nil {
		log.Debug().Str("steam_id", steamID).Msg("team change from player outside the roster, ignoring")
		return
	}
	if observed == assigned {
		return
	}
	m.scheduleTeamCorrection(steamID, observed, assigned)
}

// scheduleTeamCorrection queues the switch back to the assigned side. The
// correction runs after the current dispatch completes, so the control
// surface is never re-entered from inside an event handler.
func (m *Match) scheduleTeamCorrection(steamID string, observed, assigned models.Team) {
	log.Warn().
		Str("steam_id", steamID).
		Str("observed", observed.String()).
		Str("assigned", assigned.String()).
		Msg("player on wrong side, correction scheduled")

	m.deferred = append(m.deferred, func() {
		m.commander.SwitchPlayerTeam(steamID, assigned)
		m.pub.Publish(m.cfg.MatchID, events.EventTypeTeamCorrected, events.TeamCorrectedPayload{
			SteamID:      steamID,
			ObservedTeam: observed.String(),
			AssignedTeam: assigned.String(),
		})
	})
}

func (m *Match) deferKick(steamID, reason string) {
	m.deferred = append(m.deferred, func() {
		m.commander.KickPlayer(steamID, reason)
	})
}

func (m *Match) handleToggleReady(steamID string) toggleReadyResult {
	if m.state != models.MatchStateWaitingForPlayers {
		return toggleReadyResult{err: ErrIllegalTransition}
	}

	ready, err := m.roster.ToggleReady(steamID)
	if err != nil {
		return toggleReadyResult{err: err}
	}

	m.pub.Publish(m.cfg.MatchID, events.EventTypeReadyChanged, events.ReadyChangedPayload{
		SteamID:     steamID,
		Ready:       ready,
		Team1Ready:  m.roster.ReadyCount(models.Team1),
		Team2Ready:  m.roster.ReadyCount(models.Team2),
		ReadyNeeded: m.cfg.MinPlayersToReady,
	})
	m.announceReadyCounts()

	// The state check above makes the advance fire exactly once: the first
	// toggle that satisfies both thresholds moves the phase away from
	// waiting, and later toggles are rejected before they get here.
	if m.roster.ReadyCount(models.Team1) >= m.cfg.MinPlayersToReady &&
		m.roster.ReadyCount(models.Team2) >= m.cfg.MinPlayersToReady {
		m.advanceFromWaiting()
	}
	return toggleReadyResult{ready: ready}
}

func (m *Match) announceReadyCounts() {
	m.commander.SendMessage(fmt.Sprintf(
		"%s ready: %d/%d, %s ready: %d/%d",
		m.cfg.Team1.Name, m.roster.ReadyCount(models.Team1), m.cfg.MinPlayersToReady,
		m.cfg.Team2.Name, m.roster.ReadyCount(models.Team2), m.cfg.MinPlayersToReady,
	))
}

func (m *Match) advanceFromWaiting() {
	if len(m.cfg.Maplist) > m.cfg.NumMaps {
		m.enterVeto()
		return
	}

	// Pool already at series size, nothing to reduce.
	m.selectedMaps = append([]string(nil), m.cfg.Maplist...)
	m.pub.Publish(m.cfg.MatchID, events.EventTypeMapsSelected, events.MapsSelectedPayload{Maps: m.selectedMaps})
	m.enterWarmup()
}

func (m *Match) enterVeto() {
	m.setState(models.MatchStateVeto)

	if m.veto.Mode() == veto.ModeVote {
		deadline, err := m.veto.StartVoteRound(m.clock.Now())
		if err == nil {
			m.armTimer(timerVeto, deadline)
		}
		m.commander.SendMessage(fmt.Sprintf(
			"Map vote started. Vote to eliminate one of: %v", m.veto.Remaining(),
		))
		return
	}

	m.commander.SendMessage(fmt.Sprintf(
		"Map veto started. %s bans first. Remaining: %v",
		m.cfg.TeamName(m.veto.Turn()), m.veto.Remaining(),
	))
}

func (m *Match) handleBanMap(steamID, mapName string) error {
	if m.state != models.MatchStateVeto {
		return ErrIllegalTransition
	}
	team, err := m.roster.TeamOf(steamID)
	if err != nil {
		return err
	}

	remaining, done, err := m.veto.BanMap(team, mapName)
	if err != nil {
		return err
	}

	m.pub.Publish(m.cfg.MatchID, events.EventTypeMapBanned, events.MapBannedPayload{
		Map:       mapName,
		Team:      team.String(),
		Remaining: remaining,
	})
	m.commander.SendMessage(fmt.Sprintf("%s banned %s.", m.cfg.TeamName(team), mapName))

	if done {
		m.completeVeto()
		return nil
	}
	m.commander.SendMessage(fmt.Sprintf(
		"%s to ban next. Remaining: %v", m.cfg.TeamName(m.veto.Turn()), remaining,
	))
	return nil
}

func (m *Match) handleVoteMap(steamID, mapName string) error {
	if m.state != models.MatchStateVeto {
		return ErrIllegalTransition
	}
	if _, err := m.roster.TeamOf(steamID); err != nil {
		return err
	}

	eliminated, done, err := m.veto.CastVote(steamID, mapName)
	if err != nil {
		return err
	}
	if eliminated == "" {
		return nil
	}

	m.cancelTimer(timerVeto)
	m.pub.Publish(m.cfg.MatchID, events.EventTypeMapVoteResolved, events.MapVoteResolvedPayload{
		Eliminated: eliminated,
		ByTimeout:  false,
		Remaining:  m.veto.Remaining(),
	})
	m.commander.SendMessage(fmt.Sprintf("%s eliminated by vote.", eliminated))

	if done {
		m.completeVeto()
		return nil
	}
	m.startNextVoteRound()
	return nil
}

func (m *Match) startNextVoteRound() {
	deadline, err := m.veto.StartVoteRound(m.clock.Now())
	if err != nil {
		return
	}
	m.armTimer(timerVeto, deadline)
	m.commander.SendMessage(fmt.Sprintf(
		"Next vote round. Vote to eliminate one of: %v", m.veto.Remaining(),
	))
}

func (m *Match) handleVetoTimeout() {
	if m.state != models.MatchStateVeto {
		return
	}
	eliminated, done := m.veto.ResolveTimeout()
	if eliminated == "" {
		return
	}

	m.pub.Publish(m.cfg.MatchID, events.EventTypeMapVoteResolved, events.MapVoteResolvedPayload{
		Eliminated: eliminated,
		ByTimeout:  true,
		Remaining:  m.veto.Remaining(),
	})
	m.commander.SendMessage(fmt.Sprintf("Vote timed out, %s eliminated.", eliminated))

	if done {
		m.completeVeto()
		return
	}
	m.startNextVoteRound()
}

func (m *Match) completeVeto() {
	m.cancelTimer(timerVeto)
	m.selectedMaps = m.veto.Selected()
	m.pub.Publish(m.cfg.MatchID, events.EventTypeMapsSelected, events.MapsSelectedPayload{Maps: m.selectedMaps})
	m.commander.SendMessage(fmt.Sprintf("Maps locked in: %v", m.selectedMaps))
	m.enterWarmup()
}

func (m *Match) enterWarmup() {
	m.currentMap = m.selectedMaps[0]
	m.setState(models.MatchStateWarmup)
	m.commander.SwitchMap(m.currentMap)
	m.commander.SendMessage(fmt.Sprintf(
		"Switching to %s. The match goes live once both teams are full.", m.currentMap,
	))
}

func (m *Match) handleRoundFreezeEnd() {
	if m.state != models.MatchStateWarmup {
		return
	}

	need := m.cfg.MinPlayersToReady
	t1 := m.roster.ConnectedCount(models.Team1)
	t2 := m.roster.ConnectedCount(models.Team2)
	if t1 < need || t2 < need {
		m.commander.SendMessage(fmt.Sprintf(
			"Waiting for players: %s %d/%d, %s %d/%d",
			m.cfg.Team1.Name, t1, need, m.cfg.Team2.Name, t2, need,
		))
		return
	}
	m.goLive()
}

func (m *Match) goLive() {
	m.commander.EndWarmup()
	m.commander.DisableCheats()
	m.commander.SetupRoundBackup(m.cfg.MatchID)
	m.commander.StartDemoRecording(m.cfg.MatchID)
	m.setState(models.MatchStateRunning)
	m.commander.SendMessage("Match is LIVE. Good luck and have fun!")
}

func (m *Match) handleRoundEnd(msg roundEndMsg) {
	if m.state.Before(models.MatchStateRunning) {
		log.Debug().Str("state", m.state.String()).Msg("round end before match is live, ignoring")
		return
	}
	if m.state == models.MatchStateOver {
		return
	}

	m.roundsPlayed++
	m.team1Score = msg.team1Score
	m.team2Score = msg.team2Score

	m.pub.Publish(m.cfg.MatchID, events.EventTypeRoundCompleted, events.RoundCompletedPayload{
		Round:      m.roundsPlayed,
		WinnerTeam: msg.winner.String(),
		Team1Score: msg.team1Score,
		Team2Score: msg.team2Score,
		EndedAt:    m.clock.Now().UTC(),
	})
	m.commander.SendMessage(fmt.Sprintf(
		"%s %d : %d %s", m.cfg.Team1.Name, msg.team1Score, msg.team2Score, m.cfg.Team2.Name,
	))
}

func (m *Match) handleMatchOver() {
	if m.state.Before(models.MatchStateRunning) || m.state == models.MatchStateOver {
		log.Debug().Str("state", m.state.String()).Msg("match over outside a live match, ignoring")
		return
	}

	winner := models.TeamUnassigned
	switch {
	case m.team1Score > m.team2Score:
		winner = models.Team1
	case m.team2Score > m.team1Score:
		winner = models.Team2
	}

	result := models.MatchResult{
		MatchID:      m.cfg.MatchID,
		Map:          m.currentMap,
		WinnerTeam:   winner,
		Team1Name:    m.cfg.Team1.Name,
		Team2Name:    m.cfg.Team2.Name,
		Team1Score:   m.team1Score,
		Team2Score:   m.team2Score,
		RoundsPlayed: m.roundsPlayed,
		CompletedAt:  m.clock.Now().UTC(),
	}
	m.result = &result

	m.cancelTimer(timerPause)
	if _, paused := m.pauses.Paused(); paused {
		// The match can end mid-pause (forfeit, admin end). Lift the freeze
		// before teardown or the server stays stuck after the result.
		_ = m.pauses.RequestUnpause(m.clock.Now())
		m.commander.UnpauseServer()
	}
	m.commander.StopDemoRecording()
	m.commander.ResetServerSettings()

	m.pub.Publish(m.cfg.MatchID, events.EventTypeMatchCompleted, events.MatchCompletedPayload{Result: result})
	switch winner {
	case models.TeamUnassigned:
		m.commander.SendMessage(fmt.Sprintf(
			"Match over: %d : %d, a draw.", m.team1Score, m.team2Score,
		))
	default:
		m.commander.SendMessage(fmt.Sprintf(
			"Match over: %s wins %d : %d.",
			m.cfg.TeamName(winner), max(m.team1Score, m.team2Score), min(m.team1Score, m.team2Score),
		))
	}

	m.setState(models.MatchStateOver)
}

func (m *Match) handlePause(steamID string) error {
	if m.state != models.MatchStateRunning && m.state != models.MatchStatePaused {
		return ErrIllegalTransition
	}
	team, err := m.roster.TeamOf(steamID)
	if err != nil {
		return err
	}

	deadline, err := m.pauses.RequestPause(team, m.clock.Now())
	if err != nil {
		return err
	}

	m.commander.PauseServer()
	m.setState(models.MatchStatePaused)
	m.armTimer(timerPause, deadline)

	m.pub.Publish(m.cfg.MatchID, events.EventTypeMatchPaused, events.MatchPausedPayload{
		Team:        team.String(),
		CreditsLeft: m.pauses.CreditsLeft(team),
		ExpiresAt:   deadline.UTC(),
	})
	m.commander.SendMessage(fmt.Sprintf(
		"%s paused the match (%d timeouts left).", m.cfg.TeamName(team), m.pauses.CreditsLeft(team),
	))
	return nil
}

func (m *Match) handleUnpause(steamID string) error {
	if m.state != models.MatchStateRunning && m.state != models.MatchStatePaused {
		return ErrIllegalTransition
	}
	if _, err := m.roster.TeamOf(steamID); err != nil {
		return err
	}

	if err := m.pauses.RequestUnpause(m.clock.Now()); err != nil {
		return err
	}

	m.cancelTimer(timerPause)
	m.commander.UnpauseServer()
	m.setState(models.MatchStateRunning)

	m.pub.Publish(m.cfg.MatchID, events.EventTypeMatchUnpaused, events.MatchUnpausedPayload{Forced: false})
	m.commander.SendMessage("Match unpaused.")
	return nil
}

func (m *Match) handlePauseExpired() {
	if !m.pauses.Expire(m.clock.Now()) {
		return
	}
	m.commander.UnpauseServer()
	m.setState(models.MatchStateRunning)
	m.pub.Publish(m.cfg.MatchID, events.EventTypeMatchUnpaused, events.MatchUnpausedPayload{Forced: true})
	m.commander.SendMessage("Timeout is over, match continues.")
}

// handleTimerFired routes a timer expiry. A firing whose deadline does not
// match the armed entry is stale: its key was cancelled and re-armed after the
// message was posted but before the loop dispatched it, so it must not close
// the countdown that replaced it.
func (m *Match) handleTimerFired(key string, deadline time.Time) {
	entry, ok := m.timers[key]
	if !ok || !entry.deadline.Equal(deadline) {
		return
	}
	delete(m.timers, key)
	switch key {
	case timerVeto:
		m.handleVetoTimeout()
	case timerPause:
		m.handlePauseExpired()
	}
}

func (m *Match) buildSnapshot() Snapshot {
	snap := Snapshot{
		MatchID:      m.cfg.MatchID,
		State:        m.state.String(),
		CurrentMap:   m.currentMap,
		SelectedMaps: append([]string(nil), m.selectedMaps...),
		Players:      m.roster.Players(),
		Team1Score:   m.team1Score,
		Team2Score:   m.team2Score,
		RoundsPlayed: m.roundsPlayed,
		PauseCredits: map[string]int{
			models.Team1.String(): m.pauses.CreditsLeft(models.Team1),
			models.Team2.String(): m.pauses.CreditsLeft(models.Team2),
		},
		Config: m.cfg,
		Result: m.result,
	}
	if m.state == models.MatchStateVeto {
		snap.RemainingMaps = m.veto.Remaining()
	}
	return snap
}

// ---- timers ---------------------------------------------------------------

// armTimer schedules a keyed deadline. Re-arming the same key with the same
// deadline is a no-op, so an already-running countdown is never extended.
func (m *Match) armTimer(key string, deadline time.Time) {
	if existing, ok := m.timers[key]; ok {
		if existing.deadline.Equal(deadline) {
			return
		}
		stopAndDrainTimer(existing)
		delete(m.timers, key)
	}

	d := deadline.Sub(m.clock.Now())
	if d < 0 {
		d = 0
	}

	entry := &armedTimer{
		timer:    m.clock.NewTimer(d),
		deadline: deadline,
		stop:     make(chan struct{}),
	}
	m.timers[key] = entry

	go func() {
		select {
		case <-entry.timer.Chan():
			m.post(timerFiredMsg{key: key, deadline: entry.deadline})
		case <-entry.stop:
		}
	}()
}

func (m *Match) cancelTimer(key string) {
	entry, ok := m.timers[key]
	if !ok {
		return
	}
	stopAndDrainTimer(entry)
	delete(m.timers, key)
}

func (m *Match) stopAllTimers() {
	for key, entry := range m.timers {
		stopAndDrainTimer(entry)
		delete(m.timers, key)
	}
}

func stopAndDrainTimer(entry *armedTimer) {
	if !entry.timer.Stop() {
		select {
		case <-entry.timer.Chan():
		default:
		}
	}
	close(entry.stop)
}
