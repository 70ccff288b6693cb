package veto

import (
	"errors"
	"time"

	"github.com/mcdev12/scrimmage/go/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotYourTurn means the acting team is not the one whose ban it is.
	ErrNotYourTurn = errors.New("not your turn to ban")
	// ErrAlreadyBanned means the map was in the pool but has been eliminated.
	ErrAlreadyBanned = errors.New("map already banned")
	// ErrUnknownMap means the map was never part of the configured pool.
	ErrUnknownMap = errors.New("map not in pool")
	// ErrVetoComplete means the pool has already been reduced to num_maps.
	ErrVetoComplete = errors.New("veto already complete")
)

// Mode selects how the pool is reduced.
type Mode string

const (
	// ModeBan alternates bans between the two sides.
	ModeBan Mode = "BAN"
	// ModeVote eliminates one map per voting round by majority.
	ModeVote Mode = "VOTE"
)

// Engine reduces the configured map pool to num_maps. It is a passive
// component: the lifecycle machine owns it, calls it from its serialized
// loop, and schedules the vote timeout it exposes through Deadline.
type Engine struct {
	mode    Mode
	order   []string
	pool    map[string]bool
	banned  map[string]models.Team
	numMaps int

	// ban mode
	turn models.Team

	// vote mode
	voteTimeout time.Duration
	quorum      int
	votes       map[string]string
	deadline    time.Time
}

// NewEngine builds a veto engine over the configured pool. startingTeam takes
// the first ban in ModeBan; quorum is the vote count that resolves a voting
// round before its timeout.
func NewEngine(mode Mode, maplist []string, numMaps int, startingTeam models.Team, voteTimeout time.Duration, quorum int) *Engine {
	pool := make(map[string]bool, len(maplist))
	for _, m := range maplist {
		pool[m] = true
	}
	return &Engine{
		mode:        mode,
		order:       append([]string(nil), maplist...),
		pool:        pool,
		banned:      make(map[string]models.Team),
		numMaps:     numMaps,
		turn:        startingTeam,
		voteTimeout: voteTimeout,
		quorum:      quorum,
		votes:       make(map[string]string),
	}
}

// Mode returns the configured reduction mode.
func (e *Engine) Mode() Mode { return e.mode }

// Done reports whether the pool has been reduced to num_maps.
func (e *Engine) Done() bool { return len(e.poolOrdered()) <= e.numMaps }

// Turn returns the side whose ban it currently is (ModeBan only).
func (e *Engine) Turn() models.Team { return e.turn }

// Remaining returns the maps still in the pool, in configured order.
func (e *Engine) Remaining() []string { return e.poolOrdered() }

// Selected returns the series map list once the veto is done, in configured
// order, or nil while the veto is still running.
func (e *Engine) Selected() []string {
	if !e.Done() {
		return nil
	}
	return e.poolOrdered()
}

func (e *Engine) poolOrdered() []string {
	out := make([]string, 0, len(e.pool))
	for _, m := range e.order {
		if e.pool[m] {
			out = append(out, m)
		}
	}
	return out
}

// BanMap eliminates a map on behalf of a team. Only valid in ModeBan and
// only for the team whose turn it is; turns alternate after each valid ban.
func (e *Engine) BanMap(team models.Team, mapName string) ([]string, bool, error) {
	if e.Done() {
		return e.poolOrdered(), true, ErrVetoComplete
	}
	if e.mode != ModeBan || team != e.turn {
		return nil, false, ErrNotYourTurn
	}
	if err := e.checkInPool(mapName); err != nil {
		return nil, false, err
	}

	e.eliminate(mapName, team)
	e.turn = e.turn.Opponent()

	log.Info().
		Str("map", mapName).
		Str("team", team.String()).
		Int("remaining", len(e.poolOrdered())).
		Msg("map banned")

	return e.poolOrdered(), e.Done(), nil
}

// StartVoteRound opens a voting round and arms its deadline. Re-invoking
// while a round is already open returns the existing deadline unchanged, so
// overlapping requests never extend a running countdown.
func (e *Engine) StartVoteRound(now time.Time) (time.Time, error) {
	if e.Done() {
		return time.Time{}, ErrVetoComplete
	}
	if !e.deadline.IsZero() {
		return e.deadline, nil
	}
	e.votes = make(map[string]string)
	e.deadline = now.Add(e.voteTimeout)
	return e.deadline, nil
}

// Deadline returns the open voting round's deadline, if any.
func (e *Engine) Deadline() (time.Time, bool) {
	return e.deadline, !e.deadline.IsZero()
}

// CastVote records a player's vote to eliminate a map. A repeated vote for
// the same map is a no-op and never re-arms the running countdown; changing
// the vote target replaces the earlier one. The round resolves early when
// the quorum is reached.
func (e *Engine) CastVote(steamID, mapName string) (string, bool, error) {
	if e.Done() {
		return "", true, ErrVetoComplete
	}
	if e.mode != ModeVote || e.deadline.IsZero() {
		return "", false, ErrNotYourTurn
	}
	if err := e.checkInPool(mapName); err != nil {
		return "", false, err
	}

	e.votes[steamID] = mapName
	if len(e.votes) >= e.quorum {
		eliminated := e.resolveRound()
		return eliminated, e.Done(), nil
	}
	return "", false, nil
}

// ResolveTimeout closes the open voting round at its deadline. The map with
// the most votes is eliminated; ties (including a round with no votes at
// all) are broken deterministically in favor of the map registered first in
// the configured pool order.
func (e *Engine) ResolveTimeout() (string, bool) {
	if e.Done() || e.deadline.IsZero() {
		return "", e.Done()
	}
	eliminated := e.resolveRound()
	return eliminated, e.Done()
}

func (e *Engine) resolveRound() string {
	counts := make(map[string]int)
	for _, m := range e.votes {
		counts[m]++
	}

	var target string
	best := -1
	for _, m := range e.order {
		if !e.pool[m] {
			continue
		}
		if counts[m] > best {
			best = counts[m]
			target = m
		}
	}

	e.eliminate(target, models.TeamUnassigned)
	e.votes = make(map[string]string)
	e.deadline = time.Time{}

	log.Info().Str("map", target).Int("votes", best).Msg("vote round resolved, map eliminated")
	return target
}

func (e *Engine) checkInPool(mapName string) error {
	if e.pool[mapName] {
		return nil
	}
	if _, wasBanned := e.banned[mapName]; wasBanned {
		return ErrAlreadyBanned
	}
	return ErrUnknownMap
}

func (e *Engine) eliminate(mapName string, by models.Team) {
	delete(e.pool, mapName)
	e.banned[mapName] = by
}
