package gamefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrimmage/go/internal/match"
	"github.com/mcdev12/scrimmage/go/internal/match/roster"
	"github.com/mcdev12/scrimmage/go/internal/models"
)

const (
	streamName   = "GAME_EVENTS"
	consumerName = "scrimmage-gamefeed"

	eventChannelBufferSize = 256

	// warmupCash keeps everyone at full buy while the match is not live yet.
	warmupCash = 16000
)

// Feed consumes engine events from the game server agent and drives the
// orchestrator with them. Events are handled strictly in arrival order on one
// goroutine; the orchestrator serializes behind its own inbox.
type Feed struct {
	match     *match.Match
	commander match.Commander
	consumer  jetstream.Consumer
}

// NewFeed binds a feed to a match and the control surface used for admission
// kicks and warmup top-ups.
func NewFeed(m *match.Match, commander match.Commander) *Feed {
	return &Feed{match: m, commander: commander}
}

// EnsureConsumer creates or reuses the durable JetStream consumer over the
// game event stream. Live matches never replay history.
func (f *Feed) EnsureConsumer(ctx context.Context, js jetstream.JetStream) error {
	stream, err := js.Stream(ctx, streamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", streamName, err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		Description:   "Game server event consumer feeding the match orchestrator",
		FilterSubject: "game.events.>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.Consumer(ctx, consumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().Msg("created JetStream consumer for game feed")
	} else {
		log.Info().Msg("using existing JetStream consumer for game feed")
	}

	f.consumer = consumer
	return nil
}

// Run consumes game events until the context is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	eventCh := make(chan jetstream.Msg, eventChannelBufferSize)

	consumeCtx, err := f.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case eventCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start JetStream consumer: %w", err)
	}
	defer consumeCtx.Stop()

	log.Info().Str("match_id", f.match.Config().MatchID).Msg("game feed started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("game feed shutdown requested")
			return nil
		case msg := <-eventCh:
			if err := f.processMsg(msg); err != nil {
				log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process game event")
				msg.Nak()
			} else {
				msg.Ack()
			}
		}
	}
}

func (f *Feed) processMsg(msg jetstream.Msg) error {
	var event GameEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		return fmt.Errorf("unmarshal game event: %w", err)
	}
	return f.HandleEvent(event)
}

// HandleEvent routes one engine event into the orchestrator.
func (f *Feed) HandleEvent(event GameEvent) error {
	switch event.Type {
	case EventPlayerConnectFull:
		return f.handleConnect(event.Data)
	case EventPlayerDisconnect:
		return f.handleDisconnect(event.Data)
	case EventPlayerTeam:
		return f.handlePlayerTeam(event.Data)
	case EventPlayerSpawn:
		return f.handlePlayerSpawn(event.Data)
	case EventRoundFreezeEnd:
		f.match.OnRoundFreezeEnd()
		return nil
	case EventRoundEnd:
		return f.handleRoundEnd(event.Data)
	case EventWinPanelMatch:
		f.match.OnMatchOver()
		return nil
	case EventServerCvar:
		return f.handleServerCvar(event.Data)
	default:
		log.Debug().Str("event_type", event.Type).Msg("ignoring game event")
		return nil
	}
}

func (f *Feed) handleConnect(data json.RawMessage) error {
	var p PlayerConnectPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("unmarshal player connect: %w", err)
	}

	err := f.match.OnPlayerConnect(match.PlayerHandle{
		SteamID: p.SteamID,
		Name:    p.Name,
		Team:    models.Team(p.Team),
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, roster.ErrNotInMatch):
		f.commander.KickPlayer(p.SteamID, "You are not part of this match")
		return nil
	case errors.Is(err, roster.ErrRosterFull):
		f.commander.KickPlayer(p.SteamID, "Your team is already full")
		return nil
	case errors.Is(err, match.ErrMatchStopped), errors.Is(err, match.ErrIllegalTransition):
		log.Debug().Str("steam_id", p.SteamID).Err(err).Msg("connect while match not accepting players")
		return nil
	default:
		return err
	}
}

func (f *Feed) handleDisconnect(data json.RawMessage) error {
	var p PlayerDisconnectPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("unmarshal player disconnect: %w", err)
	}
	f.match.OnPlayerDisconnect(p.SteamID)
	return nil
}

func (f *Feed) handlePlayerTeam(data json.RawMessage) error {
	var p PlayerTeamPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("unmarshal player team: %w", err)
	}
	f.match.OnPlayerTeamObserved(p.SteamID, models.Team(p.Team))
	return nil
}

// handlePlayerSpawn tops players up to a full buy while the match is not live
// yet, so warmup deaths never cost anyone their pistol-round economy.
func (f *Feed) handlePlayerSpawn(data json.RawMessage) error {
	var p PlayerSpawnPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("unmarshal player spawn: %w", err)
	}

	if !f.match.State().Before(models.MatchStateRunning) {
		return nil
	}
	if _, err := f.match.PlayerTeam(p.SteamID); err != nil {
		return nil
	}
	f.commander.SetPlayerCash(p.SteamID, warmupCash)
	return nil
}

func (f *Feed) handleRoundEnd(data json.RawMessage) error {
	var p RoundEndPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("unmarshal round end: %w", err)
	}
	f.match.OnRoundEnd(models.Team(p.Winner), p.Team1Score, p.Team2Score)
	return nil
}

func (f *Feed) handleServerCvar(data json.RawMessage) error {
	var p ServerCvarPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("unmarshal server cvar: %w", err)
	}

	if ShouldSuppressCvarBroadcast(p.Name) {
		log.Debug().Str("cvar", p.Name).Str("value", p.Value).Msg("suppressed cvar change broadcast")
		return nil
	}
	log.Info().Str("cvar", p.Name).Str("value", p.Value).Msg("server cvar changed")
	return nil
}

// suppressedCvarPrefixes covers the convars the orchestrator sets itself
// while driving a match. Their change broadcasts are pure noise to players.
var suppressedCvarPrefixes = []string{
	"mp_teamname",
	"mp_team_timeout",
	"mp_tournament",
	"mp_maxrounds",
	"mp_overtime_maxrounds",
	"mp_backup_round_file",
	"tv_",
}

// ShouldSuppressCvarBroadcast reports whether a convar change announcement
// should be hidden from chat.
func ShouldSuppressCvarBroadcast(name string) bool {
	for _, prefix := range suppressedCvarPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
