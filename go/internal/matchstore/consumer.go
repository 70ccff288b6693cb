package matchstore

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrimmage/go/internal/match/events"
	"github.com/mcdev12/scrimmage/go/internal/models"
)

// Consumer subscribes to the match event subjects and archives everything it
// sees. Archive failures are logged and dropped; the bus stays the source of
// truth for live consumers.
type Consumer struct {
	store *Store
	nc    *nats.Conn
	sub   *nats.Subscription
}

// NewConsumer binds a store to an established NATS connection.
func NewConsumer(store *Store, nc *nats.Conn) *Consumer {
	return &Consumer{store: store, nc: nc}
}

// Start subscribes to match.events.> and archives until the context ends.
func (c *Consumer) Start(ctx context.Context) error {
	sub, err := c.nc.Subscribe("match.events.>", func(msg *nats.Msg) {
		c.handleMessage(ctx, msg.Data)
	})
	if err != nil {
		return err
	}
	c.sub = sub

	log.Info().Msg("match archive consumer started")
	<-ctx.Done()

	if err := c.sub.Unsubscribe(); err != nil {
		log.Error().Err(err).Msg("failed to unsubscribe archive consumer")
	}
	log.Info().Msg("match archive consumer stopped")
	return nil
}

func (c *Consumer) handleMessage(ctx context.Context, data []byte) {
	var event events.MatchEvent
	if err := json.Unmarshal(data, &event); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal match event for archive")
		return
	}

	if err := c.store.RecordEvent(ctx, event.ID, event.MatchID, string(event.Type), event.Data, event.Timestamp); err != nil {
		log.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to archive match event")
	}

	parsed, err := events.ParseEventPayload(&event)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to parse match event payload")
		return
	}

	switch payload := parsed.(type) {
	case events.MatchInitializedPayload:
		c.archiveMatch(ctx, payload)
	case events.RoundCompletedPayload:
		c.archiveRound(ctx, event.MatchID, payload)
	case events.MatchCompletedPayload:
		c.archiveResult(ctx, event.MatchID, payload)
	}
}

func (c *Consumer) archiveMatch(ctx context.Context, payload events.MatchInitializedPayload) {
	cfg := models.MatchConfig{
		MatchID: payload.MatchID,
		Team1:   models.TeamConfig{Name: payload.Team1Name},
		Team2:   models.TeamConfig{Name: payload.Team2Name},
		Maplist: payload.Maplist,
		NumMaps: payload.NumMaps,
	}
	if err := c.store.CreateMatch(ctx, cfg); err != nil {
		log.Error().Err(err).Str("match_id", payload.MatchID).Msg("failed to archive match")
	}
}

func (c *Consumer) archiveRound(ctx context.Context, matchID string, payload events.RoundCompletedPayload) {
	round := models.RoundResult{
		MatchID:    matchID,
		Round:      payload.Round,
		WinnerTeam: teamFromName(payload.WinnerTeam),
		Team1Score: payload.Team1Score,
		Team2Score: payload.Team2Score,
		EndedAt:    payload.EndedAt,
	}
	if err := c.store.RecordRound(ctx, round); err != nil {
		log.Error().Err(err).Str("match_id", matchID).Msg("failed to archive round")
	}
}

func (c *Consumer) archiveResult(ctx context.Context, matchID string, payload events.MatchCompletedPayload) {
	if err := c.store.RecordResult(ctx, payload.Result); err != nil {
		log.Error().Err(err).Str("match_id", matchID).Msg("failed to archive result")
	}
}

func teamFromName(name string) models.Team {
	switch name {
	case models.Team1.String():
		return models.Team1
	case models.Team2.String():
		return models.Team2
	default:
		return models.TeamUnassigned
	}
}
