package reporter

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrimmage/go/internal/match/events"
	"github.com/mcdev12/scrimmage/go/internal/models"
)

// Consumer forwards rounds and results from the match event bus to the
// platform reporter.
type Consumer struct {
	reporter *Reporter
	nc       *nats.Conn
	sub      *nats.Subscription
}

// NewConsumer binds a reporter to an established NATS connection.
func NewConsumer(reporter *Reporter, nc *nats.Conn) *Consumer {
	return &Consumer{reporter: reporter, nc: nc}
}

// Start subscribes to the match event subjects until the context ends.
func (c *Consumer) Start(ctx context.Context) error {
	sub, err := c.nc.Subscribe("match.events.>", func(msg *nats.Msg) {
		c.handleMessage(ctx, msg.Data)
	})
	if err != nil {
		return err
	}
	c.sub = sub

	log.Info().Msg("stats reporter consumer started")
	<-ctx.Done()

	if err := c.sub.Unsubscribe(); err != nil {
		log.Error().Err(err).Msg("failed to unsubscribe reporter consumer")
	}
	return nil
}

func (c *Consumer) handleMessage(ctx context.Context, data []byte) {
	var event events.MatchEvent
	if err := json.Unmarshal(data, &event); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal match event for reporting")
		return
	}

	parsed, err := events.ParseEventPayload(&event)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to parse match event payload for reporting")
		return
	}

	switch payload := parsed.(type) {
	case events.RoundCompletedPayload:
		round := models.RoundResult{
			MatchID:    event.MatchID,
			Round:      payload.Round,
			WinnerTeam: teamFromName(payload.WinnerTeam),
			Team1Score: payload.Team1Score,
			Team2Score: payload.Team2Score,
			EndedAt:    payload.EndedAt,
		}
		if err := c.reporter.ReportRound(ctx, round); err != nil {
			log.Error().Err(err).Int("round", round.Round).Msg("failed to report round")
		}

	case events.MatchCompletedPayload:
		if err := c.reporter.ReportFinal(ctx, payload.Result); err != nil {
			log.Error().Err(err).Str("match_id", event.MatchID).Msg("failed to report final result")
		}
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
