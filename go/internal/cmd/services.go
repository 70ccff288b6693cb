package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrimmage/go/clients/reporter"
	"github.com/mcdev12/scrimmage/go/internal/config"
	"github.com/mcdev12/scrimmage/go/internal/gamefeed"
	"github.com/mcdev12/scrimmage/go/internal/gateway"
	"github.com/mcdev12/scrimmage/go/internal/match"
	"github.com/mcdev12/scrimmage/go/internal/match/events"
	"github.com/mcdev12/scrimmage/go/internal/matchstore"
	"github.com/mcdev12/scrimmage/go/internal/models"
)

const (
	natsMaxReconnects = -1
	natsReconnectWait = 2 * time.Second
)

// Services holds every long-running component of the orchestrator process.
type Services struct {
	Match     *match.Match
	Commander match.Commander
	ServerCfg *config.ServerConfig

	Gateway  *gateway.Service
	Feed     *gamefeed.Feed
	Archive  *matchstore.Consumer
	Reporter *reporter.Consumer

	nc *nats.Conn
	db *sql.DB
}

// setupServices wires the dependency chain: control surface and event bus
// into the match machine, then the bus back out into the gateway, the
// archive, and the stats reporter.
func setupServices(ctx context.Context, matchCfg models.MatchConfig, serverCfg *config.ServerConfig, commander match.Commander) (*Services, error) {
	nc, js, err := setupNATSConnection(getEnv("NATS_URL", nats.DefaultURL))
	if err != nil {
		return nil, err
	}

	m, err := match.New(matchCfg, commander, events.NewNATSPublisher(nc), nil)
	if err != nil {
		nc.Close()
		return nil, err
	}

	services := &Services{
		Match:     m,
		Commander: commander,
		ServerCfg: serverCfg,
		Gateway:   gateway.NewService(m, nc, gateway.DefaultConnectionConfig()),
		Feed:      gamefeed.NewFeed(m, commander),
		nc:        nc,
	}

	if err := services.Feed.EnsureConsumer(ctx, js); err != nil {
		nc.Close()
		return nil, err
	}

	// The archive is optional: without a database the match still runs, it
	// just leaves no record behind.
	if db, err := setupDatabase(ctx); err != nil {
		log.Warn().Err(err).Msg("running without match archive")
	} else {
		services.db = db
		services.Archive = matchstore.NewConsumer(matchstore.NewStore(db), nc)
	}

	if r := reporter.New(matchCfg); r != nil {
		services.Reporter = reporter.NewConsumer(r, nc)
	}

	return services, nil
}

// Run launches the consumers. Each one owns its subscription and stops with
// the context.
func (s *Services) Run(ctx context.Context) {
	go func() {
		if err := s.Feed.Run(ctx); err != nil {
			log.Error().Err(err).Msg("game feed stopped")
		}
	}()
	go func() {
		if err := s.Gateway.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway stopped")
		}
	}()
	if s.Archive != nil {
		go func() {
			if err := s.Archive.Start(ctx); err != nil {
				log.Error().Err(err).Msg("match archive stopped")
			}
		}()
	}
	if s.Reporter != nil {
		go func() {
			if err := s.Reporter.Start(ctx); err != nil {
				log.Error().Err(err).Msg("stats reporter stopped")
			}
		}()
	}
}

func (s *Services) Close() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}
	if s.nc != nil {
		s.nc.Close()
	}
}

func setupNATSConnection(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	opts := []nats.Option{
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("nats async error")
		}),
	}

	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}

	log.Info().Str("url", nc.ConnectedUrl()).Msg("connected to nats")
	return nc, js, nil
}
