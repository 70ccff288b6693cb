package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrimmage/go/clients/gameserver"
	"github.com/mcdev12/scrimmage/go/internal/config"
	"github.com/mcdev12/scrimmage/go/internal/models"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	setupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	matchCfg, err := loadMatchConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load match config")
	}

	serverCfg, err := config.LoadServerConfig(getEnv("SERVER_CONFIG_FILE", "server.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load server config")
	}

	commander := gameserver.NewClient(
		getEnv("GAME_SERVER_URL", "http://localhost:27020"),
		os.Getenv("GAME_SERVER_API_KEY"),
	)

	services, err := setupServices(ctx, *matchCfg, serverCfg, commander)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	defer services.Close()

	services.Match.Start(ctx)
	services.Run(ctx)

	server := setupServer(services)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case <-services.Match.Done():
		log.Info().Msg("match ended")
	}

	shutdown(server, services)
}

func setupLogging() {
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if getEnv("LOG_FORMAT", "json") == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// loadMatchConfig pulls the match definition either from a local file or a
// platform URL, whichever is configured. The URL wins when both are set.
func loadMatchConfig(ctx context.Context) (*models.MatchConfig, error) {
	provider := config.NewProvider()

	if rawURL := os.Getenv("MATCH_CONFIG_URL"); rawURL != "" {
		return provider.LoadURL(ctx, rawURL, os.Getenv("MATCH_CONFIG_TOKEN"))
	}
	return provider.LoadFile(getEnv("MATCH_CONFIG_FILE", "match.json"))
}
