package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrimmage/go/internal/match"
	"github.com/mcdev12/scrimmage/go/internal/models"
)

func setupServer(services *Services) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	services.Gateway.RegisterRoutes(mux)
	registerCommandRoutes(mux, services)
	setupHealthCheck(mux)

	handler := c.Handler(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", getEnv("PORT", "8080")),
		Handler: handler,
	}
}

// playerCommand is the wire form of a chat or RCON command forwarded by the
// game server agent on behalf of a player.
type playerCommand struct {
	SteamID string `json:"steam_id"`
	Name    string `json:"name"`
	Map     string `json:"map,omitempty"`
}

type commandResponse struct {
	OK      bool            `json:"ok"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// registerCommandRoutes exposes the player command surface. The agent relays
// chat commands here; responses go back to the issuing player.
func registerCommandRoutes(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("/api/match/command", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var cmd playerCommand
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			http.Error(w, "invalid command body", http.StatusBadRequest)
			return
		}

		status, resp := dispatchCommand(services, cmd)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Error().Err(err).Msg("failed to encode command response")
		}
	})
}

func dispatchCommand(services *Services, cmd playerCommand) (int, commandResponse) {
	m := services.Match

	switch cmd.Name {
	case "ready", "unready":
		ready, err := m.ToggleReady(cmd.SteamID)
		if err != nil {
			return commandError(err)
		}
		if ready {
			return http.StatusOK, commandResponse{OK: true, Message: "you are ready"}
		}
		return http.StatusOK, commandResponse{OK: true, Message: "you are no longer ready"}

	case "pause":
		if err := m.RequestPause(cmd.SteamID); err != nil {
			return commandError(err)
		}
		return http.StatusOK, commandResponse{OK: true, Message: "match paused"}

	case "unpause":
		if err := m.RequestUnpause(cmd.SteamID); err != nil {
			return commandError(err)
		}
		return http.StatusOK, commandResponse{OK: true, Message: "match unpaused"}

	case "ban":
		if err := m.BanMap(cmd.SteamID, cmd.Map); err != nil {
			return commandError(err)
		}
		return http.StatusOK, commandResponse{OK: true, Message: fmt.Sprintf("banned %s", cmd.Map)}

	case "vote":
		if err := m.VoteMap(cmd.SteamID, cmd.Map); err != nil {
			return commandError(err)
		}
		return http.StatusOK, commandResponse{OK: true, Message: fmt.Sprintf("voted for %s", cmd.Map)}

	case "dumpmatch":
		if !services.ServerCfg.IsAdmin(cmd.SteamID) {
			return http.StatusForbidden, commandResponse{Message: "admin only"}
		}
		snap, err := m.Snapshot()
		if err != nil {
			return commandError(err)
		}
		dump, err := json.Marshal(struct {
			Snapshot interface{} `json:"snapshot"`
			Config   interface{} `json:"config"`
		}{Snapshot: snap, Config: m.Config()})
		if err != nil {
			return http.StatusInternalServerError, commandResponse{Message: "failed to serialize match dump"}
		}
		return http.StatusOK, commandResponse{OK: true, Data: dump}

	case "loadconfig":
		if !services.ServerCfg.IsAdmin(cmd.SteamID) {
			return http.StatusForbidden, commandResponse{Message: "admin only"}
		}
		// One process owns one match; a new config means a new process.
		if m.State() != models.MatchStateOver {
			return http.StatusConflict, commandResponse{Message: "a match is already loaded"}
		}
		return http.StatusConflict, commandResponse{Message: "match finished, restart the orchestrator with the new config"}

	case "stopmatch":
		if !services.ServerCfg.IsAdmin(cmd.SteamID) {
			return http.StatusForbidden, commandResponse{Message: "admin only"}
		}
		m.Stop()
		return http.StatusOK, commandResponse{OK: true, Message: "match stopped"}

	default:
		return http.StatusBadRequest, commandResponse{Message: fmt.Sprintf("unknown command %q", cmd.Name)}
	}
}

func commandError(err error) (int, commandResponse) {
	status := http.StatusConflict
	if errors.Is(err, match.ErrMatchStopped) {
		status = http.StatusServiceUnavailable
	}
	return status, commandResponse{Message: err.Error()}
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}

func shutdown(server *http.Server, services *Services) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
	services.Match.Stop()
	log.Info().Msg("orchestrator stopped")
}
