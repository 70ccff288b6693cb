package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrimmage/go/internal/match"
)

// Service bridges the match event bus to WebSocket spectators and serves the
// match state snapshot over HTTP.
type Service struct {
	connectionManager *ConnectionManager
	match             *match.Match
	nc                *nats.Conn
	sub               *nats.Subscription
}

// NewService creates a gateway over an established NATS connection.
func NewService(m *match.Match, nc *nats.Conn, config ConnectionConfig) *Service {
	return &Service{
		connectionManager: NewConnectionManager(config),
		match:             m,
		nc:                nc,
	}
}

// Start subscribes to the match event subjects and runs the broadcast loop
// until the context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting match gateway service")

	go s.connectionManager.Start(ctx)

	sub, err := s.nc.Subscribe("match.events.>", func(msg *nats.Msg) {
		s.connectionManager.Broadcast(msg.Data)
	})
	if err != nil {
		return err
	}
	s.sub = sub

	<-ctx.Done()

	log.Info().Msg("match gateway service shutting down")
	return s.Stop()
}

// Stop drops the event subscription.
func (s *Service) Stop() error {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			log.Error().Err(err).Msg("failed to unsubscribe from match events")
		}
	}
	log.Info().Msg("match gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket, state and stats HTTP routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/match", s.handleWebSocket)
	mux.HandleFunc("/api/match/state", s.handleState)
	mux.HandleFunc("/api/gateway/stats", s.handleStats)
	log.Info().Msg("match gateway routes registered")
}

func (s *Service) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := s.connectionManager.UpgradeConnection(w, r); err != nil {
		http.Error(w, "failed to establish WebSocket connection", http.StatusInternalServerError)
	}
}

// handleState serves a consistent snapshot so late-joining clients can render
// without replaying the event history.
func (s *Service) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap, err := s.match.Snapshot()
	if err != nil {
		http.Error(w, "match is not running", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		log.Error().Err(err).Msg("failed to encode match snapshot")
	}
}

// Stats reports gateway health counters.
func (s *Service) Stats() map[string]interface{} {
	return map[string]interface{}{
		"service":           "match_gateway",
		"total_connections": s.connectionManager.ConnectionCount(),
	}
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to encode gateway stats")
	}
}
