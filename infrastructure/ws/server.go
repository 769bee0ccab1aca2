// Package ws binds the relay to its websocket transport: upgrade
// handling, the per-connection state machine and the JSON framing.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"chat-relay/runtime"
	"chat-relay/services"
)

// Timing groups the per-connection deadlines. PingInterval must stay
// below PongTimeout or healthy peers get dropped.
type Timing struct {
	WriteTimeout time.Duration
	PongTimeout  time.Duration
	PingInterval time.Duration
}

// Server exposes GET /ws for clients and GET /statsz for operators.
// Each upgraded request is served by its own Conn.
type Server struct {
	log      *slog.Logger
	hub      *runtime.Hub
	auth     services.IAuthService
	upgrader websocket.Upgrader

	connectionBufferSize int
	timing               Timing
}

func NewServer(log *slog.Logger, hub *runtime.Hub, auth services.IAuthService,
	connectionBufferSize int, timing Timing) *Server {
	return &Server{
		log:  log,
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The relay serves its own clients, cross origin pages
			// included. Identity comes from the authenticate action,
			// not from the origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		connectionBufferSize: connectionBufferSize,
		timing:               timing,
	}
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /statsz", s.handleStats)
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Upgrade failed", slog.Any("error", err))
		return
	}

	conn := newConn(s.log, ws, s.hub, s.auth, s.connectionBufferSize,
		s.timing.WriteTimeout, s.timing.PongTimeout, s.timing.PingInterval)
	conn.serve(r.Context())
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.hub.Stats()); err != nil {
		s.log.Error("Failed to encode stats", slog.Any("error", err))
	}
}
