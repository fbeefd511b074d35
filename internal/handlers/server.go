// internal/handlers/server.go
package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jason-s-yu/picofermibagel/internal/auth"
	"github.com/jason-s-yu/picofermibagel/internal/broadcast"
	"github.com/jason-s-yu/picofermibagel/internal/command"
	"github.com/jason-s-yu/picofermibagel/internal/interest"
	"github.com/jason-s-yu/picofermibagel/internal/lobby"
	"github.com/jason-s-yu/picofermibagel/internal/middleware"
	"github.com/jason-s-yu/picofermibagel/internal/models"
	"github.com/sirupsen/logrus"
)

// Server holds what the HTTP and WebSocket handlers need.
type Server struct {
	Dispatcher *command.Dispatcher
	Lobbies    *lobby.Service
	Interest   *interest.Aggregator
	Hub        *broadcast.Hub
	Logger     logrus.FieldLogger

	// Launches serves the launch history; nil when no history is kept.
	Launches LaunchReader

	// LauncherKeys verifies launcher tokens. When RequireLauncherToken is
	// set, startGame and finishGame are refused without a valid one.
	LauncherKeys         *auth.Keys
	RequireLauncherToken bool

	AllowedOrigins []string
}

// LaunchReader reads recorded launches, newest first.
type LaunchReader interface {
	RecentLaunches(ctx context.Context, roomClass string, limit int) ([]models.LaunchRecord, error)
}

// privileged lists operations only a launcher may issue.
var privileged = map[string]bool{
	command.OpStartGame:  true,
	command.OpFinishGame: true,
}

// Router wires every route onto a chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.LogMiddleware(s.Logger))
		r.Post("/api/{operation}", s.APIHandler)
		r.Get("/api/lobby/{roomClass}", s.LobbyStatusHandler)
		r.Get("/api/interest", s.InterestHandler)
		r.Get("/api/launches/{roomClass}", s.LaunchesHandler)
	})
	r.Get("/ws/lobby/{roomClass}", s.LobbyWSHandler)
	return r
}

// authorizeLauncher reports whether token may issue privileged operations.
func (s *Server) authorizeLauncher(token string) (string, bool) {
	if !s.RequireLauncherToken {
		return "", true
	}
	if s.LauncherKeys == nil || token == "" {
		return "", false
	}
	launcher, err := s.LauncherKeys.VerifyLauncherToken(token)
	if err != nil {
		s.Logger.WithError(err).Debug("launcher token rejected")
		return "", false
	}
	return launcher, true
}
