package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jason-s-yu/picofermibagel/internal/command"
	"github.com/jason-s-yu/picofermibagel/internal/models"
)

const (
	maxBodyBytes = 64 << 10

	defaultLaunchLimit = 20
	maxLaunchLimit     = 100
)

// APIHandler serves POST /api/{operation}. Business failures are 200 with
// success=false; only undecodable requests get a 4xx.
func (s *Server) APIHandler(w http.ResponseWriter, r *http.Request) {
	op := chi.URLParam(r, "operation")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeStatus(w, http.StatusRequestEntityTooLarge, "Request too large")
			return
		}
		writeStatus(w, http.StatusBadRequest, "Unable to read request")
		return
	}

	cmd, err := command.Decode(op, body)
	if err != nil {
		writeStatus(w, http.StatusBadRequest, command.Message(err))
		return
	}

	if privileged[op] {
		launcher, ok := s.authorizeLauncher(bearerToken(r))
		if !ok {
			writeStatus(w, http.StatusUnauthorized, "Launcher token required")
			return
		}
		if launcher != "" {
			s.Logger.WithField("launcher", launcher).WithField("operation", op).Info("privileged operation")
		}
	}

	writeJSON(w, http.StatusOK, s.Dispatcher.Dispatch(r.Context(), cmd))
}

// LobbyStatusHandler serves GET /api/lobby/{roomClass}, the pull path for
// clients that missed a push.
func (s *Server) LobbyStatusHandler(w http.ResponseWriter, r *http.Request) {
	roomClass := chi.URLParam(r, "roomClass")
	if !validRoomClass(roomClass) {
		writeStatus(w, http.StatusBadRequest, "invalid roomClass")
		return
	}
	writeJSON(w, http.StatusOK, s.Dispatcher.Dispatch(r.Context(), &command.GetLobbyStatus{RoomClass: roomClass}))
}

// InterestHandler serves GET /api/interest.
func (s *Server) InterestHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Dispatcher.Dispatch(r.Context(), &command.GetInterestCounts{}))
}

// LaunchesHandler serves GET /api/launches/{roomClass}?limit=N from the launch history.
func (s *Server) LaunchesHandler(w http.ResponseWriter, r *http.Request) {
	if s.Launches == nil {
		writeStatus(w, http.StatusNotFound, "Launch history not available")
		return
	}
	roomClass := chi.URLParam(r, "roomClass")
	if !validRoomClass(roomClass) {
		writeStatus(w, http.StatusBadRequest, "invalid roomClass")
		return
	}
	limit := defaultLaunchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeStatus(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxLaunchLimit)
	}

	launches, err := s.Launches.RecentLaunches(r.Context(), roomClass, limit)
	if err != nil {
		s.Logger.WithError(err).WithField("room_class", roomClass).Warn("failed to read launch history")
		writeStatus(w, http.StatusServiceUnavailable, "Storage unavailable, please retry")
		return
	}
	if launches == nil {
		launches = []models.LaunchRecord{}
	}
	writeJSON(w, http.StatusOK, launches)
}
