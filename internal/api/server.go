package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/goodtune/readtrack/internal/session"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

var dateKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Server exposes the session tracker over HTTP for the surrounding
// application (the content player, a UI, a sync agent).
type Server struct {
	tracker  *session.Tracker
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // optional systemd socket-activated listener
}

// NewServer creates the caller-facing API server.
func NewServer(addr string, tracker *session.Tracker, logger zerolog.Logger) *Server {
	s := &Server{
		tracker: tracker,
		logger:  logger.With().Str("component", "api").Logger(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/session/start", s.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/session/progress", s.handleProgress).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/session/sync", s.handleSync).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/session/end", s.handleEnd).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/sessions/recent", s.handleRecentSessions).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/stats/daily/{date}", s.handleDailyStats).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/stats/streak", s.handleStreak).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// SetListener sets a pre-created listener for systemd socket activation.
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting API server")
	go func() {
		var err error
		if s.listener != nil {
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()
	return nil
}

// Stop stops the API server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

type startRequest struct {
	ItemID       string `json:"item_id"`
	ChapterLabel string `json:"chapter_label,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ItemID == "" {
		writeError(w, http.StatusBadRequest, "item_id is required")
		return
	}

	if err := s.tracker.Start(r.Context(), req.ItemID, req.ChapterLabel); err != nil {
		s.logger.Error().Err(err).Str("item_id", req.ItemID).Msg("Failed to start session")
		writeError(w, http.StatusInternalServerError, "Failed to start session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": s.tracker.ActiveSessionID(),
	})
}

type progressRequest struct {
	ChapterLabel string `json:"chapter_label,omitempty"`
	Pages        int64  `json:"pages,omitempty"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.tracker.UpdateProgress(req.ChapterLabel, req.Pages)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.Sync(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("On-demand sync failed")
		writeError(w, http.StatusInternalServerError, "Sync failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.End(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("Failed to end session")
		writeError(w, http.StatusInternalServerError, "Failed to end session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRecentSessions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	sessions, err := s.tracker.RecentSessions(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list sessions")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	date := mux.Vars(r)["date"]
	if !dateKeyPattern.MatchString(date) {
		writeError(w, http.StatusBadRequest, "Date must be YYYY-MM-DD")
		return
	}

	stats, err := s.tracker.Daily().Get(r.Context(), date)
	if err != nil {
		s.logger.Error().Err(err).Str("date", date).Msg("Failed to get daily stats")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve daily stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	streak, err := s.tracker.Streak().Get(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to get streak")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve streak")
		return
	}

	writeJSON(w, http.StatusOK, streak)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
