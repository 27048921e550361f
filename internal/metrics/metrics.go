package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Accounting metrics
	SecondsCommitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readtrack_seconds_committed_total",
			Help: "Total seconds committed into daily stats",
		},
		[]string{"item"},
	)

	PagesCommitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "readtrack_pages_committed_total",
			Help: "Total pages committed into daily stats",
		},
	)

	SessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "readtrack_sessions_started_total",
			Help: "Total fresh sessions started",
		},
	)

	SessionsResumed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "readtrack_sessions_resumed_total",
			Help: "Total sessions resumed within the resume gap",
		},
	)

	MidnightSplits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "readtrack_midnight_splits_total",
			Help: "Total sessions split at a day boundary",
		},
	)

	SyncsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "readtrack_syncs_skipped_total",
			Help: "Syncs skipped because another sync was in progress",
		},
	)

	CrashRecoveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readtrack_crash_recoveries_total",
			Help: "Active-session markers reconciled at startup",
		},
		[]string{"mode"},
	)

	CurrentStreakDays = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "readtrack_current_streak_days",
			Help: "Current consecutive-day reading streak",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SecondsCommitted,
		PagesCommitted,
		SessionsStarted,
		SessionsResumed,
		MidnightSplits,
		SyncsSkipped,
		CrashRecoveries,
		CurrentStreakDays,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
