package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/readtrack/internal/api"
	"github.com/goodtune/readtrack/internal/clock"
	"github.com/goodtune/readtrack/internal/config"
	"github.com/goodtune/readtrack/internal/metrics"
	"github.com/goodtune/readtrack/internal/session"
	"github.com/goodtune/readtrack/internal/storage"
	"github.com/goodtune/readtrack/internal/storage/bolt"
	"github.com/goodtune/readtrack/internal/storage/redis"
	"github.com/goodtune/readtrack/internal/systemd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the readtrack server",
	Long:  `Start the readtrack accounting daemon with its HTTP API and metrics endpoints.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting readtrack")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	kv, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().Str("type", cfg.Storage.Type).Msg("Storage initialized")

	// Initialize the session tracker
	tracker := session.NewTracker(
		kv,
		session.Config{
			ResumeGap:    parseDuration(cfg.Tracking.ResumeGap, session.DefaultResumeGap),
			SyncInterval: parseDuration(cfg.Tracking.SyncInterval, session.DefaultSyncInterval),
		},
		clock.RealClock{},
		logger,
	)

	// Reconcile any marker left by an unclean shutdown before accepting
	// new sessions
	recoveryCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := tracker.Recover(recoveryCtx); err != nil {
		logger.Error().Err(err).Msg("Crash recovery failed; continuing")
	}
	cancel()

	logger.Info().Msg("Session tracker initialized")

	// Start the retention scheduler
	pruner := session.NewPruneScheduler(kv, tracker.Daily(), cfg.Tracking.RetentionDays, logger)
	pruner.Start()

	// Start the API server
	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort)
	apiServer := api.NewServer(apiAddr, tracker, logger)
	if sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	// Start the metrics server
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)
	if sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}
	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to notify systemd readiness")
	}

	logger.Info().Msg("readtrack startup complete")
	logger.Info().Msgf("API: http://%s/api/v1", apiAddr)
	logger.Info().Msgf("Metrics: http://%s/metrics", metricsAddr)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	logger.Info().Msg("Shutdown signal received, gracefully stopping...")
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to notify systemd stopping")
	}

	pruner.Stop()

	// Flush and close any in-flight session so no accounted time is lost
	endCtx, cancelEnd := context.WithTimeout(context.Background(), 10*time.Second)
	if err := tracker.End(endCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to end active session on shutdown")
	}
	cancelEnd()

	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}

	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping metrics server")
	}

	logger.Info().Msg("readtrack stopped")
	return nil
}

// openStorage opens the configured KV backend
func openStorage(cfg config.StorageConfig) (storage.KV, error) {
	switch cfg.Type {
	case "redis":
		return redis.Open(cfg.Redis)
	case "bolt", "":
		return bolt.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
