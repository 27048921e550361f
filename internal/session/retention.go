package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/goodtune/readtrack/internal/stats"
	"github.com/goodtune/readtrack/internal/storage"
	"github.com/rs/zerolog"
)

// PruneScheduler deletes session records and daily buckets once they are far
// enough in the past that no session can still attribute time to them.
type PruneScheduler struct {
	kv            storage.KV
	daily         *stats.DailyStore
	retentionDays int
	logger        zerolog.Logger
	stopChan      chan struct{}
}

// NewPruneScheduler creates a retention scheduler. retentionDays <= 0 keeps
// history forever.
func NewPruneScheduler(kv storage.KV, daily *stats.DailyStore, retentionDays int, logger zerolog.Logger) *PruneScheduler {
	return &PruneScheduler{
		kv:            kv,
		daily:         daily,
		retentionDays: retentionDays,
		logger:        logger.With().Str("component", "prune-scheduler").Logger(),
		stopChan:      make(chan struct{}),
	}
}

// Start begins the daily prune loop.
func (ps *PruneScheduler) Start() {
	if ps.retentionDays <= 0 {
		ps.logger.Info().Msg("Retention disabled, keeping full history")
		return
	}
	go ps.run()
	ps.logger.Info().Int("retention_days", ps.retentionDays).Msg("Prune scheduler started")
}

// Stop stops the prune loop.
func (ps *PruneScheduler) Stop() {
	close(ps.stopChan)
}

func (ps *PruneScheduler) run() {
	for {
		next := dayStart(time.Now()).AddDate(0, 0, 1).Add(5 * time.Minute)
		wait := time.Until(next)

		select {
		case <-time.After(wait):
			ps.Prune(context.Background())
		case <-ps.stopChan:
			return
		}
	}
}

// Prune removes records older than the retention window.
func (ps *PruneScheduler) Prune(ctx context.Context) {
	cutoff := storage.DateKey(time.Now().AddDate(0, 0, -ps.retentionDays))

	dailyDeleted, err := ps.daily.DeleteBefore(ctx, cutoff)
	if err != nil {
		ps.logger.Error().Err(err).Msg("Failed to prune daily stats")
		return
	}

	sessionsDeleted, err := ps.pruneSessions(ctx, cutoff)
	if err != nil {
		ps.logger.Error().Err(err).Msg("Failed to prune sessions")
		return
	}

	ps.logger.Info().
		Str("cutoff_date", cutoff).
		Int("daily_deleted", dailyDeleted).
		Int("sessions_deleted", sessionsDeleted).
		Msg("Pruned old records")
}

func (ps *PruneScheduler) pruneSessions(ctx context.Context, cutoff string) (int, error) {
	keys, err := ps.kv.KeysWithPrefix(ctx, storage.SessionKeyPrefix)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, key := range keys {
		raw, err := ps.kv.Get(ctx, key)
		if err != nil {
			continue
		}

		var rec storage.ReadingSession
		if err := json.Unmarshal([]byte(raw), &rec); err == nil && rec.DateKey >= cutoff {
			continue
		}

		// Old or unreadable record
		if err := ps.kv.Delete(ctx, key); err != nil {
			return deleted, err
		}
		deleted++
	}

	return deleted, nil
}
