package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/goodtune/readtrack/internal/storage"
	"github.com/rs/zerolog"
)

// StreakTracker maintains the single consecutive-day streak record, derived
// from the dates the daily store marks as active.
type StreakTracker struct {
	kv     storage.KV
	logger zerolog.Logger
}

// NewStreakTracker creates a streak tracker over kv.
func NewStreakTracker(kv storage.KV, logger zerolog.Logger) *StreakTracker {
	return &StreakTracker{
		kv:     kv,
		logger: logger.With().Str("component", "streak-tracker").Logger(),
	}
}

// Get returns the current streak record. Absent or corrupt records yield a
// zeroed streak.
func (t *StreakTracker) Get(ctx context.Context) (*storage.ReadingStreak, error) {
	raw, err := t.kv.Get(ctx, storage.StreakKey)
	if err == storage.ErrNotFound {
		return &storage.ReadingStreak{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read streak: %w", err)
	}

	var streak storage.ReadingStreak
	if err := json.Unmarshal([]byte(raw), &streak); err != nil {
		t.logger.Warn().Err(err).Msg("Discarding malformed streak record")
		return &storage.ReadingStreak{}, nil
	}

	return &streak, nil
}

// RecordActivity applies the streak transition for a day with recorded
// activity: same day as the last active date leaves the streak unchanged,
// the following day extends it by one, any other day resets it to one.
// The longest streak never decreases.
func (t *StreakTracker) RecordActivity(ctx context.Context, dateKey string) error {
	streak, err := t.Get(ctx)
	if err != nil {
		return err
	}

	if streak.LastActiveDate == dateKey {
		return nil
	}

	if isNextDay(streak.LastActiveDate, dateKey) {
		streak.CurrentStreak++
	} else {
		streak.CurrentStreak = 1
	}

	if streak.CurrentStreak > streak.LongestStreak {
		streak.LongestStreak = streak.CurrentStreak
	}
	streak.LastActiveDate = dateKey

	data, err := json.Marshal(streak)
	if err != nil {
		return fmt.Errorf("failed to encode streak: %w", err)
	}

	if err := t.kv.Set(ctx, storage.StreakKey, string(data)); err != nil {
		return fmt.Errorf("failed to write streak: %w", err)
	}

	t.logger.Debug().
		Str("date", dateKey).
		Int64("current_streak", streak.CurrentStreak).
		Int64("longest_streak", streak.LongestStreak).
		Msg("Recorded streak activity")

	return nil
}

// isNextDay reports whether next is exactly one calendar day after prev.
func isNextDay(prev, next string) bool {
	if prev == "" {
		return false
	}
	prevDate, err := time.Parse(storage.DateKeyFormat, prev)
	if err != nil {
		return false
	}
	return storage.DateKey(prevDate.AddDate(0, 0, 1)) == next
}
