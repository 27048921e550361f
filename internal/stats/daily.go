package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/goodtune/readtrack/internal/storage"
	"github.com/rs/zerolog"
)

// DailyStore reads and writes one DailyStats record per calendar date.
// It keeps no state beyond the durable store; callers serialize commits
// (everything here is driven by the single-threaded lifecycle manager).
type DailyStore struct {
	kv     storage.KV
	logger zerolog.Logger
}

// NewDailyStore creates a daily aggregation store over kv.
func NewDailyStore(kv storage.KV, logger zerolog.Logger) *DailyStore {
	return &DailyStore{
		kv:     kv,
		logger: logger.With().Str("component", "daily-store").Logger(),
	}
}

// Get returns the stats record for dateKey. An unseen date yields a zeroed
// record, never an error; so does a corrupt one.
func (s *DailyStore) Get(ctx context.Context, dateKey string) (*storage.DailyStats, error) {
	raw, err := s.kv.Get(ctx, storage.DailyKey(dateKey))
	if err == storage.ErrNotFound {
		return storage.NewDailyStats(dateKey), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read daily stats: %w", err)
	}

	var stats storage.DailyStats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		// Malformed record, treat as absent
		s.logger.Warn().Err(err).Str("date", dateKey).Msg("Discarding malformed daily stats record")
		return storage.NewDailyStats(dateKey), nil
	}

	if stats.PerItemSeconds == nil {
		stats.PerItemSeconds = map[string]int64{}
	}
	if stats.ItemsTouched == nil {
		stats.ItemsTouched = []string{}
	}

	return &stats, nil
}

// Commit adds a delta of seconds and pages for itemID into the record for
// dateKey. Deltas are clamped to >= 0; a commit can never reduce a counter.
// countSession additionally increments the day's session count by one.
func (s *DailyStore) Commit(ctx context.Context, dateKey string, deltaSeconds, deltaPages int64, itemID string, countSession bool) error {
	if deltaSeconds < 0 {
		deltaSeconds = 0
	}
	if deltaPages < 0 {
		deltaPages = 0
	}

	stats, err := s.Get(ctx, dateKey)
	if err != nil {
		return err
	}

	stats.TotalSeconds += deltaSeconds
	stats.PagesRead += deltaPages
	if countSession {
		stats.SessionCount++
	}
	if itemID != "" {
		stats.TouchItem(itemID)
		stats.PerItemSeconds[itemID] += deltaSeconds
	}

	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode daily stats: %w", err)
	}

	if err := s.kv.Set(ctx, storage.DailyKey(dateKey), string(data)); err != nil {
		return fmt.Errorf("failed to write daily stats: %w", err)
	}

	s.logger.Debug().
		Str("date", dateKey).
		Str("item_id", itemID).
		Int64("delta_seconds", deltaSeconds).
		Int64("delta_pages", deltaPages).
		Bool("count_session", countSession).
		Int64("total_seconds", stats.TotalSeconds).
		Msg("Committed to daily stats")

	return nil
}

// DeleteBefore removes daily records with a date key earlier than cutoffDate.
// Returns the number of records deleted.
func (s *DailyStore) DeleteBefore(ctx context.Context, cutoffDate string) (int, error) {
	keys, err := s.kv.KeysWithPrefix(ctx, storage.DailyKeyPrefix)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, key := range keys {
		dateKey := strings.TrimPrefix(key, storage.DailyKeyPrefix)
		if dateKey >= cutoffDate {
			continue
		}
		if err := s.kv.Delete(ctx, key); err != nil {
			return deleted, err
		}
		deleted++
	}

	return deleted, nil
}

// ListDates returns all date keys with a stored record, ascending.
func (s *DailyStore) ListDates(ctx context.Context) ([]string, error) {
	keys, err := s.kv.KeysWithPrefix(ctx, storage.DailyKeyPrefix)
	if err != nil {
		return nil, err
	}

	dates := make([]string, 0, len(keys))
	for _, key := range keys {
		dates = append(dates, strings.TrimPrefix(key, storage.DailyKeyPrefix))
	}
	sort.Strings(dates)

	return dates, nil
}
