package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/goodtune/readtrack/internal/metrics"
	"github.com/goodtune/readtrack/internal/storage"
	"github.com/google/uuid"
)

const (
	// minRecoverableDuration guards against billing spurious short markers
	minRecoverableDuration = 10 * time.Second

	// maxRecoverableDuration guards against clock skew and runaway counts
	maxRecoverableDuration = 24 * time.Hour
)

// Recover reconciles a leftover active-session marker from an unclean
// shutdown. It runs once at startup, before any Start call is accepted.
//
// A marker carrying a session id means commits ran continuously up to its
// LastCommittedAt, so the session and daily records already hold the right
// totals; the marker is simply deleted. Billing now()-startTime here would
// wrongly charge the whole suspend interval as active usage.
//
// A legacy marker without a session id has no continuous-sync history; its
// derived duration is committed once through the normal aggregation path if
// it is plausible, then the marker is deleted.
func (t *Tracker) Recover(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	raw, err := t.kv.Get(ctx, storage.MarkerKey)
	if err == storage.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	var marker storage.ActiveSessionMarker
	if err := json.Unmarshal([]byte(raw), &marker); err != nil {
		t.logger.Warn().Err(err).Msg("Discarding malformed active-session marker")
		metrics.CrashRecoveries.WithLabelValues("malformed").Inc()
		return t.kv.Delete(ctx, storage.MarkerKey)
	}

	if marker.SessionID != "" {
		t.logger.Info().
			Str("session_id", marker.SessionID).
			Str("item_id", marker.ItemID).
			Time("last_committed_at", marker.LastCommittedAt).
			Msg("Recovered from unclean shutdown; committed totals are already durable")
		metrics.CrashRecoveries.WithLabelValues("marker").Inc()
		return t.kv.Delete(ctx, storage.MarkerKey)
	}

	if err := t.recoverLegacyMarker(ctx, &marker); err != nil {
		return err
	}

	return t.kv.Delete(ctx, storage.MarkerKey)
}

// recoverLegacyMarker bills a marker with no sync history as one session.
func (t *Tracker) recoverLegacyMarker(ctx context.Context, marker *storage.ActiveSessionMarker) error {
	now := t.clk.Now()

	var duration time.Duration
	if !marker.LastCommittedAt.IsZero() {
		duration = marker.LastCommittedAt.Sub(marker.StartTime)
	} else {
		duration = now.Sub(marker.StartTime)
	}

	if duration < minRecoverableDuration || duration >= maxRecoverableDuration {
		t.logger.Warn().
			Str("item_id", marker.ItemID).
			Dur("duration", duration).
			Msg("Discarding legacy marker with implausible duration")
		metrics.CrashRecoveries.WithLabelValues("discarded").Inc()
		return nil
	}

	rec := storage.ReadingSession{
		ID:           uuid.NewString(),
		ItemID:       marker.ItemID,
		ChapterLabel: marker.ChapterLabel,
		StartTime:    marker.StartTime,
		EndTime:      marker.StartTime.Add(duration),
		PagesRead:    marker.PagesRead,
	}
	rec.DateKey = storage.DateKey(rec.EndTime)

	if err := t.writeSession(ctx, &rec); err != nil {
		return err
	}

	seconds := int64(duration.Seconds())
	if err := t.daily.Commit(ctx, rec.DateKey, seconds, marker.PagesRead, marker.ItemID, true); err != nil {
		return err
	}
	if err := t.streak.RecordActivity(ctx, rec.DateKey); err != nil {
		t.logger.Error().Err(err).Str("date", rec.DateKey).Msg("Failed to update streak during recovery")
	}

	t.logger.Info().
		Str("session_id", rec.ID).
		Str("item_id", marker.ItemID).
		Int64("seconds", seconds).
		Msg("Recovered legacy session from marker")
	metrics.CrashRecoveries.WithLabelValues("legacy").Inc()
	t.notify()

	return nil
}
