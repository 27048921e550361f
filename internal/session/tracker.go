package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goodtune/readtrack/internal/clock"
	"github.com/goodtune/readtrack/internal/metrics"
	"github.com/goodtune/readtrack/internal/stats"
	"github.com/goodtune/readtrack/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultResumeGap is the longest pause after which a session on the same
	// item is still resumed instead of starting fresh
	DefaultResumeGap = 5 * time.Minute

	// DefaultSyncInterval is the periodic commit tick
	DefaultSyncInterval = 30 * time.Second
)

// Config holds tracker configuration
type Config struct {
	ResumeGap    time.Duration
	SyncInterval time.Duration // <= 0 disables the periodic tick
}

// Tracker owns the single active reading session and drives the daily
// aggregation store and streak tracker. All state transitions are serialized;
// the in-flight-sync flag only sheds overlapping ticks, it is not a queue.
type Tracker struct {
	kv        storage.KV
	daily     *stats.DailyStore
	streak    *stats.StreakTracker
	clk       clock.Clock
	resumeGap time.Duration
	tick      time.Duration
	logger    zerolog.Logger

	mu       sync.Mutex
	syncing  atomic.Bool
	active   *activeSession
	stopTick chan struct{}
	updates  chan struct{}
}

// activeSession is the in-memory state of the one in-flight session.
type activeSession struct {
	id             string
	itemID         string
	chapterLabel   string
	startTime      time.Time
	pagesRead      int64
	pagesCommitted int64
	counted        bool // session-count contribution already recorded
	lastSync       time.Time
	acc            Accumulator
}

// NewTracker creates a new session tracker over kv.
func NewTracker(kv storage.KV, cfg Config, clk clock.Clock, logger zerolog.Logger) *Tracker {
	if cfg.ResumeGap == 0 {
		cfg.ResumeGap = DefaultResumeGap
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &Tracker{
		kv:        kv,
		daily:     stats.NewDailyStore(kv, logger),
		streak:    stats.NewStreakTracker(kv, logger),
		clk:       clk,
		resumeGap: cfg.ResumeGap,
		tick:      cfg.SyncInterval,
		logger:    logger.With().Str("component", "session-tracker").Logger(),
		updates:   make(chan struct{}, 16),
	}
}

// Daily returns the daily aggregation store.
func (t *Tracker) Daily() *stats.DailyStore {
	return t.daily
}

// Streak returns the streak tracker.
func (t *Tracker) Streak() *stats.StreakTracker {
	return t.streak
}

// Updates returns a channel that receives a signal after every successful
// commit. Receivers that lag simply miss signals; the channel is a change
// notification, not a log.
func (t *Tracker) Updates() <-chan struct{} {
	return t.updates
}

// Start opens a session for itemID, resuming the most recent session when it
// is on the same item, ended within the resume gap, and falls on today. An
// already-active session is ended first; no activity is ever silently dropped.
func (t *Tracker) Start(ctx context.Context, itemID, chapterLabel string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active != nil {
		t.endLocked(ctx)
	}

	now := t.clk.Now()

	if prev := t.resumableSession(ctx, itemID, now); prev != nil {
		a := &activeSession{
			id:             prev.ID,
			itemID:         prev.ItemID,
			chapterLabel:   prev.ChapterLabel,
			startTime:      prev.StartTime,
			pagesRead:      prev.PagesRead,
			pagesCommitted: prev.PagesRead,
			counted:        true,
			lastSync:       now,
		}
		a.acc.Seed(prev.DurationSeconds())
		t.active = a

		metrics.SessionsResumed.Inc()
		t.logger.Info().
			Str("session_id", a.id).
			Str("item_id", itemID).
			Int64("prior_seconds", a.acc.Committed()).
			Msg("Resumed recent session")
	} else {
		t.active = &activeSession{
			id:        uuid.NewString(),
			itemID:    itemID,
			startTime: now,
			lastSync:  now,
		}

		metrics.SessionsStarted.Inc()
		t.logger.Info().
			Str("session_id", t.active.id).
			Str("item_id", itemID).
			Msg("Started new session")
	}

	if chapterLabel != "" {
		t.active.chapterLabel = chapterLabel
	}

	t.persistMarkerLocked(ctx, now)
	t.startTicker()

	return nil
}

// Sync commits newly payable seconds into the daily stats. It is the periodic
// tick body and may also be called on demand (e.g. before backgrounding). If
// a sync is already in progress the call returns immediately; the skipped
// work is recovered by the next tick.
func (t *Tracker) Sync(ctx context.Context) error {
	if !t.syncing.CompareAndSwap(false, true) {
		metrics.SyncsSkipped.Inc()
		return nil
	}
	defer t.syncing.Store(false)

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.syncLocked(ctx)
}

// End flushes the active session and clears it. No-op without a session.
func (t *Tracker) End(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.endLocked(ctx)
	return nil
}

// UpdateProgress mutates the active session's chapter label and page count in
// memory; the change is persisted at the next sync. No-op without a session.
func (t *Tracker) UpdateProgress(chapterLabel string, pageIncrement int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == nil {
		return
	}
	if chapterLabel != "" {
		t.active.chapterLabel = chapterLabel
	}
	if pageIncrement > 0 {
		t.active.pagesRead += pageIncrement
	}
}

// ActiveSessionID returns the id of the in-flight session, or "".
func (t *Tracker) ActiveSessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == nil {
		return ""
	}
	return t.active.id
}

// RecentSessions returns up to limit session records sorted by end time
// descending. Malformed records are skipped.
func (t *Tracker) RecentSessions(ctx context.Context, limit int) ([]storage.ReadingSession, error) {
	keys, err := t.kv.KeysWithPrefix(ctx, storage.SessionKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]storage.ReadingSession, 0, len(keys))
	for _, key := range keys {
		raw, err := t.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		var rec storage.ReadingSession
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			t.logger.Warn().Str("key", key).Msg("Skipping malformed session record")
			continue
		}
		sessions = append(sessions, rec)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].EndTime.After(sessions[j].EndTime)
	})

	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}

	return sessions, nil
}

// syncLocked advances the accumulator and commits. Must hold mu.
func (t *Tracker) syncLocked(ctx context.Context) error {
	if t.active == nil {
		return nil
	}

	now := t.clk.Now()

	if storage.DateKey(now) != storage.DateKey(t.active.startTime) {
		return t.splitLocked(ctx, now)
	}

	t.active.acc.Advance(now.Sub(t.active.lastSync))
	return t.commitLocked(ctx, now, storage.DateKey(t.active.startTime))
}

// commitLocked bills the payable delta of the active session into the daily
// bucket dateKey. A failed store write leaves the accumulator's committed
// counter unchanged so the next tick retries the same delta; time is deferred,
// never lost. Must hold mu.
func (t *Tracker) commitLocked(ctx context.Context, now time.Time, dateKey string) error {
	a := t.active
	delta := a.acc.Payable()
	pagesDelta := a.pagesRead - a.pagesCommitted
	if pagesDelta < 0 {
		pagesDelta = 0
	}

	if delta > 0 {
		rec := storage.ReadingSession{
			ID:           a.id,
			ItemID:       a.itemID,
			ChapterLabel: a.chapterLabel,
			StartTime:    a.startTime,
			EndTime:      a.startTime.Add(a.acc.Total()),
			PagesRead:    a.pagesRead,
			DateKey:      dateKey,
		}
		if err := t.writeSession(ctx, &rec); err != nil {
			t.logger.Error().Err(err).Str("session_id", a.id).Msg("Failed to write session record")
			a.lastSync = now
			return err
		}

		countSession := !a.counted
		if err := t.daily.Commit(ctx, dateKey, delta, pagesDelta, a.itemID, countSession); err != nil {
			t.logger.Error().Err(err).Str("session_id", a.id).Msg("Failed to commit daily stats")
			a.lastSync = now
			return err
		}

		a.counted = true
		a.acc.MarkCommitted()
		a.pagesCommitted = a.pagesRead

		if err := t.streak.RecordActivity(ctx, dateKey); err != nil {
			t.logger.Error().Err(err).Str("date", dateKey).Msg("Failed to update streak")
		}
		t.refreshStreakGauge(ctx)

		metrics.SecondsCommitted.WithLabelValues(a.itemID).Add(float64(delta))
		metrics.PagesCommitted.Add(float64(pagesDelta))

		t.logger.Debug().
			Str("session_id", a.id).
			Str("date", dateKey).
			Int64("delta_seconds", delta).
			Msg("Committed session delta")

		t.persistMarkerLocked(ctx, now)
		t.notify()
	}

	a.lastSync = now
	return nil
}

// splitLocked closes out the first day of a session that crossed midnight and
// continues the remainder as a new session anchored at the start of today.
// Must hold mu.
func (t *Tracker) splitLocked(ctx context.Context, now time.Time) error {
	a := t.active
	boundary := dayStart(a.startTime).AddDate(0, 0, 1)

	// Bill the remaining slice of the first day and close the session there.
	a.acc.Advance(boundary.Sub(a.lastSync))
	if err := t.commitLocked(ctx, boundary, storage.DateKey(a.startTime)); err != nil {
		return err
	}

	t.logger.Info().
		Str("session_id", a.id).
		Str("date", storage.DateKey(a.startTime)).
		Msg("Split session at day boundary")
	metrics.MidnightSplits.Inc()

	// Remainder continues under a fresh session id; its page count starts
	// at zero so pages billed to the first day are never re-billed.
	next := &activeSession{
		id:           uuid.NewString(),
		itemID:       a.itemID,
		chapterLabel: a.chapterLabel,
		startTime:    dayStart(now),
		lastSync:     now,
	}
	next.acc.Advance(now.Sub(next.startTime))
	t.active = next

	return t.commitLocked(ctx, now, storage.DateKey(next.startTime))
}

// endLocked runs the final sync, clears the session, and deletes the crash
// marker. Must hold mu.
func (t *Tracker) endLocked(ctx context.Context) {
	if t.active == nil {
		return
	}

	t.stopTicker()

	if err := t.syncLocked(ctx); err != nil {
		t.logger.Error().Err(err).Msg("Final sync failed; ending session anyway")
	}

	id := t.active.id
	total := t.active.acc.Committed()
	t.active = nil

	if err := t.kv.Delete(ctx, storage.MarkerKey); err != nil {
		t.logger.Error().Err(err).Msg("Failed to delete active-session marker")
	}

	t.logger.Info().
		Str("session_id", id).
		Int64("total_seconds", total).
		Msg("Ended session")
	t.notify()
}

// resumableSession returns the most recent persisted session if it qualifies
// for resumption: same item, ended within the resume gap, and on today's date.
func (t *Tracker) resumableSession(ctx context.Context, itemID string, now time.Time) *storage.ReadingSession {
	recent, err := t.RecentSessions(ctx, 1)
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to check for resumable session")
		return nil
	}
	if len(recent) == 0 {
		return nil
	}

	prev := &recent[0]
	gap := now.Sub(prev.EndTime)
	if prev.ItemID != itemID || gap < 0 || gap > t.resumeGap {
		return nil
	}
	if storage.DateKey(prev.EndTime) != storage.DateKey(now) {
		return nil
	}

	return prev
}

// writeSession persists a session record, overwriting any prior commit of the
// same session id.
func (t *Tracker) writeSession(ctx context.Context, rec *storage.ReadingSession) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return t.kv.Set(ctx, storage.SessionKey(rec.ID), string(data))
}

// persistMarkerLocked writes the crash-recovery snapshot of the active
// session. Failures are logged only; the marker is best-effort and the next
// commit rewrites it. Must hold mu.
func (t *Tracker) persistMarkerLocked(ctx context.Context, now time.Time) {
	a := t.active
	marker := storage.ActiveSessionMarker{
		SessionID:       a.id,
		ItemID:          a.itemID,
		ChapterLabel:    a.chapterLabel,
		StartTime:       a.startTime,
		PagesRead:       a.pagesRead,
		LastCommittedAt: now,
	}

	data, err := json.Marshal(marker)
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to encode active-session marker")
		return
	}
	if err := t.kv.Set(ctx, storage.MarkerKey, string(data)); err != nil {
		t.logger.Error().Err(err).Msg("Failed to persist active-session marker")
	}
}

// startTicker begins the periodic sync tick for the active session.
func (t *Tracker) startTicker() {
	if t.tick <= 0 || t.stopTick != nil {
		return
	}

	stop := make(chan struct{})
	t.stopTick = stop

	go func() {
		ticker := time.NewTicker(t.tick)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := t.Sync(context.Background()); err != nil {
					t.logger.Error().Err(err).Msg("Periodic sync failed")
				}
			case <-stop:
				return
			}
		}
	}()
}

// stopTicker cancels the periodic tick. Must hold mu.
func (t *Tracker) stopTicker() {
	if t.stopTick != nil {
		close(t.stopTick)
		t.stopTick = nil
	}
}

// notify signals the update channel without blocking.
func (t *Tracker) notify() {
	select {
	case t.updates <- struct{}{}:
	default:
	}
}

// refreshStreakGauge mirrors the current streak into the metrics gauge.
func (t *Tracker) refreshStreakGauge(ctx context.Context) {
	streak, err := t.streak.Get(ctx)
	if err != nil {
		return
	}
	metrics.CurrentStreakDays.Set(float64(streak.CurrentStreak))
}

// dayStart returns 00:00:00 of ts's calendar date, in its location.
func dayStart(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
}
