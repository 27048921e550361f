package storage

import (
	"time"
)

// DateKeyFormat is the calendar-day bucket format used throughout.
const DateKeyFormat = "2006-01-02"

// DateKey returns the calendar-day bucket for a timestamp, in its location.
func DateKey(t time.Time) string {
	return t.Format(DateKeyFormat)
}

// ReadingSession is one continuous (or resumed) stretch of activity on one item.
// EndTime reflects only accounted time (StartTime plus committed duration),
// never wall-clock "now".
type ReadingSession struct {
	ID           string    `json:"id"`
	ItemID       string    `json:"item_id"`
	ChapterLabel string    `json:"chapter_label,omitempty"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	PagesRead    int64     `json:"pages_read"`
	DateKey      string    `json:"date_key"`
}

// DurationSeconds returns the accounted duration of the session.
func (s *ReadingSession) DurationSeconds() float64 {
	return s.EndTime.Sub(s.StartTime).Seconds()
}

// DailyStats aggregates activity for one calendar day. All counters are
// monotonically non-decreasing; records are mutated only by additive commits.
type DailyStats struct {
	DateKey        string           `json:"date_key"`
	TotalSeconds   int64            `json:"total_seconds"`
	SessionCount   int64            `json:"session_count"`
	PagesRead      int64            `json:"pages_read"`
	ItemsTouched   []string         `json:"items_touched"`
	PerItemSeconds map[string]int64 `json:"per_item_seconds"`
}

// NewDailyStats returns a zeroed record for a date.
func NewDailyStats(dateKey string) *DailyStats {
	return &DailyStats{
		DateKey:        dateKey,
		ItemsTouched:   []string{},
		PerItemSeconds: map[string]int64{},
	}
}

// TouchItem adds an item to ItemsTouched if not already present.
func (d *DailyStats) TouchItem(itemID string) {
	for _, id := range d.ItemsTouched {
		if id == itemID {
			return
		}
	}
	d.ItemsTouched = append(d.ItemsTouched, itemID)
}

// ReadingStreak is the single process-wide consecutive-day record.
// LongestStreak >= CurrentStreak holds after every update.
type ReadingStreak struct {
	CurrentStreak  int64  `json:"current_streak"`
	LongestStreak  int64  `json:"longest_streak"`
	LastActiveDate string `json:"last_active_date,omitempty"`
}

// ActiveSessionMarker is the persisted snapshot of the in-flight session,
// written on every commit and deleted on clean session end. A marker without
// a SessionID is the legacy format with no continuous-sync history.
type ActiveSessionMarker struct {
	SessionID       string    `json:"session_id,omitempty"`
	ItemID          string    `json:"item_id"`
	ChapterLabel    string    `json:"chapter_label,omitempty"`
	StartTime       time.Time `json:"start_time"`
	PagesRead       int64     `json:"pages_read"`
	LastCommittedAt time.Time `json:"last_committed_at,omitempty"`
}
