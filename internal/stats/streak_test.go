package stats

import (
	"context"
	"testing"

	"github.com/goodtune/readtrack/internal/storage"
	"github.com/rs/zerolog"
)

func TestStreakTransitions(t *testing.T) {
	tests := []struct {
		name        string
		days        []string
		wantCurrent int64
		wantLongest int64
		wantLast    string
	}{
		{
			name:        "first activity starts a streak",
			days:        []string{"2026-03-01"},
			wantCurrent: 1,
			wantLongest: 1,
			wantLast:    "2026-03-01",
		},
		{
			name:        "same day is a no-op",
			days:        []string{"2026-03-01", "2026-03-01", "2026-03-01"},
			wantCurrent: 1,
			wantLongest: 1,
			wantLast:    "2026-03-01",
		},
		{
			name:        "consecutive days extend the streak",
			days:        []string{"2026-03-01", "2026-03-02", "2026-03-03"},
			wantCurrent: 3,
			wantLongest: 3,
			wantLast:    "2026-03-03",
		},
		{
			name:        "gap resets the streak but longest survives",
			days:        []string{"2026-03-01", "2026-03-02", "2026-03-03", "2026-03-07"},
			wantCurrent: 1,
			wantLongest: 3,
			wantLast:    "2026-03-07",
		},
		{
			name:        "streak extends across a month boundary",
			days:        []string{"2026-02-28", "2026-03-01"},
			wantCurrent: 2,
			wantLongest: 2,
			wantLast:    "2026-03-01",
		},
		{
			name:        "rebuilding after a reset grows longest again",
			days:        []string{"2026-03-01", "2026-03-02", "2026-03-05", "2026-03-06", "2026-03-07", "2026-03-08"},
			wantCurrent: 4,
			wantLongest: 4,
			wantLast:    "2026-03-08",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewStreakTracker(openTestKV(t), zerolog.Nop())
			ctx := context.Background()

			for _, day := range tt.days {
				if err := tracker.RecordActivity(ctx, day); err != nil {
					t.Fatalf("record activity %s: %v", day, err)
				}
			}

			streak, err := tracker.Get(ctx)
			if err != nil {
				t.Fatalf("get streak: %v", err)
			}
			if streak.CurrentStreak != tt.wantCurrent {
				t.Errorf("current streak: expected %d, got %d", tt.wantCurrent, streak.CurrentStreak)
			}
			if streak.LongestStreak != tt.wantLongest {
				t.Errorf("longest streak: expected %d, got %d", tt.wantLongest, streak.LongestStreak)
			}
			if streak.LastActiveDate != tt.wantLast {
				t.Errorf("last active date: expected %s, got %s", tt.wantLast, streak.LastActiveDate)
			}
		})
	}
}

func TestStreakGetAbsent(t *testing.T) {
	tracker := NewStreakTracker(openTestKV(t), zerolog.Nop())

	streak, err := tracker.Get(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if streak.CurrentStreak != 0 || streak.LongestStreak != 0 || streak.LastActiveDate != "" {
		t.Errorf("expected zeroed streak, got %+v", streak)
	}
}

func TestStreakMalformedRecordTreatedAsAbsent(t *testing.T) {
	kv := openTestKV(t)
	tracker := NewStreakTracker(kv, zerolog.Nop())
	ctx := context.Background()

	if err := kv.Set(ctx, storage.StreakKey, "garbage"); err != nil {
		t.Fatalf("set: %v", err)
	}

	streak, err := tracker.Get(ctx)
	if err != nil {
		t.Fatalf("get should tolerate malformed record: %v", err)
	}
	if streak.CurrentStreak != 0 {
		t.Errorf("expected zeroed streak for malformed record, got %+v", streak)
	}

	// Activity over a malformed record starts a fresh streak
	if err := tracker.RecordActivity(ctx, "2026-03-01"); err != nil {
		t.Fatalf("record activity: %v", err)
	}
	streak, err = tracker.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if streak.CurrentStreak != 1 || streak.LongestStreak != 1 {
		t.Errorf("expected fresh streak, got %+v", streak)
	}
}
