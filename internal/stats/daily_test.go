package stats

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/goodtune/readtrack/internal/storage"
	"github.com/goodtune/readtrack/internal/storage/bolt"
	"github.com/rs/zerolog"
)

func openTestKV(t *testing.T) storage.KV {
	t.Helper()

	kv, err := bolt.Open(filepath.Join(t.TempDir(), "readtrack.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func TestDailyStoreGetUnseenDate(t *testing.T) {
	store := NewDailyStore(openTestKV(t), zerolog.Nop())

	stats, err := store.Get(context.Background(), "2026-03-01")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stats.DateKey != "2026-03-01" {
		t.Errorf("expected date key 2026-03-01, got %s", stats.DateKey)
	}
	if stats.TotalSeconds != 0 || stats.SessionCount != 0 || stats.PagesRead != 0 {
		t.Errorf("expected zeroed record, got %+v", stats)
	}
	if stats.PerItemSeconds == nil || stats.ItemsTouched == nil {
		t.Error("expected non-nil maps and slices on zeroed record")
	}
}

func TestDailyStoreCommitAccumulates(t *testing.T) {
	store := NewDailyStore(openTestKV(t), zerolog.Nop())
	ctx := context.Background()
	date := "2026-03-01"

	if err := store.Commit(ctx, date, 120, 3, "book-1", true); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := store.Commit(ctx, date, 60, 1, "book-1", false); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := store.Commit(ctx, date, 30, 0, "book-2", true); err != nil {
		t.Fatalf("commit: %v", err)
	}

	stats, err := store.Get(ctx, date)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if stats.TotalSeconds != 210 {
		t.Errorf("expected 210 total seconds, got %d", stats.TotalSeconds)
	}
	if stats.SessionCount != 2 {
		t.Errorf("expected 2 sessions, got %d", stats.SessionCount)
	}
	if stats.PagesRead != 4 {
		t.Errorf("expected 4 pages, got %d", stats.PagesRead)
	}
	if len(stats.ItemsTouched) != 2 {
		t.Errorf("expected 2 items touched, got %v", stats.ItemsTouched)
	}
	if stats.PerItemSeconds["book-1"] != 180 {
		t.Errorf("expected 180s for book-1, got %d", stats.PerItemSeconds["book-1"])
	}
	if stats.PerItemSeconds["book-2"] != 30 {
		t.Errorf("expected 30s for book-2, got %d", stats.PerItemSeconds["book-2"])
	}
}

func TestDailyStoreNegativeDeltasClamped(t *testing.T) {
	store := NewDailyStore(openTestKV(t), zerolog.Nop())
	ctx := context.Background()
	date := "2026-03-01"

	if err := store.Commit(ctx, date, 100, 2, "book-1", true); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := store.Commit(ctx, date, -50, -1, "book-1", false); err != nil {
		t.Fatalf("commit: %v", err)
	}

	stats, err := store.Get(ctx, date)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stats.TotalSeconds != 100 || stats.PagesRead != 2 {
		t.Errorf("counters must never decrease, got %+v", stats)
	}
}

func TestDailyStoreMalformedRecordTreatedAsAbsent(t *testing.T) {
	kv := openTestKV(t)
	store := NewDailyStore(kv, zerolog.Nop())
	ctx := context.Background()
	date := "2026-03-01"

	if err := kv.Set(ctx, storage.DailyKey(date), "{not json"); err != nil {
		t.Fatalf("set: %v", err)
	}

	stats, err := store.Get(ctx, date)
	if err != nil {
		t.Fatalf("get should tolerate malformed record: %v", err)
	}
	if stats.TotalSeconds != 0 {
		t.Errorf("expected zeroed record for malformed data, got %+v", stats)
	}

	// Committing over a malformed record starts fresh
	if err := store.Commit(ctx, date, 60, 0, "book-1", true); err != nil {
		t.Fatalf("commit: %v", err)
	}
	stats, err = store.Get(ctx, date)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stats.TotalSeconds != 60 || stats.SessionCount != 1 {
		t.Errorf("expected fresh record after malformed data, got %+v", stats)
	}
}

func TestDailyStoreDeleteBefore(t *testing.T) {
	store := NewDailyStore(openTestKV(t), zerolog.Nop())
	ctx := context.Background()

	dates := []string{"2026-01-01", "2026-01-15", "2026-02-01", "2026-02-15"}
	for _, date := range dates {
		if err := store.Commit(ctx, date, 60, 0, "book-1", true); err != nil {
			t.Fatalf("commit %s: %v", date, err)
		}
	}

	deleted, err := store.DeleteBefore(ctx, "2026-02-01")
	if err != nil {
		t.Fatalf("delete before: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted records, got %d", deleted)
	}

	remaining, err := store.ListDates(ctx)
	if err != nil {
		t.Fatalf("list dates: %v", err)
	}
	if len(remaining) != 2 || remaining[0] != "2026-02-01" || remaining[1] != "2026-02-15" {
		t.Fatalf("unexpected remaining dates: %v", remaining)
	}
}

func TestDailyStoreListDatesSorted(t *testing.T) {
	store := NewDailyStore(openTestKV(t), zerolog.Nop())
	ctx := context.Background()

	for _, date := range []string{"2026-02-01", "2026-01-01", "2026-01-15"} {
		if err := store.Commit(ctx, date, 10, 0, "", false); err != nil {
			t.Fatalf("commit %s: %v", date, err)
		}
	}

	dates, err := store.ListDates(ctx)
	if err != nil {
		t.Fatalf("list dates: %v", err)
	}

	want := []string{"2026-01-01", "2026-01-15", "2026-02-01"}
	if len(dates) != len(want) {
		t.Fatalf("expected %d dates, got %d", len(want), len(dates))
	}
	for i := range want {
		if dates[i] != want[i] {
			t.Errorf("dates[%d]: expected %s, got %s", i, want[i], dates[i])
		}
	}
}
