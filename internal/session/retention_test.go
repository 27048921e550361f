package session

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/readtrack/internal/stats"
	"github.com/goodtune/readtrack/internal/storage"
	"github.com/goodtune/readtrack/internal/storage/bolt"
	"github.com/rs/zerolog"
)

func TestPruneRemovesExpiredRecords(t *testing.T) {
	kv, err := bolt.Open(filepath.Join(t.TempDir(), "readtrack.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = kv.Close() }()

	ctx := context.Background()
	daily := stats.NewDailyStore(kv, zerolog.Nop())

	oldDate := "2020-01-01"
	currentDate := storage.DateKey(time.Now())

	for _, date := range []string{oldDate, currentDate} {
		if err := daily.Commit(ctx, date, 60, 0, "book-1", true); err != nil {
			t.Fatalf("commit %s: %v", date, err)
		}
	}

	oldSession := storage.ReadingSession{ID: "old", ItemID: "book-1", DateKey: oldDate}
	newSession := storage.ReadingSession{ID: "new", ItemID: "book-1", DateKey: currentDate}
	for _, rec := range []storage.ReadingSession{oldSession, newSession} {
		data, err := json.Marshal(rec)
		if err != nil {
			t.Fatalf("marshal session: %v", err)
		}
		if err := kv.Set(ctx, storage.SessionKey(rec.ID), string(data)); err != nil {
			t.Fatalf("set session: %v", err)
		}
	}

	// A record that cannot be decoded is removed too
	if err := kv.Set(ctx, storage.SessionKey("broken"), "{corrupt"); err != nil {
		t.Fatalf("set broken session: %v", err)
	}

	pruner := NewPruneScheduler(kv, daily, 90, zerolog.Nop())
	pruner.Prune(ctx)

	dates, err := daily.ListDates(ctx)
	if err != nil {
		t.Fatalf("list dates: %v", err)
	}
	if len(dates) != 1 || dates[0] != currentDate {
		t.Fatalf("expected only the current date to survive, got %v", dates)
	}

	keys, err := kv.KeysWithPrefix(ctx, storage.SessionKeyPrefix)
	if err != nil {
		t.Fatalf("keys with prefix: %v", err)
	}
	if len(keys) != 1 || keys[0] != storage.SessionKey("new") {
		t.Fatalf("expected only the current session to survive, got %v", keys)
	}
}
