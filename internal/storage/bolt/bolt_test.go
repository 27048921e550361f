package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/goodtune/readtrack/internal/storage"
)

func openTestKV(t *testing.T) *KV {
	t.Helper()

	path := filepath.Join(t.TempDir(), "readtrack.bolt")
	kv, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return kv
}

func TestSetGetDelete(t *testing.T) {
	kv := openTestKV(t)
	defer func() { _ = kv.Close() }()

	ctx := context.Background()

	if err := kv.Set(ctx, "readtrack:streak", `{"current_streak":3}`); err != nil {
		t.Fatalf("set: %v", err)
	}

	value, err := kv.Get(ctx, "readtrack:streak")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != `{"current_streak":3}` {
		t.Fatalf("unexpected value: %s", value)
	}

	if err := kv.Delete(ctx, "readtrack:streak"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := kv.Get(ctx, "readtrack:streak"); err != storage.ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestGetMissingKey(t *testing.T) {
	kv := openTestKV(t)
	defer func() { _ = kv.Close() }()

	if _, err := kv.Get(context.Background(), "readtrack:missing"); err != storage.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteMissingKey(t *testing.T) {
	kv := openTestKV(t)
	defer func() { _ = kv.Close() }()

	if err := kv.Delete(context.Background(), "readtrack:missing"); err != nil {
		t.Fatalf("delete of missing key should not error: %v", err)
	}
}

func TestKeysWithPrefix(t *testing.T) {
	kv := openTestKV(t)
	defer func() { _ = kv.Close() }()

	ctx := context.Background()
	records := map[string]string{
		"readtrack:daily:2026-01-01": "{}",
		"readtrack:daily:2026-01-02": "{}",
		"readtrack:session:abc":      "{}",
		"readtrack:streak":           "{}",
	}
	for k, v := range records {
		if err := kv.Set(ctx, k, v); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}

	keys, err := kv.KeysWithPrefix(ctx, storage.DailyKeyPrefix)
	if err != nil {
		t.Fatalf("keys with prefix: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 daily keys, got %d: %v", len(keys), keys)
	}

	keys, err = kv.KeysWithPrefix(ctx, storage.SessionKeyPrefix)
	if err != nil {
		t.Fatalf("keys with prefix: %v", err)
	}
	if len(keys) != 1 || keys[0] != "readtrack:session:abc" {
		t.Fatalf("unexpected session keys: %v", keys)
	}
}

func TestOverwrite(t *testing.T) {
	kv := openTestKV(t)
	defer func() { _ = kv.Close() }()

	ctx := context.Background()
	key := storage.SessionKey("s1")

	if err := kv.Set(ctx, key, "first"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.Set(ctx, key, "second"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	value, err := kv.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != "second" {
		t.Fatalf("expected overwritten value, got %s", value)
	}
}
