package redis

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/readtrack/internal/config"
	"github.com/goodtune/readtrack/internal/storage"
)

func openTestKV(t *testing.T) *KV {
	t.Helper()

	mr := miniredis.RunT(t)

	// miniredis.Addr() returns "host:port"; Port 0 makes Open use it verbatim
	cfg := config.RedisConfig{
		Host:         mr.Addr(),
		Port:         0,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	kv, err := Open(cfg)
	if err != nil {
		t.Fatalf("open redis store: %v", err)
	}
	return kv
}

func TestSetGetDelete(t *testing.T) {
	kv := openTestKV(t)
	defer func() { _ = kv.Close() }()

	ctx := context.Background()

	if err := kv.Set(ctx, storage.StreakKey, `{"current_streak":1}`); err != nil {
		t.Fatalf("set: %v", err)
	}

	value, err := kv.Get(ctx, storage.StreakKey)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != `{"current_streak":1}` {
		t.Fatalf("unexpected value: %s", value)
	}

	if err := kv.Delete(ctx, storage.StreakKey); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := kv.Get(ctx, storage.StreakKey); err != storage.ErrNotFound {
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

func TestKeysWithPrefixScansAllPages(t *testing.T) {
	kv := openTestKV(t)
	defer func() { _ = kv.Close() }()

	ctx := context.Background()

	// More keys than one SCAN page so the cursor loop is exercised
	for i := 0; i < 250; i++ {
		key := storage.SessionKey(fmt.Sprintf("session-%03d", i))
		if err := kv.Set(ctx, key, "{}"); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	if err := kv.Set(ctx, storage.DailyKey("2026-01-01"), "{}"); err != nil {
		t.Fatalf("set daily: %v", err)
	}

	keys, err := kv.KeysWithPrefix(ctx, storage.SessionKeyPrefix)
	if err != nil {
		t.Fatalf("keys with prefix: %v", err)
	}
	if len(keys) != 250 {
		t.Fatalf("expected 250 session keys, got %d", len(keys))
	}
}

func TestOpenInvalidTimeout(t *testing.T) {
	cfg := config.RedisConfig{
		Host:        "localhost",
		Port:        6379,
		DialTimeout: "not-a-duration",
	}

	if _, err := Open(cfg); err == nil {
		t.Fatal("expected error for invalid dial_timeout")
	}
}
