package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// KV is the durable key-value primitive backing all records.
// Values are JSON-encoded records. Each Set is assumed crash-atomic;
// there are no transactions across keys.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	KeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Key layout. The layout is internal; only the record semantics are a
// compatibility surface.
const (
	SessionKeyPrefix = "readtrack:session:"
	DailyKeyPrefix   = "readtrack:daily:"
	StreakKey        = "readtrack:streak"
	MarkerKey        = "readtrack:marker"
)

// SessionKey returns the durable key for a session record.
func SessionKey(sessionID string) string {
	return SessionKeyPrefix + sessionID
}

// DailyKey returns the durable key for a daily stats record.
func DailyKey(dateKey string) string {
	return DailyKeyPrefix + dateKey
}
