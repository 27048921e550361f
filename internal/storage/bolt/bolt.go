package bolt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goodtune/readtrack/internal/storage"
	"go.etcd.io/bbolt"
)

var bucketRecords = []byte("records")

// KV implements the storage.KV interface on an embedded bbolt database.
// All records live in a single bucket; prefix scans use the bucket cursor.
type KV struct {
	db *bbolt.DB
}

// Open creates (or opens) a bolt-backed KV at path.
func Open(path string) (*KV, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create records bucket: %w", err)
	}

	return &KV{db: db}, nil
}

// Get retrieves the value stored under key, or storage.ErrNotFound.
func (kv *KV) Get(ctx context.Context, key string) (string, error) {
	var value []byte
	err := kv.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		v := tx.Bucket(bucketRecords).Get([]byte(key))
		if v == nil {
			return storage.ErrNotFound
		}
		value = append(value, v...)
		return nil
	})
	if err != nil {
		return "", err
	}
	return string(value), nil
}

// Set stores value under key.
func (kv *KV) Set(ctx context.Context, key, value string) error {
	return kv.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return tx.Bucket(bucketRecords).Put([]byte(key), []byte(value))
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (kv *KV) Delete(ctx context.Context, key string) error {
	return kv.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return tx.Bucket(bucketRecords).Delete([]byte(key))
	})
}

// KeysWithPrefix returns all keys starting with prefix.
func (kv *KV) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := kv.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c := tx.Bucket(bucketRecords).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Close closes the database.
func (kv *KV) Close() error {
	return kv.db.Close()
}
