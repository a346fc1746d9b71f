package store

import (
	"bytes"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"colloquy/pkg/logger"
)

var db *pebble.DB
var dbPath string

// seq reduces key collisions when multiple records share the same
// nanosecond timestamp.
var seq uint64

// Open opens (or creates) a Pebble database at the given path and keeps
// a global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	dbPath = ""
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

// IsNotFound reports whether err marks a missing key.
func IsNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}

func notOpen() error {
	return fmt.Errorf("pebble not opened; call store.Open first")
}

// ordinal returns a sortable "<unix_nano>-<seq>" suffix for append keys.
func ordinal() string {
	ts := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&seq, 1)
	return fmt.Sprintf("%020d-%06d", ts, s)
}

func get(key string) ([]byte, error) {
	if db == nil {
		return nil, notOpen()
	}
	v, closer, err := db.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	return out, nil
}

func set(key string, value []byte) error {
	if db == nil {
		return notOpen()
	}
	return db.Set([]byte(key), value, pebble.Sync)
}

func del(key string) error {
	if db == nil {
		return notOpen()
	}
	return db.Delete([]byte(key), pebble.Sync)
}

// listPrefix returns all values whose key starts with prefix, in key order.
func listPrefix(prefix string, limit int) ([]string, error) {
	if db == nil {
		return nil, notOpen()
	}
	pfx := []byte(prefix)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		v := append([]byte(nil), iter.Value()...)
		out = append(out, string(v))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

// ListKeys returns all keys (as strings) that start with the given prefix.
// If prefix is empty it returns all keys in the DB.
func ListKeys(prefix string) ([]string, error) {
	if db == nil {
		return nil, notOpen()
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	pfx := []byte(prefix)
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if prefix != "" && !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		k := append([]byte(nil), iter.Key()...)
		out = append(out, string(k))
	}
	return out, iter.Error()
}

// GetKey returns the raw value for the given key.
func GetKey(key string) (string, error) {
	v, err := get(key)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// SaveKey stores an arbitrary key/value pair. Callers should choose a
// safe namespace; the interaction/resource/index prefixes are reserved.
func SaveKey(key string, value []byte) error {
	return set(key, value)
}

// DeleteKey removes a raw key.
func DeleteKey(key string) error {
	return del(key)
}

// DBIter returns a raw Pebble iterator for low-level operations (inspect
// tooling). Caller must close the iterator when done.
func DBIter() (*pebble.Iterator, error) {
	if db == nil {
		return nil, notOpen()
	}
	return db.NewIter(&pebble.IterOptions{})
}
