package store

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Key prefixes for the two record kinds the store holds.
const (
	LicensePrefix = "license:"
	PubKeyPrefix  = "pubkey:"
)

// ErrNotFound is returned by Get when no value exists for the key. It is an
// expected outcome, not a storage fault.
var ErrNotFound = errors.New("store: key not found")

var recordsBucket = []byte("records")

// OpType discriminates batch operations.
type OpType int

const (
	OpPut OpType = iota
	OpDelete
)

// Op is a single operation inside a Batch.
type Op struct {
	Type  OpType
	Key   string
	Value []byte
}

// Store is durable ordered key-value persistence with a bounded
// write-through cache in front of it.
type Store struct {
	db     *bolt.DB
	cache  *Cache
	logger *slog.Logger
}

// Open opens (creating if necessary) the bbolt database at path and prepares
// the records bucket. The returned Store owns the file handle; callers must
// Close it.
func Open(path string, cacheCapacity int, logger *slog.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create bucket: %w", err)
	}

	logger.Info("store opened",
		slog.String("path", path),
		slog.Int("cache_capacity", cacheCapacity))

	return &Store{
		db:     db,
		cache:  NewCache(cacheCapacity),
		logger: logger,
	}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes key synchronously to the durable layer, then mirrors it into
// the cache. The cache is left untouched when the write fails.
func (s *Store) Put(key string, value []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("store: put %q: %w", key, err)
	}
	s.cache.Set(key, value)
	return nil
}

// Get returns the value for key, consulting the cache first. A miss falls
// through to the durable layer and populates the cache. Absent keys return
// ErrNotFound.
func (s *Store) Get(key string) ([]byte, error) {
	if value, ok := s.cache.Get(key); ok {
		return value, nil
	}

	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(recordsBucket).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		value = make([]byte, len(v))
		copy(value, v)
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %q: %w", key, err)
	}

	s.cache.Set(key, value)
	return value, nil
}

// Delete removes key from the durable layer, then from the cache. Deleting
// an absent key is not an error.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("store: delete %q: %w", key, err)
	}
	s.cache.Delete(key)
	return nil
}

// Batch applies the operations atomically as a single durable transaction,
// then replays them against the cache.
func (s *Store) Batch(ops []Op) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		for _, op := range ops {
			switch op.Type {
			case OpPut:
				if err := b.Put([]byte(op.Key), op.Value); err != nil {
					return err
				}
			case OpDelete:
				if err := b.Delete([]byte(op.Key)); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown op type %d", op.Type)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: batch: %w", err)
	}

	for _, op := range ops {
		switch op.Type {
		case OpPut:
			s.cache.Set(op.Key, op.Value)
		case OpDelete:
			s.cache.Delete(op.Key)
		}
	}
	return nil
}

// ScanPrefix walks every key under prefix in key order, invoking fn for each
// pair. Iteration stops at the first error from fn, which is returned
// unwrapped. Each call re-scans current state.
func (s *Store) ScanPrefix(prefix string, fn func(key string, value []byte) error) error {
	p := []byte(prefix)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(recordsBucket).Cursor()
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			value := make([]byte, len(v))
			copy(value, v)
			if err := fn(string(k), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

// Has reports whether key exists, without the value round-trip through the
// cache on a miss.
func (s *Store) Has(key string) (bool, error) {
	if _, ok := s.cache.Get(key); ok {
		return true, nil
	}
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(recordsBucket).Get([]byte(key)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("store: has %q: %w", key, err)
	}
	return found, nil
}

// CacheStats exposes cumulative cache hit and miss counts for metrics.
func (s *Store) CacheStats() (hits, misses int64) {
	return s.cache.Stats()
}
