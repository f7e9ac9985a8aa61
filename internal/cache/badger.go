package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore persists cache entries in an embedded Badger database
type BadgerStore struct {
	db     *badger.DB
	prefix string
}

// OpenBadger opens (or creates) a store in dir. An empty dir opens an
// in-memory database.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", dir, err)
	}
	return &BadgerStore{db: db, prefix: "cache:"}, nil
}

func (s *BadgerStore) key(k string) []byte { return []byte(s.prefix + k) }

// Get returns (value, true, nil) on hit
func (s *BadgerStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("badger get: %w", err)
	}
	return val, true, nil
}

// Set writes value with a Badger-level TTL
func (s *BadgerStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(s.key(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("badger set: %w", err)
	}
	return nil
}

func (s *BadgerStore) Name() string { return "badger" }

// Close flushes and closes the database
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Count returns the number of live (unexpired) entries
func (s *BadgerStore) Count(_ context.Context) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(s.prefix)

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger count: %w", err)
	}
	return n, nil
}

// Purge drops every cache entry
func (s *BadgerStore) Purge(_ context.Context) error {
	if err := s.db.DropPrefix([]byte(s.prefix)); err != nil {
		return fmt.Errorf("badger purge: %w", err)
	}
	return nil
}
