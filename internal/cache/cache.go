// Package cache stores downloaded repository metadata in a badger
// database keyed by content checksum.
package cache

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/ralt/depcheck/internal/models"
)

// DefaultTTL is how long an entry survives without being read.
const DefaultTTL = 7 * 24 * time.Hour

// Config configures Open.
type Config struct {
	// Dir holds the database. Required unless InMemory is set.
	Dir string

	// InMemory keeps everything in memory, for tests.
	InMemory bool

	// TTL of entries; zero means DefaultTTL. Reading an entry renews it.
	TTL time.Duration

	Logger logrus.FieldLogger
}

// Cache is a checksum-addressed blob store. Entries are immutable: a key
// always maps to the same content, so the only invalidation is expiry.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
	log logrus.FieldLogger
}

// badgerLogger routes badger's internal logging to logrus at debug level.
type badgerLogger struct {
	log logrus.FieldLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Errorf("badger: "+format, args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warnf("badger: "+format, args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debugf("badger: "+format, args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debugf("badger: "+format, args...)
}

// Open opens or creates the cache.
func Open(cfg Config) (*Cache, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, models.NewCheckError(models.ErrCache, "", errors.New("cache directory is required"))
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
			return nil, models.NewCheckError(models.ErrCache, "", fmt.Errorf("create cache directory %s: %w", cfg.Dir, err))
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(badgerLogger{log: cfg.Logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, models.NewCheckError(models.ErrCache, "", fmt.Errorf("open cache: %w", err))
	}
	return &Cache{db: db, ttl: cfg.TTL, log: cfg.Logger}, nil
}

// Get returns the blob stored under key and renews its expiry. A missing
// or expired entry is not an error.
func (c *Cache) Get(key string) ([]byte, bool, error) {
	var data []byte
	err := c.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return txn.SetEntry(badger.NewEntry([]byte(key), data).WithTTL(c.ttl))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, models.NewCheckError(models.ErrCache, "", fmt.Errorf("read %s: %w", key, err))
	}
	return data, true, nil
}

// Put stores data under key.
func (c *Cache) Put(key string, data []byte) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), data).WithTTL(c.ttl))
	})
	if err != nil {
		return models.NewCheckError(models.ErrCache, "", fmt.Errorf("write %s: %w", key, err))
	}
	return nil
}

// Len counts live entries.
func (c *Cache) Len() (int, error) {
	n := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Clean reclaims space held by expired entries.
func (c *Cache) Clean() error {
	for {
		err := c.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return models.NewCheckError(models.ErrCache, "", fmt.Errorf("value log GC: %w", err))
		}
		c.log.Debug("Cache value log rewritten")
	}
}

// Purge drops every entry.
func (c *Cache) Purge() error {
	if err := c.db.DropAll(); err != nil {
		return models.NewCheckError(models.ErrCache, "", fmt.Errorf("purge: %w", err))
	}
	return nil
}

// Close flushes and closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}
