package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const embeddingKeyPrefix = "emb:"

// Badger persists embeddings so candidate vectors survive restarts.
type Badger struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenBadger opens the database at path, or an in-memory one when path is empty.
func OpenBadger(path string, ttl time.Duration, logger *zap.Logger) (*Badger, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil
	if logger != nil {
		opts.Logger = &badgerLogger{logger.Sugar().Named("badger")}
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	return &Badger{db: db, ttl: ttl}, nil
}

// NewBadger wraps an already opened database.
func NewBadger(db *badger.DB, ttl time.Duration) *Badger {
	return &Badger{db: db, ttl: ttl}
}

func (b *Badger) Get(ctx context.Context, key string) ([]float64, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var v []float64
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(embeddingKeyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get embedding: %w", err)
	}
	return v, true, nil
}

func (b *Badger) Put(ctx context.Context, key string, v []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(embeddingKeyPrefix+key), data)
		if b.ttl > 0 {
			e = e.WithTTL(b.ttl)
		}
		if err := txn.SetEntry(e); err != nil {
			return fmt.Errorf("set embedding: %w", err)
		}
		return nil
	})
}

func (b *Badger) Close() error { return b.db.Close() }

type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(f string, args ...interface{})   { l.s.Errorf(f, args...) }
func (l *badgerLogger) Warningf(f string, args ...interface{}) { l.s.Warnf(f, args...) }
func (l *badgerLogger) Infof(f string, args ...interface{})    { l.s.Debugf(f, args...) }
func (l *badgerLogger) Debugf(f string, args ...interface{})   { l.s.Debugf(f, args...) }

// Open builds the cache selected by cfg. A nil cache means caching is off.
func Open(cfg Config, ttl time.Duration, logger *zap.Logger) (Cache, error) {
	switch cfg.Backend {
	case BackendNone:
		return nil, nil
	case BackendBadger:
		b, err := OpenBadger(cfg.Path, ttl, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendMemory, "":
		return NewMemory(cfg.MaxEntries, ttl)
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}
