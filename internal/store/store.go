// Package store caches tower embeddings across queries.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache maps an embedding key to its vector. Keys are built by the caller and
// include everything the vector depends on, so entries are never updated.
type Cache interface {
	Get(ctx context.Context, key string) ([]float64, bool, error)
	Put(ctx context.Context, key string, v []float64) error
	Close() error
}

const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendNone   = "none"
)

type Config struct {
	Backend string `mapstructure:"backend" validate:"omitempty,oneof=memory badger none"`
	// Path is the badger directory; empty keeps badger in memory.
	Path string `mapstructure:"path"`
	// MaxEntries bounds the memory backend.
	MaxEntries int `mapstructure:"max-entries" validate:"gte=0"`
}

// Memory is a bounded in-process cache backed by ristretto. Each entry costs
// one, so MaxEntries is the admission budget.
type Memory struct {
	cache *ristretto.Cache[string, []float64]
	ttl   time.Duration
}

// NewMemory builds a cache of at most limit entries. A zero ttl keeps entries
// until they are evicted.
func NewMemory(limit int, ttl time.Duration) (*Memory, error) {
	if limit <= 0 {
		limit = 100_000
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []float64]{
		NumCounters:        int64(limit) * 10,
		MaxCost:            int64(limit),
		BufferItems:        64,
		Metrics:            true,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("memory cache: %w", err)
	}
	return &Memory{cache: cache, ttl: ttl}, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]float64, bool, error) {
	v, ok := m.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]float64(nil), v...), true, nil
}

// Put waits for the write to be applied so a following Get sees it.
func (m *Memory) Put(_ context.Context, key string, v []float64) error {
	m.cache.SetWithTTL(key, append([]float64(nil), v...), 1, m.ttl)
	m.cache.Wait()
	return nil
}

// Len is the number of live entries.
func (m *Memory) Len() int {
	metrics := m.cache.Metrics
	return int(metrics.KeysAdded() - metrics.KeysEvicted())
}

func (m *Memory) Close() error {
	m.cache.Close()
	return nil
}
