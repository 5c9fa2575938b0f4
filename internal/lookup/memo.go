package lookup

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
)

const defaultMemoSize = 4096

// MemoEmbedder remembers embeddings by text hash. The job text is embedded
// once per job no matter how many candidates it is paired with.
type MemoEmbedder struct {
	inner Embedder
	limit int

	mu    sync.RWMutex
	cache map[string][]float32
}

func NewMemoEmbedder(inner Embedder, limit int) *MemoEmbedder {
	if limit <= 0 {
		limit = defaultMemoSize
	}
	return &MemoEmbedder{inner: inner, limit: limit, cache: make(map[string][]float32)}
}

func (m *MemoEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := hashText(text)

	m.mu.RLock()
	if v, ok := m.cache[key]; ok {
		m.mu.RUnlock()
		return v, nil
	}
	m.mu.RUnlock()

	v, err := m.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	m.store(key, v)
	return v, nil
}

// EmbedBatch serves cached texts and forwards the rest in one call.
func (m *MemoEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missing []string
		slots   []int
	)

	m.mu.RLock()
	for i, text := range texts {
		if v, ok := m.cache[hashText(text)]; ok {
			out[i] = v
			continue
		}
		missing = append(missing, text)
		slots = append(slots, i)
	}
	m.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := EmbedAll(ctx, m.inner, missing)
	if err != nil {
		return nil, err
	}
	for j, v := range vectors {
		out[slots[j]] = v
		m.store(hashText(missing[j]), v)
	}
	return out, nil
}

func (m *MemoEmbedder) store(key string, v []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.cache) >= m.limit {
		m.cache = make(map[string][]float32, m.limit)
	}
	m.cache[key] = v
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", sum[:])
}
