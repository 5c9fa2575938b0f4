// Package lookup declares the external services the matcher depends on and
// the wrappers that make them safe to call from parallel extraction.
package lookup

import (
	"context"
	"errors"
	"fmt"

	"github.com/spigell/jobmatch/internal/profile"
)

// ErrNoData marks a lookup that succeeded but found nothing, such as an
// unknown city. Callers fall back to sentinel values instead of failing.
var ErrNoData = errors.New("no data")

// Embedder turns text into a fixed-dimension vector. Implementations must be
// deterministic for a given model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder is implemented by embedders that can process several texts per call.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Distancer interface {
	Distance(ctx context.Context, a, b profile.Location) (float64, error)
}

type Taxonomy interface {
	MapSkill(ctx context.Context, name string) (string, error)
	MapTitle(ctx context.Context, title string) (string, error)
}

// Lookups bundles the services used by feature extraction and encoding.
type Lookups struct {
	Embedder  Embedder
	Distancer Distancer
	Taxonomy  Taxonomy
}

func (l Lookups) Validate() error {
	if l.Embedder == nil {
		return errors.New("embedder is required")
	}
	if l.Distancer == nil {
		return errors.New("distancer is required")
	}
	if l.Taxonomy == nil {
		return errors.New("taxonomy is required")
	}
	return nil
}

// EmbedAll embeds the texts in order, batching when the embedder supports it.
func EmbedAll(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if b, ok := e.(BatchEmbedder); ok {
		vectors, err := b.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
		}
		return vectors, nil
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}
