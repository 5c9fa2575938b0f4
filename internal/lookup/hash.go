package lookup

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/spigell/jobmatch/internal/textnorm"
)

// HashEmbedder is an offline embedder that projects word and character
// trigram features into a fixed number of buckets. Texts sharing vocabulary
// get a positive cosine; it has no notion of meaning beyond that.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 384
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dim() int { return h.dim }

func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := make([]float32, h.dim)
	for _, tok := range textnorm.Tokens(text) {
		h.add(v, "w:"+tok, 1)
		padded := "^" + tok + "$"
		runes := []rune(padded)
		for i := 0; i+3 <= len(runes); i++ {
			h.add(v, "g:"+string(runes[i:i+3]), 0.5)
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v, nil
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
	return v, nil
}

func (h *HashEmbedder) add(v []float32, feature string, weight float32) {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(feature))
	sum := hasher.Sum64()
	idx := int(sum % uint64(h.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}
