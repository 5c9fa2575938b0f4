package tower

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/features"
	"github.com/spigell/jobmatch/internal/lookup"
	"github.com/spigell/jobmatch/internal/metrics"
	"github.com/spigell/jobmatch/internal/profile"
	"github.com/spigell/jobmatch/internal/store"
)

// Prepared is a tower input with its text already embedded.
type Prepared struct {
	ID       string
	Features []float64
	Text     []float32
	// Hash identifies the content, so a changed profile gets a new cache key.
	Hash string
}

// Encoder turns entities into tower embeddings. Candidate embeddings do not
// depend on the job, so they are cached across queries.
type Encoder struct {
	candidate Tower
	job       Tower
	extractor *features.Extractor
	embedder  lookup.Embedder
	cache     store.Cache
	logger    *zap.Logger
}

func NewEncoder(candidate, job Tower, extractor *features.Extractor, cache store.Cache, logger *zap.Logger) (*Encoder, error) {
	if candidate == nil || job == nil {
		return nil, fmt.Errorf("both towers are required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("feature extractor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Encoder{
		candidate: candidate,
		job:       job,
		extractor: extractor,
		embedder:  extractor.Lookups().Embedder,
		cache:     cache,
		logger:    logger,
	}, nil
}

func (e *Encoder) CandidateTower() Tower { return e.candidate }
func (e *Encoder) JobTower() Tower       { return e.job }

// PrepareCandidate builds the candidate tower input and embeds its text.
func (e *Encoder) PrepareCandidate(ctx context.Context, c *profile.Candidate) (*Prepared, error) {
	in, err := e.extractor.CandidateInput(c)
	if err != nil {
		return nil, err
	}
	return e.prepare(ctx, in)
}

// PrepareJob builds the job tower input and embeds its text.
func (e *Encoder) PrepareJob(ctx context.Context, j *profile.JobPosting) (*Prepared, error) {
	in, err := e.extractor.JobInput(j)
	if err != nil {
		return nil, err
	}
	return e.prepare(ctx, in)
}

func (e *Encoder) prepare(ctx context.Context, in *features.Input) (*Prepared, error) {
	var text []float32
	if in.Text != "" {
		v, err := e.embedder.Embed(ctx, in.Text)
		if err != nil {
			return nil, lookup.AsUpstream("embedder", "embed", err)
		}
		text = v
	}
	return &Prepared{ID: in.ID, Features: in.Features, Text: text, Hash: contentHash(in.Features, in.Text)}, nil
}

func (e *Encoder) EncodeCandidate(ctx context.Context, c *profile.Candidate) (Embedding, error) {
	in, err := e.extractor.CandidateInput(c)
	if err != nil {
		return nil, err
	}
	return e.encode(ctx, e.candidate, in)
}

func (e *Encoder) EncodeJob(ctx context.Context, j *profile.JobPosting) (Embedding, error) {
	in, err := e.extractor.JobInput(j)
	if err != nil {
		return nil, err
	}
	return e.encode(ctx, e.job, in)
}

func (e *Encoder) encode(ctx context.Context, t Tower, in *features.Input) (Embedding, error) {
	key := cacheKey(t, in.ID, contentHash(in.Features, in.Text))
	if e.cache != nil {
		v, ok, err := e.cache.Get(ctx, key)
		switch {
		case err != nil:
			e.logger.Warn("embedding cache read failed", zap.String("key", key), zap.Error(err))
		case ok:
			metrics.RecordCache(true)
			return v, nil
		}
		metrics.RecordCache(false)
	}

	p, err := e.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	emb, err := t.Encode(p.Features, p.Text)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", t.Name(), in.ID, err)
	}

	if e.cache != nil {
		if err := e.cache.Put(ctx, key, emb); err != nil {
			e.logger.Warn("embedding cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return emb, nil
}

func cacheKey(t Tower, id, hash string) string {
	return fmt.Sprintf("%s:%d:%s:%s", t.Name(), t.Version(), id, hash)
}

func contentHash(values []float64, text string) string {
	h := sha256.New()
	var buf [8]byte
	for _, v := range values {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil)[:12])
}
