// Package recommend retrieves and ranks candidates for a job, or jobs for a
// candidate, with the two towers after the hard filter.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/jobmatch/internal/ai"
	"github.com/spigell/jobmatch/internal/features"
	"github.com/spigell/jobmatch/internal/filtering"
	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/match"
	"github.com/spigell/jobmatch/internal/metrics"
	"github.com/spigell/jobmatch/internal/profile"
	"github.com/spigell/jobmatch/internal/scoring"
	"github.com/spigell/jobmatch/internal/tower"
)

const (
	DirectionCandidates = "candidates"
	DirectionJobs       = "jobs"
)

type Config struct {
	TopK    int           `mapstructure:"top-k" validate:"gte=1"`
	Workers int           `mapstructure:"workers" validate:"gte=0"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
	// RerankDepth limits how many top results go through the reranker. Zero means all of them.
	RerankDepth int  `mapstructure:"rerank-depth" validate:"gte=0"`
	Explain     bool `mapstructure:"explain"`
}

func DefaultConfig() Config {
	return Config{
		TopK:    10,
		Workers: runtime.NumCPU(),
		Timeout: 30 * time.Second,
		Explain: true,
	}
}

// Invalid is a pool member excluded because of invalid input.
type Invalid struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// Result is the outcome of one recommendation call.
type Result struct {
	RequestID string         `json:"request_id"`
	Direction string         `json:"direction"`
	QueryID   string         `json:"query_id"`
	Matches   []match.Result `json:"matches"`
	// Rejected holds the pairs stopped by the hard filter, with their verdicts.
	Rejected []match.Result `json:"rejected,omitempty"`
	Invalid  []Invalid      `json:"invalid,omitempty"`
	Filter   filtering.Step `json:"filter"`
	Duration time.Duration  `json:"duration"`
}

type Engine struct {
	extractor *features.Extractor
	filter    *filtering.HardFilter
	scorer    *scoring.Scorer
	encoder   *tower.Encoder
	reranker  ai.Matcher
	cfg       Config
	logger    *zap.Logger
}

type Option func(*Engine)

// WithReranker adds a reranking stage after the dot-product ranking.
func WithReranker(m ai.Matcher) Option {
	return func(e *Engine) {
		e.reranker = m
	}
}

func New(extractor *features.Extractor, filter *filtering.HardFilter, scorer *scoring.Scorer, encoder *tower.Encoder, cfg Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if extractor == nil || scorer == nil || encoder == nil {
		return nil, errors.New("extractor, scorer and encoder are required")
	}
	if cfg.TopK <= 0 {
		return nil, fmt.Errorf("top-k must be positive, got %d", cfg.TopK)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if filter == nil {
		filter = filtering.New(logger)
	}

	e := &Engine{
		extractor: extractor,
		filter:    filter,
		scorer:    scorer,
		encoder:   encoder,
		cfg:       cfg,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// query is one side of a recommendation call: a fixed entity ranked against a pool.
type query struct {
	direction string
	id        string
	entity    string
	size      int
	pair      func(i int) (*profile.Candidate, *profile.JobPosting)
	memberID  func(i int) string
	key       func(p filtering.Pair) string
	encode    func(ctx context.Context) (tower.Embedding, error)
	encodeOne func(ctx context.Context, p filtering.Pair) (tower.Embedding, error)
}

// RecommendCandidates ranks the pool of candidates for a job. topK <= 0 uses the configured value.
func (e *Engine) RecommendCandidates(ctx context.Context, job *profile.JobPosting, pool []*profile.Candidate, topK int) (*Result, error) {
	if err := e.extractor.ValidateJob(job); err != nil {
		return nil, err
	}
	return e.recommend(ctx, query{
		direction: DirectionCandidates,
		id:        job.ID,
		entity:    "candidate",
		size:      len(pool),
		pair: func(i int) (*profile.Candidate, *profile.JobPosting) {
			return pool[i], job
		},
		memberID: func(i int) string {
			if pool[i] == nil {
				return ""
			}
			return pool[i].ID
		},
		key: func(p filtering.Pair) string { return p.Candidate.ID },
		encode: func(ctx context.Context) (tower.Embedding, error) {
			return e.encoder.EncodeJob(ctx, job)
		},
		encodeOne: func(ctx context.Context, p filtering.Pair) (tower.Embedding, error) {
			return e.encoder.EncodeCandidate(ctx, p.Candidate)
		},
	}, topK)
}

// RecommendJobs ranks the pool of jobs for a candidate. Closed postings are
// expected to be removed by the caller.
func (e *Engine) RecommendJobs(ctx context.Context, candidate *profile.Candidate, pool []*profile.JobPosting, topK int) (*Result, error) {
	if err := candidate.Validate(); err != nil {
		return nil, err
	}
	return e.recommend(ctx, query{
		direction: DirectionJobs,
		id:        candidate.ID,
		entity:    "job",
		size:      len(pool),
		pair: func(i int) (*profile.Candidate, *profile.JobPosting) {
			return candidate, pool[i]
		},
		memberID: func(i int) string {
			if pool[i] == nil {
				return ""
			}
			return pool[i].ID
		},
		key: func(p filtering.Pair) string { return p.Job.ID },
		encode: func(ctx context.Context) (tower.Embedding, error) {
			return e.encoder.EncodeCandidate(ctx, candidate)
		},
		encodeOne: func(ctx context.Context, p filtering.Pair) (tower.Embedding, error) {
			return e.encoder.EncodeJob(ctx, p.Job)
		},
	}, topK)
}

func (e *Engine) recommend(ctx context.Context, q query, topK int) (res *Result, err error) {
	start := time.Now()
	if topK <= 0 {
		topK = e.cfg.TopK
	}

	requestID := uuid.NewString()
	logger := logger.WithRequest(e.logger, requestID, q.direction, q.id)
	defer func() {
		metrics.RecordRetrieval(q.direction, time.Since(start), err)
	}()

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	logger.Debug("recommendation started", zap.Int("pool", q.size), zap.Int("top_k", topK))

	res, err = e.rank(ctx, logger, q, topK)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = &RetrievalTimeoutError{Direction: q.direction, QueryID: q.id, Timeout: e.cfg.Timeout, Err: err}
		}
		logger.Warn("recommendation failed", zap.Error(err))
		return nil, err
	}

	res.RequestID = requestID
	res.Duration = time.Since(start)

	logger.Info("recommendation completed",
		zap.Int("pool", q.size),
		zap.Int("invalid", len(res.Invalid)),
		zap.Int("rejected", len(res.Rejected)),
		zap.Int("returned", len(res.Matches)),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

type ranked struct {
	pair   filtering.Pair
	sim    float64
	rerank *float64
}

func (e *Engine) rank(ctx context.Context, logger *zap.Logger, q query, topK int) (*Result, error) {
	res := &Result{Direction: q.direction, QueryID: q.id}

	vectors := make([]*features.Vector, q.size)
	invalid := make([]error, q.size)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i := 0; i < q.size; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, j := q.pair(i)
			v, err := e.extractor.Extract(gctx, c, j)
			var bad *profile.InvalidInputError
			switch {
			case errors.As(err, &bad):
				invalid[i] = err
				return nil
			case err != nil:
				return err
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pairs := make([]filtering.Pair, 0, q.size)
	for i := range vectors {
		if invalid[i] != nil {
			res.Invalid = append(res.Invalid, Invalid{Index: i, ID: q.memberID(i), Reason: invalid[i].Error()})
			metrics.InvalidInputs.WithLabelValues(q.entity).Inc()
			logger.Warn("pool member excluded",
				zap.Int("index", i),
				zap.String("id", q.memberID(i)),
				zap.Error(invalid[i]),
			)
			continue
		}
		c, j := q.pair(i)
		pairs = append(pairs, filtering.Pair{Candidate: c, Job: j, Vector: vectors[i]})
	}

	passed, rejected, step := e.filter.Run(pairs)
	res.Filter = step
	for _, p := range rejected {
		res.Rejected = append(res.Rejected, e.result(p, 0))
	}

	if len(passed) == 0 {
		res.Matches = []match.Result{}
		return res, nil
	}

	queryEmb, err := q.encode(ctx)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", q.id, err)
	}

	embeddings := make([]tower.Embedding, len(passed))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, p := range passed {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			emb, err := q.encodeOne(gctx, p)
			if err != nil {
				return fmt.Errorf("encode %s: %w", q.key(p), err)
			}
			embeddings[i] = emb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	list := make([]ranked, len(passed))
	for i, p := range passed {
		list[i] = ranked{pair: p, sim: queryEmb.Dot(embeddings[i])}
	}
	sort.SliceStable(list, func(a, b int) bool {
		if list[a].sim != list[b].sim {
			return list[a].sim > list[b].sim
		}
		return q.key(list[a].pair) < q.key(list[b].pair)
	})
	if len(list) > topK {
		list = list[:topK]
	}

	if e.reranker != nil {
		if err := e.rerank(ctx, logger, list); err != nil {
			return nil, err
		}
	}

	res.Matches = make([]match.Result, len(list))
	for i, r := range list {
		m := e.result(r.pair, r.sim)
		m.Rank = i + 1
		m.RerankScore = r.rerank
		res.Matches[i] = m
	}
	return res, nil
}

// rerank scores the head of the list with the reranker and reorders it.
// A failed evaluation keeps the pair after the scored ones, in similarity order.
func (e *Engine) rerank(ctx context.Context, log *zap.Logger, list []ranked) error {
	depth := e.cfg.RerankDepth
	if depth <= 0 || depth > len(list) {
		depth = len(list)
	}
	head := list[:depth]

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i := range head {
		g.Go(func() error {
			p := head[i].pair
			assessment, err := e.reranker.Evaluate(gctx, p.Candidate, p.Job)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.WithFields(log, logger.PairFields(p.Candidate.ID, p.Job.ID)...).
					Warn("rerank evaluation failed", zap.Error(err))
				return nil
			}
			score := assessment.Score
			if math.IsNaN(score) || math.IsInf(score, 0) {
				logger.WithFields(log, logger.PairFields(p.Candidate.ID, p.Job.ID)...).
					Warn("rerank evaluation failed", zap.Error(errors.New("non-finite rerank score")))
				return nil
			}
			head[i].rerank = &score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sort.SliceStable(head, func(a, b int) bool {
		ra, rb := head[a].rerank, head[b].rerank
		switch {
		case ra == nil || rb == nil:
			return ra != nil && rb == nil
		default:
			return *ra > *rb
		}
	})
	return nil
}

func (e *Engine) result(p filtering.Pair, sim float64) match.Result {
	r := match.Result{
		CandidateID: p.Candidate.ID,
		JobID:       p.Job.ID,
		Similarity:  sim,
		Scores:      e.scorer.ScoreFor(p.Vector, p.Job),
		Verdict:     p.Verdict,
	}
	if e.cfg.Explain {
		exp := match.Explain(r, p.Vector)
		r.Explanation = &exp
	}
	return r
}

// ExplainMatch evaluates a single pair end to end: features, hard filter
// verdict, tower similarity, sub-scores and explanation.
func (e *Engine) ExplainMatch(ctx context.Context, c *profile.Candidate, j *profile.JobPosting) (match.Result, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	v, err := e.extractor.Extract(ctx, c, j)
	if err != nil {
		return match.Result{}, err
	}
	verdict := e.filter.Passes(c, j, v)

	cEmb, err := e.encoder.EncodeCandidate(ctx, c)
	if err != nil {
		return match.Result{}, err
	}
	jEmb, err := e.encoder.EncodeJob(ctx, j)
	if err != nil {
		return match.Result{}, err
	}

	r := match.Result{
		CandidateID: c.ID,
		JobID:       j.ID,
		Similarity:  cEmb.Dot(jEmb),
		Scores:      e.scorer.ScoreFor(v, j),
		Verdict:     verdict,
	}
	exp := match.Explain(r, v)
	r.Explanation = &exp
	return r, nil
}
