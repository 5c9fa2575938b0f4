// Package features turns (candidate, job) pairs into fixed-layout feature
// vectors and entities into tower inputs.
package features

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/criteria"
	"github.com/spigell/jobmatch/internal/lookup"
	"github.com/spigell/jobmatch/internal/profile"
)

const (
	// PolicySum adds up role durations; overlapping roles are counted twice.
	PolicySum = "sum"
	// PolicyMerge counts overlapping periods once.
	PolicyMerge = "merge"
)

type Config struct {
	// ExperiencePolicy is "sum" or "merge". Default: sum.
	ExperiencePolicy string `mapstructure:"experience-policy" validate:"omitempty,oneof=sum merge"`
	// Now overrides the clock used for ongoing roles.
	Now func() time.Time `mapstructure:"-" json:"-"`
}

func DefaultConfig() Config {
	return Config{ExperiencePolicy: PolicySum}
}

// Extractor computes pair feature vectors. It holds no per-call state and is
// safe for concurrent use.
type Extractor struct {
	lookups  lookup.Lookups
	criteria *criteria.Registry
	cfg      Config
	logger   *zap.Logger
}

func New(lookups lookup.Lookups, registry *criteria.Registry, cfg Config, logger *zap.Logger) (*Extractor, error) {
	if err := lookups.Validate(); err != nil {
		return nil, fmt.Errorf("feature extractor: %w", err)
	}
	if registry == nil {
		registry = criteria.NewRegistry()
	}
	if cfg.ExperiencePolicy == "" {
		cfg.ExperiencePolicy = PolicySum
	}
	if cfg.ExperiencePolicy != PolicySum && cfg.ExperiencePolicy != PolicyMerge {
		return nil, fmt.Errorf("unknown experience policy %q", cfg.ExperiencePolicy)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{lookups: lookups, criteria: registry, cfg: cfg, logger: logger}, nil
}

// Lookups returns the services used by the extractor.
func (e *Extractor) Lookups() lookup.Lookups { return e.lookups }

// Extract computes the feature vector of a pair. Missing optional data maps
// to sentinel values; upstream failures are returned, never replaced.
func (e *Extractor) Extract(ctx context.Context, c *profile.Candidate, j *profile.JobPosting) (*Vector, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := e.ValidateJob(j); err != nil {
		return nil, err
	}

	now := e.cfg.Now()
	v := newVector(pairLayout, c.ID, j.ID)
	v.Details.Presence = j.Mode()
	v.Details.CandidateLocation = c.Location
	v.Details.JobLocation = j.Location

	texts, err := e.embedTexts(ctx, c, j)
	if err != nil {
		return nil, fmt.Errorf("embedding texts: %w", err)
	}

	e.education(v, c, j)

	if err := e.experience(ctx, v, c, j, texts, now); err != nil {
		return nil, fmt.Errorf("experience features: %w", err)
	}

	e.languages(v, c, j)

	if err := e.skills(ctx, v, c, j, texts); err != nil {
		return nil, fmt.Errorf("skill features: %w", err)
	}

	if err := e.location(ctx, v, c, j); err != nil {
		return nil, fmt.Errorf("location features: %w", err)
	}

	if err := e.mandatory(v, c, j); err != nil {
		return nil, err
	}

	v.set(GlobalTextSimilarity, cosine(texts.candidateText, texts.jobText))

	e.logger.Debug("features extracted",
		zap.String("candidate_id", c.ID),
		zap.String("job_id", j.ID),
		zap.String("layout", pairLayout.Version),
	)

	return v, nil
}

// ValidateJob checks the identity of a job posting and that every one of its
// mandatory criteria can be evaluated.
func (e *Extractor) ValidateJob(j *profile.JobPosting) error {
	if err := j.Validate(); err != nil {
		return err
	}
	for i, crit := range j.Criteria {
		if err := e.criteria.Check(crit); err != nil {
			return &profile.InvalidInputError{
				Entity: "job", ID: j.ID,
				Field:  fmt.Sprintf("criteria[%d]", i),
				Reason: err.Error(),
			}
		}
	}
	return nil
}

// embeddedTexts holds the embeddings needed for one pair; absent texts stay nil.
type embeddedTexts struct {
	jobTitle      []float32
	jobText       []float32
	candidateText []float32
	experiences   [][]float32
	candSkills    []float32
	jobSkills     []float32
}

func (e *Extractor) embedTexts(ctx context.Context, c *profile.Candidate, j *profile.JobPosting) (*embeddedTexts, error) {
	var (
		batch []string
		slots []*[]float32
	)
	out := &embeddedTexts{experiences: make([][]float32, len(c.Experience))}

	add := func(text string, dst *[]float32) {
		if text == "" {
			return
		}
		batch = append(batch, text)
		slots = append(slots, dst)
	}

	add(j.TitleText(), &out.jobTitle)
	add(j.Text(), &out.jobText)
	add(c.Text(), &out.candidateText)
	for i, w := range c.Experience {
		add(w.Text(), &out.experiences[i])
	}

	candSkills := c.SkillNames()
	jobSkills := j.SkillNames()
	candSkillVectors := make([][]float32, len(candSkills))
	jobSkillVectors := make([][]float32, len(jobSkills))
	for i, name := range candSkills {
		add(name, &candSkillVectors[i])
	}
	for i, name := range jobSkills {
		add(name, &jobSkillVectors[i])
	}

	vectors, err := lookup.EmbedAll(ctx, e.lookups.Embedder, batch)
	if err != nil {
		return nil, upstream("embedder", "embed", err)
	}
	for i, v := range vectors {
		*slots[i] = v
	}

	out.candSkills = mean(candSkillVectors)
	out.jobSkills = mean(jobSkillVectors)
	return out, nil
}

// upstream makes sure service failures carry the UpstreamServiceError type
// even when the service was not wrapped by a guard.
func upstream(service, op string, err error) error {
	return lookup.AsUpstream(service, op, err)
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return clamp(dot/(math.Sqrt(na)*math.Sqrt(nb)), -1, 1)
}

func mean(vectors [][]float32) []float32 {
	var out []float32
	n := 0
	for _, v := range vectors {
		if len(v) == 0 {
			continue
		}
		if out == nil {
			out = make([]float32, len(v))
		}
		if len(v) != len(out) {
			continue
		}
		for i, x := range v {
			out[i] += x
		}
		n++
	}
	if n == 0 {
		return nil
	}
	for i := range out {
		out[i] /= float32(n)
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 1
	}
	return float64(num) / float64(den)
}
