// Package training fits the candidate and job towers with a contrastive
// objective over labelled (candidate, job) pairs.
package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/features"
	"github.com/spigell/jobmatch/internal/metrics"
	"github.com/spigell/jobmatch/internal/profile"
	"github.com/spigell/jobmatch/internal/tower"
)

// Example is a positive pair: the candidate applied to or was accepted for the job.
type Example struct {
	Candidate *profile.Candidate
	Job       *profile.JobPosting
}

// AuxWeights weight the auxiliary regression terms; all zero disables them.
type AuxWeights struct {
	SkillOverlap    float64 `mapstructure:"skill-overlap" validate:"gte=0"`
	LanguageGap     float64 `mapstructure:"language-gap" validate:"gte=0"`
	TitleSimilarity float64 `mapstructure:"title-similarity" validate:"gte=0"`
}

func (w AuxWeights) enabled() bool {
	return w.SkillOverlap != 0 || w.LanguageGap != 0 || w.TitleSimilarity != 0
}

type Config struct {
	Epochs      int     `mapstructure:"epochs" validate:"gte=1"`
	BatchSize   int     `mapstructure:"batch-size" validate:"gte=1"`
	Temperature float64 `mapstructure:"temperature" validate:"gt=0"`
	Seed        int64   `mapstructure:"seed"`
	// NegativeCache is the number of job embeddings kept from earlier
	// batches as extra negatives; 0 uses in-batch negatives only.
	NegativeCache int              `mapstructure:"negative-cache" validate:"gte=0"`
	Aux           AuxWeights       `mapstructure:"aux"`
	Optimizer     tower.AdamConfig `mapstructure:"optimizer"`
	// ValidationK is the cut-off of the validation NDCG.
	ValidationK int `mapstructure:"validation-k" validate:"gte=1"`
}

func DefaultConfig() Config {
	return Config{
		Epochs:      10,
		BatchSize:   32,
		Temperature: 0.07,
		Seed:        42,
		Optimizer:   tower.DefaultAdamConfig(),
		ValidationK: 5,
	}
}

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseSampling Phase = "sampling"
	PhaseForward  Phase = "forward"
	PhaseLoss     Phase = "loss"
	PhaseBackward Phase = "backward_update"
)

// StepReport describes one optimization step.
type StepReport struct {
	Step        int
	Pairs       int
	Dropped     int
	Loss        float64
	Contrastive float64
	Auxiliary   float64
	// Skipped is set when no pair of the batch was usable.
	Skipped bool
}

type EpochReport struct {
	Epoch          int
	Steps          int
	Skipped        int
	TrainLoss      float64
	ValidationLoss float64
	NDCG           float64
}

type Report struct {
	Epochs []EpochReport
}

// Trainer owns the towers while training. It is not safe for concurrent use;
// steps are applied one at a time.
type Trainer struct {
	cfg       Config
	candidate *tower.MLP
	job       *tower.MLP
	encoder   *tower.Encoder
	extractor *features.Extractor
	negatives *ring
	rng       *rand.Rand
	logger    *zap.Logger

	phase Phase
	epoch int
	step  int
}

func New(candidate, job *tower.MLP, extractor *features.Extractor, cfg Config, logger *zap.Logger) (*Trainer, error) {
	if cfg.Temperature <= 0 {
		return nil, fmt.Errorf("temperature must be positive, got %v", cfg.Temperature)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.ValidationK <= 0 {
		cfg.ValidationK = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	enc, err := tower.NewEncoder(candidate, job, extractor, nil, logger)
	if err != nil {
		return nil, err
	}
	return &Trainer{
		cfg:       cfg,
		candidate: candidate,
		job:       job,
		encoder:   enc,
		extractor: extractor,
		negatives: newRing(cfg.NegativeCache),
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		logger:    logger,
		phase:     PhaseIdle,
	}, nil
}

func (t *Trainer) Phase() Phase { return t.phase }

func (t *Trainer) setPhase(p Phase) {
	t.phase = p
	t.logger.Debug("training phase", zap.String("phase", string(p)), zap.Int("epoch", t.epoch), zap.Int("step", t.step))
}

type sample struct {
	jobID     string
	candidate *tower.Prepared
	job       *tower.Prepared
	targets   targets
}

// TrainStep runs one optimization step on a batch of positive pairs. Pairs
// with invalid entities are dropped; a batch left empty is skipped with a
// warning. A non-finite loss returns TrainingDivergedError and leaves the
// parameters untouched.
func (t *Trainer) TrainStep(ctx context.Context, batch []Example) (StepReport, error) {
	t.step++
	report := StepReport{Step: t.step}
	defer t.setPhase(PhaseIdle)

	t.setPhase(PhaseSampling)
	samples, err := t.sample(ctx, batch)
	if err != nil {
		return report, err
	}
	report.Pairs = len(samples)
	report.Dropped = len(batch) - len(samples)
	if len(samples) == 0 {
		report.Skipped = true
		metrics.TrainingSteps.WithLabelValues("skipped").Inc()
		t.logger.Warn("batch skipped: no valid pairs",
			zap.Int("epoch", t.epoch), zap.Int("step", t.step), zap.Int("size", len(batch)))
		return report, nil
	}

	t.setPhase(PhaseForward)
	cPasses := make([]*tower.Pass, len(samples))
	jPasses := make([]*tower.Pass, len(samples))
	cands := make([]tower.Embedding, len(samples))
	jobs := make([]tower.Embedding, len(samples))
	jobIDs := make([]string, len(samples))
	tgs := make([]targets, len(samples))
	for i, s := range samples {
		if cPasses[i], err = t.candidate.Forward(s.candidate.Features, s.candidate.Text); err != nil {
			return report, fmt.Errorf("candidate forward: %w", err)
		}
		if jPasses[i], err = t.job.Forward(s.job.Features, s.job.Text); err != nil {
			return report, fmt.Errorf("job forward: %w", err)
		}
		cands[i], jobs[i] = cPasses[i].Output, jPasses[i].Output
		jobIDs[i] = s.jobID
		tgs[i] = s.targets
	}

	t.setPhase(PhaseLoss)
	contrastive, dC, dJ := infoNCE(cands, jobs, jobIDs, t.negatives.items(), t.cfg.Temperature)
	aux := auxiliary(cands, jobs, tgs, t.cfg.Aux, dC, dJ)
	report.Contrastive, report.Auxiliary = contrastive, aux
	report.Loss = contrastive + aux

	if math.IsNaN(report.Loss) || math.IsInf(report.Loss, 0) {
		metrics.TrainingSteps.WithLabelValues("diverged").Inc()
		return report, &TrainingDivergedError{Epoch: t.epoch, Step: t.step, Loss: report.Loss}
	}

	t.setPhase(PhaseBackward)
	cg, jg := t.candidate.NewGradients(), t.job.NewGradients()
	for i := range samples {
		t.candidate.Backward(cPasses[i], dC[i], cg)
		t.job.Backward(jPasses[i], dJ[i], jg)
	}
	t.candidate.Apply(cg, t.cfg.Optimizer)
	t.job.Apply(jg, t.cfg.Optimizer)

	for i := range samples {
		t.negatives.push(negative{jobID: jobIDs[i], emb: jobs[i]})
	}

	metrics.TrainingLoss.Set(report.Loss)
	metrics.TrainingSteps.WithLabelValues("ok").Inc()
	t.logger.Debug("training step",
		zap.Int("epoch", t.epoch),
		zap.Int("step", t.step),
		zap.Int("pairs", report.Pairs),
		zap.Float64("loss", report.Loss),
	)
	return report, nil
}

func (t *Trainer) sample(ctx context.Context, batch []Example) ([]sample, error) {
	samples := make([]sample, 0, len(batch))
	for _, ex := range batch {
		s, err := t.prepare(ctx, ex)
		var invalid *profile.InvalidInputError
		switch {
		case errors.As(err, &invalid):
			metrics.InvalidInputs.WithLabelValues(invalid.Entity).Inc()
			t.logger.Warn("training pair dropped", zap.Error(err))
			continue
		case err != nil:
			return nil, fmt.Errorf("sampling: %w", err)
		}
		samples = append(samples, *s)
	}
	return samples, nil
}

func (t *Trainer) prepare(ctx context.Context, ex Example) (*sample, error) {
	if ex.Candidate == nil || ex.Job == nil {
		return nil, &profile.InvalidInputError{Entity: "pair", Reason: "candidate and job are required"}
	}
	c, err := t.encoder.PrepareCandidate(ctx, ex.Candidate)
	if err != nil {
		return nil, err
	}
	j, err := t.encoder.PrepareJob(ctx, ex.Job)
	if err != nil {
		return nil, err
	}
	s := &sample{jobID: ex.Job.ID, candidate: c, job: j}
	if t.cfg.Aux.enabled() {
		v, err := t.extractor.Extract(ctx, ex.Candidate, ex.Job)
		if err != nil {
			return nil, err
		}
		s.targets = targetsOf(v)
	}
	return s, nil
}

func targetsOf(v *features.Vector) targets {
	// language gaps range over ±LanguageNative; map to [0,1] with 0.5 meaning "exactly met"
	lang := 0.5 + v.Get(features.AvgLanguageGap)/(2*profile.LanguageNative)
	return targets{
		skillOverlap:    clamp01(v.Get(features.SkillOverlapRatio)),
		languageGap:     clamp01(lang),
		titleSimilarity: clamp01(v.Get(features.TitleSimilarityScore)),
	}
}

// Fit trains for the configured number of epochs, shuffling the examples
// with the seeded generator, and evaluates on validation after each epoch.
func (t *Trainer) Fit(ctx context.Context, train, validation []Example) (*Report, error) {
	report := &Report{}
	if len(train) == 0 {
		return report, errors.New("no training examples")
	}

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		t.epoch = epoch
		er := EpochReport{Epoch: epoch}
		order := t.rng.Perm(len(train))

		lossSum := 0.0
		for start := 0; start < len(order); start += t.cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			end := min(start+t.cfg.BatchSize, len(order))
			batch := make([]Example, 0, end-start)
			for _, idx := range order[start:end] {
				batch = append(batch, train[idx])
			}

			step, err := t.TrainStep(ctx, batch)
			if err != nil {
				return report, err
			}
			if step.Skipped {
				er.Skipped++
				continue
			}
			er.Steps++
			lossSum += step.Loss
		}
		if er.Steps > 0 {
			er.TrainLoss = lossSum / float64(er.Steps)
		}

		if len(validation) > 0 {
			vl, ndcg, err := t.Evaluate(ctx, validation)
			if err != nil {
				return report, fmt.Errorf("validation: %w", err)
			}
			er.ValidationLoss, er.NDCG = vl, ndcg
			metrics.ValidationNDCG.Set(ndcg)
		}

		report.Epochs = append(report.Epochs, er)
		t.logger.Info("epoch finished",
			zap.Int("epoch", epoch),
			zap.Int("steps", er.Steps),
			zap.Int("skipped", er.Skipped),
			zap.Float64("train_loss", er.TrainLoss),
			zap.Float64("validation_loss", er.ValidationLoss),
			zap.Float64("ndcg", er.NDCG),
		)
	}
	return report, nil
}

// Evaluate returns the in-batch contrastive loss over the examples and the
// mean NDCG@K of ranking every distinct job for every distinct candidate.
// Parameters are not changed.
func (t *Trainer) Evaluate(ctx context.Context, examples []Example) (float64, float64, error) {
	samples, err := t.sample(ctx, examples)
	if err != nil {
		return 0, 0, err
	}
	if len(samples) == 0 {
		return 0, 0, nil
	}

	cands := make([]tower.Embedding, len(samples))
	jobs := make([]tower.Embedding, len(samples))
	candIDs := make([]string, len(samples))
	jobIDs := make([]string, len(samples))
	for i, s := range samples {
		if cands[i], err = t.candidate.Encode(s.candidate.Features, s.candidate.Text); err != nil {
			return 0, 0, err
		}
		if jobs[i], err = t.job.Encode(s.job.Features, s.job.Text); err != nil {
			return 0, 0, err
		}
		candIDs[i], jobIDs[i] = s.candidate.ID, s.jobID
	}

	lossSum, batches := 0.0, 0
	for start := 0; start < len(samples); start += t.cfg.BatchSize {
		end := min(start+t.cfg.BatchSize, len(samples))
		l, _, _ := infoNCE(cands[start:end], jobs[start:end], jobIDs[start:end], nil, t.cfg.Temperature)
		lossSum += l
		batches++
	}

	// distinct entities in first-seen order
	candIdx, jobIdx := map[string]int{}, map[string]int{}
	var uc, uj []tower.Embedding
	positives := map[[2]int]bool{}
	for i := range samples {
		ci, ok := candIdx[candIDs[i]]
		if !ok {
			ci = len(uc)
			candIdx[candIDs[i]] = ci
			uc = append(uc, cands[i])
		}
		ji, ok := jobIdx[jobIDs[i]]
		if !ok {
			ji = len(uj)
			jobIdx[jobIDs[i]] = ji
			uj = append(uj, jobs[i])
		}
		positives[[2]int{ci, ji}] = true
	}

	rels := make([][]float64, len(uc))
	scores := make([][]float64, len(uc))
	for ci, c := range uc {
		rels[ci] = make([]float64, len(uj))
		scores[ci] = make([]float64, len(uj))
		for ji, j := range uj {
			scores[ci][ji] = c.Dot(j)
			if positives[[2]int{ci, ji}] {
				rels[ci][ji] = 1
			}
		}
	}
	return lossSum / float64(batches), MeanNDCGAtK(rels, scores, t.cfg.ValidationK), nil
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
