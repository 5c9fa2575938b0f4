package training

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/jobmatch/internal/criteria"
	"github.com/spigell/jobmatch/internal/features"
	"github.com/spigell/jobmatch/internal/geo"
	"github.com/spigell/jobmatch/internal/lookup"
	"github.com/spigell/jobmatch/internal/profile"
	"github.com/spigell/jobmatch/internal/taxonomy"
	"github.com/spigell/jobmatch/internal/tower"
)

func newExtractor(t *testing.T, embedder lookup.Embedder) *features.Extractor {
	t.Helper()
	cfg := features.DefaultConfig()
	cfg.Now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	ex, err := features.New(lookup.Lookups{
		Embedder:  embedder,
		Distancer: geo.NewGazetteer(nil),
		Taxonomy:  taxonomy.Default(),
	}, criteria.NewRegistry(), cfg, nil)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	return ex
}

func newTrainer(t *testing.T, cfg Config, embedder lookup.Embedder, logger *zap.Logger) (*Trainer, *tower.MLP, *tower.MLP) {
	t.Helper()
	candidate, job, err := tower.NewPair(tower.Config{TextDim: 16, Hidden: []int{16}, OutputDim: 8, Seed: 11})
	if err != nil {
		t.Fatalf("towers: %v", err)
	}
	tr, err := New(candidate, job, newExtractor(t, embedder), cfg, logger)
	if err != nil {
		t.Fatalf("trainer: %v", err)
	}
	return tr, candidate, job
}

func toyExamples() []Example {
	skills := []string{"Go", "Python", "Kubernetes", "SQL"}
	titles := []string{"Backend Developer", "Data Scientist", "DevOps Engineer", "Data Analyst"}
	out := make([]Example, len(skills))
	for i := range skills {
		start := time.Date(2018+i, 1, 1, 0, 0, 0, 0, time.UTC)
		out[i] = Example{
			Candidate: &profile.Candidate{
				ID:         "c" + skills[i],
				Skills:     []profile.Skill{{Name: skills[i]}},
				Experience: []profile.WorkExperience{{Position: titles[i], Start: start, IsPresent: true}},
				Languages:  []profile.LanguageSkill{{Language: "English", Level: "B2"}},
			},
			Job: &profile.JobPosting{
				ID:        "j" + skills[i],
				Title:     titles[i],
				Presence:  profile.PresenceOnline,
				Skills:    []profile.SkillRequirement{{Name: skills[i], Mandatory: true, Importance: 1}},
				Languages: []profile.LanguageRequirement{{Language: "English", MinLevel: "B1", Mandatory: true}},
			},
		}
	}
	return out
}

func TestInfoNCEGradients(t *testing.T) {
	t.Parallel()

	cands := []tower.Embedding{{0.6, 0.8, 0}, {0, 0.6, 0.8}, {0.8, 0, 0.6}}
	jobs := []tower.Embedding{{1, 0, 0}, {0, 1, 0}, {0.6, 0, 0.8}}
	// the third pair repeats the first job, which must not be a negative for it
	ids := []string{"j1", "j2", "j1"}
	negs := []negative{{jobID: "j9", emb: tower.Embedding{0, 0, 1}}, {jobID: "j2", emb: tower.Embedding{0.6, 0.8, 0}}}
	const tau = 0.5

	_, dC, dJ := infoNCE(cands, jobs, ids, negs, tau)

	const h = 1e-6
	check := func(name string, vecs []tower.Embedding, grads [][]float64) {
		for i := range vecs {
			for d := range vecs[i] {
				orig := vecs[i][d]
				vecs[i][d] = orig + h
				plus, _, _ := infoNCE(cands, jobs, ids, negs, tau)
				vecs[i][d] = orig - h
				minus, _, _ := infoNCE(cands, jobs, ids, negs, tau)
				vecs[i][d] = orig

				numeric := (plus - minus) / (2 * h)
				if math.Abs(numeric-grads[i][d]) > 1e-6 {
					t.Fatalf("%s[%d][%d]: analytic %v, numeric %v", name, i, d, grads[i][d], numeric)
				}
			}
		}
	}
	check("candidate", cands, dC)
	check("job", jobs, dJ)
}

func TestInfoNCEUniform(t *testing.T) {
	t.Parallel()

	same := tower.Embedding{1, 0}
	cands := []tower.Embedding{same, same, same, same}
	jobs := []tower.Embedding{same, same, same, same}
	loss, _, _ := infoNCE(cands, jobs, []string{"a", "b", "c", "d"}, nil, 0.07)
	if math.Abs(loss-math.Log(4)) > 1e-9 {
		t.Fatalf("expected log(4), got %v", loss)
	}
}

func TestNDCG(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		rels   []float64
		scores []float64
		k      int
		want   float64
	}{
		{name: "perfect", rels: []float64{1, 0, 0}, scores: []float64{0.9, 0.2, 0.1}, k: 5, want: 1},
		{name: "second place", rels: []float64{0, 1}, scores: []float64{0.9, 0.1}, k: 5, want: 1 / math.Log2(3)},
		{name: "outside cutoff", rels: []float64{0, 0, 1}, scores: []float64{0.9, 0.5, 0.1}, k: 2, want: 0},
		{name: "nothing relevant", rels: []float64{0, 0}, scores: []float64{0.5, 0.4}, k: 5, want: 0},
		{name: "graded", rels: []float64{1, 2}, scores: []float64{0.9, 0.1}, k: 2, want: (1 + 3/math.Log2(3)) / (3 + 1/math.Log2(3))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NDCGAtK(tt.rels, tt.scores, tt.k); math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}

	mean := MeanNDCGAtK([][]float64{{1, 0}, {0, 1}}, [][]float64{{0.9, 0.1}, {0.9, 0.1}}, 5)
	if math.Abs(mean-(1+1/math.Log2(3))/2) > 1e-9 {
		t.Fatalf("unexpected mean ndcg %v", mean)
	}
}

func TestRing(t *testing.T) {
	t.Parallel()

	r := newRing(2)
	r.push(negative{jobID: "a"})
	if items := r.items(); len(items) != 1 || items[0].jobID != "a" {
		t.Fatalf("unexpected items %v", items)
	}
	r.push(negative{jobID: "b"})
	r.push(negative{jobID: "c"})
	items := r.items()
	if len(items) != 2 || items[0].jobID != "b" || items[1].jobID != "c" {
		t.Fatalf("expected oldest first [b c], got %v", items)
	}

	empty := newRing(0)
	empty.push(negative{jobID: "a"})
	if len(empty.items()) != 0 {
		t.Fatalf("disabled ring must stay empty")
	}
}

func TestFitReducesLoss(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Epochs = 40
	cfg.BatchSize = 4
	cfg.Optimizer.LearningRate = 0.01
	cfg.Aux = AuxWeights{SkillOverlap: 0.1}
	tr, candidate, _ := newTrainer(t, cfg, lookup.NewHashEmbedder(16), nil)

	examples := toyExamples()
	report, err := tr.Fit(context.Background(), examples, examples)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if len(report.Epochs) != cfg.Epochs {
		t.Fatalf("expected %d epochs, got %d", cfg.Epochs, len(report.Epochs))
	}
	first, last := report.Epochs[0], report.Epochs[len(report.Epochs)-1]
	if !(last.TrainLoss < first.TrainLoss) {
		t.Fatalf("expected loss to decrease: first %.4f last %.4f", first.TrainLoss, last.TrainLoss)
	}
	if last.NDCG < first.NDCG || last.NDCG <= 0 {
		t.Fatalf("expected validation ndcg to improve: first %.3f last %.3f", first.NDCG, last.NDCG)
	}
	if candidate.Version() != uint64(cfg.Epochs) {
		t.Fatalf("expected one update per epoch, got version %d", candidate.Version())
	}
	if tr.Phase() != PhaseIdle {
		t.Fatalf("expected idle phase after fit, got %s", tr.Phase())
	}
}

func TestTrainStepSkipsEmptyBatch(t *testing.T) {
	t.Parallel()

	core, observed := observer.New(zapcore.WarnLevel)
	tr, candidate, job := newTrainer(t, DefaultConfig(), lookup.NewHashEmbedder(16), zap.New(core))

	batch := []Example{
		{Candidate: &profile.Candidate{}, Job: &profile.JobPosting{ID: "j1"}},
		{Candidate: &profile.Candidate{ID: "c1"}, Job: &profile.JobPosting{}},
		{Candidate: nil, Job: nil},
	}
	report, err := tr.TrainStep(context.Background(), batch)
	if err != nil {
		t.Fatalf("expected skip, got error %v", err)
	}
	if !report.Skipped || report.Dropped != 3 {
		t.Fatalf("unexpected report %+v", report)
	}
	if candidate.Version() != 0 || job.Version() != 0 {
		t.Fatalf("parameters must not change on a skipped batch")
	}
	if n := observed.FilterMessage("batch skipped: no valid pairs").Len(); n != 1 {
		t.Fatalf("expected one skip warning, got %d", n)
	}
}

func TestTrainStepDiverges(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Aux = AuxWeights{SkillOverlap: math.Inf(1)}
	tr, candidate, job := newTrainer(t, cfg, lookup.NewHashEmbedder(16), nil)

	_, err := tr.TrainStep(context.Background(), toyExamples())
	var diverged *TrainingDivergedError
	if !errors.As(err, &diverged) {
		t.Fatalf("expected TrainingDivergedError, got %v", err)
	}
	if diverged.Step != 1 {
		t.Fatalf("unexpected step %d", diverged.Step)
	}
	if candidate.Version() != 0 || job.Version() != 0 {
		t.Fatalf("parameters must not change on divergence")
	}

	// Fit surfaces the same error
	if _, err := tr.Fit(context.Background(), toyExamples(), nil); !errors.As(err, &diverged) {
		t.Fatalf("expected Fit to abort with TrainingDivergedError, got %v", err)
	}
}

type brokenEmbedder struct{}

func (brokenEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("connection refused")
}

func TestTrainStepPropagatesUpstreamErrors(t *testing.T) {
	t.Parallel()

	tr, _, _ := newTrainer(t, DefaultConfig(), brokenEmbedder{}, nil)
	_, err := tr.TrainStep(context.Background(), toyExamples())
	var upstream *lookup.UpstreamServiceError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamServiceError, got %v", err)
	}
}
