package scoring

import (
	"math"
	"math/rand"
	"testing"

	"github.com/spigell/jobmatch/internal/features"
	"github.com/spigell/jobmatch/internal/profile"
)

func vector(t *testing.T, values map[string]float64) *features.Vector {
	t.Helper()
	v, err := features.FromMap("c", "j", values)
	if err != nil {
		t.Fatalf("vector: %v", err)
	}
	return v
}

func newScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("new scorer: %v", err)
	}
	return s
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestEducation(t *testing.T) {
	t.Parallel()

	s := newScorer(t)
	tests := []struct {
		name   string
		values map[string]float64
		want   float64
	}{
		{
			name: "degree below requirement",
			values: map[string]float64{
				features.CandidateHighestDegreeLevel: 2,
				features.RequiredMinDegreeLevel:      3,
				features.DegreeLevelGap:              -1,
				features.HasRequiredDegreeLevel:      0,
				features.FieldMatchScore:             1,
			},
			want: 0,
		},
		{
			name:   "degree met, unrelated field",
			values: map[string]float64{features.HasRequiredDegreeLevel: 1, features.FieldMatchScore: 0.2},
			want:   0.7,
		},
		{
			name:   "field matches",
			values: map[string]float64{features.HasRequiredDegreeLevel: 1, features.FieldMatchScore: 0.5},
			want:   0.9,
		},
		{
			name:   "speciality matches",
			values: map[string]float64{features.HasRequiredDegreeLevel: 1, features.FieldMatchScore: 0.8},
			want:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := s.Score(vector(t, tt.values)).Education; !near(got, tt.want) {
				t.Fatalf("expected %.2f, got %.4f", tt.want, got)
			}
		})
	}
}

func TestExperience(t *testing.T) {
	t.Parallel()

	s := newScorer(t)
	tests := []struct {
		name   string
		values map[string]float64
		want   float64
	}{
		{
			name: "role requirement present",
			values: map[string]float64{
				features.TotalYearsExperience:            2.5,
				features.RequiredMinYears:                5,
				features.YearsExperienceInRequiredTitles: 3,
				features.RequiredMinYearsInRole:          3,
				features.HasRoleRequirement:              1,
				features.TitleSimilarityScore:            0.5,
			},
			want: 0.4*0.5 + 0.3*1 + 0.3*0.5,
		},
		{
			name: "no role requirement reweights",
			values: map[string]float64{
				features.TotalYearsExperience: 10,
				features.RequiredMinYears:     5,
				features.TitleSimilarityScore: 0.3,
			},
			want: (0.4*1 + 0.3*0.3) / 0.7,
		},
		{
			name: "no years required",
			values: map[string]float64{
				features.TitleSimilarityScore: 1,
			},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := s.Score(vector(t, tt.values)).Experience; !near(got, tt.want) {
				t.Fatalf("expected %.4f, got %.4f", tt.want, got)
			}
		})
	}
}

func TestLanguageAndSkills(t *testing.T) {
	t.Parallel()

	s := newScorer(t)

	sc := s.Score(vector(t, map[string]float64{
		features.AllMandatoryLanguagesOK:        1,
		features.MandatoryLanguageCoverageRatio: 1,
		features.PreferredLanguageCoverageRatio: 0.5,
		features.MandatorySkillCoverageRatio:    1,
		features.SkillOverlapRatio:              0.5,
		features.WeightedSkillMatchScore:        0.75,
	}))
	if !near(sc.Language, 0.85) {
		t.Fatalf("expected language 0.85, got %.4f", sc.Language)
	}
	if !near(sc.Skills, 0.6*0.5+0.4*0.75) {
		t.Fatalf("expected skills 0.6, got %.4f", sc.Skills)
	}

	sc = s.Score(vector(t, map[string]float64{
		features.AllMandatoryLanguagesOK:        0,
		features.MandatoryLanguageCoverageRatio: 0.5,
		features.MandatorySkillCoverageRatio:    0.5,
		features.SkillOverlapRatio:              1,
	}))
	if sc.Language != 0 || sc.Skills != 0 {
		t.Fatalf("expected zero language and skills, got %+v", sc)
	}

	cfg := DefaultConfig()
	cfg.MissingMandatorySkillScore = 0.1
	penalised, err := New(cfg)
	if err != nil {
		t.Fatalf("new scorer: %v", err)
	}
	if got := penalised.Score(vector(t, map[string]float64{features.MandatorySkillCoverageRatio: 0})).Skills; !near(got, 0.1) {
		t.Fatalf("expected configured penalty, got %.4f", got)
	}
}

func TestBoundedness(t *testing.T) {
	t.Parallel()

	s := newScorer(t)
	rng := rand.New(rand.NewSource(7))
	names := features.PairLayout().Names()

	for i := 0; i < 500; i++ {
		values := make(map[string]float64, len(names))
		for _, name := range names {
			// include out-of-range values to make sure clamping holds
			values[name] = rng.Float64()*4 - 1
		}
		for _, binary := range []string{features.HasRequiredDegreeLevel, features.AllMandatoryLanguagesOK, features.HasRoleRequirement} {
			values[binary] = float64(rng.Intn(2))
		}
		sc := s.Score(vector(t, values))
		for name, got := range map[string]float64{
			"education": sc.Education, "experience": sc.Experience,
			"language": sc.Language, "skills": sc.Skills, "base": sc.Base,
		} {
			if got < 0 || got > 1 || math.IsNaN(got) {
				t.Fatalf("%s score out of range: %v (values %v)", name, got, values)
			}
		}
	}
}

func TestWeightsFor(t *testing.T) {
	t.Parallel()

	s := newScorer(t)

	w, name := s.WeightsFor(&profile.JobPosting{ID: "j1", Title: "Research Scientist, NLP"})
	if name != "research" || w != ResearchProfile().Weights {
		t.Fatalf("expected research profile, got %q %+v", name, w)
	}

	w, name = s.WeightsFor(&profile.JobPosting{ID: "j2", Title: "Backend Engineer", Description: "Researching nothing"})
	if name != "" || w != DefaultWeights() {
		t.Fatalf("expected default weights, got %q %+v", name, w)
	}

	v := vector(t, map[string]float64{features.HasRequiredDegreeLevel: 1, features.FieldMatchScore: 1})
	sc := s.ScoreFor(v, &profile.JobPosting{ID: "j1", Title: "PhD researcher"})
	if sc.Profile != "research" || !near(sc.Base, 0.35*1+0.25*sc.Experience+0.15*sc.Language+0.25*sc.Skills) {
		t.Fatalf("unexpected research scores: %+v", sc)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Weights = Weights{}
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected error for zero weights")
	}

	cfg = DefaultConfig()
	cfg.SpecialityMatchThreshold = 0.3
	if _, err := New(cfg); err == nil {
		t.Fatalf("expected error for inverted thresholds")
	}
}
