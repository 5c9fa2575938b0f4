// Package scoring computes the interpretable sub-scores of a pair from its
// feature vector.
package scoring

import (
	"fmt"
	"strings"

	"github.com/spigell/jobmatch/internal/features"
	"github.com/spigell/jobmatch/internal/profile"
	"github.com/spigell/jobmatch/internal/textnorm"
)

// Weights combine the sub-scores into the baseline score.
type Weights struct {
	Education  float64 `mapstructure:"education" json:"education" validate:"gte=0"`
	Experience float64 `mapstructure:"experience" json:"experience" validate:"gte=0"`
	Language   float64 `mapstructure:"language" json:"language" validate:"gte=0"`
	Skills     float64 `mapstructure:"skills" json:"skills" validate:"gte=0"`
}

func (w Weights) sum() float64 {
	return w.Education + w.Experience + w.Language + w.Skills
}

// DefaultWeights favour experience.
func DefaultWeights() Weights {
	return Weights{Education: 0.20, Experience: 0.40, Language: 0.20, Skills: 0.20}
}

// Profile overrides the weights for jobs whose text mentions any of its keywords.
type Profile struct {
	Name     string   `mapstructure:"name" validate:"required"`
	Keywords []string `mapstructure:"keywords" validate:"min=1"`
	Weights  Weights  `mapstructure:"weights"`
}

type Config struct {
	Weights Weights `mapstructure:"weights"`
	// FieldMatchThreshold is the field_match_score from which the field counts as matching.
	FieldMatchThreshold float64 `mapstructure:"field-match-threshold" validate:"gte=0,lte=1"`
	// SpecialityMatchThreshold is the stricter field_match_score for the speciality bonus.
	SpecialityMatchThreshold float64 `mapstructure:"speciality-match-threshold" validate:"gte=0,lte=1"`
	// MissingMandatorySkillScore is S_skill when a mandatory skill is missing.
	MissingMandatorySkillScore float64   `mapstructure:"missing-mandatory-skill-score" validate:"gte=0,lte=1"`
	Profiles                   []Profile `mapstructure:"profiles" validate:"dive"`
}

// ResearchProfile shifts weight from experience to education for research roles.
func ResearchProfile() Profile {
	return Profile{
		Name:     "research",
		Keywords: []string{"research", "researcher", "scientist", "r&d", "phd", "postdoc"},
		Weights:  Weights{Education: 0.35, Experience: 0.25, Language: 0.15, Skills: 0.25},
	}
}

func DefaultConfig() Config {
	return Config{
		Weights:                  DefaultWeights(),
		FieldMatchThreshold:      0.5,
		SpecialityMatchThreshold: 0.8,
		Profiles:                 []Profile{ResearchProfile()},
	}
}

// Scores holds the sub-scores of a pair, each in [0,1].
type Scores struct {
	Education  float64 `json:"education"`
	Experience float64 `json:"experience"`
	Language   float64 `json:"language"`
	Skills     float64 `json:"skills"`
	Base       float64 `json:"base"`
	// Profile names the weight profile used for Base; empty for the defaults.
	Profile string `json:"profile,omitempty"`
}

// Scorer is stateless apart from its configuration.
type Scorer struct {
	cfg Config
}

func New(cfg Config) (*Scorer, error) {
	if cfg.Weights.sum() <= 0 {
		return nil, fmt.Errorf("scoring weights must not all be zero")
	}
	if cfg.SpecialityMatchThreshold < cfg.FieldMatchThreshold {
		return nil, fmt.Errorf("speciality threshold %.2f is below field threshold %.2f",
			cfg.SpecialityMatchThreshold, cfg.FieldMatchThreshold)
	}
	for _, p := range cfg.Profiles {
		if p.Weights.sum() <= 0 {
			return nil, fmt.Errorf("profile %q: weights must not all be zero", p.Name)
		}
	}
	return &Scorer{cfg: cfg}, nil
}

// Score computes the sub-scores with the default weights.
func (s *Scorer) Score(v *features.Vector) Scores {
	return s.ScoreWith(v, s.cfg.Weights)
}

// ScoreFor computes the sub-scores with the weights of the job's profile.
func (s *Scorer) ScoreFor(v *features.Vector, j *profile.JobPosting) Scores {
	w, name := s.WeightsFor(j)
	scores := s.ScoreWith(v, w)
	scores.Profile = name
	return scores
}

func (s *Scorer) ScoreWith(v *features.Vector, w Weights) Scores {
	sc := Scores{
		Education:  s.education(v),
		Experience: experience(v),
		Language:   language(v),
		Skills:     s.skills(v),
	}
	total := w.sum()
	if total <= 0 {
		w, total = s.cfg.Weights, s.cfg.Weights.sum()
	}
	base := w.Education*sc.Education + w.Experience*sc.Experience + w.Language*sc.Language + w.Skills*sc.Skills
	sc.Base = clamp01(base / total)
	return sc
}

// WeightsFor picks the first profile whose keyword appears in the job title or
// description. It returns the default weights and an empty name otherwise.
func (s *Scorer) WeightsFor(j *profile.JobPosting) (Weights, string) {
	if j == nil {
		return s.cfg.Weights, ""
	}
	text := " " + textnorm.Normalize(j.Title+" "+j.Description) + " "
	for _, p := range s.cfg.Profiles {
		for _, kw := range p.Keywords {
			kw = textnorm.Normalize(kw)
			if kw != "" && strings.Contains(text, " "+kw+" ") {
				return p.Weights, p.Name
			}
		}
	}
	return s.cfg.Weights, ""
}

func (s *Scorer) education(v *features.Vector) float64 {
	if v.Get(features.HasRequiredDegreeLevel) == 0 {
		return 0
	}
	field := v.Get(features.FieldMatchScore)
	score := 0.7
	if field >= s.cfg.FieldMatchThreshold {
		score += 0.2
	}
	if field >= s.cfg.SpecialityMatchThreshold {
		score += 0.1
	}
	return clamp01(score)
}

func experience(v *features.Vector) float64 {
	total := 1.0
	if req := v.Get(features.RequiredMinYears); req > 0 {
		total = clamp01(v.Get(features.TotalYearsExperience) / req)
	}
	title := clamp01(v.Get(features.TitleSimilarityScore))

	if v.Get(features.HasRoleRequirement) == 0 {
		return clamp01((0.4*total + 0.3*title) / 0.7)
	}
	role := 1.0
	if req := v.Get(features.RequiredMinYearsInRole); req > 0 {
		role = clamp01(v.Get(features.YearsExperienceInRequiredTitles) / req)
	}
	return clamp01(0.4*total + 0.3*role + 0.3*title)
}

func language(v *features.Vector) float64 {
	if v.Get(features.AllMandatoryLanguagesOK) == 0 {
		return 0
	}
	return clamp01(0.7*v.Get(features.MandatoryLanguageCoverageRatio) + 0.3*v.Get(features.PreferredLanguageCoverageRatio))
}

func (s *Scorer) skills(v *features.Vector) float64 {
	if v.Get(features.MandatorySkillCoverageRatio) < 1 {
		return clamp01(s.cfg.MissingMandatorySkillScore)
	}
	return clamp01(0.6*v.Get(features.SkillOverlapRatio) + 0.4*v.Get(features.WeightedSkillMatchScore))
}

func clamp01(x float64) float64 {
	switch {
	case x != x:
		return 0
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
