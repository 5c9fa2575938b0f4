package features

import (
	"math"

	"github.com/spigell/jobmatch/internal/profile"
)

const (
	CandidateLayoutVersion = "candidate-v1"
	JobLayoutVersion       = "job-v1"
)

var candidateLayout = newLayout(CandidateLayoutVersion, []Feature{
	{"degree_level", GroupEducation},
	{"log_total_years", GroupExperience},
	{"log_num_roles", GroupExperience},
	{"log_years_recent_role", GroupExperience},
	{"has_current_role", GroupExperience},
	{"log_num_languages", GroupLanguage},
	{"mean_language_level", GroupLanguage},
	{"max_language_level", GroupLanguage},
	{"log_num_skills", GroupSkills},
	{"mean_skill_weight", GroupSkills},
	{"ready_to_relocate", GroupLocation},
})

var jobLayout = newLayout(JobLayoutVersion, []Feature{
	{"required_degree_level", GroupEducation},
	{"log_required_years", GroupExperience},
	{"has_role_requirement", GroupExperience},
	{"log_required_years_in_role", GroupExperience},
	{"log_num_mandatory_languages", GroupLanguage},
	{"log_num_preferred_languages", GroupLanguage},
	{"mean_required_language_level", GroupLanguage},
	{"log_num_skills", GroupSkills},
	{"mandatory_skill_share", GroupSkills},
	{"mean_skill_importance", GroupSkills},
	{"presence_onsite", GroupLocation},
	{"presence_online", GroupLocation},
	{"presence_hybrid", GroupLocation},
	{"log_num_criteria", GroupMandatory},
})

// CandidateLayout returns the layout of candidate tower inputs.
func CandidateLayout() *Layout { return candidateLayout }

// JobLayout returns the layout of job tower inputs.
func JobLayout() *Layout { return jobLayout }

// Input is what a tower consumes for one entity: entity-only numeric features
// plus the free text to embed.
type Input struct {
	ID       string
	Features []float64
	Text     string
}

// CandidateInput builds the candidate tower input. It only looks at the candidate.
func (e *Extractor) CandidateInput(c *profile.Candidate) (*Input, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	now := e.cfg.Now()
	v := newVector(candidateLayout, c.ID, "")

	v.set("degree_level", float64(c.HighestDegree())/profile.DegreeDoctorate)
	v.set("log_total_years", math.Log1p(e.totalYears(c.Experience, now)))
	v.set("log_num_roles", math.Log1p(float64(len(c.Experience))))
	if recent, ok := c.MostRecentExperience(now); ok {
		v.set("log_years_recent_role", math.Log1p(recent.Years(now)))
		v.setBool("has_current_role", recent.IsPresent)
	}

	levelSum, levelMax := 0, 0
	for _, l := range c.Languages {
		lvl := profile.LanguageLevel(l.Level)
		levelSum += lvl
		levelMax = max(levelMax, lvl)
	}
	v.set("log_num_languages", math.Log1p(float64(len(c.Languages))))
	if len(c.Languages) > 0 {
		v.set("mean_language_level", float64(levelSum)/float64(len(c.Languages))/profile.LanguageNative)
	}
	v.set("max_language_level", float64(levelMax)/profile.LanguageNative)

	weightSum, weighted := 0.0, 0
	for _, s := range c.Skills {
		if s.Weight != nil {
			weightSum += *s.Weight
			weighted++
		}
	}
	v.set("log_num_skills", math.Log1p(float64(len(c.Skills))))
	if weighted > 0 {
		v.set("mean_skill_weight", weightSum/float64(weighted))
	}
	v.setBool("ready_to_relocate", c.ReadyToRelocate)

	return &Input{ID: c.ID, Features: v.values, Text: c.Text()}, nil
}

// JobInput builds the job tower input. It only looks at the job.
func (e *Extractor) JobInput(j *profile.JobPosting) (*Input, error) {
	if err := j.Validate(); err != nil {
		return nil, err
	}
	v := newVector(jobLayout, "", j.ID)

	if j.Education != nil {
		v.set("required_degree_level", float64(profile.DegreeLevel(j.Education.MinLevel))/profile.DegreeDoctorate)
	}
	v.set("log_required_years", math.Log1p(j.MinYears()))
	if years, ok := j.MinYearsInRole(); ok {
		v.set("has_role_requirement", 1)
		v.set("log_required_years_in_role", math.Log1p(years))
	}

	mandatory, preferred, levelSum := 0, 0, 0
	for _, l := range j.Languages {
		levelSum += profile.LanguageLevel(l.MinLevel)
		if l.Mandatory {
			mandatory++
		} else {
			preferred++
		}
	}
	v.set("log_num_mandatory_languages", math.Log1p(float64(mandatory)))
	v.set("log_num_preferred_languages", math.Log1p(float64(preferred)))
	if len(j.Languages) > 0 {
		v.set("mean_required_language_level", float64(levelSum)/float64(len(j.Languages))/profile.LanguageNative)
	}

	mandatorySkills, importance := 0, 0.0
	for _, s := range j.Skills {
		if s.Mandatory {
			mandatorySkills++
		}
		importance += s.Importance
	}
	v.set("log_num_skills", math.Log1p(float64(len(j.Skills))))
	if len(j.Skills) > 0 {
		v.set("mandatory_skill_share", float64(mandatorySkills)/float64(len(j.Skills)))
		v.set("mean_skill_importance", importance/float64(len(j.Skills)))
	}

	switch j.Mode() {
	case profile.PresenceOnline:
		v.set("presence_online", 1)
	case profile.PresenceHybrid:
		v.set("presence_hybrid", 1)
	default:
		v.set("presence_onsite", 1)
	}
	v.set("log_num_criteria", math.Log1p(float64(len(j.Criteria))))

	return &Input{ID: j.ID, Features: v.values, Text: j.Text()}, nil
}
