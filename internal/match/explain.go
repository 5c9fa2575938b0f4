package match

import (
	"fmt"

	"github.com/spigell/jobmatch/internal/criteria"
	"github.com/spigell/jobmatch/internal/features"
	"github.com/spigell/jobmatch/internal/profile"
)

// Title similarity buckets.
const (
	BucketLow    = "low"
	BucketMedium = "medium"
	BucketHigh   = "high"
)

// nearbyKm is the distance under which an onsite match counts as the same region.
const nearbyKm = 50

// Explanation is the structured rationale of a match.
type Explanation struct {
	CandidateID string  `json:"candidate_id"`
	JobID       string  `json:"job_id"`
	Similarity  float64 `json:"similarity"`
	Overall     float64 `json:"overall"`

	Education  EducationSection  `json:"education"`
	Experience ExperienceSection `json:"experience"`
	Languages  LanguageSection   `json:"languages"`
	Skills     SkillSection      `json:"skills"`
	Location   LocationSection   `json:"location"`
	Criteria   CriteriaSection   `json:"criteria"`

	// FailedGates and Reasons come from the hard filter verdict.
	FailedGates []string `json:"failed_gates,omitempty"`
	Reasons     []string `json:"reasons,omitempty"`

	Strengths  []string `json:"strengths,omitempty"`
	Weaknesses []string `json:"weaknesses,omitempty"`
}

type EducationSection struct {
	Score          float64 `json:"score"`
	Degree         int     `json:"degree"`
	RequiredDegree int     `json:"required_degree"`
	Meets          bool    `json:"meets"`
	FieldMatch     float64 `json:"field_match"`
	Reason         string  `json:"reason"`
}

type ExperienceSection struct {
	Score               float64 `json:"score"`
	TotalYears          float64 `json:"total_years"`
	RequiredYears       float64 `json:"required_years"`
	YearsInRole         float64 `json:"years_in_role"`
	RequiredYearsInRole float64 `json:"required_years_in_role,omitempty"`
	HasRoleRequirement  bool    `json:"has_role_requirement"`
	TitleSimilarity     float64 `json:"title_similarity"`
	TitleBucket         string  `json:"title_bucket"`
	RecentRole          string  `json:"recent_role,omitempty"`
	RecentRoleMatch     bool    `json:"recent_role_match"`
	Summary             string  `json:"summary"`
	Reason              string  `json:"reason"`
}

type LanguageCheck struct {
	Language  string `json:"language"`
	Required  int    `json:"required"`
	Declared  int    `json:"declared"`
	Mandatory bool   `json:"mandatory"`
	Passed    bool   `json:"passed"`
}

type LanguageSection struct {
	Score         float64         `json:"score"`
	AllMandatory  bool            `json:"all_mandatory"`
	Checks        []LanguageCheck `json:"checks,omitempty"`
	MandatoryRate float64         `json:"mandatory_coverage"`
	PreferredRate float64         `json:"preferred_coverage"`
	Reason        string          `json:"reason"`
}

type SkillSection struct {
	Score            float64  `json:"score"`
	Matched          []string `json:"matched,omitempty"`
	Missing          []string `json:"missing,omitempty"`
	MissingMandatory []string `json:"missing_mandatory,omitempty"`
	Required         int      `json:"required"`
	OverlapRatio     float64  `json:"overlap_ratio"`
	WeightedMatch    float64  `json:"weighted_match"`
	Reason           string   `json:"reason"`
}

type LocationSection struct {
	Presence   profile.PresenceType `json:"presence"`
	Candidate  string               `json:"candidate,omitempty"`
	Job        string               `json:"job,omitempty"`
	Match      bool                 `json:"match"`
	DistanceKm *float64             `json:"distance_km,omitempty"`
	Reason     string               `json:"reason"`
}

type CriteriaSection struct {
	Passed  int               `json:"passed"`
	Total   int               `json:"total"`
	Results []criteria.Result `json:"results,omitempty"`
	Reason  string            `json:"reason"`
}

// TitleBucket buckets a title similarity: below 0.4 is low, below 0.7 medium.
func TitleBucket(sim float64) string {
	switch {
	case sim < 0.4:
		return BucketLow
	case sim < 0.7:
		return BucketMedium
	}
	return BucketHigh
}

// Explain builds the explanation of a result from its feature vector. It is
// a pure function of its inputs.
func Explain(r Result, v *features.Vector) Explanation {
	e := Explanation{
		CandidateID: r.CandidateID,
		JobID:       r.JobID,
		Similarity:  r.Similarity,
		Overall:     r.Scores.Base,
		FailedGates: append([]string(nil), r.Verdict.FailedGates...),
		Reasons:     append([]string(nil), r.Verdict.Reasons...),
	}
	e.Education = explainEducation(r, v)
	e.Experience = explainExperience(r, v)
	e.Languages = explainLanguages(r, v)
	e.Skills = explainSkills(r, v)
	e.Location = explainLocation(v)
	e.Criteria = explainCriteria(v)
	e.Strengths, e.Weaknesses = assess(e, v)
	return e
}

func explainEducation(r Result, v *features.Vector) EducationSection {
	s := EducationSection{
		Score:          r.Scores.Education,
		Degree:         int(v.Get(features.CandidateHighestDegreeLevel)),
		RequiredDegree: int(v.Get(features.RequiredMinDegreeLevel)),
		Meets:          v.Get(features.HasRequiredDegreeLevel) == 1,
		FieldMatch:     v.Get(features.FieldMatchScore),
	}
	switch {
	case !s.Meets:
		s.Reason = "does not meet the minimum education level"
	case s.Score < 0.9:
		s.Reason = "education level met, field of study differs"
	default:
		s.Reason = "strong education match"
	}
	return s
}

func explainExperience(r Result, v *features.Vector) ExperienceSection {
	s := ExperienceSection{
		Score:              r.Scores.Experience,
		TotalYears:         v.Get(features.TotalYearsExperience),
		RequiredYears:      v.Get(features.RequiredMinYears),
		YearsInRole:        v.Get(features.YearsExperienceInRequiredTitles),
		HasRoleRequirement: v.Get(features.HasRoleRequirement) == 1,
		TitleSimilarity:    v.Get(features.TitleSimilarityScore),
		RecentRole:         v.Details.RecentRole,
		RecentRoleMatch:    v.Get(features.RecentRoleMatch) == 1,
	}
	if s.HasRoleRequirement {
		s.RequiredYearsInRole = v.Get(features.RequiredMinYearsInRole)
	}
	s.TitleBucket = TitleBucket(s.TitleSimilarity)

	s.Summary = fmt.Sprintf("%.1f of %.1f required years, title similarity %s", s.TotalYears, s.RequiredYears, s.TitleBucket)
	if s.HasRoleRequirement {
		s.Summary += fmt.Sprintf(", %.1f of %.1f years in the required role", s.YearsInRole, s.RequiredYearsInRole)
	}

	switch {
	case s.Score < 0.3:
		s.Reason = "limited relevant experience"
	case s.Score < 0.7:
		s.Reason = "moderate experience match"
	default:
		s.Reason = "strong experience alignment"
	}
	return s
}

func explainLanguages(r Result, v *features.Vector) LanguageSection {
	s := LanguageSection{
		Score:         r.Scores.Language,
		AllMandatory:  v.Get(features.AllMandatoryLanguagesOK) == 1,
		MandatoryRate: v.Get(features.MandatoryLanguageCoverageRatio),
		PreferredRate: v.Get(features.PreferredLanguageCoverageRatio),
	}
	for _, g := range v.Details.Languages {
		s.Checks = append(s.Checks, LanguageCheck{
			Language:  g.Language,
			Required:  g.Required,
			Declared:  g.Declared,
			Mandatory: g.Mandatory,
			Passed:    g.OK(),
		})
	}
	switch {
	case !s.AllMandatory:
		s.Reason = "mandatory languages not satisfied"
	case s.PreferredRate < 1:
		s.Reason = "mandatory languages satisfied, some preferred languages missing"
	default:
		s.Reason = "language requirements satisfied"
	}
	return s
}

func explainSkills(r Result, v *features.Vector) SkillSection {
	s := SkillSection{
		Score:            r.Scores.Skills,
		Matched:          append([]string(nil), v.Details.MatchedSkills...),
		Missing:          append([]string(nil), v.Details.MissingSkills...),
		MissingMandatory: append([]string(nil), v.Details.MissingMandatorySkills...),
		Required:         int(v.Get(features.NumRequiredSkill)),
		OverlapRatio:     v.Get(features.SkillOverlapRatio),
		WeightedMatch:    v.Get(features.WeightedSkillMatchScore),
	}
	switch {
	case len(s.MissingMandatory) > 0:
		s.Reason = fmt.Sprintf("missing %d mandatory skills", len(s.MissingMandatory))
	case s.Required == 0:
		s.Reason = "no skills required"
	default:
		s.Reason = fmt.Sprintf("%d of %d required skills matched", len(s.Matched), s.Required)
	}
	return s
}

func explainLocation(v *features.Vector) LocationSection {
	s := LocationSection{
		Presence:  v.Details.Presence,
		Candidate: v.Details.CandidateLocation.String(),
		Job:       v.Details.JobLocation.String(),
		Match:     v.Get(features.LocationIsMatch) == 1,
	}
	known := v.Get(features.DistanceKnown) == 1
	if known {
		km := v.Get(features.GeodesicDistanceKm)
		s.DistanceKm = &km
	}
	switch {
	case v.Get(features.LocationRelevant) == 0:
		s.Reason = "online position, location not relevant"
	case v.Details.CandidateLocation.SameAs(v.Details.JobLocation) || (known && *s.DistanceKm < nearbyKm):
		s.Reason = "same city or region"
	case s.Match:
		s.Reason = "candidate is ready to relocate"
	default:
		s.Reason = "different location and not ready to relocate"
	}
	return s
}

func explainCriteria(v *features.Vector) CriteriaSection {
	s := CriteriaSection{
		Passed:  int(v.Get(features.NumMandatoryCriteriaPassed)),
		Total:   int(v.Get(features.NumMandatoryCriteria)),
		Results: append([]criteria.Result(nil), v.Details.Criteria...),
	}
	switch {
	case s.Total == 0:
		s.Reason = "no mandatory criteria"
	case s.Passed == s.Total:
		s.Reason = "all mandatory criteria satisfied"
	default:
		s.Reason = fmt.Sprintf("%d of %d mandatory criteria passed", s.Passed, s.Total)
	}
	return s
}

func assess(e Explanation, v *features.Vector) (strengths, weaknesses []string) {
	if e.Education.Score > 0.8 {
		strengths = append(strengths, "excellent education match")
	}
	if e.Experience.Score > 0.8 {
		strengths = append(strengths, "strong relevant experience")
	}
	if e.Skills.Score > 0.7 {
		strengths = append(strengths, "high skills overlap")
	}
	if e.Experience.TitleBucket == BucketHigh {
		strengths = append(strengths, "very similar role experience")
	}
	if e.Experience.RecentRoleMatch {
		strengths = append(strengths, "current role aligns with the job")
	}

	if e.Education.Score < 0.5 {
		weaknesses = append(weaknesses, "education level or field mismatch")
	}
	if e.Experience.Score < 0.5 {
		weaknesses = append(weaknesses, "limited relevant experience")
	}
	if e.Languages.Score < 0.5 {
		weaknesses = append(weaknesses, "language requirements not fully met")
	}
	if e.Skills.Score < 0.5 {
		weaknesses = append(weaknesses, "skills gap")
	}
	if v.Get(features.LocationRelevant) == 1 && !e.Location.Match {
		weaknesses = append(weaknesses, "location constraint")
	}
	return strengths, weaknesses
}
