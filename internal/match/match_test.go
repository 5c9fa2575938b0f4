package match

import (
	"reflect"
	"strings"
	"testing"

	"github.com/spigell/jobmatch/internal/criteria"
	"github.com/spigell/jobmatch/internal/features"
	"github.com/spigell/jobmatch/internal/filtering"
	"github.com/spigell/jobmatch/internal/profile"
	"github.com/spigell/jobmatch/internal/scoring"
)

func TestTitleBucket(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sim  float64
		want string
	}{
		{0, BucketLow},
		{0.39, BucketLow},
		{0.4, BucketMedium},
		{0.69, BucketMedium},
		{0.7, BucketHigh},
		{1, BucketHigh},
	}
	for _, tt := range tests {
		if got := TitleBucket(tt.sim); got != tt.want {
			t.Fatalf("TitleBucket(%v) = %s, want %s", tt.sim, got, tt.want)
		}
	}
}

func rejectedPair(t *testing.T) (Result, *features.Vector) {
	t.Helper()
	v, err := features.FromMap("c1", "j1", map[string]float64{
		features.CandidateHighestDegreeLevel:     2,
		features.RequiredMinDegreeLevel:          3,
		features.DegreeLevelGap:                  -1,
		features.TotalYearsExperience:            6,
		features.RequiredMinYears:                5,
		features.HasRoleRequirement:              1,
		features.RequiredMinYearsInRole:          3,
		features.YearsExperienceInRequiredTitles: 4,
		features.TitleSimilarityScore:            0.82,
		features.RecentRoleMatch:                 1,
		features.MandatoryLanguageCoverageRatio:  0,
		features.PreferredLanguageCoverageRatio:  1,
		features.NumRequiredSkill:                2,
		features.SkillOverlapRatio:               0.5,
		features.MandatorySkillCoverageRatio:     1,
		features.WeightedSkillMatchScore:         0.75,
		features.LocationRelevant:                1,
		features.LocationIsMatch:                 0,
		features.DistanceKnown:                   1,
		features.GeodesicDistanceKm:              9714,
		features.NumMandatoryCriteria:            1,
		features.NumMandatoryCriteriaPassed:      1,
		features.MandatoryCriteriaAllPass:        1,
	})
	if err != nil {
		t.Fatalf("vector: %v", err)
	}
	v.Details = features.Details{
		Presence:      profile.PresenceOnsite,
		MatchedSkills: []string{"go"},
		MissingSkills: []string{"sql"},
		Languages: []features.LanguageGap{
			{Language: "Japanese", Required: 4, Declared: 1, Gap: -3, Mandatory: true},
			{Language: "English", Required: 3, Declared: 5, Gap: 2},
		},
		Criteria:          []criteria.Result{{ID: "work_permit", Passed: true}},
		RecentRole:        "Software Engineer",
		CandidateLocation: profile.Location{City: "Paris", Country: "FR"},
		JobLocation:       profile.Location{City: "Tokyo", Country: "JP"},
	}

	s, err := scoring.New(scoring.DefaultConfig())
	if err != nil {
		t.Fatalf("scorer: %v", err)
	}
	r := Result{
		CandidateID: "c1",
		JobID:       "j1",
		Similarity:  0.42,
		Scores:      s.Score(v),
		Verdict: filtering.Verdict{
			FailedGates: []string{filtering.GateMandatoryLanguages, filtering.GateLocation},
			Reasons:     []string{"mandatory languages below required level: Japanese", "onsite job in Tokyo"},
		},
	}
	return r, v
}

func TestExplain(t *testing.T) {
	t.Parallel()

	r, v := rejectedPair(t)
	e := Explain(r, v)

	if !reflect.DeepEqual(e.FailedGates, r.Verdict.FailedGates) || len(e.Reasons) != 2 {
		t.Fatalf("expected failed gates from verdict, got %v %v", e.FailedGates, e.Reasons)
	}
	if e.Education.Meets || e.Education.Score != 0 {
		t.Fatalf("unexpected education section %+v", e.Education)
	}
	if e.Experience.TitleBucket != BucketHigh || !e.Experience.HasRoleRequirement || e.Experience.RequiredYearsInRole != 3 {
		t.Fatalf("unexpected experience section %+v", e.Experience)
	}
	if !strings.Contains(e.Experience.Summary, "6.0 of 5.0 required years") {
		t.Fatalf("unexpected experience summary %q", e.Experience.Summary)
	}
	if len(e.Languages.Checks) != 2 || e.Languages.Checks[0].Passed || !e.Languages.Checks[1].Passed {
		t.Fatalf("unexpected language checks %+v", e.Languages.Checks)
	}
	if !reflect.DeepEqual(e.Skills.Matched, []string{"go"}) || len(e.Skills.MissingMandatory) != 0 {
		t.Fatalf("unexpected skills section %+v", e.Skills)
	}
	if e.Location.DistanceKm == nil || *e.Location.DistanceKm != 9714 || e.Location.Match {
		t.Fatalf("unexpected location section %+v", e.Location)
	}
	if e.Location.Reason != "different location and not ready to relocate" {
		t.Fatalf("unexpected location reason %q", e.Location.Reason)
	}
	if e.Criteria.Passed != 1 || e.Criteria.Total != 1 {
		t.Fatalf("unexpected criteria section %+v", e.Criteria)
	}

	for _, want := range []string{"very similar role experience", "current role aligns with the job"} {
		if !contains(e.Strengths, want) {
			t.Fatalf("expected strength %q in %v", want, e.Strengths)
		}
	}
	for _, want := range []string{"education level or field mismatch", "language requirements not fully met", "location constraint"} {
		if !contains(e.Weaknesses, want) {
			t.Fatalf("expected weakness %q in %v", want, e.Weaknesses)
		}
	}

	if again := Explain(r, v); !reflect.DeepEqual(e, again) {
		t.Fatalf("explanation is not deterministic")
	}
}

func TestExplainOnline(t *testing.T) {
	t.Parallel()

	v, err := features.FromMap("c1", "j1", map[string]float64{
		features.LocationRelevant: 0,
		features.LocationIsMatch:  1,
	})
	if err != nil {
		t.Fatalf("vector: %v", err)
	}
	v.Details.Presence = profile.PresenceOnline

	e := Explain(Result{CandidateID: "c1", JobID: "j1"}, v)
	if e.Location.DistanceKm != nil || e.Location.Reason != "online position, location not relevant" {
		t.Fatalf("unexpected location section %+v", e.Location)
	}
	if contains(e.Weaknesses, "location constraint") {
		t.Fatalf("online job must not report a location weakness")
	}
	if e.Criteria.Reason != "no mandatory criteria" {
		t.Fatalf("unexpected criteria reason %q", e.Criteria.Reason)
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	r, v := rejectedPair(t)
	out := Format(Explain(r, v))
	for _, want := range []string{
		"Match c1 / j1",
		"Rejected by hard filter:",
		"! location: onsite job in Tokyo",
		"Japanese 1/4 below (mandatory)",
		"matched: go",
		"distance 9714 km",
		"+ work_permit",
		"Areas for improvement:",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
