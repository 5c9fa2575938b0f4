package features

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/spigell/jobmatch/internal/criteria"
	"github.com/spigell/jobmatch/internal/geo"
	"github.com/spigell/jobmatch/internal/lookup"
	"github.com/spigell/jobmatch/internal/profile"
	"github.com/spigell/jobmatch/internal/taxonomy"
)

var fixedNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func date(year int, month time.Month) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

type countingDistancer struct {
	calls int
	err   error
}

func (d *countingDistancer) Distance(context.Context, profile.Location, profile.Location) (float64, error) {
	d.calls++
	if d.err != nil {
		return 0, d.err
	}
	return 100, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("model unavailable")
}

func newTestExtractor(t *testing.T, mutate func(*lookup.Lookups)) *Extractor {
	t.Helper()
	l := lookup.Lookups{
		Embedder:  lookup.NewHashEmbedder(128),
		Distancer: geo.NewGazetteer(nil),
		Taxonomy:  taxonomy.Default(),
	}
	if mutate != nil {
		mutate(&l)
	}
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return fixedNow }
	e, err := New(l, criteria.NewRegistry(), cfg, nil)
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}
	return e
}

func sampleCandidate() *profile.Candidate {
	end := date(2021, time.December)
	return &profile.Candidate{
		ID:       "cand-1",
		Location: profile.Location{City: "Berlin", Country: "Germany"},
		Education: []profile.Education{
			{Level: "Bachelor", Department: "Computer Science", Start: date(2012, time.September), End: ptr(date(2016, time.June))},
		},
		Experience: []profile.WorkExperience{
			{Position: "Backend Developer", Description: "Go services and PostgreSQL", Start: date(2016, time.July), End: &end},
			{Position: "Software Engineer", Description: "Distributed systems in Go", Start: date(2022, time.January), IsPresent: true},
		},
		Languages: []profile.LanguageSkill{{Language: "English", Level: "C1"}, {Language: "German", Level: "B1"}},
		Skills:    []profile.Skill{{Name: "Golang"}, {Name: "SQL"}, {Name: "Docker"}},
		Attributes: map[string]any{
			"work_permit": true,
		},
	}
}

func sampleJob() *profile.JobPosting {
	return &profile.JobPosting{
		ID:          "job-1",
		Title:       "Senior Software Engineer",
		Description: "Build Go microservices",
		Location:    profile.Location{City: "Berlin", Country: "Germany"},
		Presence:    profile.PresenceOnsite,
		Languages: []profile.LanguageRequirement{
			{Language: "English", MinLevel: "B2", Mandatory: true},
			{Language: "German", MinLevel: "B2"},
		},
		Skills: []profile.SkillRequirement{
			{Name: "Go", Mandatory: true, Importance: 3},
			{Name: "Kubernetes", Mandatory: true, Importance: 2},
			{Name: "SQL", Importance: 1},
		},
		Education:      &profile.EducationRequirement{MinLevel: "Bachelor", Department: "Computer Science"},
		Criteria:       []profile.MandatoryCriterion{{ID: "work_permit", Kind: criteria.KindBooleanFlag}},
		RequiredYears:  ptr(5.0),
		RequiredTitles: []string{"Software Engineer"},
	}
}

func TestExtractIdempotent(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t, nil)
	ctx := context.Background()

	first, err := e.Extract(ctx, sampleCandidate(), sampleJob())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	second, err := e.Extract(ctx, sampleCandidate(), sampleJob())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if !reflect.DeepEqual(first.Values(), second.Values()) {
		t.Fatalf("expected identical vectors\n%v\n%v", first.Values(), second.Values())
	}
	if len(first.Values()) != PairLayout().Len() {
		t.Fatalf("expected %d features, got %d", PairLayout().Len(), len(first.Values()))
	}
	for name, value := range first.Map() {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			t.Fatalf("feature %s is not finite: %v", name, value)
		}
	}
}

func TestExtractSampleValues(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t, nil)
	v, err := e.Extract(context.Background(), sampleCandidate(), sampleJob())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	expect := map[string]float64{
		CandidateHighestDegreeLevel:    2,
		RequiredMinDegreeLevel:         2,
		DegreeLevelGap:                 0,
		HasRequiredDegreeLevel:         1,
		FieldMatchScore:                1,
		NumRequiredSkill:               3,
		SkillOverlapCount:              2,
		MandatorySkillCoverageRatio:    0.5,
		WeightedSkillMatchScore:        4.0 / 6.0,
		MandatoryLanguageCoverageRatio: 1,
		AllMandatoryLanguagesOK:        1,
		PreferredLanguageCoverageRatio: 0,
		AvgLanguageGap:                 0,
		MinLanguageGap:                 -1,
		LocationRelevant:               1,
		GeodesicDistanceKm:             0,
		DistanceKnown:                  1,
		LocationIsMatch:                1,
		NumMandatoryCriteria:           1,
		MandatoryCriteriaAllPass:       1,
		RequiredMinYears:               5,
		RecentRoleMatch:                1,
		ExperienceApproval:             1,
	}
	for name, want := range expect {
		if got := v.Get(name); math.Abs(got-want) > 1e-9 {
			t.Fatalf("%s: expected %v, got %v", name, want, got)
		}
	}

	if got := v.Get(SkillOverlapRatio); math.Abs(got-2.0/3.0) > 1e-9 {
		t.Fatalf("expected overlap ratio 2/3, got %v", got)
	}
	if got := v.Get(TotalYearsExperience); got < 7.7 || got > 7.95 {
		t.Fatalf("expected ~7.8 years of experience, got %v", got)
	}
	if got := v.Get(TitleSimilarityScore); got <= 0.5 || got > 1 {
		t.Fatalf("expected related titles to score above 0.5, got %v", got)
	}
	if !reflect.DeepEqual(v.Details.MissingMandatorySkills, []string{"kubernetes"}) {
		t.Fatalf("unexpected missing mandatory skills: %v", v.Details.MissingMandatorySkills)
	}
}

func TestOnlineJobSkipsDistance(t *testing.T) {
	t.Parallel()

	d := &countingDistancer{err: errors.New("must not be called")}
	e := newTestExtractor(t, func(l *lookup.Lookups) { l.Distancer = d })

	job := sampleJob()
	job.Presence = profile.PresenceOnline
	job.Location = profile.Location{City: "Tokyo", Country: "Japan"}

	v, err := e.Extract(context.Background(), sampleCandidate(), job)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if d.calls != 0 {
		t.Fatalf("expected no distance calls, got %d", d.calls)
	}
	if v.Get(LocationRelevant) != 0 || v.Get(GeodesicDistanceKm) != 0 || v.Get(LocationIsMatch) != 1 {
		t.Fatalf("unexpected location group: %v", v.Group(GroupLocation))
	}
}

func TestRelocationMonotonic(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t, nil)
	job := sampleJob()
	job.Location = profile.Location{City: "Paris", Country: "France"}

	cand := sampleCandidate()
	before, err := e.Extract(context.Background(), cand, job)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if before.Get(LocationIsMatch) != 0 {
		t.Fatalf("expected no location match before relocation")
	}
	if before.Get(GeodesicDistanceKm) < 800 {
		t.Fatalf("expected berlin-paris distance, got %v", before.Get(GeodesicDistanceKm))
	}

	cand.ReadyToRelocate = true
	after, err := e.Extract(context.Background(), cand, job)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if after.Get(LocationIsMatch) != 1 {
		t.Fatalf("expected relocation to produce a location match")
	}
}

func TestZeroMandatoryLanguages(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t, nil)
	job := sampleJob()
	job.Languages = nil
	cand := sampleCandidate()
	cand.Languages = nil

	v, err := e.Extract(context.Background(), cand, job)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if v.Get(MandatoryLanguageCoverageRatio) != 1 || v.Get(AllMandatoryLanguagesOK) != 1 {
		t.Fatalf("expected vacuous language coverage, got %v", v.Group(GroupLanguage))
	}
	if v.Get(PreferredLanguageCoverageRatio) != 1 {
		t.Fatalf("expected vacuous preferred coverage")
	}
}

func TestSkillCoverageScenario(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t, nil)
	job := sampleJob()
	job.Skills = []profile.SkillRequirement{
		{ID: "a", Mandatory: true},
		{ID: "b", Mandatory: true},
		{ID: "c", Mandatory: true},
		{ID: "d"},
		{ID: "e"},
	}
	cand := sampleCandidate()
	cand.Skills = []profile.Skill{{ID: "a"}, {ID: "b"}, {ID: "d"}, {ID: "z"}}

	v, err := e.Extract(context.Background(), cand, job)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got := v.Get(MandatorySkillCoverageRatio); math.Abs(got-2.0/3.0) > 1e-9 {
		t.Fatalf("expected mandatory coverage 2/3, got %v", got)
	}
	if got := v.Get(SkillOverlapRatio); math.Abs(got-3.0/5.0) > 1e-9 {
		t.Fatalf("expected overlap ratio 3/5, got %v", got)
	}
	if got := v.Get(WeightedSkillMatchScore); got != 0 {
		t.Fatalf("expected weighted score 0 without importances, got %v", got)
	}
}

func TestEducationGapScenario(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t, nil)
	job := sampleJob()
	job.Education = &profile.EducationRequirement{MinLevel: "Master"}

	v, err := e.Extract(context.Background(), sampleCandidate(), job)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if v.Get(DegreeLevelGap) != -1 || v.Get(HasRequiredDegreeLevel) != 0 {
		t.Fatalf("unexpected education group: %v", v.Group(GroupEducation))
	}
	if v.Get(FieldMatchScore) != 0 {
		t.Fatalf("expected no field match without a required field")
	}
}

func TestExtractErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing candidate id", func(t *testing.T) {
		t.Parallel()
		e := newTestExtractor(t, nil)
		cand := sampleCandidate()
		cand.ID = ""
		_, err := e.Extract(context.Background(), cand, sampleJob())
		var invalid *profile.InvalidInputError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidInputError, got %v", err)
		}
	})

	t.Run("malformed criterion", func(t *testing.T) {
		t.Parallel()
		e := newTestExtractor(t, nil)
		job := sampleJob()
		job.Criteria = []profile.MandatoryCriterion{{ID: "work_permit", Kind: "unknown"}}
		_, err := e.Extract(context.Background(), sampleCandidate(), job)
		var invalid *profile.InvalidInputError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidInputError, got %v", err)
		}
	})

	t.Run("embedder failure", func(t *testing.T) {
		t.Parallel()
		e := newTestExtractor(t, func(l *lookup.Lookups) { l.Embedder = failingEmbedder{} })
		v, err := e.Extract(context.Background(), sampleCandidate(), sampleJob())
		var upstream *lookup.UpstreamServiceError
		if !errors.As(err, &upstream) {
			t.Fatalf("expected UpstreamServiceError, got %v", err)
		}
		if v != nil {
			t.Fatalf("expected no partial vector")
		}
	})

	t.Run("distance failure", func(t *testing.T) {
		t.Parallel()
		d := &countingDistancer{err: errors.New("geocoder down")}
		e := newTestExtractor(t, func(l *lookup.Lookups) { l.Distancer = d })
		_, err := e.Extract(context.Background(), sampleCandidate(), sampleJob())
		var upstream *lookup.UpstreamServiceError
		if !errors.As(err, &upstream) {
			t.Fatalf("expected UpstreamServiceError, got %v", err)
		}
	})
}

func TestUnknownCityIsSentinel(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t, nil)
	job := sampleJob()
	job.Location = profile.Location{City: "Atlantis"}

	v, err := e.Extract(context.Background(), sampleCandidate(), job)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if v.Get(DistanceKnown) != 0 || v.Get(GeodesicDistanceKm) != 0 {
		t.Fatalf("expected sentinel distance, got %v", v.Group(GroupLocation))
	}
}

func TestExperiencePolicyMerge(t *testing.T) {
	t.Parallel()

	cand := &profile.Candidate{ID: "c", Experience: []profile.WorkExperience{
		{Position: "a", Start: date(2020, time.January), End: ptr(date(2022, time.January))},
		{Position: "b", Start: date(2021, time.January), End: ptr(date(2023, time.January))},
	}}

	sum := newTestExtractor(t, nil)
	if got := sum.totalYears(cand.Experience, fixedNow); got < 3.99 || got > 4.01 {
		t.Fatalf("expected overlapping roles summed to ~4 years, got %v", got)
	}

	merge := newTestExtractor(t, nil)
	merge.cfg.ExperiencePolicy = PolicyMerge
	if got := merge.totalYears(cand.Experience, fixedNow); got < 2.99 || got > 3.01 {
		t.Fatalf("expected merged roles to ~3 years, got %v", got)
	}
}

func TestEntityInputs(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(t, nil)

	ci, err := e.CandidateInput(sampleCandidate())
	if err != nil {
		t.Fatalf("candidate input: %v", err)
	}
	if len(ci.Features) != CandidateLayout().Len() || ci.Text == "" {
		t.Fatalf("unexpected candidate input: %+v", ci)
	}

	ji, err := e.JobInput(sampleJob())
	if err != nil {
		t.Fatalf("job input: %v", err)
	}
	if len(ji.Features) != JobLayout().Len() || ji.Text == "" {
		t.Fatalf("unexpected job input: %+v", ji)
	}

	if _, err := e.JobInput(&profile.JobPosting{}); err == nil {
		t.Fatalf("expected error for job without id")
	}
}
