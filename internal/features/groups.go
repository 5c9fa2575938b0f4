package features

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/spigell/jobmatch/internal/criteria"
	"github.com/spigell/jobmatch/internal/lookup"
	"github.com/spigell/jobmatch/internal/profile"
	"github.com/spigell/jobmatch/internal/textnorm"
)

func (e *Extractor) education(v *Vector, c *profile.Candidate, j *profile.JobPosting) {
	highest := c.HighestDegree()
	required := 0
	var jobField map[string]struct{}
	if j.Education != nil {
		required = profile.DegreeLevel(j.Education.MinLevel)
		jobField = textnorm.TokenSet(j.Education.Department, j.Education.Speciality)
	}

	fields := make([]string, 0, 2*len(c.Education))
	for _, ed := range c.Education {
		fields = append(fields, ed.Department, ed.Speciality)
	}

	gap := highest - required
	v.set(CandidateHighestDegreeLevel, float64(highest))
	v.set(RequiredMinDegreeLevel, float64(required))
	v.set(DegreeLevelGap, float64(gap))
	v.setBool(HasRequiredDegreeLevel, gap >= 0)
	v.set(FieldMatchScore, textnorm.Jaccard(textnorm.TokenSet(fields...), jobField))
}

func (e *Extractor) experience(ctx context.Context, v *Vector, c *profile.Candidate, j *profile.JobPosting, texts *embeddedTexts, now time.Time) error {
	v.set(TotalYearsExperience, e.totalYears(c.Experience, now))

	best := 0.0
	for i, w := range c.Experience {
		emb := texts.experiences[i]
		if emb == nil || texts.jobTitle == nil {
			continue
		}
		// cosine mapped from [-1,1] to [0,1]
		sim := (cosine(emb, texts.jobTitle) + 1) / 2
		if sim > best {
			best = sim
			v.Details.BestMatchedRole = w.Position
		}
	}
	v.set(TitleSimilarityScore, clamp(best, 0, 1))

	required := make(map[string]struct{})
	for _, title := range j.Titles() {
		id, err := e.lookups.Taxonomy.MapTitle(ctx, title)
		if err != nil {
			return upstream("taxonomy", "map_title", err)
		}
		if id != "" {
			required[id] = struct{}{}
		}
	}

	inRole := 0.0
	for _, w := range c.Experience {
		id, err := e.lookups.Taxonomy.MapTitle(ctx, w.Position)
		if err != nil {
			return upstream("taxonomy", "map_title", err)
		}
		if _, ok := required[id]; ok && id != "" {
			inRole += w.Years(now)
		}
	}

	recentMatch := false
	if recent, ok := c.MostRecentExperience(now); ok {
		v.Details.RecentRole = recent.Position
		id, err := e.lookups.Taxonomy.MapTitle(ctx, recent.Position)
		if err != nil {
			return upstream("taxonomy", "map_title", err)
		}
		_, recentMatch = required[id]
		recentMatch = recentMatch && id != ""
	}

	minYears := j.MinYears()
	minInRole, hasRoleRequirement := j.MinYearsInRole()
	threshold := minInRole
	if !hasRoleRequirement {
		threshold = minYears
	}

	v.set(YearsExperienceInRequiredTitles, inRole)
	v.set(RequiredMinYears, minYears)
	v.set(RequiredMinYearsInRole, minInRole)
	v.setBool(HasRoleRequirement, hasRoleRequirement)
	v.setBool(ExperienceApproval, inRole > threshold)
	v.setBool(RecentRoleMatch, recentMatch)
	return nil
}

func (e *Extractor) totalYears(roles []profile.WorkExperience, now time.Time) float64 {
	if e.cfg.ExperiencePolicy != PolicyMerge {
		total := 0.0
		for _, w := range roles {
			total += w.Years(now)
		}
		return total
	}

	type span struct{ start, end time.Time }
	spans := make([]span, 0, len(roles))
	for _, w := range roles {
		if w.Start.IsZero() {
			continue
		}
		end := w.Finish(now)
		if !end.After(w.Start) {
			continue
		}
		spans = append(spans, span{w.Start, end})
	}
	sort.Slice(spans, func(a, b int) bool { return spans[a].start.Before(spans[b].start) })

	var total time.Duration
	var cur *span
	for i := range spans {
		s := spans[i]
		if cur == nil {
			cur = &s
			continue
		}
		if !s.start.After(cur.end) {
			if s.end.After(cur.end) {
				cur.end = s.end
			}
			continue
		}
		total += cur.end.Sub(cur.start)
		cur = &s
	}
	if cur != nil {
		total += cur.end.Sub(cur.start)
	}
	return profile.YearsOf(total)
}

func (e *Extractor) languages(v *Vector, c *profile.Candidate, j *profile.JobPosting) {
	declared := make(map[string]int)
	for _, l := range c.Languages {
		key := textnorm.Normalize(l.Language)
		if key == "" {
			continue
		}
		declared[key] = max(declared[key], profile.LanguageLevel(l.Level))
	}

	var (
		mandatory, mandatoryOK int
		preferred, preferredOK int
		gapSum                 int
		minGap                 = math.MaxInt
	)
	gaps := make([]LanguageGap, 0, len(j.Languages))
	for _, req := range j.Languages {
		key := textnorm.Normalize(req.Language)
		if key == "" {
			continue
		}
		g := LanguageGap{
			Language:  req.Language,
			Required:  profile.LanguageLevel(req.MinLevel),
			Declared:  declared[key],
			Mandatory: req.Mandatory,
		}
		g.Gap = g.Declared - g.Required
		gaps = append(gaps, g)

		gapSum += g.Gap
		minGap = min(minGap, g.Gap)
		if req.Mandatory {
			mandatory++
			if g.OK() {
				mandatoryOK++
			}
			continue
		}
		preferred++
		if g.OK() {
			preferredOK++
		}
	}
	v.Details.Languages = gaps

	avg, lowest := 0.0, 0.0
	if len(gaps) > 0 {
		avg = float64(gapSum) / float64(len(gaps))
		lowest = float64(minGap)
	}

	v.set(MandatoryLanguageCoverageRatio, ratio(mandatoryOK, mandatory))
	v.setBool(AllMandatoryLanguagesOK, mandatoryOK == mandatory)
	v.set(PreferredLanguageCoverageRatio, ratio(preferredOK, preferred))
	v.set(AvgLanguageGap, avg)
	v.set(MinLanguageGap, lowest)
}

func (e *Extractor) skills(ctx context.Context, v *Vector, c *profile.Candidate, j *profile.JobPosting, texts *embeddedTexts) error {
	have := make(map[string]struct{}, len(c.Skills))
	for _, s := range c.Skills {
		id, err := e.skillID(ctx, s.ID, s.Name)
		if err != nil {
			return err
		}
		if id != "" {
			have[id] = struct{}{}
		}
	}

	type requirement struct {
		id         string
		mandatory  bool
		importance float64
	}
	seen := make(map[string]int)
	var reqs []requirement
	for _, s := range j.Skills {
		id, err := e.skillID(ctx, s.ID, s.Name)
		if err != nil {
			return err
		}
		if id == "" {
			continue
		}
		if i, dup := seen[id]; dup {
			reqs[i].mandatory = reqs[i].mandatory || s.Mandatory
			reqs[i].importance = math.Max(reqs[i].importance, s.Importance)
			continue
		}
		seen[id] = len(reqs)
		reqs = append(reqs, requirement{id: id, mandatory: s.Mandatory, importance: math.Max(s.Importance, 0)})
	}

	var (
		overlap, mandatory, mandatoryOK int
		weightMatched, weightTotal      float64
	)
	for _, r := range reqs {
		_, ok := have[r.id]
		weightTotal += r.importance
		if r.mandatory {
			mandatory++
		}
		if ok {
			overlap++
			weightMatched += r.importance
			v.Details.MatchedSkills = append(v.Details.MatchedSkills, r.id)
			if r.mandatory {
				mandatoryOK++
			}
			continue
		}
		v.Details.MissingSkills = append(v.Details.MissingSkills, r.id)
		if r.mandatory {
			v.Details.MissingMandatorySkills = append(v.Details.MissingMandatorySkills, r.id)
		}
	}

	weighted := 0.0
	if weightTotal > 0 {
		weighted = weightMatched / weightTotal
	}

	v.set(NumRequiredSkill, float64(len(reqs)))
	v.set(SkillOverlapCount, float64(overlap))
	v.set(SkillOverlapRatio, float64(overlap)/float64(max(1, len(reqs))))
	v.set(MandatorySkillCoverageRatio, ratio(mandatoryOK, mandatory))
	v.set(WeightedSkillMatchScore, weighted)
	v.set(SkillEmbeddingSimilarity, cosine(texts.candSkills, texts.jobSkills))
	return nil
}

func (e *Extractor) skillID(ctx context.Context, id, name string) (string, error) {
	if id != "" {
		return id, nil
	}
	mapped, err := e.lookups.Taxonomy.MapSkill(ctx, name)
	if err != nil {
		return "", upstream("taxonomy", "map_skill", err)
	}
	return mapped, nil
}

func (e *Extractor) location(ctx context.Context, v *Vector, c *profile.Candidate, j *profile.JobPosting) error {
	if j.Mode() == profile.PresenceOnline {
		v.set(LocationRelevant, 0)
		v.set(GeodesicDistanceKm, 0)
		v.set(DistanceKnown, 0)
		v.set(LocationIsMatch, 1)
		return nil
	}

	v.set(LocationRelevant, 1)
	km, err := e.lookups.Distancer.Distance(ctx, c.Location, j.Location)
	switch {
	case err == nil:
		v.set(GeodesicDistanceKm, km)
		v.set(DistanceKnown, 1)
	case errors.Is(err, lookup.ErrNoData):
		v.set(GeodesicDistanceKm, 0)
		v.set(DistanceKnown, 0)
	default:
		return upstream("distancer", "distance", err)
	}

	v.setBool(LocationIsMatch, c.Location.SameAs(j.Location) || c.ReadyToRelocate)
	return nil
}

func (e *Extractor) mandatory(v *Vector, c *profile.Candidate, j *profile.JobPosting) error {
	passed := 0
	results := make([]criteria.Result, 0, len(j.Criteria))
	for i, crit := range j.Criteria {
		res, err := e.criteria.Evaluate(crit, c.Attributes)
		if err != nil {
			return &profile.InvalidInputError{
				Entity: "job", ID: j.ID,
				Field:  fmt.Sprintf("criteria[%d]", i),
				Reason: err.Error(),
			}
		}
		if res.Passed {
			passed++
		}
		results = append(results, res)
	}
	v.Details.Criteria = results

	v.set(NumMandatoryCriteria, float64(len(j.Criteria)))
	v.set(NumMandatoryCriteriaPassed, float64(passed))
	v.setBool(MandatoryCriteriaAllPass, passed == len(j.Criteria))
	return nil
}
