package features

import "fmt"

// LayoutVersion identifies the pair feature layout. Any change to names or
// order must bump it, since trained towers and stored vectors depend on it.
const LayoutVersion = "pair-v1"

type Group string

const (
	GroupEducation  Group = "education"
	GroupExperience Group = "experience"
	GroupLanguage   Group = "language"
	GroupSkills     Group = "skills"
	GroupLocation   Group = "location"
	GroupMandatory  Group = "mandatory"
	GroupGlobalText Group = "global_text"
)

const (
	CandidateHighestDegreeLevel = "candidate_highest_degree_level"
	RequiredMinDegreeLevel      = "required_min_degree_level"
	DegreeLevelGap              = "degree_level_gap"
	HasRequiredDegreeLevel      = "has_required_degree_level"
	FieldMatchScore             = "field_match_score"

	TotalYearsExperience            = "total_years_experience"
	TitleSimilarityScore            = "title_similarity_score"
	YearsExperienceInRequiredTitles = "years_experience_in_required_titles"
	RequiredMinYears                = "required_min_years"
	RequiredMinYearsInRole          = "required_min_years_in_role"
	HasRoleRequirement              = "has_role_requirement"
	ExperienceApproval              = "experience_approval"
	RecentRoleMatch                 = "recent_role_match"

	MandatoryLanguageCoverageRatio = "mandatory_language_coverage_ratio"
	AllMandatoryLanguagesOK        = "all_mandatory_languages_ok"
	PreferredLanguageCoverageRatio = "preferred_language_coverage_ratio"
	AvgLanguageGap                 = "avg_language_gap"
	MinLanguageGap                 = "min_language_gap"

	NumRequiredSkill            = "num_required_skill"
	SkillOverlapCount           = "skill_overlap_count"
	SkillOverlapRatio           = "skill_overlap_ratio"
	MandatorySkillCoverageRatio = "mandatory_skill_coverage_ratio"
	WeightedSkillMatchScore     = "weighted_skill_match_score"
	SkillEmbeddingSimilarity    = "skill_embedding_similarity"

	LocationRelevant   = "location_relevant"
	GeodesicDistanceKm = "geodesic_distance_km"
	DistanceKnown      = "distance_known"
	LocationIsMatch    = "location_is_match"

	NumMandatoryCriteria       = "num_mandatory_criteria"
	NumMandatoryCriteriaPassed = "num_mandatory_criteria_passed"
	MandatoryCriteriaAllPass   = "mandatory_criteria_all_pass"

	GlobalTextSimilarity = "global_text_similarity"
)

type Feature struct {
	Name  string
	Group Group
}

// Layout is an ordered list of named features.
type Layout struct {
	Version  string
	features []Feature
	index    map[string]int
}

func newLayout(version string, features []Feature) *Layout {
	index := make(map[string]int, len(features))
	for i, f := range features {
		if _, dup := index[f.Name]; dup {
			panic(fmt.Sprintf("duplicate feature %q in layout %s", f.Name, version))
		}
		index[f.Name] = i
	}
	return &Layout{Version: version, features: features, index: index}
}

func (l *Layout) Len() int { return len(l.features) }

func (l *Layout) Index(name string) (int, bool) {
	i, ok := l.index[name]
	return i, ok
}

func (l *Layout) Names() []string {
	names := make([]string, len(l.features))
	for i, f := range l.features {
		names[i] = f.Name
	}
	return names
}

// Group returns the feature names of a group in layout order.
func (l *Layout) Group(g Group) []string {
	var names []string
	for _, f := range l.features {
		if f.Group == g {
			names = append(names, f.Name)
		}
	}
	return names
}

var pairLayout = newLayout(LayoutVersion, []Feature{
	{CandidateHighestDegreeLevel, GroupEducation},
	{RequiredMinDegreeLevel, GroupEducation},
	{DegreeLevelGap, GroupEducation},
	{HasRequiredDegreeLevel, GroupEducation},
	{FieldMatchScore, GroupEducation},

	{TotalYearsExperience, GroupExperience},
	{TitleSimilarityScore, GroupExperience},
	{YearsExperienceInRequiredTitles, GroupExperience},
	{RequiredMinYears, GroupExperience},
	{RequiredMinYearsInRole, GroupExperience},
	{HasRoleRequirement, GroupExperience},
	{ExperienceApproval, GroupExperience},
	{RecentRoleMatch, GroupExperience},

	{MandatoryLanguageCoverageRatio, GroupLanguage},
	{AllMandatoryLanguagesOK, GroupLanguage},
	{PreferredLanguageCoverageRatio, GroupLanguage},
	{AvgLanguageGap, GroupLanguage},
	{MinLanguageGap, GroupLanguage},

	{NumRequiredSkill, GroupSkills},
	{SkillOverlapCount, GroupSkills},
	{SkillOverlapRatio, GroupSkills},
	{MandatorySkillCoverageRatio, GroupSkills},
	{WeightedSkillMatchScore, GroupSkills},
	{SkillEmbeddingSimilarity, GroupSkills},

	{LocationRelevant, GroupLocation},
	{GeodesicDistanceKm, GroupLocation},
	{DistanceKnown, GroupLocation},
	{LocationIsMatch, GroupLocation},

	{NumMandatoryCriteria, GroupMandatory},
	{NumMandatoryCriteriaPassed, GroupMandatory},
	{MandatoryCriteriaAllPass, GroupMandatory},

	{GlobalTextSimilarity, GroupGlobalText},
})

// PairLayout returns the layout of pair feature vectors.
func PairLayout() *Layout { return pairLayout }
