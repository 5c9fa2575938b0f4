package profile

import (
	"strings"
)

// PresenceType tells where the work happens.
type PresenceType string

const (
	PresenceOnsite PresenceType = "onsite"
	PresenceOnline PresenceType = "online"
	PresenceHybrid PresenceType = "hybrid"
)

// ParsePresence maps free text to a presence type. Unknown values default to onsite.
func ParsePresence(s string) PresenceType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "online", "remote":
		return PresenceOnline
	case "hybrid":
		return PresenceHybrid
	default:
		return PresenceOnsite
	}
}

const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// JobPosting is an opening published by an organization.
type JobPosting struct {
	ID               string       `json:"id"`
	OrganizationID   string       `json:"organization_id,omitempty"`
	Status           string       `json:"status,omitempty"`
	Title            string       `json:"title"`
	Description      string       `json:"description,omitempty"`
	Qualifications   string       `json:"qualifications,omitempty"`
	Responsibilities string       `json:"responsibilities,omitempty"`
	Location         Location     `json:"location"`
	Presence         PresenceType `json:"presence,omitempty"`

	Languages []LanguageRequirement `json:"languages,omitempty"`
	Skills    []SkillRequirement    `json:"skills,omitempty"`
	Education *EducationRequirement `json:"education,omitempty"`
	Criteria  []MandatoryCriterion  `json:"criteria,omitempty"`

	// ExperienceLevel is free text such as "senior" or "2-5 years".
	ExperienceLevel     string   `json:"experience_level,omitempty"`
	RequiredYears       *float64 `json:"required_years,omitempty"`
	RequiredYearsInRole *float64 `json:"required_years_in_role,omitempty"`
	RequiredTitles      []string `json:"required_titles,omitempty"`
}

type LanguageRequirement struct {
	Language  string `json:"language"`
	MinLevel  string `json:"min_level"`
	Mandatory bool   `json:"mandatory,omitempty"`
}

type SkillRequirement struct {
	ID         string  `json:"id,omitempty"`
	Name       string  `json:"name"`
	Mandatory  bool    `json:"mandatory,omitempty"`
	Importance float64 `json:"importance,omitempty"`
}

type EducationRequirement struct {
	MinLevel   string `json:"min_level,omitempty"`
	Department string `json:"department,omitempty"`
	Speciality string `json:"speciality,omitempty"`
}

// MandatoryCriterion is a named predicate every candidate must satisfy.
// Kind selects the predicate variant and Params carries its settings.
type MandatoryCriterion struct {
	ID          string         `json:"id"`
	Description string         `json:"description,omitempty"`
	Kind        string         `json:"kind"`
	Required    any            `json:"required,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
}

func (j *JobPosting) Validate() error {
	if j == nil {
		return &InvalidInputError{Entity: "job", Field: "id", Reason: "job is nil"}
	}
	if strings.TrimSpace(j.ID) == "" {
		return &InvalidInputError{Entity: "job", Field: "id", Reason: "identifier is required"}
	}
	return nil
}

// Open reports whether the posting accepts candidates. Empty status counts as open.
func (j *JobPosting) Open() bool {
	return j.Status == "" || strings.EqualFold(j.Status, StatusOpen)
}

// Mode returns the presence type, defaulting to onsite.
func (j *JobPosting) Mode() PresenceType {
	if j.Presence == "" {
		return PresenceOnsite
	}
	return ParsePresence(string(j.Presence))
}

// MinYears resolves the required total experience, falling back to the
// experience level text.
func (j *JobPosting) MinYears() float64 {
	if j.RequiredYears != nil {
		return max(*j.RequiredYears, 0)
	}
	return ExperienceLevelYears(j.ExperienceLevel)
}

// MinYearsInRole returns the required years in matching titles and whether the job defines it.
func (j *JobPosting) MinYearsInRole() (float64, bool) {
	if j.RequiredYearsInRole == nil {
		return 0, false
	}
	return max(*j.RequiredYearsInRole, 0), true
}

// TitleText joins title and description for embedding.
func (j *JobPosting) TitleText() string {
	return strings.Join(nonEmpty(j.Title, j.Description), " ")
}

// Text is the free text describing the posting as a whole.
func (j *JobPosting) Text() string {
	return strings.Join(nonEmpty(j.Title, j.Description, j.Qualifications, j.Responsibilities), "\n")
}

// SkillNames returns the non-empty required skill names.
func (j *JobPosting) SkillNames() []string {
	names := make([]string, 0, len(j.Skills))
	for _, s := range j.Skills {
		if n := strings.TrimSpace(s.Name); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// Titles returns the titles that count as relevant experience.
func (j *JobPosting) Titles() []string {
	titles := nonEmpty(j.RequiredTitles...)
	if len(titles) == 0 {
		titles = nonEmpty(j.Title)
	}
	return titles
}
