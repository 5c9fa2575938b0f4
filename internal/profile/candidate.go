package profile

import (
	"strings"
	"time"
)

// Candidate is a job seeker profile. Demographic fields are carried for
// completeness and never take part in scoring.
type Candidate struct {
	ID        string     `json:"id"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Gender    string     `json:"gender,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`

	Location        Location `json:"location"`
	ReadyToRelocate bool     `json:"ready_to_relocate,omitempty"`

	Education  []Education      `json:"education,omitempty"`
	Experience []WorkExperience `json:"experience,omitempty"`
	Languages  []LanguageSkill  `json:"languages,omitempty"`
	Skills     []Skill          `json:"skills,omitempty"`

	// Attributes holds declared values checked by mandatory criteria, keyed by criterion ID.
	Attributes map[string]any `json:"attributes,omitempty"`
}

type Location struct {
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}

// Empty reports whether neither city nor country is known.
func (l Location) Empty() bool {
	return strings.TrimSpace(l.City) == "" && strings.TrimSpace(l.Country) == ""
}

// SameAs compares city and country case-insensitively.
func (l Location) SameAs(other Location) bool {
	if l.Empty() || other.Empty() {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(l.City), strings.TrimSpace(other.City)) &&
		strings.EqualFold(strings.TrimSpace(l.Country), strings.TrimSpace(other.Country))
}

func (l Location) String() string {
	switch {
	case l.City != "" && l.Country != "":
		return l.City + ", " + l.Country
	case l.City != "":
		return l.City
	default:
		return l.Country
	}
}

type Education struct {
	Level      string     `json:"level"`
	Department string     `json:"department,omitempty"`
	Speciality string     `json:"speciality,omitempty"`
	University string     `json:"university,omitempty"`
	Country    string     `json:"country,omitempty"`
	Start      time.Time  `json:"start"`
	End        *time.Time `json:"end,omitempty"`
}

type WorkExperience struct {
	Company     string     `json:"company,omitempty"`
	Position    string     `json:"position"`
	Description string     `json:"description,omitempty"`
	Country     string     `json:"country,omitempty"`
	TypeOfWork  string     `json:"type_of_work,omitempty"`
	Start       time.Time  `json:"start"`
	End         *time.Time `json:"end,omitempty"`
	IsPresent   bool       `json:"is_present,omitempty"`
}

// Finish returns the end of the period, using now for ongoing roles.
func (w WorkExperience) Finish(now time.Time) time.Time {
	if w.IsPresent || w.End == nil {
		return now
	}
	return *w.End
}

// Years returns the duration of the role in years. Negative periods count as zero.
func (w WorkExperience) Years(now time.Time) float64 {
	if w.Start.IsZero() {
		return 0
	}
	d := w.Finish(now).Sub(w.Start)
	if d <= 0 {
		return 0
	}
	return YearsOf(d)
}

// Text joins position and description for embedding.
func (w WorkExperience) Text() string {
	return strings.TrimSpace(strings.Join(nonEmpty(w.Position, w.Description), " "))
}

type LanguageSkill struct {
	Language string `json:"language"`
	Level    string `json:"level"`
}

type Skill struct {
	ID     string   `json:"id,omitempty"`
	Name   string   `json:"name"`
	Weight *float64 `json:"weight,omitempty"`
}

// Validate checks identity. Missing or inconsistent optional data is not an
// error: a period that ends before it starts counts as zero years.
func (c *Candidate) Validate() error {
	if c == nil {
		return &InvalidInputError{Entity: "candidate", Field: "id", Reason: "candidate is nil"}
	}
	if strings.TrimSpace(c.ID) == "" {
		return &InvalidInputError{Entity: "candidate", Field: "id", Reason: "identifier is required"}
	}
	return nil
}

// HighestDegree returns the highest degree ordinal across education entries.
func (c *Candidate) HighestDegree() int {
	highest := 0
	for _, e := range c.Education {
		highest = max(highest, DegreeLevel(e.Level))
	}
	return highest
}

// MostRecentExperience returns the role with the latest end (ongoing roles first).
func (c *Candidate) MostRecentExperience(now time.Time) (WorkExperience, bool) {
	if len(c.Experience) == 0 {
		return WorkExperience{}, false
	}
	best := c.Experience[0]
	for _, w := range c.Experience[1:] {
		bf, wf := best.Finish(now), w.Finish(now)
		if wf.After(bf) || (wf.Equal(bf) && w.Start.After(best.Start)) {
			best = w
		}
	}
	return best, true
}

// ExperienceText joins all experience texts.
func (c *Candidate) ExperienceText() string {
	parts := make([]string, 0, len(c.Experience))
	for _, w := range c.Experience {
		if t := w.Text(); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// SkillNames returns the non-empty skill names in declaration order.
func (c *Candidate) SkillNames() []string {
	names := make([]string, 0, len(c.Skills))
	for _, s := range c.Skills {
		if n := strings.TrimSpace(s.Name); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// Text is the free text describing the candidate as a whole.
func (c *Candidate) Text() string {
	parts := nonEmpty(c.ExperienceText(), strings.Join(c.SkillNames(), ", "))
	for _, e := range c.Education {
		parts = append(parts, nonEmpty(e.Department, e.Speciality)...)
	}
	return strings.Join(parts, "\n")
}

const daysPerYear = 365.25

// YearsOf converts a duration to fractional years.
func YearsOf(d time.Duration) float64 {
	return d.Hours() / 24 / daysPerYear
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
