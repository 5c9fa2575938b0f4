package features

import (
	"fmt"

	"github.com/spigell/jobmatch/internal/criteria"
	"github.com/spigell/jobmatch/internal/profile"
)

// Vector holds the features of one (candidate, job) pair in layout order.
type Vector struct {
	CandidateID string
	JobID       string
	Details     Details

	layout *Layout
	values []float64
}

// Details carries the non-numeric facts behind the features, used for
// filter reasons and explanations.
type Details struct {
	Presence profile.PresenceType `json:"presence"`

	MatchedSkills          []string `json:"matched_skills,omitempty"`
	MissingSkills          []string `json:"missing_skills,omitempty"`
	MissingMandatorySkills []string `json:"missing_mandatory_skills,omitempty"`

	Languages []LanguageGap     `json:"languages,omitempty"`
	Criteria  []criteria.Result `json:"criteria,omitempty"`

	RecentRole      string `json:"recent_role,omitempty"`
	BestMatchedRole string `json:"best_matched_role,omitempty"`

	CandidateLocation profile.Location `json:"candidate_location"`
	JobLocation       profile.Location `json:"job_location"`
}

// LanguageGap describes one language requirement of the job.
type LanguageGap struct {
	Language  string `json:"language"`
	Required  int    `json:"required"`
	Declared  int    `json:"declared"`
	Gap       int    `json:"gap"`
	Mandatory bool   `json:"mandatory"`
}

// OK reports whether the declared level meets the requirement.
func (g LanguageGap) OK() bool { return g.Gap >= 0 }

func newVector(layout *Layout, candidateID, jobID string) *Vector {
	return &Vector{
		CandidateID: candidateID,
		JobID:       jobID,
		layout:      layout,
		values:      make([]float64, layout.Len()),
	}
}

func (v *Vector) set(name string, value float64) {
	i, ok := v.layout.Index(name)
	if !ok {
		panic("features: unknown feature " + name)
	}
	v.values[i] = value
}

func (v *Vector) setBool(name string, value bool) {
	if value {
		v.set(name, 1)
		return
	}
	v.set(name, 0)
}

// Get returns the named feature, or 0 when the layout has no such feature.
func (v *Vector) Get(name string) float64 {
	if i, ok := v.layout.Index(name); ok {
		return v.values[i]
	}
	return 0
}

func (v *Vector) Layout() *Layout { return v.layout }

// Values returns a copy of the features in layout order.
func (v *Vector) Values() []float64 {
	return append([]float64(nil), v.values...)
}

// Map returns the features keyed by name.
func (v *Vector) Map() map[string]float64 {
	out := make(map[string]float64, len(v.values))
	for i, name := range v.layout.Names() {
		out[name] = v.values[i]
	}
	return out
}

// Group returns the features of a group keyed by name.
func (v *Vector) Group(g Group) map[string]float64 {
	out := make(map[string]float64)
	for _, name := range v.layout.Group(g) {
		out[name] = v.Get(name)
	}
	return out
}

// FromMap builds a pair vector from named values. Names missing from the map
// are zero; names unknown to the layout are an error.
func FromMap(candidateID, jobID string, values map[string]float64) (*Vector, error) {
	v := newVector(pairLayout, candidateID, jobID)
	for name, value := range values {
		i, ok := pairLayout.Index(name)
		if !ok {
			return nil, fmt.Errorf("unknown feature %q for layout %s", name, pairLayout.Version)
		}
		v.values[i] = value
	}
	return v, nil
}
