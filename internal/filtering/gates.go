package filtering

import (
	"fmt"
	"strings"

	"github.com/spigell/jobmatch/internal/features"
	"github.com/spigell/jobmatch/internal/profile"
)

const (
	GateMandatoryCriteria  = "mandatory_criteria"
	GateMandatoryLanguages = "mandatory_languages"
	GateLocation           = "location"
)

type mandatoryCriteriaGate struct{}

// NewMandatoryCriteria rejects pairs where any mandatory criterion fails.
func NewMandatoryCriteria() Gate {
	return mandatoryCriteriaGate{}
}

func (mandatoryCriteriaGate) Name() string { return GateMandatoryCriteria }

func (mandatoryCriteriaGate) Check(_ *profile.Candidate, _ *profile.JobPosting, v *features.Vector) (bool, string) {
	if v.Get(features.MandatoryCriteriaAllPass) == 1 {
		return true, ""
	}
	var failed []string
	for _, res := range v.Details.Criteria {
		if !res.Passed {
			failed = append(failed, res.ID)
		}
	}
	return false, fmt.Sprintf("mandatory criteria not met: %s", strings.Join(failed, ", "))
}

type mandatoryLanguagesGate struct{}

// NewMandatoryLanguages rejects pairs where a mandatory language is below the required level.
func NewMandatoryLanguages() Gate {
	return mandatoryLanguagesGate{}
}

func (mandatoryLanguagesGate) Name() string { return GateMandatoryLanguages }

func (mandatoryLanguagesGate) Check(_ *profile.Candidate, _ *profile.JobPosting, v *features.Vector) (bool, string) {
	if v.Get(features.AllMandatoryLanguagesOK) == 1 {
		return true, ""
	}
	var missing []string
	for _, g := range v.Details.Languages {
		if g.Mandatory && !g.OK() {
			missing = append(missing, fmt.Sprintf("%s (level %d, required %d)", g.Language, g.Declared, g.Required))
		}
	}
	return false, fmt.Sprintf("mandatory languages below required level: %s", strings.Join(missing, ", "))
}

type locationGate struct{}

// NewLocation rejects onsite pairs where the candidate is elsewhere and will not relocate.
// Online and hybrid postings always pass.
func NewLocation() Gate {
	return locationGate{}
}

func (locationGate) Name() string { return GateLocation }

func (locationGate) Check(c *profile.Candidate, j *profile.JobPosting, v *features.Vector) (bool, string) {
	if j.Mode() != profile.PresenceOnsite {
		return true, ""
	}
	if v.Get(features.LocationIsMatch) == 1 {
		return true, ""
	}
	return false, fmt.Sprintf("onsite job in %s, candidate in %s and not ready to relocate",
		orUnknown(j.Location.String()), orUnknown(c.Location.String()))
}

func (locationGate) Status() Status {
	return Status{
		Name:    GateLocation,
		Enabled: true,
		Details: map[string]string{"applies_to": string(profile.PresenceOnsite)},
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown location"
	}
	return s
}
