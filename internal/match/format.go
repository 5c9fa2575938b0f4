package match

import (
	"fmt"
	"strings"
)

// Format renders an explanation as plain text for terminals and logs.
func Format(e Explanation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Match %s / %s\n", e.CandidateID, e.JobID)
	fmt.Fprintf(&b, "Similarity: %.3f  Overall score: %.0f%%\n", e.Similarity, e.Overall*100)

	if len(e.FailedGates) > 0 {
		b.WriteString("\nRejected by hard filter:\n")
		for i, gate := range e.FailedGates {
			reason := ""
			if i < len(e.Reasons) {
				reason = e.Reasons[i]
			}
			fmt.Fprintf(&b, "  ! %s: %s\n", gate, reason)
		}
	}

	section(&b, "Education", e.Education.Score, e.Education.Reason,
		fmt.Sprintf("degree %d, required %d, field match %.2f", e.Education.Degree, e.Education.RequiredDegree, e.Education.FieldMatch))
	section(&b, "Experience", e.Experience.Score, e.Experience.Reason, e.Experience.Summary)

	langs := make([]string, 0, len(e.Languages.Checks))
	for _, c := range e.Languages.Checks {
		mark := "ok"
		if !c.Passed {
			mark = "below"
		}
		kind := "preferred"
		if c.Mandatory {
			kind = "mandatory"
		}
		langs = append(langs, fmt.Sprintf("%s %d/%d %s (%s)", c.Language, c.Declared, c.Required, mark, kind))
	}
	section(&b, "Languages", e.Languages.Score, e.Languages.Reason, langs...)

	skills := []string{"matched: " + orNone(e.Skills.Matched)}
	if len(e.Skills.MissingMandatory) > 0 {
		skills = append(skills, "missing mandatory: "+orNone(e.Skills.MissingMandatory))
	}
	if len(e.Skills.Missing) > 0 {
		skills = append(skills, "missing: "+orNone(e.Skills.Missing))
	}
	section(&b, "Skills", e.Skills.Score, e.Skills.Reason, skills...)

	loc := []string{fmt.Sprintf("presence %s", e.Location.Presence)}
	if e.Location.DistanceKm != nil {
		loc = append(loc, fmt.Sprintf("distance %.0f km", *e.Location.DistanceKm))
	}
	fmt.Fprintf(&b, "\nLOCATION\n")
	for _, l := range loc {
		fmt.Fprintf(&b, "  %s\n", l)
	}
	fmt.Fprintf(&b, "  -> %s\n", e.Location.Reason)

	fmt.Fprintf(&b, "\nMANDATORY CRITERIA\n")
	for _, r := range e.Criteria.Results {
		mark := "+"
		if !r.Passed {
			mark = "-"
		}
		fmt.Fprintf(&b, "  %s %s\n", mark, r.ID)
	}
	fmt.Fprintf(&b, "  -> %s\n", e.Criteria.Reason)

	if len(e.Strengths) > 0 {
		b.WriteString("\nStrengths:\n")
		for _, s := range e.Strengths {
			fmt.Fprintf(&b, "  + %s\n", s)
		}
	}
	if len(e.Weaknesses) > 0 {
		b.WriteString("\nAreas for improvement:\n")
		for _, w := range e.Weaknesses {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
	}
	return b.String()
}

func section(b *strings.Builder, title string, score float64, reason string, lines ...string) {
	fmt.Fprintf(b, "\n%s (%.2f)\n", strings.ToUpper(title), score)
	for _, l := range lines {
		fmt.Fprintf(b, "  %s\n", l)
	}
	fmt.Fprintf(b, "  -> %s\n", reason)
}

func orNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
