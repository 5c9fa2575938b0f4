package profile

import (
	"regexp"
	"strconv"
	"strings"
)

// Degree ordinals. Zero means unknown.
const (
	DegreeUnknown   = 0
	DegreeSecondary = 1
	DegreeBachelor  = 2
	DegreeMaster    = 3
	DegreeDoctorate = 4
)

// Language ordinals. Zero means the language is absent.
const (
	LanguageAbsent = 0
	LanguageNative = 7
)

var degreeKeywords = []struct {
	level    int
	keywords []string
}{
	{DegreeDoctorate, []string{"phd", "ph.d", "doctor", "doctorate", "candidate of sciences"}},
	{DegreeMaster, []string{"master", "msc", "m.sc", "mba", "magistr", "specialist"}},
	{DegreeBachelor, []string{"bachelor", "bsc", "b.sc", "ba", "bs", "undergraduate"}},
	{DegreeSecondary, []string{"high school", "secondary", "college", "diploma"}},
}

// DegreeLevel maps a degree name to its ordinal. Numeric strings 1..4 are accepted.
func DegreeLevel(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DegreeUnknown
	}
	if n, err := strconv.Atoi(s); err == nil && n >= DegreeSecondary && n <= DegreeDoctorate {
		return n
	}
	words := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '/' || r == '-' || r == '(' || r == ')'
	})
	for _, d := range degreeKeywords {
		for _, kw := range d.keywords {
			if strings.Contains(kw, " ") || strings.Contains(kw, ".") || len(kw) > 3 {
				if strings.Contains(s, kw) {
					return d.level
				}
				continue
			}
			// short abbreviations must match a whole word
			for _, w := range words {
				if w == kw {
					return d.level
				}
			}
		}
	}
	return DegreeUnknown
}

var cefr = map[string]int{
	"a1": 1, "a2": 2, "b1": 3, "b2": 4, "c1": 5, "c2": 6,
	"native": LanguageNative, "mother tongue": LanguageNative,
}

// LanguageLevel maps a CEFR level (or "native") to its ordinal. Numeric strings 1..7 are accepted.
func LanguageLevel(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LanguageAbsent
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= LanguageNative {
		return n
	}
	if n, ok := cefr[s]; ok {
		return n
	}
	// "B2 - upper intermediate"
	if len(s) >= 2 {
		if n, ok := cefr[s[:2]]; ok {
			return n
		}
	}
	return LanguageAbsent
}

var yearsPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)`)

// ExperienceLevelYears maps experience level text to the expected years.
func ExperienceLevelYears(s string) float64 {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "":
		return 0
	case strings.Contains(s, "entry"), strings.Contains(s, "junior"), strings.Contains(s, "intern"):
		return 0
	case strings.Contains(s, "senior"), strings.Contains(s, "lead"), strings.Contains(s, "5+"):
		return 5
	case strings.Contains(s, "mid"), strings.Contains(s, "2-5"):
		return 3
	}
	if m := yearsPattern.FindString(s); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			return v
		}
	}
	return 2
}
