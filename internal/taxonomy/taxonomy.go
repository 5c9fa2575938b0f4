// Package taxonomy maps free-text skill names and job titles to canonical IDs.
package taxonomy

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spigell/jobmatch/internal/textnorm"
)

// File is the on-disk layout of a taxonomy: canonical ID to aliases.
type File struct {
	Skills map[string][]string `yaml:"skills"`
	Titles map[string][]string `yaml:"titles"`
}

// Static is an in-memory taxonomy. Unknown names map to their normalized form,
// so two spellings of an unlisted skill still match each other.
type Static struct {
	skills map[string]string
	titles map[string]string
}

// New builds a taxonomy from the provided file contents.
func New(f File) *Static {
	return &Static{
		skills: index(f.Skills),
		titles: index(f.Titles),
	}
}

// Default returns the built-in taxonomy.
func Default() *Static {
	return New(defaults)
}

// Load reads a YAML taxonomy file and merges it over the built-in entries.
func Load(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading taxonomy file %q: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing taxonomy file %q: %w", path, err)
	}

	merged := File{Skills: merge(defaults.Skills, f.Skills), Titles: merge(defaults.Titles, f.Titles)}
	return New(merged), nil
}

func (s *Static) MapSkill(_ context.Context, name string) (string, error) {
	return lookup(s.skills, name), nil
}

func (s *Static) MapTitle(_ context.Context, title string) (string, error) {
	return lookup(s.titles, title), nil
}

// SkillIDs lists the canonical skill IDs, sorted.
func (s *Static) SkillIDs() []string {
	return values(s.skills)
}

func lookup(table map[string]string, name string) string {
	key := textnorm.Normalize(name)
	if key == "" {
		return ""
	}
	if id, ok := table[key]; ok {
		return id
	}
	return key
}

func index(groups map[string][]string) map[string]string {
	table := make(map[string]string)
	for id, aliases := range groups {
		canonical := strings.TrimSpace(id)
		if canonical == "" {
			continue
		}
		table[textnorm.Normalize(canonical)] = canonical
		for _, alias := range aliases {
			if key := textnorm.Normalize(alias); key != "" {
				table[key] = canonical
			}
		}
	}
	return table
}

func merge(base, extra map[string][]string) map[string][]string {
	out := make(map[string][]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = append([]string(nil), v...)
	}
	for k, v := range extra {
		out[k] = append(out[k], v...)
	}
	return out
}

func values(table map[string]string) []string {
	seen := make(map[string]struct{})
	for _, id := range table {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var defaults = File{
	Skills: map[string][]string{
		"python":           {"py", "python3"},
		"go":               {"golang", "go lang"},
		"javascript":       {"js", "ecmascript"},
		"typescript":       {"ts"},
		"java":             {},
		"c++":              {"cpp", "cplusplus"},
		"sql":              {"postgresql", "mysql", "t-sql"},
		"machine_learning": {"machine learning", "ml"},
		"deep_learning":    {"deep learning", "dl", "neural networks"},
		"data_analysis":    {"data analysis", "data analytics", "analytics"},
		"statistics":       {"statistical analysis", "stats"},
		"pytorch":          {"torch"},
		"tensorflow":       {"tf", "keras"},
		"kubernetes":       {"k8s"},
		"docker":           {"containers"},
		"aws":              {"amazon web services"},
		"research":         {"scientific research", "academic research"},
	},
	Titles: map[string][]string{
		"software_engineer":  {"software engineer", "software developer", "developer", "programmer", "backend developer", "backend engineer", "full stack developer"},
		"data_scientist":     {"data scientist", "ml engineer", "machine learning engineer"},
		"data_analyst":       {"data analyst", "business analyst", "bi analyst"},
		"research_scientist": {"research scientist", "researcher", "research assistant", "postdoc", "postdoctoral researcher"},
		"devops_engineer":    {"devops engineer", "site reliability engineer", "sre", "platform engineer"},
		"product_manager":    {"product manager", "product owner"},
		"project_manager":    {"project manager", "program manager"},
	},
}
