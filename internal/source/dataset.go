// Package source loads candidates, job postings and their interaction history
// from files or from a paged HTTP API.
package source

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/spigell/jobmatch/internal/profile"
)

// Interaction outcomes. Applied and accepted pairs are training positives.
const (
	OutcomeViewed   = "viewed"
	OutcomeApplied  = "applied"
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)

type Interaction struct {
	CandidateID string     `json:"candidate_id"`
	JobID       string     `json:"job_id"`
	Outcome     string     `json:"outcome"`
	At          *time.Time `json:"at,omitempty"`
}

func (i Interaction) Positive() bool {
	switch strings.ToLower(strings.TrimSpace(i.Outcome)) {
	case OutcomeApplied, OutcomeAccepted:
		return true
	}
	return false
}

type Dataset struct {
	Candidates   []*profile.Candidate  `json:"candidates"`
	Jobs         []*profile.JobPosting `json:"jobs"`
	Interactions []Interaction         `json:"interactions,omitempty"`
}

// Pair is a labeled positive (candidate, job) pair.
type Pair struct {
	Candidate *profile.Candidate
	Job       *profile.JobPosting
}

func (d *Dataset) CandidatePool() *profile.Candidates {
	return &profile.Candidates{Items: d.Candidates}
}

func (d *Dataset) JobPool() *profile.Jobs {
	return &profile.Jobs{Items: d.Jobs}
}

// Positives resolves the positive interactions to pairs. Interactions that
// reference unknown entities are returned separately.
func (d *Dataset) Positives() (pairs []Pair, dangling []Interaction) {
	candidates := make(map[string]*profile.Candidate, len(d.Candidates))
	for _, c := range d.Candidates {
		if c != nil {
			candidates[c.ID] = c
		}
	}
	jobs := make(map[string]*profile.JobPosting, len(d.Jobs))
	for _, j := range d.Jobs {
		if j != nil {
			jobs[j.ID] = j
		}
	}

	for _, in := range d.Interactions {
		if !in.Positive() {
			continue
		}
		c, okC := candidates[in.CandidateID]
		j, okJ := jobs[in.JobID]
		if !okC || !okJ {
			dangling = append(dangling, in)
			continue
		}
		pairs = append(pairs, Pair{Candidate: c, Job: j})
	}
	return pairs, dangling
}

// Split shuffles the pairs with the seed and holds out the given share for validation.
func Split(pairs []Pair, validation float64, seed int64) (train, held []Pair) {
	shuffled := make([]Pair, len(pairs))
	rng := rand.New(rand.NewSource(seed))
	for i, j := range rng.Perm(len(pairs)) {
		shuffled[i] = pairs[j]
	}

	n := int(float64(len(pairs)) * validation)
	if validation > 0 && n == 0 && len(pairs) > 1 {
		n = 1
	}
	return shuffled[n:], shuffled[:n]
}

// LoadFile reads a dataset from a JSON or YAML file, chosen by extension.
func LoadFile(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	var raw map[string]any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &raw)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}

	var ds Dataset
	if err := decode(raw, &ds); err != nil {
		return nil, fmt.Errorf("decode dataset %s: %w", path, err)
	}
	return &ds, nil
}
