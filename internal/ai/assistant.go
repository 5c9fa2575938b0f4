// Package ai declares the contracts of model-backed helpers used around the
// recommender core.
package ai

import (
	"context"

	"github.com/spigell/jobmatch/internal/profile"
)

// FitAssessment is a model's judgement of one (candidate, job) pair.
// Score is in [0, 1].
type FitAssessment struct {
	Fit     bool
	Score   float64
	Reason  string
	Message string
	Raw     string
}

// Matcher evaluates a single pair. It is used as the reranking stage of retrieval.
type Matcher interface {
	Evaluate(ctx context.Context, c *profile.Candidate, j *profile.JobPosting) (*FitAssessment, error)
}
