// Package match holds recommendation results and the structured
// explanations attached to them.
package match

import (
	"github.com/spigell/jobmatch/internal/filtering"
	"github.com/spigell/jobmatch/internal/scoring"
)

// Result is one ranked (candidate, job) pair. It is built per call and never stored.
type Result struct {
	CandidateID string            `json:"candidate_id"`
	JobID       string            `json:"job_id"`
	Rank        int               `json:"rank"`
	Similarity  float64           `json:"similarity"`
	Scores      scoring.Scores    `json:"scores"`
	Verdict     filtering.Verdict `json:"verdict"`
	// RerankScore is set when a reranker reordered the list.
	RerankScore *float64     `json:"rerank_score,omitempty"`
	Explanation *Explanation `json:"explanation,omitempty"`
}
