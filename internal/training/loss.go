package training

import (
	"math"

	"github.com/spigell/jobmatch/internal/tower"
)

// negative is a job embedding kept from an earlier batch. It takes part in
// the softmax but receives no gradient.
type negative struct {
	jobID string
	emb   tower.Embedding
}

// infoNCE is the candidate-to-job contrastive loss over the batch: row i
// scores cands[i] against every batch job and every cached negative, with
// jobs[i] as the target. Columns holding the same job as the target are
// masked, so a job that appears twice is never its own negative.
// It returns the mean loss and its gradients w.r.t. each embedding.
func infoNCE(cands, jobs []tower.Embedding, jobIDs []string, negatives []negative, tau float64) (float64, [][]float64, [][]float64) {
	b := len(cands)
	dC := zeros(b, dim(cands))
	dJ := zeros(b, dim(jobs))
	if b == 0 {
		return 0, dC, dJ
	}

	cols := b + len(negatives)
	logits := make([]float64, cols)
	valid := make([]bool, cols)
	total := 0.0

	for i := 0; i < b; i++ {
		top := math.Inf(-1)
		for k := 0; k < cols; k++ {
			var emb tower.Embedding
			var id string
			if k < b {
				emb, id = jobs[k], jobIDs[k]
			} else {
				emb, id = negatives[k-b].emb, negatives[k-b].jobID
			}
			valid[k] = k == i || id != jobIDs[i]
			if !valid[k] {
				continue
			}
			logits[k] = cands[i].Dot(emb) / tau
			top = math.Max(top, logits[k])
		}

		sum := 0.0
		for k := 0; k < cols; k++ {
			if valid[k] {
				sum += math.Exp(logits[k] - top)
			}
		}
		logZ := top + math.Log(sum)
		total += logZ - logits[i]

		for k := 0; k < cols; k++ {
			if !valid[k] {
				continue
			}
			p := math.Exp(logits[k] - logZ)
			g := p / float64(b)
			if k == i {
				g -= 1 / float64(b)
			}
			g /= tau

			if k < b {
				axpy(dC[i], g, jobs[k])
				axpy(dJ[k], g, cands[i])
				continue
			}
			axpy(dC[i], g, negatives[k-b].emb)
		}
	}
	return total / float64(b), dC, dJ
}

// targets are the interpretable signals the pair score is regressed on.
type targets struct {
	skillOverlap    float64
	languageGap     float64
	titleSimilarity float64
}

// auxiliary regresses the pair score (c·j+1)/2 on the targets and adds its
// gradients to dC and dJ.
func auxiliary(cands, jobs []tower.Embedding, tgs []targets, w AuxWeights, dC, dJ [][]float64) float64 {
	b := len(cands)
	if b == 0 || !w.enabled() {
		return 0
	}
	loss := 0.0
	for i := 0; i < b; i++ {
		pred := (cands[i].Dot(jobs[i]) + 1) / 2
		dPred := 0.0
		for _, t := range []struct{ weight, target float64 }{
			{w.SkillOverlap, tgs[i].skillOverlap},
			{w.LanguageGap, tgs[i].languageGap},
			{w.TitleSimilarity, tgs[i].titleSimilarity},
		} {
			if t.weight == 0 {
				continue
			}
			diff := pred - t.target
			loss += t.weight * diff * diff / float64(b)
			dPred += 2 * t.weight * diff / float64(b)
		}
		// d pred / d c = j/2 and d pred / d j = c/2
		axpy(dC[i], dPred/2, jobs[i])
		axpy(dJ[i], dPred/2, cands[i])
	}
	return loss
}

func axpy(dst []float64, a float64, x []float64) {
	for i := range dst {
		if i < len(x) {
			dst[i] += a * x[i]
		}
	}
}

func zeros(n, d int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, d)
	}
	return out
}

func dim(embs []tower.Embedding) int {
	if len(embs) == 0 {
		return 0
	}
	return len(embs[0])
}
