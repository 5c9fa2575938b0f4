package training

import (
	"math"
	"sort"
)

// DCGAtK is the discounted cumulative gain of relevances already in ranked order.
func DCGAtK(relevances []float64, k int) float64 {
	if k > len(relevances) {
		k = len(relevances)
	}
	dcg := 0.0
	for i := 0; i < k; i++ {
		dcg += (math.Pow(2, relevances[i]) - 1) / math.Log2(float64(i)+2)
	}
	return dcg
}

// NDCGAtK ranks items by score (ties by index) and compares the gain with
// the ideal order. It is 0 when nothing is relevant.
func NDCGAtK(relevances, scores []float64, k int) float64 {
	if len(relevances) == 0 || len(relevances) != len(scores) || k <= 0 {
		return 0
	}
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	ranked := make([]float64, len(order))
	for i, idx := range order {
		ranked[i] = relevances[idx]
	}
	ideal := append([]float64(nil), relevances...)
	sort.Sort(sort.Reverse(sort.Float64Slice(ideal)))

	idcg := DCGAtK(ideal, k)
	if idcg == 0 {
		return 0
	}
	return DCGAtK(ranked, k) / idcg
}

// MeanNDCGAtK averages NDCGAtK over queries.
func MeanNDCGAtK(relevances, scores [][]float64, k int) float64 {
	n := min(len(relevances), len(scores))
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += NDCGAtK(relevances[i], scores[i], k)
	}
	return sum / float64(n)
}
