// Package entropy computes Rényi (or Shannon, at order 1) entropy in
// base 2 over a multiset of trace signatures. Ported from
// original_source/rlagente/es_utils.py's calcular_entropia, generalized
// from a hardcoded env lookup to an explicit order parameter.
package entropy

import "math"

// minSum floors the Σ p_i^α term before taking its log, guarding the
// α != 1 branch against log(0) when every probability underflows for
// large α.
const minSum = 1e-300

// shannonBoundary is how close order must be to 1.0 to use the Shannon
// formula instead of the general Rényi one, avoiding the 1/(1-α)
// division blowing up near α = 1.
const shannonBoundary = 1e-12

// Of computes the order-`order` Rényi entropy (base 2) of the multiset of
// signatures. order == 1.0 (within shannonBoundary) computes Shannon
// entropy. An empty input returns 0.
func Of(signatures []string, order float64) float64 {
	if len(signatures) == 0 {
		return 0
	}

	counts := make(map[string]int, len(signatures))
	for _, s := range signatures {
		counts[s]++
	}

	total := float64(len(signatures))
	probs := make([]float64, 0, len(counts))
	for _, c := range counts {
		probs = append(probs, float64(c)/total)
	}

	if math.Abs(order-1.0) < shannonBoundary {
		return shannon(probs)
	}
	return renyi(probs, order)
}

func shannon(probs []float64) float64 {
	var h float64
	for _, p := range probs {
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h
}

func renyi(probs []float64, order float64) float64 {
	var sum float64
	for _, p := range probs {
		sum += math.Pow(p, order)
	}
	sum = math.Max(sum, minSum)
	return (1.0 / (1.0 - order)) * math.Log2(sum)
}
