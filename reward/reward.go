// Package reward implements the reward function: a scalar combining
// trace-signature entropy with a soft penalty on trace volume past a
// configured budget, so the agent learns to surface rare/interesting
// traces rather than maximize raw throughput.
package reward

import "math"

// Coefficients are the reward's tunable knobs. The outer hyperparameter
// search tunes Alpha and Beta; the rest are held fixed per trial.
type Coefficients struct {
	Alpha float64 // weight on entropy
	Beta  float64 // weight on the volume penalty
	C     float64 // soft trace-count budget
	K     float64 // logistic steepness
	M     float64 // logistic midpoint, as a fraction of C
}

// DefaultCoefficients returns reasonable working defaults. Midpoint M is
// kept as a configuration parameter rather than a fixed constant, since
// reasonable values disagree between roughly 0.10 and 0.20; 0.15 is the
// default, not a claim that one or the other is correct.
func DefaultCoefficients() Coefficients {
	return Coefficients{Alpha: 1.0, Beta: 1.0, C: 12000, K: 25, M: 0.15}
}

// Of computes reward = α·(H/10) − β·σ(k·(n/C − m)).
func Of(h float64, n int, c Coefficients) float64 {
	x := c.K * (float64(n)/c.C - c.M)
	return c.Alpha*(h/10.0) - c.Beta*logistic(x)
}

func logistic(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
