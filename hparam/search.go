// Package hparam implements an optional hyperparameter search driver: a
// tree-structured Parzen Estimator-style black-box search over the
// reward function's (alpha, beta) weights, nesting short episode-loop
// trials and maximizing their mean reward.
//
// No available Bayesian-optimization or TPE library fit this use case,
// so this is a from-scratch implementation built directly on
// gonum.org/v1/gonum/stat and stat/distuv -- the same statistics package
// the agent already depends on for sampling -- rather than a bare
// standard-library one. See DESIGN.md for the full justification.
package hparam

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Space bounds the two dimensions this search explores.
type Space struct {
	AlphaMin, AlphaMax float64
	BetaMin, BetaMax   float64
}

// DefaultSpace covers the usable range for the reward weights alpha and beta.
func DefaultSpace() Space {
	return Space{AlphaMin: 0.1, AlphaMax: 3.0, BetaMin: 0.1, BetaMax: 3.0}
}

// Trial is one evaluated (alpha, beta) point and the mean reward a short
// episode-loop run achieved with it.
type Trial struct {
	Alpha float64
	Beta  float64
	Score float64
}

// EvalFunc runs a short trial at the given coefficients and returns its
// mean reward. The caller supplies this -- typically a closure running a
// handful of episode.Controller.RunTrial episodes with
// reward.Coefficients{Alpha: alpha, Beta: beta, ...}.
type EvalFunc func(ctx context.Context, alpha, beta float64) (float64, error)

const (
	// warmupTrials is how many points are drawn uniformly at random before
	// the density-ratio model has enough data to be worth fitting.
	warmupTrials = 5

	// gamma is the quantile separating "good" from "bad" observed trials,
	// per the TPE splitting rule: the top gamma fraction by score is good.
	gamma = 0.25

	// candidatesPerStep is how many candidate points are drawn from the
	// good-side model before scoring them against the bad-side model and
	// keeping the best.
	candidatesPerStep = 24

	// minStd floors a fitted Gaussian's standard deviation so a
	// near-degenerate good/bad split (all scores equal, or a single
	// point) never collapses the search to a point mass.
	minStd = 1e-3
)

// Search drives repeated calls to an EvalFunc, proposing the next
// (alpha, beta) point to try from the trials observed so far.
type Search struct {
	space Space
	rng   *rand.Rand
}

// New constructs a Search over the given space. rng defaults to a new
// source seeded with 1 if nil.
func New(space Space, rng *rand.Rand) *Search {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Search{space: space, rng: rng}
}

// Run evaluates `budget` trials, each proposed from the trials observed so
// far, and returns the full history in evaluation order. It stops early
// and returns what it has if eval returns an error (e.g. the nested
// episode loop aborted).
func (s *Search) Run(ctx context.Context, budget int, eval EvalFunc) ([]Trial, error) {
	var history []Trial
	for i := 0; i < budget; i++ {
		alpha, beta := s.suggest(history)
		score, err := eval(ctx, alpha, beta)
		if err != nil {
			return history, fmt.Errorf("hparam: trial %d (alpha=%.3f beta=%.3f): %w", i, alpha, beta, err)
		}
		history = append(history, Trial{Alpha: alpha, Beta: beta, Score: score})
	}
	return history, nil
}

// Best returns the highest-scoring trial in history. Callers are expected
// to check len(history) > 0 first; Best panics on an empty history, same
// as indexing an empty slice would.
func Best(history []Trial) Trial {
	best := history[0]
	for _, t := range history[1:] {
		if t.Score > best.Score {
			best = t
		}
	}
	return best
}

// suggest proposes the next point to evaluate. With fewer than
// warmupTrials observations it samples uniformly at random over the
// space; afterward it fits independent 1-D Gaussians to the "good" and
// "bad" halves of the observed (alpha, beta) points (split by score at the
// gamma quantile), draws candidatesPerStep points from the good-side
// model, and keeps whichever candidate has the highest good/bad density
// ratio l(x)/g(x) -- the same Parzen-estimator intuition as a real TPE,
// reduced to two independent dimensions instead of a joint tree.
func (s *Search) suggest(history []Trial) (float64, float64) {
	if len(history) < warmupTrials {
		return s.uniform(s.space.AlphaMin, s.space.AlphaMax), s.uniform(s.space.BetaMin, s.space.BetaMax)
	}

	good, bad := s.split(history)

	goodAlpha := s.fitGaussian(extract(good, func(t Trial) float64 { return t.Alpha }))
	goodBeta := s.fitGaussian(extract(good, func(t Trial) float64 { return t.Beta }))
	badAlpha := s.fitGaussian(extract(bad, func(t Trial) float64 { return t.Alpha }))
	badBeta := s.fitGaussian(extract(bad, func(t Trial) float64 { return t.Beta }))

	type candidate struct {
		alpha, beta float64
		ratio       float64
	}
	best := candidate{ratio: -1}

	for i := 0; i < candidatesPerStep; i++ {
		alpha := clampTo(s.space.AlphaMin, s.space.AlphaMax, goodAlpha.Rand())
		beta := clampTo(s.space.BetaMin, s.space.BetaMax, goodBeta.Rand())

		ratio := densityRatio(goodAlpha, badAlpha, alpha) * densityRatio(goodBeta, badBeta, beta)
		if ratio > best.ratio {
			best = candidate{alpha: alpha, beta: beta, ratio: ratio}
		}
	}
	return best.alpha, best.beta
}

// split partitions history into the top gamma fraction by score ("good")
// and the rest ("bad"). The split is by count, so trials tied at the
// boundary score may land on either side. Both halves always get at
// least one point so the Gaussians below are always fittable.
func (s *Search) split(history []Trial) (good, bad []Trial) {
	sorted := append([]Trial(nil), history...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	n := len(sorted)
	cut := int(float64(n) * gamma)
	if cut < 1 {
		cut = 1
	}
	if cut >= n {
		cut = n - 1
	}
	return sorted[:cut], sorted[cut:]
}

func extract(trials []Trial, f func(Trial) float64) []float64 {
	out := make([]float64, len(trials))
	for i, t := range trials {
		out[i] = f(t)
	}
	return out
}

// fitGaussian fits a Normal distribution by moment matching, flooring the
// standard deviation at minStd so Rand/Prob never degenerate on a tight or
// single-point cluster.
func (s *Search) fitGaussian(values []float64) distuv.Normal {
	if len(values) == 1 {
		return distuv.Normal{Mu: values[0], Sigma: minStd, Src: s.rng}
	}
	mean, std := stat.MeanStdDev(values, nil)
	if std < minStd {
		std = minStd
	}
	return distuv.Normal{Mu: mean, Sigma: std, Src: s.rng}
}

// densityRatio scores x by how much more likely it is under the good
// model than the bad model, the expected-improvement proxy TPE maximizes.
func densityRatio(good, bad distuv.Normal, x float64) float64 {
	const floor = 1e-12
	l := good.Prob(x)
	g := bad.Prob(x)
	if g < floor {
		g = floor
	}
	return l / g
}

func (s *Search) uniform(min, max float64) float64 {
	return min + s.rng.Float64()*(max-min)
}

func clampTo(min, max, v float64) float64 {
	switch {
	case v < min:
		return min
	case v > max:
		return max
	default:
		return v
	}
}
