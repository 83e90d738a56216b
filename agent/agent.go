// Package agent implements a policy-gradient agent: a REINFORCE
// learner over independent per-policy Bernoulli parameters, with a moving
// baseline to reduce gradient variance. Ported from
// original_source/rlagente/agent.py's ReinforceAgent, generalized from a
// numpy vector to a plain Go slice and from ad-hoc file I/O to an
// explicit Load/Save pair the episode loop controls.
package agent

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"math/rand"
	"os"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/DataDog/sampling-rl-controller/catalog"
)

const (
	// MinProb and MaxProb bound every component of θ.
	MinProb = 0.01
	MaxProb = 0.99

	// BaselineDecay is ρ in b ← ρ·b + (1−ρ)·reward.
	BaselineDecay = 0.9
)

// Agent owns θ, the moving baseline, and the last sampled action vector.
// It is exclusively owned by one episode loop at a time; nothing else
// mutates its state.
type Agent struct {
	theta          []float64
	baseline       float64
	lastAction     []int
	learningRate   float64
	rng            *rand.Rand
}

// New constructs an agent for a catalog of the given size, with θ seeded
// from seed (or 0.5 everywhere if seed is nil), and the given learning
// rate η (typical range [0.05, 0.2]).
func New(numPolicies int, seed []float64, learningRate float64, rng *rand.Rand) (*Agent, error) {
	theta := make([]float64, numPolicies)
	if seed == nil {
		for i := range theta {
			theta[i] = 0.5
		}
	} else {
		if len(seed) != numPolicies {
			return nil, fmt.Errorf("agent: seed length %d does not match catalog length %d", len(seed), numPolicies)
		}
		copy(theta, seed)
		for i, p := range theta {
			theta[i] = clamp(p)
		}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Agent{theta: theta, learningRate: learningRate, rng: rng}, nil
}

// LoadSeed reads a JSON array of floats from an agent seed file. A
// missing file is not an error -- New's nil-seed default (0.5 everywhere)
// applies instead.
func LoadSeed(path string) ([]float64, error) {
	raw, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("agent: reading seed %s: %w", path, err)
	}
	var seed []float64
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("agent: parsing seed %s: %w", path, err)
	}
	return seed, nil
}

// Theta returns a defensive copy of the current parameter vector.
func (a *Agent) Theta() []float64 {
	return append([]float64(nil), a.theta...)
}

// Baseline returns the current moving-average baseline.
func (a *Agent) Baseline() float64 {
	return a.baseline
}

// Sample draws one action vector a ~ Bernoulli(θ) independently per index.
// If the draw is all-zero it forces exactly one index on, chosen uniformly
// at random, so the episode never actuates an empty configuration. It
// returns the selected templates
// plus the mandatory default fallback, and remembers the action vector for
// the next Update call.
func (a *Agent) Sample(cat catalog.Catalog) ([]catalog.Template, []int) {
	if len(cat) != len(a.theta) {
		panic(fmt.Sprintf("agent: catalog length %d does not match θ length %d", len(cat), len(a.theta)))
	}

	action := make([]int, len(a.theta))
	var selected []catalog.Template
	for i, p := range a.theta {
		if distuv.Bernoulli{P: p, Src: a.rng}.Rand() == 1 {
			action[i] = 1
			selected = append(selected, cat[i])
		}
	}

	if len(selected) == 0 {
		idx := a.rng.Intn(len(cat))
		action[idx] = 1
		selected = append(selected, cat[idx])
	}

	selected = append(selected, catalog.DefaultFallback())
	a.lastAction = action
	return selected, append([]int(nil), action...)
}

// Update applies one REINFORCE step from the observed reward: the moving
// baseline absorbs it, the advantage (reward minus baseline) scales the
// score-function gradient a−θ for independent Bernoullis, and θ is
// clamped back into [MinProb, MaxProb] -- any component driven outside
// that range by the update is silently clamped, never surfaced as an
// error.
func (a *Agent) Update(rewardValue float64) {
	a.baseline = BaselineDecay*a.baseline + (1-BaselineDecay)*rewardValue
	advantage := rewardValue - a.baseline

	for i := range a.theta {
		grad := float64(a.lastAction[i]) - a.theta[i]
		a.theta[i] = clamp(a.theta[i] + a.learningRate*advantage*grad)
	}
}

func clamp(p float64) float64 {
	switch {
	case p < MinProb:
		return MinProb
	case p > MaxProb:
		return MaxProb
	default:
		return p
	}
}

// Save writes θ to path as a JSON array, for trial-end persistence.
func (a *Agent) Save(path string) error {
	raw, err := json.Marshal(a.theta)
	if err != nil {
		return fmt.Errorf("agent: marshaling θ: %w", err)
	}
	if err := ioutil.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("agent: writing θ to %s: %w", path, err)
	}
	return nil
}
