// Package episode implements the episode loop: it drives
// sample -> build -> rollout -> fetch -> canonicalize -> entropy -> reward
// -> update each episode, preserving the "previous identifier" invariant --
// the reward applied at episode e is computed from traces produced under
// episode e-1's configuration, never e's own.
//
// Ported in spirit from original_source/rlagente/manager.py's __main__
// loop, redesigned as a Controller value that owns its dependencies
// (agent, fetcher, canonicalizer, builder, rollout) injected at
// construction, rather than module-level globals and file paths.
package episode

import (
	"context"
	"fmt"
	"strconv"
	"time"

	log "github.com/cihub/seelog"

	"github.com/DataDog/sampling-rl-controller/agent"
	"github.com/DataDog/sampling-rl-controller/builder"
	"github.com/DataDog/sampling-rl-controller/canon"
	"github.com/DataDog/sampling-rl-controller/catalog"
	"github.com/DataDog/sampling-rl-controller/entropy"
	"github.com/DataDog/sampling-rl-controller/internal/watchdog"
	"github.com/DataDog/sampling-rl-controller/metrics"
	"github.com/DataDog/sampling-rl-controller/reward"
	"github.com/DataDog/sampling-rl-controller/rollout"
	"github.com/DataDog/sampling-rl-controller/trace"
	"github.com/DataDog/sampling-rl-controller/tracestore"
)

// sentinelID is the previous-identifier value used for episode 1, for
// which there is no prior configuration and therefore no traces to
// score.
const sentinelID = "init"

// Record is one episode's bookkeeping entry.
type Record struct {
	Episode      int       `json:"episode"`
	PreviousID   string    `json:"previous_id"`
	Reward       float64   `json:"reward"`
	Entropy      float64   `json:"entropy"`
	TraceCount   int       `json:"trace_count"`
	Action       []int     `json:"action"`
	ExperimentID string    `json:"experiment_id"`
	Timestamp    time.Time `json:"timestamp"`
}

// Config bundles the episode loop's tunables, distinct from its
// dependencies (see Controller).
type Config struct {
	EntropyOrder float64
	Reward       reward.Coefficients
	SettleDelay  time.Duration // post-episode sleep before the next one starts
	CanonOptions canon.Options
}

// Dependencies bundles the episode loop's collaborators, each owned
// exclusively by the Controller it is injected into.
type Dependencies struct {
	Agent    *agent.Agent
	Catalog  catalog.Catalog
	Builder  *builder.Builder
	Rollout  *rollout.Controller
	Fetcher  tracestore.Fetcher
	Sleep    func(time.Duration) // injected so tests don't really sleep
}

// Controller drives one trial's sequence of episodes. It is not safe for
// concurrent use -- at most one episode is ever in flight.
type Controller struct {
	deps Dependencies
	cfg  Config
}

// New constructs a Controller.
func New(deps Dependencies, cfg Config) *Controller {
	if deps.Sleep == nil {
		deps.Sleep = time.Sleep
	}
	return &Controller{deps: deps, cfg: cfg}
}

// RunTrial drives `episodes` episodes of the loop, returning whatever
// history was recorded even if it aborts partway through: a trial aborts
// on TraceStoreUnavailable or OrchestratorError, but partial history is
// always returned so the caller can persist it.
func (c *Controller) RunTrial(ctx context.Context, episodes int) ([]Record, error) {
	defer watchdog.LogOnPanic()

	previousID := sentinelID
	history := make([]Record, 0, episodes)

	for e := 1; e <= episodes; e++ {
		rec, nextID, err := c.runEpisode(ctx, e, previousID)
		if rec != nil {
			history = append(history, *rec)
		}
		if err != nil {
			return history, err
		}
		previousID = nextID

		if e < episodes {
			c.deps.Sleep(c.cfg.SettleDelay)
		}
	}
	return history, nil
}

// runEpisode executes one iteration of the per-episode sequence:
// sample -> build -> rollout -> fetch(previous) -> canonicalize
// -> entropy -> reward -> update. It returns the record for this episode
// and the identifier that becomes "previous" for the next episode. On any
// error the record is nil; a fetch failure happens after the new
// configuration has already been rolled out.
func (c *Controller) runEpisode(ctx context.Context, e int, previousID string) (*Record, string, error) {
	selected, action := c.deps.Agent.Sample(c.deps.Catalog)

	document, currentID, err := c.deps.Builder.Build(selected)
	if err != nil {
		return nil, previousID, fmt.Errorf("episode %d: building config: %w", e, err)
	}

	rolloutStart := time.Now()
	if err := c.deps.Rollout.Rollout(ctx, document, currentID); err != nil {
		metrics.TrialAborts.WithLabelValues("orchestrator").Inc()
		return nil, previousID, fmt.Errorf("episode %d: rolling out %s: %w", e, currentID, err)
	}
	metrics.RolloutDuration.Observe(time.Since(rolloutStart).Seconds())

	spans, err := c.fetchWithRetry(ctx, previousID)
	if err != nil {
		metrics.TrialAborts.WithLabelValues("tracestore").Inc()
		return nil, previousID, fmt.Errorf("episode %d: fetching spans for %s: %w", e, previousID, err)
	}

	sigs := canon.Canonicalize(spans, c.cfg.CanonOptions)
	sigList := make([]string, 0, len(sigs))
	for _, sig := range sigs {
		sigList = append(sigList, sig)
	}

	h := entropy.Of(sigList, c.cfg.EntropyOrder)
	n := len(sigList)
	r := reward.Of(h, n, c.cfg.Reward)

	// The previous-id rule in one line: this Update call scores the
	// configuration generated one episode ago, never the one just rolled
	// out above.
	c.deps.Agent.Update(r)

	metrics.EpisodeReward.Set(r)
	metrics.EpisodeEntropy.Set(h)
	metrics.EpisodeTraceCount.Set(float64(n))
	for i, p := range c.deps.Agent.Theta() {
		metrics.ThetaComponent.WithLabelValues(strconv.Itoa(i)).Set(p)
	}

	log.Infof("episode %d: previous_id=%s entropy=%.4f traces=%d reward=%.4f", e, previousID, h, n, r)

	return &Record{
		Episode:      e,
		PreviousID:   previousID,
		Reward:       r,
		Entropy:      h,
		TraceCount:   n,
		Action:       action,
		ExperimentID: currentID,
		Timestamp:    time.Now(),
	}, currentID, nil
}

// fetchWithRetry implements the local retry policy for a failed fetch:
// retry the whole fetch once; on a second failure, the caller aborts the
// trial.
func (c *Controller) fetchWithRetry(ctx context.Context, identifier string) ([]trace.Span, error) {
	spans, err := c.deps.Fetcher.FetchSpans(ctx, identifier)
	if err == nil {
		return spans, nil
	}
	log.Warnf("episode: fetch failed for %s, retrying once: %v", identifier, err)
	return c.deps.Fetcher.FetchSpans(ctx, identifier)
}
