// Command rl-controller drives the closed-loop tail-sampling tuner: a
// `run` subcommand executes the episode loop for one or more trials,
// and a `search` subcommand wraps short nested runs of it in the
// hyperparameter search driver. Flag/command wiring follows spf13/cobra
// and spf13/pflag's documented Command/RunE convention (see DESIGN.md).
//
// Neither subcommand drives a real Kubernetes rollout: rollout.Orchestrator
// is the collaborator left deliberately unimplemented, so both commands
// actuate against an immediately-ready stand-in. Wiring a real
// orchestrator client only requires supplying a rollout.Orchestrator to
// newEpisodeController; nothing else in this file changes.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"

	log "github.com/cihub/seelog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DataDog/sampling-rl-controller/agent"
	"github.com/DataDog/sampling-rl-controller/builder"
	"github.com/DataDog/sampling-rl-controller/catalog"
	"github.com/DataDog/sampling-rl-controller/config"
	"github.com/DataDog/sampling-rl-controller/episode"
	"github.com/DataDog/sampling-rl-controller/hparam"
	"github.com/DataDog/sampling-rl-controller/internal/watchdog"
	"github.com/DataDog/sampling-rl-controller/metrics"
	"github.com/DataDog/sampling-rl-controller/reward"
	"github.com/DataDog/sampling-rl-controller/rollout"
	"github.com/DataDog/sampling-rl-controller/tracestore"
	"github.com/DataDog/sampling-rl-controller/tracestore/elastic"
)

var configPath string

func main() {
	defer watchdog.LogOnPanic()
	defer log.Flush()

	root := &cobra.Command{
		Use:   "rl-controller",
		Short: "Closed-loop tail-sampling policy tuner",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	run := &cobra.Command{
		Use:   "run",
		Short: "Run the episode loop for one or more trials",
		RunE:  runCommand,
	}
	config.BindFlags(run.Flags())

	search := &cobra.Command{
		Use:   "search",
		Short: "Search reward-weight hyperparameters by nesting short trials",
		RunE:  searchCommand,
	}
	config.BindFlags(search.Flags())
	search.Flags().Int("search-budget", 20, "number of nested trials to evaluate")

	root.AddCommand(run, search)

	if err := root.Execute(); err != nil {
		log.Errorf("rl-controller: %v", err)
		os.Exit(1)
	}
}

func newContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// loadCatalogAndStore wires the two collaborators actuated in-process:
// the policy catalog and the trace store.
func loadCatalogAndStore(cfg *config.Config) (catalog.Catalog, tracestore.Fetcher, error) {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, nil, err
	}
	store, err := elastic.New(cfg.ElasticAddresses, cfg.ElasticIndex)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to trace store: %w", err)
	}
	return cat, store, nil
}

// newEpisodeController assembles a Controller for one trial of the run
// command. orch is injected so the caller chooses the rollout behavior;
// the search command builds its nested trials in evalTrial instead.
func newEpisodeController(cfg *config.Config, cat catalog.Catalog, fetcher tracestore.Fetcher, orch rollout.Orchestrator) (*episode.Controller, *agent.Agent, error) {
	seed, err := agent.LoadSeed(cfg.SeedPath)
	if err != nil {
		return nil, nil, err
	}
	a, err := agent.New(len(cat), seed, cfg.LearningRate, rand.New(rand.NewSource(1)))
	if err != nil {
		return nil, nil, err
	}

	b := builder.New(cfg.Topology(), nil)
	rc := rollout.New(orch, cfg.ConfigName, cfg.WorkloadName, cfg.PollInterval)

	c := episode.New(episode.Dependencies{
		Agent:   a,
		Catalog: cat,
		Builder: b,
		Rollout: rc,
		Fetcher: fetcher,
	}, episode.Config{
		EntropyOrder: cfg.EntropyAlpha,
		Reward:       cfg.RewardCoefficients(),
		SettleDelay:  cfg.SettleDelay(),
		CanonOptions: cfg.CanonOptions(),
	})
	return c, a, nil
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}

	ctx, cancel := newContext()
	defer cancel()

	if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
		return fmt.Errorf("starting metrics server: %w", err)
	}

	cat, fetcher, err := loadCatalogAndStore(cfg)
	if err != nil {
		return err
	}

	// The trial loop runs on its own goroutine, bounded by ctx, so a
	// Ctrl+C during a long wait_ready poll unwinds cleanly: RunTrial
	// observes ctx.Done() inside rollout.Controller.waitReady and returns,
	// letting the history/theta save below still run.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for trial := 1; trial <= cfg.Trials; trial++ {
			c, a, err := newEpisodeController(cfg, cat, fetcher, noopOrchestrator{})
			if err != nil {
				return err
			}

			history, runErr := c.RunTrial(gctx, cfg.Episodes)
			if err := episode.SaveHistory(cfg.HistoryDir, trial, history); err != nil {
				log.Errorf("run: trial %d: saving history: %v", trial, err)
			}
			if err := episode.SaveTheta(cfg.HistoryDir, trial, a); err != nil {
				log.Errorf("run: trial %d: saving theta: %v", trial, err)
			}
			if runErr != nil {
				return fmt.Errorf("run: trial %d aborted: %w", trial, runErr)
			}
			log.Infof("run: trial %d complete, mean reward %.4f", trial, episode.MeanReward(history))
		}
		return nil
	})
	return g.Wait()
}

func searchCommand(cmd *cobra.Command, args []string) error {
	budget, err := cmd.Flags().GetInt("search-budget")
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}

	ctx, cancel := newContext()
	defer cancel()

	cat, fetcher, err := loadCatalogAndStore(cfg)
	if err != nil {
		return err
	}

	search := hparam.New(hparam.DefaultSpace(), rand.New(rand.NewSource(1)))
	history, err := search.Run(ctx, budget, func(ctx context.Context, alpha, beta float64) (float64, error) {
		rc := cfg.RewardCoefficients()
		rc.Alpha, rc.Beta = alpha, beta
		return evalTrial(ctx, cfg, cat, fetcher, rc)
	})
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return fmt.Errorf("search: no trials completed")
	}

	best := hparam.Best(history)
	log.Infof("search: best alpha=%.3f beta=%.3f mean_reward=%.4f", best.Alpha, best.Beta, best.Score)
	return nil
}

// evalTrial runs one short, in-process episode-loop trial for the search
// driver. It only needs relative reward comparisons between candidate
// coefficients, not real actuation against the orchestrator, so it always
// uses the immediately-ready stand-in regardless of environment.
func evalTrial(ctx context.Context, cfg *config.Config, cat catalog.Catalog, fetcher tracestore.Fetcher, rc reward.Coefficients) (float64, error) {
	a, err := agent.New(len(cat), nil, cfg.LearningRate, rand.New(rand.NewSource(1)))
	if err != nil {
		return 0, err
	}
	b := builder.New(cfg.Topology(), nil)
	rollC := rollout.New(noopOrchestrator{}, cfg.ConfigName, cfg.WorkloadName, 0)

	c := episode.New(episode.Dependencies{
		Agent:   a,
		Catalog: cat,
		Builder: b,
		Rollout: rollC,
		Fetcher: fetcher,
	}, episode.Config{
		EntropyOrder: cfg.EntropyAlpha,
		Reward:       rc,
		SettleDelay:  0,
		CanonOptions: cfg.CanonOptions(),
	})

	history, err := c.RunTrial(ctx, 5)
	if err != nil {
		return 0, err
	}
	return episode.MeanReward(history), nil
}

// noopOrchestrator reports every workload immediately ready. It stands in
// for rollout.Orchestrator everywhere in this command until a real
// Kubernetes (or other) client is wired in -- see the package comment.
type noopOrchestrator struct{}

func (noopOrchestrator) UpsertConfig(ctx context.Context, name, document string) error { return nil }
func (noopOrchestrator) PatchWorkloadAnnotation(ctx context.Context, workload, identifier string) error {
	return nil
}
func (noopOrchestrator) ReadReplicas(ctx context.Context, workload string) (int, int, error) {
	return 1, 1, nil
}
