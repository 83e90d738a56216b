// Package metrics exposes the controller's ambient Prometheus
// instrumentation, grounded in node-cache's initMetrics/serveMetrics
// pattern: a package-level set of collectors, one registration call, and
// a background HTTP server for /metrics.
package metrics

import (
	"context"
	"net"
	"net/http"

	log "github.com/cihub/seelog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rlctl"

var (
	// EpisodeReward is the reward recorded at the end of each episode.
	EpisodeReward = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "episode_reward",
		Help:      "Reward recorded for the most recently completed episode.",
	})

	// EpisodeEntropy is the signature entropy recorded at the end of each
	// episode.
	EpisodeEntropy = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "episode_entropy",
		Help:      "Trace signature entropy (bits) for the most recently completed episode.",
	})

	// EpisodeTraceCount is the number of traces fetched for the most
	// recently completed episode.
	EpisodeTraceCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "episode_trace_count",
		Help:      "Number of traces fetched for the most recently completed episode.",
	})

	// ThetaComponent is the current value of each policy's θ component,
	// labeled by catalog index.
	ThetaComponent = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "theta",
		Help:      "Current per-policy activation probability.",
	}, []string{"policy_index"})

	// RolloutDuration observes how long each rollout took to become ready.
	RolloutDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rollout_duration_seconds",
		Help:      "Time from config push to workload readiness.",
		Buckets:   prometheus.DefBuckets,
	})

	// TrialAborts counts trials that ended early due to a trace-store or
	// orchestrator failure, labeled by the failing collaborator.
	TrialAborts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trial_aborts_total",
		Help:      "Number of trials aborted early, by failing collaborator.",
	}, []string{"collaborator"})
)

func init() {
	prometheus.MustRegister(EpisodeReward, EpisodeEntropy, EpisodeTraceCount, ThetaComponent, RolloutDuration, TrialAborts)
}

// Serve starts the /metrics HTTP server on addr in the background. It
// returns once the listener is bound; the server itself runs until ctx is
// canceled.
func Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics: server on %s stopped: %v", addr, err)
		}
	}()

	log.Infof("metrics: serving on %s/metrics", addr)
	return nil
}
