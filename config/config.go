// Package config loads the controller's tunables from a YAML file, then
// layers environment variables and CLI flags on top, following the
// precedence order flag > env > file > default. The layering is built on
// viper (github.com/spf13/viper) bound to a pflag flag set, rather than a
// hand-rolled YAML merge, since nothing in this repo needs arbitrary-depth
// YAML merging -- only a fixed, known set of scalar knobs.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/DataDog/sampling-rl-controller/builder"
	"github.com/DataDog/sampling-rl-controller/canon"
	"github.com/DataDog/sampling-rl-controller/reward"
)

// Config holds every knob the controller exposes.
type Config struct {
	// Canonicalization
	QuantizeMS   int      `mapstructure:"quantize_ms"`
	QuantizeKeys []string `mapstructure:"quantize_keys"`

	// Entropy
	EntropyAlpha float64 `mapstructure:"entropy_alpha"` // order of the Rényi entropy

	// Trace store
	ElasticAddresses []string `mapstructure:"elastic_addresses"`
	ElasticIndex     string   `mapstructure:"elastic_index"`

	// Orchestrator
	Namespace    string `mapstructure:"namespace"`
	ConfigName   string `mapstructure:"config_name"`
	WorkloadName string `mapstructure:"workload_name"`

	// Reward
	RewardAlpha float64 `mapstructure:"reward_alpha"`
	RewardBeta  float64 `mapstructure:"reward_beta"`
	RewardC     float64 `mapstructure:"reward_c"`
	RewardK     float64 `mapstructure:"reward_k"`
	RewardM     float64 `mapstructure:"reward_m"`

	// Agent
	LearningRate float64 `mapstructure:"learning_rate"`
	CatalogPath  string  `mapstructure:"catalog_path"`
	SeedPath     string  `mapstructure:"seed_path"`

	// Trial/episode bookkeeping
	Episodes      int           `mapstructure:"episodes"`
	Trials        int           `mapstructure:"trials"`
	SettleSeconds int           `mapstructure:"settle_seconds"`
	HistoryDir    string        `mapstructure:"history_dir"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`

	// Collector topology (fixed shape, still overridable)
	OTLPHTTPEndpoint        string `mapstructure:"otlp_http_endpoint"`
	ExporterEndpoint        string `mapstructure:"exporter_endpoint"`
	PrometheusEndpoint      string `mapstructure:"prometheus_endpoint"`
	DecisionWaitSeconds     int    `mapstructure:"decision_wait_seconds"`
	NumTraces               int    `mapstructure:"num_traces"`
	ExpectedNewTracesPerSec int    `mapstructure:"expected_new_traces_per_sec"`

	// Metrics
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// defaults seeds viper with every knob's fallback value, used when neither
// the file, the environment, nor a flag sets it.
func defaults() map[string]interface{} {
	topo := builder.DefaultTopology()
	rc := reward.DefaultCoefficients()
	return map[string]interface{}{
		"quantize_ms":   200,
		"quantize_keys": []string{"duration_ms", "latency_ms", "http.duration_ms", "db.duration_ms"},
		"entropy_alpha": 1.0,

		"elastic_addresses": []string{"http://localhost:9200"},
		"elastic_index":     "jaeger-span-*",

		"namespace":     "default",
		"config_name":   "collector-config",
		"workload_name": "otel-collector",

		"reward_alpha": rc.Alpha,
		"reward_beta":  rc.Beta,
		"reward_c":     rc.C,
		"reward_k":     rc.K,
		"reward_m":     rc.M,

		"learning_rate": 0.1,
		"catalog_path":  "catalog.json",
		"seed_path":     "",

		"episodes":       50,
		"trials":         1,
		"settle_seconds": 30,
		"history_dir":    ".",
		"poll_interval":  2 * time.Second,

		"otlp_http_endpoint":           topo.OTLPHTTPEndpoint,
		"exporter_endpoint":            topo.ExporterEndpoint,
		"prometheus_endpoint":          topo.PrometheusEndpoint,
		"decision_wait_seconds":        topo.DecisionWaitSeconds,
		"num_traces":                   topo.NumTraces,
		"expected_new_traces_per_sec":  topo.ExpectedNewTracesPerSec,

		"metrics_addr": ":9465",
	}
}

// BindFlags registers every knob as a CLI flag on fs, for Load to read
// back at the top of the precedence chain. Callers pass the flag set
// cobra hands to a command's RunE.
func BindFlags(fs *pflag.FlagSet) {
	d := defaults()
	fs.Int("quantize-ms", d["quantize_ms"].(int), "tag quantization bucket width in milliseconds")
	fs.StringSlice("quantize-keys", d["quantize_keys"].([]string), "tag keys whose numeric values are quantized")
	fs.Float64("entropy-alpha", d["entropy_alpha"].(float64), "Rényi entropy order (1.0 = Shannon)")

	fs.StringSlice("elastic-addresses", d["elastic_addresses"].([]string), "Elasticsearch addresses")
	fs.String("elastic-index", d["elastic_index"].(string), "span index pattern")

	fs.String("namespace", d["namespace"].(string), "orchestrator namespace")
	fs.String("config-name", d["config_name"].(string), "collector config object name")
	fs.String("workload-name", d["workload_name"].(string), "collector workload name")

	fs.Float64("reward-alpha", d["reward_alpha"].(float64), "reward entropy weight")
	fs.Float64("reward-beta", d["reward_beta"].(float64), "reward volume-penalty weight")
	fs.Float64("reward-c", d["reward_c"].(float64), "soft trace-count budget")
	fs.Float64("reward-k", d["reward_k"].(float64), "reward logistic steepness")
	fs.Float64("reward-m", d["reward_m"].(float64), "reward logistic midpoint")

	fs.Float64("learning-rate", d["learning_rate"].(float64), "REINFORCE learning rate")
	fs.String("catalog-path", d["catalog_path"].(string), "policy catalog file")
	fs.String("seed-path", d["seed_path"].(string), "agent theta seed file")

	fs.Int("episodes", d["episodes"].(int), "episodes per trial")
	fs.Int("trials", d["trials"].(int), "number of trials to run")
	fs.Int("settle-seconds", d["settle_seconds"].(int), "delay between episodes")
	fs.String("history-dir", d["history_dir"].(string), "directory for trial history/theta files")
	fs.Duration("poll-interval", d["poll_interval"].(time.Duration), "rollout readiness poll interval")

	fs.String("otlp-http-endpoint", d["otlp_http_endpoint"].(string), "OTLP HTTP receiver endpoint")
	fs.String("exporter-endpoint", d["exporter_endpoint"].(string), "OTLP HTTP exporter endpoint")
	fs.String("prometheus-endpoint", d["prometheus_endpoint"].(string), "Prometheus exporter endpoint")
	fs.Int("decision-wait-seconds", d["decision_wait_seconds"].(int), "tail sampling decision wait")
	fs.Int("num-traces", d["num_traces"].(int), "tail sampling buffered trace count")
	fs.Int("expected-new-traces-per-sec", d["expected_new_traces_per_sec"].(int), "tail sampling rate hint")

	fs.String("metrics-addr", d["metrics_addr"].(string), "address to serve Prometheus metrics on")
}

// Load builds the effective Config: defaults, then an optional YAML file
// at path (if non-empty and present), then environment variables
// (RLCTL_<KNOB>, e.g. RLCTL_ENTROPY_ALPHA), then flags already parsed
// into fs -- each layer overriding the last.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("RLCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else if !os.IsNotExist(statErr) {
			return nil, fmt.Errorf("config: checking %s: %w", path, statErr)
		}
	}

	if fs != nil {
		// Flags are named with dashes (entropy-alpha) while config keys use
		// underscores (entropy_alpha), so each flag is bound under its key.
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("config: binding flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	return &cfg, nil
}

// Topology renders the collector topology this config implies, for
// builder.New.
func (c *Config) Topology() builder.Topology {
	return builder.Topology{
		OTLPHTTPEndpoint:        c.OTLPHTTPEndpoint,
		ExporterEndpoint:        c.ExporterEndpoint,
		PrometheusEndpoint:      c.PrometheusEndpoint,
		DecisionWaitSeconds:     c.DecisionWaitSeconds,
		NumTraces:               c.NumTraces,
		ExpectedNewTracesPerSec: c.ExpectedNewTracesPerSec,
	}
}

// RewardCoefficients renders the reward.Coefficients this config implies.
func (c *Config) RewardCoefficients() reward.Coefficients {
	return reward.Coefficients{
		Alpha: c.RewardAlpha,
		Beta:  c.RewardBeta,
		C:     c.RewardC,
		K:     c.RewardK,
		M:     c.RewardM,
	}
}

// SettleDelay renders SettleSeconds as a time.Duration for the episode loop.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.SettleSeconds) * time.Second
}

// CanonOptions renders the canon.Options this config implies, turning the
// QUANTIZE_KEYS CSV knob into the set canon.Canonicalize expects. An empty
// QuantizeKeys falls back to canon's own default set rather than an empty
// one, matching ENTROPY_ALPHA/QUANTIZE_MS's "default if absent" contract.
func (c *Config) CanonOptions() canon.Options {
	keys := c.QuantizeKeys
	if len(keys) == 0 {
		return canon.Options{QuantizeMS: c.QuantizeMS}
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return canon.Options{QuantizeMS: c.QuantizeMS, QuantizeKeys: set}
}
