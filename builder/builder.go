// Package builder renders a collector configuration document from a
// selected policy set and stamps it with a fresh experiment identifier.
// The document shape is ported from original_source/rlagente/manager.py's
// generate_config, re-expressed as typed structs marshaled with yaml.v2
// instead of manager.py's raw dict.
package builder

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/DataDog/sampling-rl-controller/catalog"
)

// Topology holds the fixed exporter/service wiring, injected once at
// construction instead of hardcoded, so alternate trace sinks or metrics
// endpoints don't require touching Build's logic.
type Topology struct {
	OTLPHTTPEndpoint       string // receivers.otlp.protocols.http.endpoint
	ExporterEndpoint       string // exporters.otlphttp.endpoint
	PrometheusEndpoint     string // exporters.prometheus.endpoint
	DecisionWaitSeconds    int    // processors.tail_sampling.decision_wait, 10-40
	NumTraces              int    // processors.tail_sampling.num_traces, 2000-15000
	ExpectedNewTracesPerSec int   // processors.tail_sampling.expected_new_traces_per_sec, 100-1000
}

// DefaultTopology returns the collector's standard topology.
func DefaultTopology() Topology {
	return Topology{
		OTLPHTTPEndpoint:        "0.0.0.0:4321",
		ExporterEndpoint:        "http://jaeger:4318",
		PrometheusEndpoint:      "0.0.0.0:9464",
		DecisionWaitSeconds:     10,
		NumTraces:               2000,
		ExpectedNewTracesPerSec: 100,
	}
}

// Builder renders collector configuration documents for a fixed topology.
type Builder struct {
	topology Topology
	now      func() time.Time
}

// New constructs a Builder. now defaults to time.Now; tests may override it
// to make identifier generation deterministic.
func New(topology Topology, now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{topology: topology, now: now}
}

// document mirrors the exact key shapes the collector expects; struct tags
// double as both the YAML field names the collector expects and, via
// canonicalJSON, the deterministic serialization the identifier hash is
// computed over.
type document struct {
	Receivers  receivers  `yaml:"receivers"`
	Processors processors `yaml:"processors"`
	Exporters  exporters  `yaml:"exporters"`
	Service    service    `yaml:"service"`
}

type receivers struct {
	OTLP otlpReceiver `yaml:"otlp"`
}

type otlpReceiver struct {
	Protocols otlpProtocols `yaml:"protocols"`
}

type otlpProtocols struct {
	HTTP otlpHTTP `yaml:"http"`
}

type otlpHTTP struct {
	Endpoint string `yaml:"endpoint"`
}

type processors struct {
	TailSampling tailSamplingProcessor `yaml:"tail_sampling"`
	Attributes   attributesProcessor   `yaml:"attributes"`
}

type tailSamplingProcessor struct {
	DecisionWait            string              `yaml:"decision_wait"`
	NumTraces               int                 `yaml:"num_traces"`
	ExpectedNewTracesPerSec int                 `yaml:"expected_new_traces_per_sec"`
	Policies                []map[string]interface{} `yaml:"policies"`
}

type attributesProcessor struct {
	Actions []attributeAction `yaml:"actions"`
}

type attributeAction struct {
	Key    string `yaml:"key"`
	Value  string `yaml:"value"`
	Action string `yaml:"action"`
}

type exporters struct {
	OTLPHTTP   otlpHTTPExporter `yaml:"otlphttp"`
	Prometheus prometheusExporter `yaml:"prometheus"`
	Debug      debugExporter    `yaml:"debug"`
}

type otlpHTTPExporter struct {
	Endpoint string `yaml:"endpoint"`
}

type prometheusExporter struct {
	Endpoint string `yaml:"endpoint"`
}

type debugExporter struct {
	Verbosity string `yaml:"verbosity"`
}

type service struct {
	Pipelines pipelines `yaml:"pipelines"`
}

type pipelines struct {
	Traces  pipeline `yaml:"traces"`
	Metrics pipeline `yaml:"metrics"`
}

type pipeline struct {
	Receivers  []string `yaml:"receivers"`
	Processors []string `yaml:"processors,omitempty"`
	Exporters  []string `yaml:"exporters"`
}

// Build renders the collector configuration document for the given
// selected policy set and stamps it with a fresh experiment identifier:
// the 8-hex-digit prefix of SHA-256 over the canonical JSON serialization
// of selected (sorted keys) concatenated with the current wall clock.
func (b *Builder) Build(selected []catalog.Template) (string, string, error) {
	identifier, err := b.identifier(selected)
	if err != nil {
		return "", "", err
	}

	// yaml.v2 does not use Template.MarshalJSON, so each template is taken
	// through its flat JSON form into a generic map before rendering.
	rawPolicies, err := json.Marshal(selected)
	if err != nil {
		return "", "", fmt.Errorf("builder: encoding selected policies: %w", err)
	}
	var policies []map[string]interface{}
	if err := json.Unmarshal(rawPolicies, &policies); err != nil {
		return "", "", fmt.Errorf("builder: decoding selected policies: %w", err)
	}

	doc := document{
		Receivers: receivers{OTLP: otlpReceiver{Protocols: otlpProtocols{HTTP: otlpHTTP{Endpoint: b.topology.OTLPHTTPEndpoint}}}},
		Processors: processors{
			TailSampling: tailSamplingProcessor{
				DecisionWait:            fmt.Sprintf("%ds", b.topology.DecisionWaitSeconds),
				NumTraces:               b.topology.NumTraces,
				ExpectedNewTracesPerSec: b.topology.ExpectedNewTracesPerSec,
				Policies:                policies,
			},
			Attributes: attributesProcessor{Actions: []attributeAction{
				{Key: "experiment_hash", Value: identifier, Action: "insert"},
			}},
		},
		Exporters: exporters{
			OTLPHTTP:   otlpHTTPExporter{Endpoint: b.topology.ExporterEndpoint},
			Prometheus: prometheusExporter{Endpoint: b.topology.PrometheusEndpoint},
			Debug:      debugExporter{Verbosity: "detailed"},
		},
		Service: service{Pipelines: pipelines{
			Traces:  pipeline{Receivers: []string{"otlp"}, Processors: []string{"tail_sampling", "attributes"}, Exporters: []string{"otlphttp"}},
			Metrics: pipeline{Receivers: []string{"otlp"}, Exporters: []string{"prometheus"}},
		}},
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", "", fmt.Errorf("builder: marshaling collector config: %w", err)
	}
	return string(out), identifier, nil
}

// identifier computes the 8-hex-digit experiment identifier. Two calls
// with the same selected set made in the same wall-clock second produce
// distinct identifiers with overwhelming probability because the JSON
// serialization of the set's policy bodies is not itself a source of
// entropy -- the wall clock's nanosecond component is.
func (b *Builder) identifier(selected []catalog.Template) (string, error) {
	canonicalJSON, err := canonicalize(selected)
	if err != nil {
		return "", fmt.Errorf("builder: canonicalizing selected policies: %w", err)
	}
	payload := fmt.Sprintf("%s%s", canonicalJSON, b.now().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:8], nil
}

// canonicalize renders selected as JSON with each template's top-level keys
// sorted. Nested objects inside a template body keep the key order they
// have in the body; only the top level is re-sorted.
func canonicalize(selected []catalog.Template) (string, error) {
	raw, err := json.Marshal(selected)
	if err != nil {
		return "", err
	}
	var generic []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}
	sortedRaw, err := json.Marshal(generic)
	if err != nil {
		return "", err
	}
	// Each template is now a map, which encoding/json marshals with its
	// keys in lexicographic order; the round trip through sortedKeysMap
	// keeps that order explicit.
	var withSortedKeys []sortedKeysMap
	if err := json.Unmarshal(sortedRaw, &withSortedKeys); err != nil {
		return "", err
	}
	final, err := json.Marshal(withSortedKeys)
	if err != nil {
		return "", err
	}
	return string(final), nil
}

// sortedKeysMap marshals its underlying map with lexicographically sorted
// keys; encoding/json already does this for map[string]T, so this is a
// thin alias documenting that guarantee is relied upon.
type sortedKeysMap map[string]json.RawMessage
