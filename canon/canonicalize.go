// Package canon groups spans into traces, rebuilds the parent/child tree,
// and serializes each trace to a deterministic string whose SHA-256 hash
// is the trace's signature.
//
// The algorithm is ported directly from the original Python prototype's
// es_utils.trace_to_string / group_spans_by_trace (see original_source/
// rlagente/es_utils.py), generalized from Jaeger's wire shape to the
// trace.Span type and from an ad-hoc tag blacklist/quantize set to
// configurable ones.
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/DataDog/sampling-rl-controller/trace"
)

// Options configures canonicalization. Blacklist and QuantizeKeys default to
// the sets used by the original prototype when left nil; QuantizeMS
// defaults to 200 when zero.
type Options struct {
	// Blacklist holds tag keys that are dropped before serialization
	// because they carry volatile, per-request noise (status codes,
	// thread ids, peer ports, user/order ids) rather than structural
	// information about the trace's shape.
	Blacklist map[string]struct{}

	// QuantizeKeys holds tag keys whose numeric values are bucketed to
	// the nearest QuantizeMS milliseconds before serialization, so that
	// jitter in a duration doesn't manufacture spurious distinct
	// signatures.
	QuantizeKeys map[string]struct{}

	// QuantizeMS is the bucket width in milliseconds. Zero means 200.
	QuantizeMS int
}

// DefaultBlacklist is the tag-key blacklist the original prototype hardcodes.
func DefaultBlacklist() map[string]struct{} {
	keys := []string{
		"otel.status_code", "span.kind", "thread.id", "thread.name",
		"http.status_code", "peer.ipv4", "peer.ipv6", "peer.port",
		"peer.service", "pid", "telemetry.sdk.language",
		"telemetry.sdk.name", "telemetry.sdk.version", "net.peer.port",
		"user.id", "order.id",
	}
	return toSet(keys)
}

// DefaultQuantizeKeys is the tag-key quantization set the original
// prototype hardcodes, overridable via config's quantize_keys knob
// (environment variable RLCTL_QUANTIZE_KEYS).
func DefaultQuantizeKeys() map[string]struct{} {
	return toSet([]string{"duration_ms", "latency_ms", "http.duration_ms", "db.duration_ms"})
}

func toSet(keys []string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

func (o Options) normalized() Options {
	if o.Blacklist == nil {
		o.Blacklist = DefaultBlacklist()
	}
	if o.QuantizeKeys == nil {
		o.QuantizeKeys = DefaultQuantizeKeys()
	}
	if o.QuantizeMS == 0 {
		o.QuantizeMS = 200
	}
	return o
}

// node is one span's position in a trace's ownership tree. Children are
// referenced by id through the owning map, never by pointer, so the tree
// can never contain a reference cycle.
type node struct {
	span     trace.Span
	children []string
}

// Canonicalize groups spans into traces and returns, per trace id, the
// SHA-256 hex signature of that trace's canonical string. Traces are
// built deterministically: root spans are ordered by start time (ties by
// span id), and so are each node's children, so canonicalize is invariant
// under any permutation of the input slice.
func Canonicalize(spans []trace.Span, opts Options) map[string]string {
	opts = opts.normalized()
	byTrace := trace.GroupByTraceID(spans)

	sigs := make(map[string]string, len(byTrace))
	for traceID, traceSpans := range byTrace {
		sigs[traceID] = signature(traceSpans, opts)
	}
	return sigs
}

func signature(spans []trace.Span, opts Options) string {
	canonical := canonicalString(spans, opts)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// canonicalString renders the deterministic text form of one trace, for
// unit tests and for signature computation alike.
func canonicalString(spans []trace.Span, opts Options) string {
	nodes := make(map[string]*node, len(spans))
	var roots []string
	for _, s := range spans {
		nodes[s.SpanID] = &node{span: s}
	}
	for _, s := range spans {
		if parentID, ok := s.FindParentID(); ok {
			if _, present := nodes[parentID]; present {
				nodes[parentID].children = append(nodes[parentID].children, s.SpanID)
				continue
			}
		}
		roots = append(roots, s.SpanID)
	}

	sortByStartThenID(roots, nodes)
	for id := range nodes {
		sortByStartThenID(nodes[id].children, nodes)
	}

	var parts []string
	for _, rootID := range roots {
		parts = append(parts, walk(rootID, nodes, opts, 0))
	}
	return strings.Join(parts, "\n")
}

func sortByStartThenID(ids []string, nodes map[string]*node) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := nodes[ids[i]].span, nodes[ids[j]].span
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.SpanID < b.SpanID
	})
}

func walk(id string, nodes map[string]*node, opts Options, depth int) string {
	n := nodes[id]
	indent := strings.Repeat("  ", depth)

	tags := make([]trace.Tag, 0, len(n.span.Tags))
	for _, t := range n.span.Tags {
		if _, blacklisted := opts.Blacklist[t.Key]; blacklisted {
			continue
		}
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Key < tags[j].Key })

	var b strings.Builder
	fmt.Fprintf(&b, "%s%s:%s", indent, n.span.ServiceName, n.span.OperationName)
	for _, t := range tags {
		fmt.Fprintf(&b, "|%s=%s", t.Key, quantize(t.Key, t.Value, opts))
	}

	for _, childID := range n.children {
		b.WriteString("\n")
		b.WriteString(walk(childID, nodes, opts, depth+1))
	}
	return b.String()
}

// quantize buckets numeric tag values in QuantizeKeys to the nearest
// QuantizeMS; non-numeric or non-quantized values pass through unchanged.
// Applying it twice is a no-op: the second call receives an already-bucketed
// multiple of QuantizeMS and rounds it to itself.
func quantize(key, value string, opts Options) string {
	if _, ok := opts.QuantizeKeys[key]; !ok {
		return value
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return value
	}
	bucket := opts.QuantizeMS
	bucketed := int64(math.Floor(f/float64(bucket)+0.5)) * int64(bucket)
	return strconv.FormatInt(bucketed, 10)
}
