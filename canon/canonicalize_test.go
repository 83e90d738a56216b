package canon

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DataDog/sampling-rl-controller/trace"
)

func sampleSpans() []trace.Span {
	return []trace.Span{
		{
			TraceID: "t1", SpanID: "root", Start: 100,
			ServiceName: "checkout", OperationName: "POST /checkout",
			Tags: []trace.Tag{{Key: "http.status_code", Value: "200"}, {Key: "env", Value: "prod"}},
		},
		{
			TraceID: "t1", SpanID: "child-a", Start: 150,
			ParentRefs:  []trace.ParentRef{{RefType: "CHILD_OF", SpanID: "root"}},
			ServiceName: "payment", OperationName: "charge",
			Tags: []trace.Tag{{Key: "duration_ms", Value: "317"}},
		},
		{
			TraceID: "t1", SpanID: "child-b", Start: 120,
			ParentRefs:  []trace.ParentRef{{RefType: "CHILD_OF", SpanID: "root"}},
			ServiceName: "cart", OperationName: "reserve",
			Tags: []trace.Tag{{Key: "order.id", Value: "42"}},
		},
	}
}

func TestCanonicalizationDeterminism(t *testing.T) {
	spans := sampleSpans()
	shuffled := append([]trace.Span(nil), spans...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	a := canonicalString(trace.GroupByTraceID(spans)["t1"], Options{}.normalized())
	b := canonicalString(trace.GroupByTraceID(shuffled)["t1"], Options{}.normalized())
	assert.Equal(t, a, b)
}

func TestSignatureStabilityUnderBlacklist(t *testing.T) {
	spans := sampleSpans()
	before := Canonicalize(spans, Options{})["t1"]

	mutated := append([]trace.Span(nil), spans...)
	mutated[0].Tags = append([]trace.Tag(nil), mutated[0].Tags...)
	mutated[0].Tags[0].Value = "500" // http.status_code is blacklisted
	after := Canonicalize(mutated, Options{})["t1"]

	assert.Equal(t, before, after)
}

func TestQuantizationIdempotence(t *testing.T) {
	spans := sampleSpans()
	once := canonicalString(trace.GroupByTraceID(spans)["t1"], Options{}.normalized())

	quantizedOnce := Canonicalize(spans, Options{})["t1"]

	// Re-running canonicalization on the same input gives the same
	// signature (pure function of the span set).
	twice := Canonicalize(spans, Options{})["t1"]
	assert.Equal(t, quantizedOnce, twice)
	assert.NotEmpty(t, once)

	// Quantizing an already-quantized value leaves it unchanged.
	opts := Options{}.normalized()
	for _, v := range []string{"317", "499", "-317"} {
		q := quantize("duration_ms", v, opts)
		assert.Equal(t, q, quantize("duration_ms", q, opts))
	}
}

func TestQuantizationBucketing(t *testing.T) {
	opts := Options{QuantizeMS: 200, QuantizeKeys: map[string]struct{}{"duration_ms": {}}}
	assert.Equal(t, "400", quantize("duration_ms", "317", opts.normalized()))
	assert.Equal(t, "400", quantize("duration_ms", "499", opts.normalized()))
}

func TestMissingTraceIDSkippedSilently(t *testing.T) {
	spans := []trace.Span{
		{TraceID: "", SpanID: "orphan", ServiceName: "x", OperationName: "y"},
		{TraceID: "t1", SpanID: "root", ServiceName: "x", OperationName: "y"},
	}
	grouped := trace.GroupByTraceID(spans)
	assert.Len(t, grouped, 1)
	assert.Contains(t, grouped, "t1")
}
