package elastic

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildQueryShapesNestedTagMatch(t *testing.T) {
	q := buildQuery("abcd1234")
	raw, err := json.Marshal(q)
	require.NoError(t, err)

	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &generic))

	nested := generic["query"].(map[string]interface{})["nested"].(map[string]interface{})
	assert.Equal(t, "tags", nested["path"])

	must := nested["query"].(map[string]interface{})["bool"].(map[string]interface{})["must"].([]interface{})
	require.Len(t, must, 2)
}

func TestJaegerSpanToSpanConvertsMicrosecondsToNanoseconds(t *testing.T) {
	js := jaegerSpan{
		TraceID:       "t1",
		SpanID:        "s1",
		StartTime:     1_000_000,
		OperationName: "checkout",
		References: []struct {
			RefType string `json:"refType"`
			SpanID  string `json:"spanID"`
		}{{RefType: "CHILD_OF", SpanID: "parent-1"}},
		Tags: []struct {
			Key   string      `json:"key"`
			Value interface{} `json:"value"`
		}{{Key: "http.status_code", Value: float64(200)}},
	}
	js.Process.ServiceName = "checkout-svc"

	span := js.toSpan()
	assert.Equal(t, int64(1_000_000_000), span.Start)
	assert.Equal(t, "checkout-svc", span.ServiceName)
	require.Len(t, span.ParentRefs, 1)
	assert.Equal(t, "parent-1", span.ParentRefs[0].SpanID)
	require.Len(t, span.Tags, 1)
	assert.Equal(t, "200", span.Tags[0].Value)
}

func TestMustParseDurationPanicsOnInvalidInput(t *testing.T) {
	assert.Panics(t, func() { mustParseDuration("not-a-duration") })
}

func TestScrollKeepAliveMatchesPackageConstant(t *testing.T) {
	assert.Equal(t, "2m0s", scrollKeepAlive.String())
}
