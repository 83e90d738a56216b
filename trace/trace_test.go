package trace

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDefaultsEmptyServiceAndOperation(t *testing.T) {
	s := Span{TraceID: "t1", SpanID: "s1"}
	require.NoError(t, s.Normalize())
	assert.Equal(t, "unknown", s.ServiceName)
	assert.Equal(t, "unknown", s.OperationName)
}

func TestNormalizeTruncatesOversizedTagValues(t *testing.T) {
	s := Span{
		TraceID: "t1",
		SpanID:  "s1",
		Tags:    []Tag{{Key: "payload", Value: strings.Repeat("x", maxTagValueLen+500)}},
	}
	require.NoError(t, s.Normalize())
	assert.Len(t, s.Tags[0].Value, maxTagValueLen)
}

func TestNormalizeMissingTraceIDReturnsSentinel(t *testing.T) {
	s := Span{SpanID: "s1"}
	assert.ErrorIs(t, s.Normalize(), ErrMissingTraceID)
}

func TestNormalizeMissingSpanIDIsAnError(t *testing.T) {
	s := Span{TraceID: "t1"}
	assert.Error(t, s.Normalize())
}

func TestFindParentIDReturnsFirstChildOfReference(t *testing.T) {
	s := Span{
		ParentRefs: []ParentRef{
			{RefType: "FOLLOWS_FROM", SpanID: "ignored"},
			{RefType: "CHILD_OF", SpanID: "parent-1"},
			{RefType: "CHILD_OF", SpanID: "parent-2"},
		},
	}
	parentID, ok := s.FindParentID()
	assert.True(t, ok)
	assert.Equal(t, "parent-1", parentID)
}

func TestFindParentIDFalseForRoot(t *testing.T) {
	s := Span{}
	_, ok := s.FindParentID()
	assert.False(t, ok)
}

func TestGroupByTraceIDDropsSpansMissingTraceID(t *testing.T) {
	spans := []Span{
		{TraceID: "t1", SpanID: "a"},
		{SpanID: "b"}, // missing trace id, dropped silently
		{TraceID: "t2", SpanID: "c"},
	}
	byTrace := GroupByTraceID(spans)
	assert.Len(t, byTrace, 2)
	assert.Len(t, byTrace["t1"], 1)
	assert.Len(t, byTrace["t2"], 1)
}

func TestGroupByTraceIDGroupsMultipleSpansInOneTrace(t *testing.T) {
	spans := []Span{
		{TraceID: "t1", SpanID: "root"},
		{TraceID: "t1", SpanID: "child", ParentRefs: []ParentRef{{RefType: "CHILD_OF", SpanID: "root"}}},
	}
	byTrace := GroupByTraceID(spans)
	assert.Len(t, byTrace["t1"], 2)
}
