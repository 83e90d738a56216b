// Package trace defines the span/trace records retrieved from the trace
// store and the tree reconstruction used to canonicalize them: the
// minimum schema a downstream stage can rely on having been validated.
package trace

import (
	"errors"
	"fmt"
)

// maxTagValueLen bounds a single tag value kept in a canonical string; this
// mirrors the defensive truncation model.Span.Normalize applies to
// Resource/Meta so a single oversized tag can't blow up entropy estimation.
const maxTagValueLen = 5000

// Tag is a single (key, value) annotation on a span. On every span of an
// experiment, one tag carries the experiment identifier.
type Tag struct {
	Key   string
	Value string
}

// Span is an opaque record pulled from the trace store. Only the fields the
// canonicalizer and fetcher need are modeled; everything else the store
// returns is ignored.
type Span struct {
	TraceID      string
	SpanID       string
	ParentRefs   []ParentRef
	Start        int64 // nanoseconds since epoch
	ServiceName  string
	OperationName string
	Tags         []Tag
}

// ParentRef is one parent-reference entry of a span. Only CHILD_OF
// references establish tree parentage; other reference kinds are ignored.
type ParentRef struct {
	RefType string
	SpanID  string
}

// ErrMissingTraceID is returned by Normalize for a span with no trace id;
// per spec, the caller's response is to skip the span silently, not to
// treat this as a fetch-level error.
var ErrMissingTraceID = errors.New("trace: span missing trace id")

// Normalize validates the minimum a span needs to participate in
// canonicalization, truncating oversized fields instead of rejecting them
// outright -- matching model.Span.Normalize's soft-fail philosophy for
// Meta/Metrics, but returning ErrMissingTraceID for the one field whose
// absence the caller must treat specially (drop, don't error).
func (s *Span) Normalize() error {
	if s.TraceID == "" {
		return ErrMissingTraceID
	}
	if s.SpanID == "" {
		return fmt.Errorf("trace: span %s has empty span id", s.TraceID)
	}
	if s.ServiceName == "" {
		s.ServiceName = "unknown"
	}
	if s.OperationName == "" {
		s.OperationName = "unknown"
	}
	for i, t := range s.Tags {
		if len(t.Value) > maxTagValueLen {
			s.Tags[i].Value = t.Value[:maxTagValueLen]
		}
	}
	return nil
}

// FindParentID returns the span id referenced by the first CHILD_OF entry
// in ParentRefs, and whether one was found. A span with no such reference
// is a root within its trace.
func (s *Span) FindParentID() (string, bool) {
	for _, ref := range s.ParentRefs {
		if ref.RefType == "CHILD_OF" {
			return ref.SpanID, true
		}
	}
	return "", false
}
