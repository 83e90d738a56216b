package trace

// GroupByTraceID buckets spans by trace id, normalizing each span first and
// silently dropping any span that fails normalization (missing trace id or
// span id).
// The ownership tree itself is built later by the canon package: here
// spans are only grouped, never linked by pointer, so there is no
// possibility of a parent/child reference cycle -- children are always
// looked up by id through the map the canon package builds, avoiding
// cyclic span references entirely.
func GroupByTraceID(spans []Span) map[string][]Span {
	byTrace := make(map[string][]Span)
	for _, s := range spans {
		span := s
		if err := span.Normalize(); err != nil {
			continue
		}
		byTrace[span.TraceID] = append(byTrace[span.TraceID], span)
	}
	return byTrace
}
