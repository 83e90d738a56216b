// Package tracestore defines the trace-fetcher contract: pull every
// span tagged with a given experiment identifier from the trace store.
// Like rollout.Orchestrator, the trace-store client is a named
// collaborator with no single fixed backend; this package defines only
// the interface and the error kind callers must handle, plus one
// concrete backend (tracestore/elastic) and one fake used by tests.
package tracestore

import (
	"context"
	"fmt"

	"github.com/DataDog/sampling-rl-controller/trace"
)

// PageSize and ScrollKeepAlive are the pagination parameters any Fetcher
// backend uses: a page size of 5,000 spans and a two-minute scroll
// keep-alive.
const (
	PageSize        = 5000
	ScrollKeepAlive = "2m"
)

// UnavailableError reports that the store rejected the query or a scroll
// cursor expired mid-read. Local policy (implemented by the episode loop,
// not here) is to retry the whole fetch once and abort the trial on a
// second failure.
type UnavailableError struct {
	Identifier string
	Err        error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("tracestore: store unavailable fetching spans for %q: %v", e.Identifier, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Fetcher pulls every span tagged with (experiment_hash, identifier) from
// the trace store, draining all pages. An identifier with zero matching
// spans returns an empty, non-error result -- the caller treats that as
// entropy = 0, count = 0, never as a failure.
type Fetcher interface {
	FetchSpans(ctx context.Context, identifier string) ([]trace.Span, error)
}
