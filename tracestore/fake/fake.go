// Package fake provides an in-memory tracestore.Fetcher for tests, so the
// episode loop can be exercised end-to-end without a real Elasticsearch
// cluster.
package fake

import (
	"context"
	"sync"

	"github.com/DataDog/sampling-rl-controller/trace"
)

// Store is a fake trace store keyed by experiment identifier.
type Store struct {
	mu      sync.Mutex
	byID    map[string][]trace.Span
	err     error
	fetched []string // identifiers fetched, in call order, for assertions
}

// New constructs an empty fake store.
func New() *Store {
	return &Store{byID: make(map[string][]trace.Span)}
}

// Set registers the spans returned for a given identifier.
func (s *Store) Set(identifier string, spans []trace.Span) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[identifier] = spans
}

// FailNext makes the next FetchSpans call (and only that one) return err.
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// FetchSpans implements tracestore.Fetcher. An identifier with no
// registered spans returns an empty slice, never an error.
func (s *Store) FetchSpans(ctx context.Context, identifier string) ([]trace.Span, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = append(s.fetched, identifier)
	if s.err != nil {
		err := s.err
		s.err = nil
		return nil, err
	}
	return s.byID[identifier], nil
}

// Fetched returns the identifiers FetchSpans was called with, in order.
func (s *Store) Fetched() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fetched...)
}
