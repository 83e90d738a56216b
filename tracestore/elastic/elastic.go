// Package elastic implements tracestore.Fetcher against an
// Elasticsearch/Jaeger span index, ported from
// original_source/rlagente/es_utils.py's get_spans_by_hash: a nested-term
// query over tags.key/tags.value, paginated with the scroll API at a
// 5,000-document page size and a two-minute keep-alive.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"time"

	log "github.com/cihub/seelog"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DataDog/sampling-rl-controller/trace"
	"github.com/DataDog/sampling-rl-controller/tracestore"
)

// scrollKeepAlive is tracestore.ScrollKeepAlive parsed once into the
// time.Duration the esapi scroll options require.
var scrollKeepAlive = mustParseDuration(tracestore.ScrollKeepAlive)

func mustParseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Client fetches spans tagged with an experiment identifier from a span
// index, e.g. Jaeger's "jaeger-span-*" pattern.
type Client struct {
	es    *elasticsearch.Client
	index string
}

// New constructs a Client against the given Elasticsearch hosts and span
// index pattern.
func New(addresses []string, index string) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("tracestore/elastic: creating client: %w", err)
	}
	return &Client{es: es, index: index}, nil
}

type nestedTagQuery struct {
	Query struct {
		Nested struct {
			Path  string `json:"path"`
			Query struct {
				Bool struct {
					Must []map[string]map[string]string `json:"must"`
				} `json:"bool"`
			} `json:"query"`
		} `json:"nested"`
	} `json:"query"`
}

func buildQuery(identifier string) nestedTagQuery {
	var q nestedTagQuery
	q.Query.Nested.Path = "tags"
	q.Query.Nested.Query.Bool.Must = []map[string]map[string]string{
		{"term": {"tags.key": "experiment_hash"}},
		{"term": {"tags.value": identifier}},
	}
	return q
}

type searchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []struct {
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// jaegerSpan is the subset of Jaeger's span document this package reads,
// matching the field names es_utils.py keys off (spanID, references,
// startTime, process.serviceName, operationName, tags).
type jaegerSpan struct {
	TraceID       string `json:"traceID"`
	SpanID        string `json:"spanID"`
	StartTime     int64  `json:"startTime"` // microseconds, Jaeger convention
	OperationName string `json:"operationName"`
	Process       struct {
		ServiceName string `json:"serviceName"`
	} `json:"process"`
	References []struct {
		RefType string `json:"refType"`
		SpanID  string `json:"spanID"`
	} `json:"references"`
	Tags []struct {
		Key   string      `json:"key"`
		Value interface{} `json:"value"`
	} `json:"tags"`
}

func (s jaegerSpan) toSpan() trace.Span {
	out := trace.Span{
		TraceID:       s.TraceID,
		SpanID:        s.SpanID,
		Start:         s.StartTime * 1000, // microseconds -> nanoseconds
		ServiceName:   s.Process.ServiceName,
		OperationName: s.OperationName,
	}
	for _, r := range s.References {
		out.ParentRefs = append(out.ParentRefs, trace.ParentRef{RefType: r.RefType, SpanID: r.SpanID})
	}
	for _, t := range s.Tags {
		out.Tags = append(out.Tags, trace.Tag{Key: t.Key, Value: fmt.Sprintf("%v", t.Value)})
	}
	return out
}

// FetchSpans implements tracestore.Fetcher. It drains every scroll page
// for the given experiment identifier; an identifier with zero matches
// returns an empty, non-error slice.
func (c *Client) FetchSpans(ctx context.Context, identifier string) ([]trace.Span, error) {
	query := buildQuery(identifier)
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("tracestore/elastic: encoding query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(body)),
		c.es.Search.WithSize(tracestore.PageSize),
		c.es.Search.WithScroll(scrollKeepAlive),
	)
	if err != nil {
		return nil, &tracestore.UnavailableError{Identifier: identifier, Err: err}
	}
	page, err := decodeSearchResponse(res)
	if err != nil {
		return nil, &tracestore.UnavailableError{Identifier: identifier, Err: err}
	}

	var spans []trace.Span
	spans = append(spans, hitsToSpans(page)...)
	scrollID := page.ScrollID

	for len(page.Hits.Hits) > 0 {
		res, err := c.es.Scroll(
			c.es.Scroll.WithContext(ctx),
			c.es.Scroll.WithScrollID(scrollID),
			c.es.Scroll.WithScroll(scrollKeepAlive),
		)
		if err != nil {
			return nil, &tracestore.UnavailableError{Identifier: identifier, Err: err}
		}
		page, err = decodeSearchResponse(res)
		if err != nil {
			return nil, &tracestore.UnavailableError{Identifier: identifier, Err: err}
		}
		spans = append(spans, hitsToSpans(page)...)
		scrollID = page.ScrollID
	}

	log.Debugf("tracestore/elastic: fetched %d spans for experiment %s", len(spans), identifier)
	return spans, nil
}

func hitsToSpans(page searchResponse) []trace.Span {
	var out []trace.Span
	for _, hit := range page.Hits.Hits {
		var js jaegerSpan
		if err := json.Unmarshal(hit.Source, &js); err != nil {
			continue
		}
		out = append(out, js.toSpan())
	}
	return out
}

func decodeSearchResponse(res *esapi.Response) (searchResponse, error) {
	defer res.Body.Close()
	if res.IsError() {
		raw, _ := ioutil.ReadAll(res.Body)
		return searchResponse{}, fmt.Errorf("elasticsearch returned error: %s", string(raw))
	}
	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return searchResponse{}, fmt.Errorf("decoding search response: %w", err)
	}
	return parsed, nil
}
