// Package catalog loads the ordered set of tail-sampling policy templates
// the agent chooses from. Each template is an opaque record understood by
// the external collector; the catalog only cares about its stable index.
package catalog

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
)

// Template is one opaque tail-sampling policy, copied verbatim into
// generated collector configs. Body is kept as raw JSON so arbitrary
// collector policy shapes pass through without this package understanding
// them.
type Template struct {
	Name string          `json:"name"`
	Body json.RawMessage `json:"-"`
}

// MarshalJSON re-emits Body's fields alongside Name so the template
// serializes as the single flat object the collector expects, not as a
// nested {"name":..,"Body":{...}} wrapper.
func (t Template) MarshalJSON() ([]byte, error) {
	var fields map[string]json.RawMessage
	if len(t.Body) > 0 {
		if err := json.Unmarshal(t.Body, &fields); err != nil {
			return nil, fmt.Errorf("catalog: template %q body is not a JSON object: %w", t.Name, err)
		}
	} else {
		fields = map[string]json.RawMessage{}
	}
	nameJSON, err := json.Marshal(t.Name)
	if err != nil {
		return nil, err
	}
	fields["name"] = nameJSON
	return json.Marshal(fields)
}

// UnmarshalJSON captures the whole object both as Name and as the verbatim
// raw body, so re-marshaling reproduces it byte-for-byte modulo key order.
func (t *Template) UnmarshalJSON(data []byte) error {
	var named struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &named); err != nil {
		return err
	}
	t.Name = named.Name
	t.Body = append(json.RawMessage(nil), data...)
	return nil
}

// Catalog is the stable, ordered sequence of policy templates. Its order
// and length do not change for the lifetime of a trial: the agent's
// parameter vector θ and action vector a are indexed by catalog position.
type Catalog []Template

// Load reads a JSON array of policy template objects from path.
func Load(path string) (Catalog, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %s: %w", path, err)
	}
	var c Catalog
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("catalog: parsing %s: %w", path, err)
	}
	if len(c) == 0 {
		return nil, fmt.Errorf("catalog: %s contains no policy templates", path)
	}
	return c, nil
}

// DefaultFallback is the mandatory low-rate probabilistic sampler appended
// to every selected policy set, guaranteeing some traces are always kept
// regardless of which templates the agent selected. It mirrors the
// "default-probabilistic-policy" policy hardcoded by the original
// manager.generate_config.
func DefaultFallback() Template {
	body := []byte(`{"name":"default-probabilistic-policy","type":"probabilistic","probabilistic":{"sampling_percentage":10.0}}`)
	var t Template
	// UnmarshalJSON cannot fail on this fixed literal.
	_ = t.UnmarshalJSON(body)
	return t
}
