package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateRoundTripsThroughJSON(t *testing.T) {
	body := []byte(`{"name":"latency-outliers","type":"latency","latency":{"threshold_ms":500}}`)
	var tmpl Template
	require.NoError(t, tmpl.UnmarshalJSON(body))
	assert.Equal(t, "latency-outliers", tmpl.Name)

	out, err := json.Marshal(tmpl)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &fields))
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "type")
	assert.Contains(t, fields, "latency")
}

func TestTemplateWithEmptyBodyMarshalsNameOnly(t *testing.T) {
	tmpl := Template{Name: "bare"}
	out, err := json.Marshal(tmpl)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &fields))
	assert.Len(t, fields, 1)
	assert.Contains(t, fields, "name")
}

func TestLoadRejectsEmptyCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadReadsTemplatesInOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	raw := `[
		{"name":"a","type":"probabilistic","probabilistic":{"sampling_percentage":5}},
		{"name":"b","type":"probabilistic","probabilistic":{"sampling_percentage":10}}
	]`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cat, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cat, 2)
	assert.Equal(t, "a", cat[0].Name)
	assert.Equal(t, "b", cat[1].Name)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestDefaultFallbackIsProbabilistic(t *testing.T) {
	fallback := DefaultFallback()
	assert.Equal(t, "default-probabilistic-policy", fallback.Name)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(fallback.Body, &fields))
	assert.Contains(t, fields, "probabilistic")
}
