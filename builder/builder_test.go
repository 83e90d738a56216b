package builder

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/sampling-rl-controller/catalog"
)

func templates(names ...string) []catalog.Template {
	var out []catalog.Template
	for _, n := range names {
		body, _ := json.Marshal(map[string]string{"name": n, "type": "probabilistic"})
		var t catalog.Template
		if err := json.Unmarshal(body, &t); err != nil {
			panic(err)
		}
		out = append(out, t)
	}
	return out
}

func TestBuildContainsRequiredShapes(t *testing.T) {
	b := New(DefaultTopology(), nil)
	doc, id, err := b.Build(templates("latency-p99"))
	require.NoError(t, err)
	assert.Len(t, id, 8)
	assert.Contains(t, doc, `endpoint: 0.0.0.0:4321`)
	assert.Contains(t, doc, "tail_sampling:")
	assert.Contains(t, doc, "experiment_hash")
	assert.Contains(t, doc, id)
	assert.Contains(t, doc, "0.0.0.0:9464")
}

func TestBuildSameSetDifferentSecondProducesDistinctIdentifiers(t *testing.T) {
	tick := time.Unix(0, 0)
	b := New(DefaultTopology(), func() time.Time { return tick })
	_, id1, err := b.Build(templates("a"))
	require.NoError(t, err)
	tick = tick.Add(time.Second)
	_, id2, err := b.Build(templates("a"))
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestIdentifierUniquenessAcrossManyCalls(t *testing.T) {
	b := New(DefaultTopology(), nil)
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		_, id, err := b.Build(templates("a", "b"))
		require.NoError(t, err)
		seen[id] = struct{}{}
	}
	assert.Equal(t, 1000, len(seen))
}

func TestBuildDeterministicModuloIdentifier(t *testing.T) {
	tick := time.Unix(1000, 0)
	b := New(DefaultTopology(), func() time.Time { return tick })
	doc1, id1, err := b.Build(templates("x", "y"))
	require.NoError(t, err)
	doc2, id2, err := b.Build(templates("x", "y"))
	require.NoError(t, err)

	assert.Equal(t, id1, id2) // same wall-clock instant -> same identifier
	assert.Equal(t, doc1, doc2)
}
