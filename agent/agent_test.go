package agent

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/sampling-rl-controller/catalog"
)

func testCatalog(n int) catalog.Catalog {
	cat := make(catalog.Catalog, n)
	for i := range cat {
		body, _ := json.Marshal(map[string]string{"name": "policy"})
		var tmpl catalog.Template
		if err := json.Unmarshal(body, &tmpl); err != nil {
			panic(err)
		}
		cat[i] = tmpl
	}
	return cat
}

func TestSampleNeverAllZero(t *testing.T) {
	cat := testCatalog(5)
	// θ forced near zero: P(all-zero) without the guard would be ~1.
	seed := []float64{0.01, 0.01, 0.01, 0.01, 0.01}
	a, err := New(5, seed, 0.1, rand.New(rand.NewSource(42)))
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		_, action := a.Sample(cat)
		sum := 0
		for _, bit := range action {
			sum += bit
		}
		assert.Greater(t, sum, 0)
	}
}

func TestSampleAlwaysIncludesFallback(t *testing.T) {
	cat := testCatalog(3)
	a, err := New(3, nil, 0.1, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	selected, _ := a.Sample(cat)
	require.NotEmpty(t, selected)
	assert.Equal(t, "default-probabilistic-policy", selected[len(selected)-1].Name)
}

func TestUpdateClampsTheta(t *testing.T) {
	cat := testCatalog(4)
	a, err := New(4, nil, 5.0, rand.New(rand.NewSource(2))) // huge LR to force clamp
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		a.Sample(cat)
		a.Update(100.0)
		a.Sample(cat)
		a.Update(-100.0)
	}

	for _, p := range a.Theta() {
		assert.GreaterOrEqual(t, p, MinProb)
		assert.LessOrEqual(t, p, MaxProb)
	}
}

func TestSeedLengthMismatchErrors(t *testing.T) {
	_, err := New(3, []float64{0.5, 0.5}, 0.1, nil)
	assert.Error(t, err)
}

func TestBaselineSmoothsAfterSentinelUpdate(t *testing.T) {
	cat := testCatalog(2)
	a, err := New(2, nil, 0.1, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	assert.Equal(t, 0.0, a.Baseline())

	a.Sample(cat)
	a.Update(0) // episode 1's update, with no prior-episode traces to score
	assert.Equal(t, 0.0, a.Baseline())

	a.Sample(cat)
	a.Update(1.0)
	assert.InDelta(t, 0.1, a.Baseline(), 1e-9)
}
