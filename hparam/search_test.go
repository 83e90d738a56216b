package hparam

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// peakedObjective rewards points near (alpha=2.0, beta=0.5), so a search
// that is doing better than random should converge its later trials
// closer to that peak than its earlier, warmup-phase trials.
func peakedObjective(alpha, beta float64) float64 {
	dAlpha := alpha - 2.0
	dBeta := beta - 0.5
	return -(dAlpha*dAlpha + dBeta*dBeta)
}

func TestRunRespectsBudget(t *testing.T) {
	s := New(DefaultSpace(), rand.New(rand.NewSource(7)))
	history, err := s.Run(context.Background(), 10, func(ctx context.Context, alpha, beta float64) (float64, error) {
		return peakedObjective(alpha, beta), nil
	})
	require.NoError(t, err)
	assert.Len(t, history, 10)
}

func TestWarmupTrialsStayWithinSpace(t *testing.T) {
	space := DefaultSpace()
	s := New(space, rand.New(rand.NewSource(3)))
	history, err := s.Run(context.Background(), warmupTrials, func(ctx context.Context, alpha, beta float64) (float64, error) {
		return peakedObjective(alpha, beta), nil
	})
	require.NoError(t, err)
	for _, tr := range history {
		assert.GreaterOrEqual(t, tr.Alpha, space.AlphaMin)
		assert.LessOrEqual(t, tr.Alpha, space.AlphaMax)
		assert.GreaterOrEqual(t, tr.Beta, space.BetaMin)
		assert.LessOrEqual(t, tr.Beta, space.BetaMax)
	}
}

func TestSearchConvergesCloserThanUniformRandom(t *testing.T) {
	space := DefaultSpace()
	s := New(space, rand.New(rand.NewSource(11)))
	history, err := s.Run(context.Background(), 40, func(ctx context.Context, alpha, beta float64) (float64, error) {
		return peakedObjective(alpha, beta), nil
	})
	require.NoError(t, err)

	meanDistToTarget := func(trials []Trial) float64 {
		var sum float64
		for _, t := range trials {
			sum += math.Hypot(t.Alpha-2.0, t.Beta-0.5)
		}
		return sum / float64(len(trials))
	}

	early := history[:warmupTrials]
	late := history[len(history)-10:]
	assert.Less(t, meanDistToTarget(late), meanDistToTarget(early))
}

func TestBestReturnsHighestScoringTrial(t *testing.T) {
	history := []Trial{
		{Alpha: 1, Beta: 1, Score: 0.2},
		{Alpha: 2, Beta: 0.5, Score: 0.9},
		{Alpha: 0.5, Beta: 2, Score: -0.3},
	}
	best := Best(history)
	assert.Equal(t, 0.9, best.Score)
}

func TestRunStopsEarlyOnEvalError(t *testing.T) {
	s := New(DefaultSpace(), rand.New(rand.NewSource(1)))
	calls := 0
	history, err := s.Run(context.Background(), 10, func(ctx context.Context, alpha, beta float64) (float64, error) {
		calls++
		if calls == 3 {
			return 0, assertErr
		}
		return peakedObjective(alpha, beta), nil
	})
	require.Error(t, err)
	assert.Len(t, history, 2)
}

var assertErr = errTrialFailed{}

type errTrialFailed struct{}

func (errTrialFailed) Error() string { return "nested trial failed" }
