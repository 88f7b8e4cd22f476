package trainer

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ModelRetrainer/internal/domain"
)

// studyHours mimics the hours-studied / exam-score data the pipeline ingests:
// score is roughly ten points per hour with gaussian noise.
func studyHours(n int, noise float64, seed int64) []domain.Record {
	rng := rand.New(rand.NewSource(seed))
	out := make([]domain.Record, n)
	for i := range out {
		hours := 1 + 9*rng.Float64()
		out[i] = domain.Record{
			Features: []float64{hours},
			Label:    10*hours + rng.NormFloat64()*noise,
		}
	}
	return out
}

func TestTrainRecoversLinearRelation(t *testing.T) {
	t.Parallel()

	tr := New(0.2, 42)
	artifact, metrics, err := tr.Train(context.Background(), studyHours(200, 5, 1))
	require.NoError(t, err)

	assert.InDelta(t, 10, artifact.Coefficients[0], 0.5)
	assert.Equal(t, 160, artifact.TrainedOn)
	assert.Equal(t, 40, metrics.EvalSize)
	assert.Greater(t, metrics.R2, 0.9)
	assert.LessOrEqual(t, metrics.R2, 1.0)
	assert.Greater(t, metrics.MSE, 0.0)
	assert.InDelta(t, metrics.R2*100, metrics.AccuracyPct, 1e-12)
}

func TestTrainExactFit(t *testing.T) {
	t.Parallel()

	records := make([]domain.Record, 20)
	for i := range records {
		x1, x2 := float64(i), float64((i*7)%5)
		records[i] = domain.Record{Features: []float64{x1, x2}, Label: 1 + 2*x1 - 3*x2}
	}

	artifact, metrics, err := New(0.25, 3).Train(context.Background(), records)
	require.NoError(t, err)
	assert.InDelta(t, 1, artifact.Intercept, 1e-9)
	assert.InDelta(t, 2, artifact.Coefficients[0], 1e-9)
	assert.InDelta(t, -3, artifact.Coefficients[1], 1e-9)
	assert.InDelta(t, 1, metrics.R2, 1e-9)
	assert.InDelta(t, 0, metrics.MSE, 1e-9)
}

func TestTrainIsDeterministic(t *testing.T) {
	t.Parallel()

	records := studyHours(150, 8, 9)
	ctx := context.Background()

	_, first, err := New(0.2, 42).Train(ctx, records)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, again, err := New(0.2, 42).Train(ctx, records)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	_, other, err := New(0.2, 7).Train(ctx, records)
	require.NoError(t, err)
	assert.NotEqual(t, first.R2, other.R2, "a different seed should pick a different split")
}

func TestTrainDoesNotReorderInput(t *testing.T) {
	t.Parallel()

	records := studyHours(30, 1, 2)
	snapshot := append([]domain.Record(nil), records...)

	_, _, err := New(0.2, 42).Train(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, snapshot, records)
}

func TestSplitSeparatesTrainAndEval(t *testing.T) {
	t.Parallel()

	records := make([]domain.Record, 50)
	for i := range records {
		records[i] = domain.Record{Features: []float64{float64(i)}, Label: float64(i)}
	}

	train, eval, err := New(0.2, 42).split(records)
	require.NoError(t, err)
	assert.Len(t, train, 40)
	assert.Len(t, eval, 10)

	seen := map[float64]bool{}
	for _, r := range append(append([]domain.Record{}, train...), eval...) {
		assert.False(t, seen[r.Label], "record %v appears in both splits", r.Label)
		seen[r.Label] = true
	}
	assert.Len(t, seen, 50)
}

func TestTrainInsufficientData(t *testing.T) {
	t.Parallel()

	cases := map[string][]domain.Record{
		"empty": nil,
		"single label": {
			{Features: []float64{1}, Label: 5},
			{Features: []float64{2}, Label: 5},
			{Features: []float64{3}, Label: 5},
		},
		"too few rows": {
			{Features: []float64{1}, Label: 1},
			{Features: []float64{2}, Label: 2},
		},
	}

	for name, records := range cases {
		_, _, err := New(0.2, 42).Train(context.Background(), records)
		var insufficient *domain.InsufficientDataError
		assert.True(t, errors.As(err, &insufficient), "%s: got %v", name, err)
	}
}

func TestTrainSingularFeatures(t *testing.T) {
	t.Parallel()

	records := make([]domain.Record, 10)
	for i := range records {
		records[i] = domain.Record{Features: []float64{4}, Label: float64(i)}
	}

	_, _, err := New(0.2, 42).Train(context.Background(), records)
	var trainingErr *domain.TrainingError
	assert.True(t, errors.As(err, &trainingErr), "got %v", err)
}

func TestTrainHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := New(0.2, 42).Train(ctx, studyHours(20, 1, 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewFallsBackToDefaultRatio(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultSplitRatio, New(0, 1).splitRatio)
	assert.Equal(t, DefaultSplitRatio, New(1.5, 1).splitRatio)
	assert.Equal(t, 0.3, New(0.3, 1).splitRatio)
}

func TestEvaluateConstantLabels(t *testing.T) {
	t.Parallel()

	artifact := domain.ModelArtifact{Intercept: 1, Coefficients: []float64{1}}
	_, err := Evaluate(artifact, []domain.Record{
		{Features: []float64{1}, Label: 3},
		{Features: []float64{2}, Label: 3},
	})
	var insufficient *domain.InsufficientDataError
	assert.True(t, errors.As(err, &insufficient))
}
