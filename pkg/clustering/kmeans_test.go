package clustering

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/rfm-pipeline/pkg/models"
)

// blobs returns three well separated groups of points in 3-D
func blobs(perGroup int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	centers := [][]float64{{0, 0, 0}, {10, 10, 10}, {-10, 10, -10}}
	var x [][]float64
	for _, c := range centers {
		for i := 0; i < perGroup; i++ {
			x = append(x, []float64{
				c[0] + rng.NormFloat64()*0.5,
				c[1] + rng.NormFloat64()*0.5,
				c[2] + rng.NormFloat64()*0.5,
			})
		}
	}
	return x
}

func TestFitSeparatesBlobs(t *testing.T) {
	x := blobs(20, 1)
	opts := DefaultOptions()
	opts.K = 3

	m, err := Fit(x, opts)
	require.NoError(t, err)

	require.Len(t, m.Labels, len(x))
	require.Len(t, m.Centroids, 3)
	for g := 0; g < 3; g++ {
		first := m.Labels[g*20]
		for i := g * 20; i < (g+1)*20; i++ {
			assert.Equal(t, first, m.Labels[i], "point %d", i)
		}
	}
	assert.NotEqual(t, m.Labels[0], m.Labels[20])
	assert.NotEqual(t, m.Labels[20], m.Labels[40])
	assert.Less(t, m.Inertia, 60*3*1.0)
}

func TestFitDeterministic(t *testing.T) {
	x := blobs(30, 7)
	opts := DefaultOptions()

	a, err := Fit(x, opts)
	require.NoError(t, err)
	b, err := Fit(x, opts)
	require.NoError(t, err)

	assert.Equal(t, a.Labels, b.Labels)
	assert.Equal(t, a.Inertia, b.Inertia)
	assert.Equal(t, a.Centroids, b.Centroids)
}

func TestFitLabelsInRange(t *testing.T) {
	x := blobs(10, 3)
	for k := 1; k <= 6; k++ {
		opts := DefaultOptions()
		opts.K = k
		m, err := Fit(x, opts)
		require.NoError(t, err)
		for _, l := range m.Labels {
			assert.GreaterOrEqual(t, l, 0)
			assert.Less(t, l, k)
		}
	}
}

func TestFitTooFewSamples(t *testing.T) {
	_, err := Fit([][]float64{{1, 2, 3}}, DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTooFewSamples))
}

func TestFitDuplicatePoints(t *testing.T) {
	x := [][]float64{{1, 1, 1}, {1, 1, 1}, {1, 1, 1}, {1, 1, 1}, {2, 2, 2}}
	opts := DefaultOptions()
	opts.K = 3

	m, err := Fit(x, opts)
	require.NoError(t, err)
	assert.InDelta(t, 0, m.Inertia, 1e-12)
}

func TestSweepNonIncreasing(t *testing.T) {
	x := blobs(25, 11)
	opts := DefaultOptions()
	opts.MaxIter = 50
	opts.Seed = 0

	curve, err := Sweep(x, 2, 8, opts)
	require.NoError(t, err)
	require.Len(t, curve, 7)

	for i, p := range curve {
		assert.Equal(t, i+2, p.K)
		if i > 0 {
			assert.LessOrEqual(t, p.Inertia, curve[i-1].Inertia, "k=%d", p.K)
		}
	}
}

func TestSweepSkipsLargeK(t *testing.T) {
	x := [][]float64{{0, 0, 0}, {1, 1, 1}, {5, 5, 5}}

	curve, err := Sweep(x, 2, 8, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, curve, 2)
	assert.Equal(t, 3, curve[1].K)
	assert.InDelta(t, 0, curve[1].Inertia, 1e-12)

	_, err = Sweep(x, 4, 2, DefaultOptions())
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	customers := []models.CustomerRFM{
		{CustomerID: "1", Monetary: 10, Frequency: 1, Recency: 4},
		{CustomerID: "2", Monetary: 30, Frequency: 3, Recency: 2},
		{CustomerID: "3", Monetary: 100, Frequency: 9, Recency: 0},
	}
	labels := []int{0, 0, 1}

	summary := Summarize(customers, labels, 3)

	require.Len(t, summary, 3)
	assert.Equal(t, models.ClusterSummary{Cluster: 0, Customers: 2, MeanMonetary: 20, MeanFrequency: 2, MeanRecency: 3}, summary[0])
	assert.Equal(t, models.ClusterSummary{Cluster: 1, Customers: 1, MeanMonetary: 100, MeanFrequency: 9, MeanRecency: 0}, summary[1])
	assert.Equal(t, models.ClusterSummary{Cluster: 2}, summary[2])

	segs := Segments(customers, labels)
	assert.Equal(t, 1, segs[2].Cluster)
	assert.Equal(t, "3", segs[2].CustomerID)
}
