package training

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/mimir-aip/rfm-pipeline/pkg/models"
)

// TrainTestSplit shuffles the row indices 0..n-1 with seed and returns the
// training and test partitions. The test partition holds ceil(testFraction*n)
// rows, clamped so both partitions keep at least one row.
func TrainTestSplit(n int, testFraction float64, seed int64) (train, test []int, err error) {
	if n < 2 {
		return nil, nil, fmt.Errorf("need at least 2 rows to split, got %d: %w", n, models.ErrNoData)
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in (0, 1), got %v", testFraction)
	}

	testSize := int(math.Ceil(testFraction*float64(n) - 1e-9))
	testSize = max(1, min(testSize, n-1))

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[testSize:], perm[:testSize], nil
}

// Subset returns the rows of features and labels named by idx
func Subset(features [][]float64, labels []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	ys := make([]float64, len(idx))
	for i, j := range idx {
		xs[i] = features[j]
		ys[i] = labels[j]
	}
	return xs, ys
}
