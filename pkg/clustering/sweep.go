package clustering

import (
	"fmt"

	"github.com/mimir-aip/rfm-pipeline/pkg/models"
)

// Sweep fits k-means for every k in [minK, maxK] and returns the elbow curve.
// Each k after the first also restarts from the previous k's best centroids
// plus one k-means++ pick, so inertia never grows with k. Values of k above
// the number of samples are skipped.
func Sweep(x [][]float64, minK, maxK int, opts Options) ([]models.InertiaPoint, error) {
	if minK < 1 || maxK < minK {
		return nil, fmt.Errorf("invalid sweep range [%d, %d]", minK, maxK)
	}

	var (
		curve []models.InertiaPoint
		warm  [][]float64
	)
	for k := minK; k <= maxK && k <= len(x); k++ {
		o := opts
		o.K = k
		m, err := fit(x, o, warm)
		if err != nil {
			return nil, fmt.Errorf("k=%d: %w", k, err)
		}
		curve = append(curve, models.InertiaPoint{K: k, Inertia: m.Inertia})
		warm = m.Centroids
	}
	return curve, nil
}

// Summarize returns per-cluster counts and raw-unit RFM means
func Summarize(customers []models.CustomerRFM, labels []int, k int) []models.ClusterSummary {
	out := make([]models.ClusterSummary, k)
	for j := range out {
		out[j].Cluster = j
	}
	for i, c := range customers {
		s := &out[labels[i]]
		s.Customers++
		s.MeanMonetary += c.Monetary
		s.MeanFrequency += float64(c.Frequency)
		s.MeanRecency += float64(c.Recency)
	}
	for j := range out {
		if n := float64(out[j].Customers); n > 0 {
			out[j].MeanMonetary /= n
			out[j].MeanFrequency /= n
			out[j].MeanRecency /= n
		}
	}
	return out
}

// Segments attaches labels to customers
func Segments(customers []models.CustomerRFM, labels []int) []models.Segment {
	out := make([]models.Segment, len(customers))
	for i, c := range customers {
		out[i] = models.Segment{CustomerRFM: c, Cluster: labels[i]}
	}
	return out
}
