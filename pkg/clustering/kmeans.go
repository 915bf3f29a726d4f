// Package clustering implements Lloyd's k-means with k-means++ seeding.
package clustering

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrTooFewSamples is returned when there are fewer samples than clusters
var ErrTooFewSamples = errors.New("fewer samples than clusters")

// Options controls a k-means fit
type Options struct {
	K         int
	NInit     int     // independent k-means++ restarts
	MaxIter   int     // Lloyd iterations per restart
	Tolerance float64 // relative to the mean feature variance
	Seed      int64
}

// DefaultOptions returns k=4 with ten restarts
func DefaultOptions() Options {
	return Options{K: 4, NInit: 10, MaxIter: 300, Tolerance: 1e-4, Seed: 42}
}

// Model is a fitted clustering
type Model struct {
	K          int
	Centroids  [][]float64
	Labels     []int
	Inertia    float64
	Iterations int
}

// Fit clusters x into opts.K groups and returns the restart with the lowest inertia
func Fit(x [][]float64, opts Options) (*Model, error) {
	return fit(x, opts, nil)
}

// fit runs opts.NInit seeded restarts, plus one restart from warm when given
func fit(x [][]float64, opts Options, warm [][]float64) (*Model, error) {
	n := len(x)
	if opts.K < 1 {
		return nil, fmt.Errorf("k must be positive, got %d", opts.K)
	}
	if n < opts.K {
		return nil, fmt.Errorf("k=%d, n=%d: %w", opts.K, n, ErrTooFewSamples)
	}
	if opts.NInit < 1 {
		opts.NInit = 1
	}
	if opts.MaxIter < 1 {
		opts.MaxIter = 1
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	tol := absoluteTolerance(x, opts.Tolerance)

	var best *Model
	consider := func(m *Model) {
		if best == nil || m.Inertia < best.Inertia {
			best = m
		}
	}

	if len(warm) > 0 && len(warm) <= opts.K {
		consider(lloyd(x, seedPlusPlus(x, opts.K, rng, warm), opts.MaxIter, tol))
	}
	for i := 0; i < opts.NInit; i++ {
		consider(lloyd(x, seedPlusPlus(x, opts.K, rng, nil), opts.MaxIter, tol))
	}
	return best, nil
}

// seedPlusPlus extends initial to k centroids with k-means++ sampling
func seedPlusPlus(x [][]float64, k int, rng *rand.Rand, initial [][]float64) [][]float64 {
	centers := make([][]float64, 0, k)
	for _, c := range initial {
		centers = append(centers, clone(c))
	}
	if len(centers) == 0 {
		centers = append(centers, clone(x[rng.Intn(len(x))]))
	}

	dist := make([]float64, len(x))
	for i, p := range x {
		dist[i] = math.Inf(1)
		for _, c := range centers {
			dist[i] = math.Min(dist[i], sqDist(p, c))
		}
	}

	for len(centers) < k {
		total := floats.Sum(dist)
		next := rng.Intn(len(x))
		if total > 0 {
			r := rng.Float64() * total
			acc := 0.0
			for i, d := range dist {
				acc += d
				if acc > r && d > 0 {
					next = i
					break
				}
			}
		}
		c := clone(x[next])
		centers = append(centers, c)
		for i, p := range x {
			dist[i] = math.Min(dist[i], sqDist(p, c))
		}
	}
	return centers
}

// lloyd alternates assignment and update steps and returns the best
// assignment seen, so the result never scores worse than its starting centroids.
func lloyd(x [][]float64, centers [][]float64, maxIter int, tol float64) *Model {
	k := len(centers)
	labels := make([]int, len(x))

	var best *Model
	for iter := 1; ; iter++ {
		inertia := assign(x, centers, labels)
		if best == nil || inertia < best.Inertia {
			best = &Model{K: k, Centroids: cloneAll(centers), Labels: append([]int(nil), labels...), Inertia: inertia, Iterations: iter}
		}
		if iter > maxIter {
			break
		}

		next := update(x, labels, k)
		reseedEmpty(x, centers, labels, next)

		shift := 0.0
		for j := range centers {
			shift += sqDist(centers[j], next[j])
		}
		centers = next
		if shift <= tol {
			inertia := assign(x, centers, labels)
			if inertia < best.Inertia {
				best = &Model{K: k, Centroids: cloneAll(centers), Labels: append([]int(nil), labels...), Inertia: inertia, Iterations: iter}
			}
			break
		}
	}
	return best
}

// assign labels every point with its nearest centroid and returns the inertia
func assign(x [][]float64, centers [][]float64, labels []int) float64 {
	inertia := 0.0
	for i, p := range x {
		bestJ, bestD := 0, math.Inf(1)
		for j, c := range centers {
			if d := sqDist(p, c); d < bestD {
				bestJ, bestD = j, d
			}
		}
		labels[i] = bestJ
		inertia += bestD
	}
	return inertia
}

// update returns the mean of each cluster; empty clusters come back nil
func update(x [][]float64, labels []int, k int) [][]float64 {
	sums := make([][]float64, k)
	counts := make([]int, k)
	for i, p := range x {
		j := labels[i]
		if sums[j] == nil {
			sums[j] = make([]float64, len(p))
		}
		floats.Add(sums[j], p)
		counts[j]++
	}
	for j := range sums {
		if counts[j] > 0 {
			floats.Scale(1/float64(counts[j]), sums[j])
		}
	}
	return sums
}

// reseedEmpty moves each empty centroid onto the point farthest from its current centroid
func reseedEmpty(x [][]float64, old [][]float64, labels []int, next [][]float64) {
	taken := make(map[int]bool)
	for j := range next {
		if next[j] != nil {
			continue
		}
		far, farD := -1, -1.0
		for i, p := range x {
			if taken[i] {
				continue
			}
			if d := sqDist(p, old[labels[i]]); d > farD {
				far, farD = i, d
			}
		}
		taken[far] = true
		next[j] = clone(x[far])
	}
}

// absoluteTolerance scales tol by the mean per-feature variance of x
func absoluteTolerance(x [][]float64, tol float64) float64 {
	if tol <= 0 || len(x) == 0 {
		return 0
	}
	p := len(x[0])
	col := make([]float64, len(x))
	total := 0.0
	for j := 0; j < p; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		_, v := stat.PopMeanVariance(col, nil)
		total += v
	}
	return tol * total / float64(p)
}

func sqDist(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}

func cloneAll(vs [][]float64) [][]float64 {
	out := make([][]float64, len(vs))
	for i, v := range vs {
		out[i] = clone(v)
	}
	return out
}
