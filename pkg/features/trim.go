package features

import (
	"fmt"
	"math"
	"slices"

	"github.com/mimir-aip/rfm-pipeline/pkg/models"
)

// TrimPolicy selects how per-column bounds compound
type TrimPolicy string

const (
	// TrimShrinking computes each column's bounds on the rows that survived the previous column
	TrimShrinking TrimPolicy = "shrinking"
	// TrimOriginal computes every bound on the untrimmed table and intersects the masks
	TrimOriginal TrimPolicy = "original"
)

// TrimColumns is the order in which the RFM columns are trimmed
var TrimColumns = []string{models.ColumnMonetary, models.ColumnRecency, models.ColumnFrequency}

// TrimOptions controls the outlier trimmer
type TrimOptions struct {
	LowerQuantile float64
	UpperQuantile float64
	IQRMultiplier float64
	Policy        TrimPolicy
}

// DefaultTrimOptions returns the 5%/95% quantiles with a 1.5 IQR fence
func DefaultTrimOptions() TrimOptions {
	return TrimOptions{LowerQuantile: 0.05, UpperQuantile: 0.95, IQRMultiplier: 1.5, Policy: TrimShrinking}
}

// Trimmed is the output of Trim
type Trimmed struct {
	Customers []models.CustomerRFM
	Bounds    []models.TrimBound
}

// Trim removes customers outside [qLow - m*IQR, qHigh + m*IQR] on Monetary,
// Recency and Frequency in turn. Row order is preserved.
func Trim(customers []models.CustomerRFM, opts TrimOptions) (*Trimmed, error) {
	switch opts.Policy {
	case TrimShrinking, "":
		return trimShrinking(customers, opts), nil
	case TrimOriginal:
		return trimOriginal(customers, opts), nil
	}
	return nil, fmt.Errorf("unknown trim policy %q", opts.Policy)
}

func trimShrinking(customers []models.CustomerRFM, opts TrimOptions) *Trimmed {
	out := &Trimmed{Customers: customers}
	for _, col := range TrimColumns {
		bound := fence(col, out.Customers, opts)
		kept := make([]models.CustomerRFM, 0, len(out.Customers))
		for _, c := range out.Customers {
			if bound.contains(c.Value(col)) {
				kept = append(kept, c)
			}
		}
		bound.Removed = len(out.Customers) - len(kept)
		out.Bounds = append(out.Bounds, bound.TrimBound)
		out.Customers = kept
	}
	return out
}

func trimOriginal(customers []models.CustomerRFM, opts TrimOptions) *Trimmed {
	out := &Trimmed{}
	bounds := make([]interval, len(TrimColumns))
	for i, col := range TrimColumns {
		bounds[i] = fence(col, customers, opts)
	}
	for _, c := range customers {
		keep := true
		for i, col := range TrimColumns {
			if !bounds[i].contains(c.Value(col)) {
				bounds[i].Removed++
				keep = false
			}
		}
		if keep {
			out.Customers = append(out.Customers, c)
		}
	}
	for _, b := range bounds {
		out.Bounds = append(out.Bounds, b.TrimBound)
	}
	return out
}

type interval struct {
	models.TrimBound
	empty bool
}

func (iv interval) contains(v float64) bool {
	return !iv.empty && v >= iv.Lower && v <= iv.Upper
}

func fence(col string, customers []models.CustomerRFM, opts TrimOptions) interval {
	values := make([]float64, len(customers))
	for i, c := range customers {
		values[i] = c.Value(col)
	}
	if len(values) == 0 {
		return interval{TrimBound: models.TrimBound{Column: col}, empty: true}
	}
	slices.Sort(values)
	qLow := Quantile(values, opts.LowerQuantile)
	qHigh := Quantile(values, opts.UpperQuantile)
	iqr := qHigh - qLow
	return interval{TrimBound: models.TrimBound{
		Column: col,
		QLow:   qLow,
		QHigh:  qHigh,
		Lower:  qLow - opts.IQRMultiplier*iqr,
		Upper:  qHigh + opts.IQRMultiplier*iqr,
	}}
}

// Quantile returns the p-quantile of sorted values, interpolating linearly
// between the closest ranks at position (n-1)*p. It returns NaN for empty input.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 || p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	frac := pos - float64(lo)
	if lo+1 >= n || frac == 0 {
		return sorted[lo]
	}
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
