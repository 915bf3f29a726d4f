package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/mimir-aip/rfm-pipeline/pkg/models"
)

// Scaler standardizes columns to zero mean and unit population variance
type Scaler struct {
	Mean []float64
	Std  []float64
}

// FitScaler learns per-column means and population standard deviations
func FitScaler(rows [][]float64) (*Scaler, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("cannot fit scaler: %w", models.ErrNoData)
	}
	p := len(rows[0])
	s := &Scaler{Mean: make([]float64, p), Std: make([]float64, p)}
	col := make([]float64, len(rows))
	for j := 0; j < p; j++ {
		for i, r := range rows {
			if len(r) != p {
				return nil, fmt.Errorf("row %d has %d columns, expected %d", i, len(r), p)
			}
			col[i] = r[j]
		}
		s.Mean[j], s.Std[j] = stat.PopMeanStdDev(col, nil)
	}
	return s, nil
}

// Transform returns standardized copies of rows. Columns without spread map to 0.
func (s *Scaler) Transform(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = make([]float64, len(r))
		for j, v := range r {
			if s.Std[j] <= 1e-12*math.Max(1, math.Abs(s.Mean[j])) {
				continue
			}
			out[i][j] = (v - s.Mean[j]) / s.Std[j]
		}
	}
	return out
}

// RFMMatrix returns the customers as rows of [Monetary, Frequency, Recency]
func RFMMatrix(customers []models.CustomerRFM) [][]float64 {
	rows := make([][]float64, len(customers))
	for i, c := range customers {
		rows[i] = c.Vector()
	}
	return rows
}
