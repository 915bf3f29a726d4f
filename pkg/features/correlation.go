package features

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/mimir-aip/rfm-pipeline/pkg/models"
)

// CorrelationColumns are the per-row numeric columns of the heatmap
var CorrelationColumns = []string{"Quantity", "UnitPrice", "TotalPrice"}

// Correlate returns the Pearson correlation matrix of Quantity, UnitPrice
// and TotalPrice. Entries left undefined by a constant column are 0 off the
// diagonal and 1 on it.
func Correlate(rows []models.EnrichedTransaction) *models.Correlation {
	p := len(CorrelationColumns)
	values := make([][]float64, p)
	for i := range values {
		values[i] = make([]float64, p)
		values[i][i] = 1
	}
	corr := &models.Correlation{Columns: CorrelationColumns, Values: values}
	if len(rows) < 2 {
		return corr
	}

	data := mat.NewDense(len(rows), p, nil)
	for i, r := range rows {
		data.Set(i, 0, float64(r.Quantity))
		data.Set(i, 1, r.UnitPrice)
		data.Set(i, 2, r.TotalPrice)
	}

	sym := mat.NewSymDense(p, nil)
	stat.CorrelationMatrix(sym, data, nil)

	for i := 0; i < p; i++ {
		for j := 0; j < p; j++ {
			if i == j {
				continue
			}
			v := sym.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			values[i][j] = v
		}
	}
	return corr
}
