package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/rfm-pipeline/pkg/models"
)

func sampleReport() *models.RunReport {
	oob := 0.42
	return &models.RunReport{
		ID:     "run-1",
		Input:  "retail.csv",
		Status: models.RunStatusCompleted,
		Load:   models.LoadStats{Records: 4, Loaded: 3, Skipped: map[string]int{"bad_quantity": 1}},
		Stages: []models.StageCount{{Stage: models.StageLoad, In: 4, Out: 3}},
		Transactions: []models.EnrichedTransaction{
			{Transaction: models.Transaction{Quantity: 6, UnitPrice: 2.55, InvoiceDate: time.Now()}, TotalPrice: 15.3},
			{Transaction: models.Transaction{Quantity: 6, UnitPrice: 3.39, InvoiceDate: time.Now()}, TotalPrice: 20.34},
		},
		Correlation: &models.Correlation{
			Columns: []string{"Quantity", "UnitPrice"},
			Values:  [][]float64{{1, 0}, {0, 1}},
		},
		TrimBounds: []models.TrimBound{{Column: models.ColumnMonetary, QLow: 1, QHigh: 9, Lower: -11, Upper: 21, Removed: 2}},
		Inertia:    []models.InertiaPoint{{K: 2, Inertia: 120.5}, {K: 3, Inertia: 80.25}, {K: 4, Inertia: 61}},
		Clusters:   []models.ClusterSummary{{Cluster: 0, Customers: 2, MeanMonetary: 35.64, MeanFrequency: 2, MeanRecency: 1}},
		Model: &models.ModelResult{
			Type:              models.ModelTypeRandomForest,
			Train:             &models.RegressionMetrics{MAE: 1.234, RMSE: 2.346, R2Score: 0.876},
			Test:              &models.RegressionMetrics{MAE: 3.456, RMSE: 4.567, R2Score: 0.5},
			FeatureImportance: map[string]float64{"Recency": 0.25, "Frequency": 0.75},
			OOBScore:          &oob,
		},
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport()))
	out := buf.String()

	for _, want := range []string{
		"RFM run run-1",
		"Stage row counts",
		"bad_quantity",
		"Summary statistics",
		"mean",
		"Correlation matrix",
		"Outlier bounds",
		"Elbow curve",
		"120.50",
		"Cluster summary",
		"35.64",
		"Train - MAE: 1.23, RMSE: 2.35, R2: 0.88",
		"Test - MAE: 3.46, RMSE: 4.57, R2: 0.50",
		"OOB R2: 0.42",
	} {
		assert.Contains(t, out, want)
	}
}

func TestWriteNoData(t *testing.T) {
	rep := &models.RunReport{ID: "run-2", Status: models.RunStatusNoData, NoDataStage: models.StageClean}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, rep))
	assert.Contains(t, buf.String(), `no data left after stage "clean"`)
	assert.NotContains(t, buf.String(), "Elbow curve")
}

func TestDescribe(t *testing.T) {
	df := Describe(sampleReport().Transactions)
	records := df.Records()

	require.NotEmpty(t, records)
	assert.Equal(t, []string{"Quantity", "UnitPrice", "TotalPrice"}, records[0][1:])
	assert.Equal(t, 4, df.Ncol())
}

func TestElbowChart(t *testing.T) {
	assert.Empty(t, ElbowChart([]models.InertiaPoint{{K: 2, Inertia: 1}}))
	chart := ElbowChart(sampleReport().Inertia)
	assert.Contains(t, chart, "inertia for k = 2..4")
}
