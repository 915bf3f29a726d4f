package training

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/mimir-aip/rfm-pipeline/pkg/models"
)

// CalculateRegressionMetrics computes MAE, RMSE and R² of predictions against actual values.
// A constant target scores R² = 1 when predicted exactly and 0 otherwise.
func CalculateRegressionMetrics(predictions, actual []float64) (*models.RegressionMetrics, error) {
	if len(predictions) != len(actual) {
		return nil, fmt.Errorf("length mismatch: %d predictions, %d actual values", len(predictions), len(actual))
	}
	if len(actual) == 0 {
		return nil, fmt.Errorf("empty data: %w", models.ErrNoData)
	}

	return &models.RegressionMetrics{
		MAE:        calculateMAE(predictions, actual),
		RMSE:       calculateRMSE(predictions, actual),
		R2Score:    calculateR2(predictions, actual),
		NumSamples: len(actual),
	}, nil
}

func calculateRMSE(predictions, actual []float64) float64 {
	sum := 0.0
	for i := range predictions {
		diff := predictions[i] - actual[i]
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(predictions)))
}

func calculateMAE(predictions, actual []float64) float64 {
	sum := 0.0
	for i := range predictions {
		sum += math.Abs(predictions[i] - actual[i])
	}
	return sum / float64(len(predictions))
}

func calculateR2(predictions, actual []float64) float64 {
	mean := stat.Mean(actual, nil)
	ssTot, ssRes := 0.0, 0.0
	for i := range actual {
		ssTot += (actual[i] - mean) * (actual[i] - mean)
		ssRes += (actual[i] - predictions[i]) * (actual[i] - predictions[i])
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return stat.RSquaredFrom(predictions, actual, nil)
}
