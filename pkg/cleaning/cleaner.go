// Package cleaning removes incomplete, duplicate and outlying transactions.
package cleaning

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/mimir-aip/rfm-pipeline/pkg/models"
)

// Options controls the cleaner
type Options struct {
	DescriptionPlaceholder string
	ZThreshold             float64
}

// DefaultOptions returns the notebook's cleaning parameters
func DefaultOptions() Options {
	return Options{DescriptionPlaceholder: "Unknown", ZThreshold: 2}
}

// Result is the cleaned table and the per-step counts
type Result struct {
	Rows  []models.Transaction
	Stats models.CleanStats
}

// rowKey is a comparable view of a transaction used for exact duplicate detection
type rowKey struct {
	invoiceNo   string
	stockCode   string
	description string
	quantity    int
	date        int64
	unitPrice   float64
	customerID  string
	country     string
}

func keyOf(t models.Transaction) rowKey {
	return rowKey{
		invoiceNo:   t.InvoiceNo,
		stockCode:   t.StockCode,
		description: t.Description,
		quantity:    t.Quantity,
		date:        t.InvoiceDate.UnixNano(),
		unitPrice:   t.UnitPrice,
		customerID:  t.CustomerID,
		country:     t.Country,
	}
}

// Clean applies, in order: description fill, missing-customer drop, exact
// duplicate removal, z-score filtering on Quantity and UnitPrice, and
// removal of non-positive Quantity or UnitPrice. The input is not modified
// and surviving rows keep their relative order.
func Clean(rows []models.Transaction, opts Options) *Result {
	stats := models.CleanStats{Input: len(rows)}

	filled := make([]models.Transaction, 0, len(rows))
	seen := make(map[rowKey]struct{}, len(rows))
	for _, tx := range rows {
		if tx.Description == "" {
			tx.Description = opts.DescriptionPlaceholder
			stats.DescriptionsFilled++
		}
		if !tx.HasCustomer() {
			stats.MissingCustomer++
			continue
		}
		k := keyOf(tx)
		if _, dup := seen[k]; dup {
			stats.Duplicates++
			continue
		}
		seen[k] = struct{}{}
		filled = append(filled, tx)
	}

	kept := filterZScore(filled, opts.ZThreshold)
	stats.ZScoreOutliers = len(filled) - len(kept)

	out := make([]models.Transaction, 0, len(kept))
	for _, tx := range kept {
		if tx.Quantity <= 0 || tx.UnitPrice <= 0 {
			stats.NonPositive++
			continue
		}
		out = append(out, tx)
	}

	stats.Output = len(out)
	return &Result{Rows: out, Stats: stats}
}

// filterZScore keeps rows whose |z| is below threshold on every numeric column
func filterZScore(rows []models.Transaction, threshold float64) []models.Transaction {
	if len(rows) == 0 {
		return rows
	}

	qty := make([]float64, len(rows))
	price := make([]float64, len(rows))
	for i, tx := range rows {
		qty[i] = float64(tx.Quantity)
		price[i] = tx.UnitPrice
	}
	qz := ZScores(qty)
	pz := ZScores(price)

	kept := make([]models.Transaction, 0, len(rows))
	for i, tx := range rows {
		if math.Abs(qz[i]) < threshold && math.Abs(pz[i]) < threshold {
			kept = append(kept, tx)
		}
	}
	return kept
}

// ZScores returns (x - mean) / std for every value using the population
// standard deviation. A column without spread yields all zeros.
func ZScores(values []float64) []float64 {
	z := make([]float64, len(values))
	if len(values) == 0 {
		return z
	}
	mean, std := stat.PopMeanStdDev(values, nil)
	if !hasSpread(mean, std) {
		return z
	}
	for i, v := range values {
		z[i] = (v - mean) / std
	}
	return z
}

// hasSpread treats a std lost in rounding noise around the mean as zero
func hasSpread(mean, std float64) bool {
	return std > 1e-12*math.Max(1, math.Abs(mean))
}
