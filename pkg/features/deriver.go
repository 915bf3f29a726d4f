// Package features derives per-row and per-customer features from cleaned transactions.
package features

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mimir-aip/rfm-pipeline/pkg/models"
)

// Derived is the output of Derive
type Derived struct {
	Transactions  []models.EnrichedTransaction
	Customers     []models.CustomerRFM
	ReferenceDate time.Time // latest InvoiceDate in the table
	Unjoined      int       // customers missing from one of the projections
}

// Enrich computes TotalPrice and the calendar fields of every row
func Enrich(rows []models.Transaction) []models.EnrichedTransaction {
	out := make([]models.EnrichedTransaction, len(rows))
	for i, tx := range rows {
		out[i] = models.EnrichedTransaction{
			Transaction: tx,
			TotalPrice:  totalPrice(tx).InexactFloat64(),
			WeekDay:     tx.InvoiceDate.Weekday().String()[:3],
			Day:         tx.InvoiceDate.Day(),
			Month:       int(tx.InvoiceDate.Month()),
			Year:        tx.InvoiceDate.Year(),
		}
	}
	return out
}

func totalPrice(tx models.Transaction) decimal.Decimal {
	return decimal.NewFromFloat(tx.UnitPrice).Mul(decimal.NewFromInt(int64(tx.Quantity)))
}

// Derive enriches rows and aggregates them per customer. Monetary, Frequency
// and Recency are built as separate projections and inner-joined on
// CustomerID; the result is ordered by CustomerID.
func Derive(rows []models.Transaction) *Derived {
	d := &Derived{Transactions: Enrich(rows)}
	if len(rows) == 0 {
		return d
	}

	monetary := make(map[string]decimal.Decimal)
	frequency := make(map[string]int)
	lastPurchase := make(map[string]time.Time)

	for _, tx := range rows {
		if tx.InvoiceDate.After(d.ReferenceDate) {
			d.ReferenceDate = tx.InvoiceDate
		}
		if !tx.HasCustomer() {
			continue
		}
		monetary[tx.CustomerID] = monetary[tx.CustomerID].Add(totalPrice(tx))
		frequency[tx.CustomerID]++
		if last, ok := lastPurchase[tx.CustomerID]; !ok || tx.InvoiceDate.After(last) {
			lastPurchase[tx.CustomerID] = tx.InvoiceDate
		}
	}

	ids := make([]string, 0, len(monetary))
	for id := range monetary {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, models.CompareCustomerIDs)

	for _, id := range ids {
		freq, okF := frequency[id]
		last, okR := lastPurchase[id]
		if !okF || !okR {
			d.Unjoined++
			continue
		}
		d.Customers = append(d.Customers, models.CustomerRFM{
			CustomerID: id,
			Monetary:   monetary[id].InexactFloat64(),
			Frequency:  freq,
			Recency:    wholeDays(d.ReferenceDate.Sub(last)),
		})
	}
	return d
}

// wholeDays floors a non-negative duration to days
func wholeDays(d time.Duration) int {
	return int(d / (24 * time.Hour))
}
