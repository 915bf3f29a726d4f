package models

import (
	"strconv"
	"strings"
	"time"
)

// Transaction represents one line of the retail transaction log.
// Description and CustomerID are empty when the source cell was empty.
type Transaction struct {
	InvoiceNo   string    `json:"invoice_no"`
	StockCode   string    `json:"stock_code"`
	Description string    `json:"description"`
	Quantity    int       `json:"quantity"`
	InvoiceDate time.Time `json:"invoice_date"`
	UnitPrice   float64   `json:"unit_price"`
	CustomerID  string    `json:"customer_id"`
	Country     string    `json:"country"`
}

// HasCustomer reports whether the row is attributed to a customer
func (t Transaction) HasCustomer() bool {
	return t.CustomerID != ""
}

// EnrichedTransaction is a cleaned transaction with derived per-row fields
type EnrichedTransaction struct {
	Transaction
	TotalPrice float64 `json:"total_price"`
	WeekDay    string  `json:"week_day"`
	Day        int     `json:"day"`
	Month      int     `json:"month"`
	Year       int     `json:"year"`
}

// NormalizeCustomerID turns float-rendered integral IDs such as "17850.0" into "17850".
func NormalizeCustomerID(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" || !strings.Contains(id, ".") {
		return id
	}
	f, err := strconv.ParseFloat(id, 64)
	if err != nil || f != float64(int64(f)) {
		return id
	}
	return strconv.FormatInt(int64(f), 10)
}

// CompareCustomerIDs orders integer IDs numerically ahead of all other IDs,
// which compare lexically.
func CompareCustomerIDs(a, b string) int {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return strings.Compare(a, b)
}
