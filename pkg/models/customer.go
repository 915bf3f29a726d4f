package models

// RFM column names, in feature-matrix order
const (
	ColumnMonetary  = "Monetary"
	ColumnFrequency = "Frequency"
	ColumnRecency   = "Recency"
)

// RFMColumns lists the aggregate columns in the order used by the scaler and clusterer
var RFMColumns = []string{ColumnMonetary, ColumnFrequency, ColumnRecency}

// CustomerRFM is the per-customer aggregate
type CustomerRFM struct {
	CustomerID string  `json:"customer_id"`
	Monetary   float64 `json:"monetary"`
	Frequency  int     `json:"frequency"`
	Recency    int     `json:"recency"`
}

// Vector returns the aggregate as [Monetary, Frequency, Recency]
func (c CustomerRFM) Vector() []float64 {
	return []float64{c.Monetary, float64(c.Frequency), float64(c.Recency)}
}

// Value returns one RFM column by name
func (c CustomerRFM) Value(column string) float64 {
	switch column {
	case ColumnMonetary:
		return c.Monetary
	case ColumnFrequency:
		return float64(c.Frequency)
	case ColumnRecency:
		return float64(c.Recency)
	}
	return 0
}

// Segment is a customer with its cluster label
type Segment struct {
	CustomerRFM
	Cluster int `json:"cluster"`
}

// ClusterSummary holds per-cluster averages in raw units
type ClusterSummary struct {
	Cluster       int     `json:"cluster"`
	Customers     int     `json:"customers"`
	MeanMonetary  float64 `json:"mean_monetary"`
	MeanFrequency float64 `json:"mean_frequency"`
	MeanRecency   float64 `json:"mean_recency"`
}

// InertiaPoint is one point of the elbow curve
type InertiaPoint struct {
	K       int     `json:"k"`
	Inertia float64 `json:"inertia"`
}

// TrimBound records the interval applied to one RFM column
type TrimBound struct {
	Column  string  `json:"column"`
	QLow    float64 `json:"q_low"`
	QHigh   float64 `json:"q_high"`
	Lower   float64 `json:"lower"`
	Upper   float64 `json:"upper"`
	Removed int     `json:"removed"`
}

// Correlation is a labelled square correlation matrix
type Correlation struct {
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"`
}
