package models

import "time"

// RunStatus represents the outcome of a pipeline run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusNoData    RunStatus = "no_data"
	RunStatusFailed    RunStatus = "failed"
)

// Stage names, in execution order
const (
	StageLoad    = "load"
	StageClean   = "clean"
	StageDerive  = "derive"
	StageTrim    = "trim"
	StageScale   = "scale"
	StageCluster = "cluster"
	StageRegress = "regress"
)

// LoadStats summarizes the loader's work
type LoadStats struct {
	Records int            `json:"records"`
	Loaded  int            `json:"loaded"`
	Skipped map[string]int `json:"skipped,omitempty"` // by reason
}

// CleanStats holds per-step removal counts of the cleaner
type CleanStats struct {
	Input              int `json:"input"`
	DescriptionsFilled int `json:"descriptions_filled"`
	MissingCustomer    int `json:"missing_customer"`
	Duplicates         int `json:"duplicates"`
	ZScoreOutliers     int `json:"zscore_outliers"`
	NonPositive        int `json:"non_positive"`
	Output             int `json:"output"`
}

// StageCount is the row count entering and leaving one stage
type StageCount struct {
	Stage string `json:"stage"`
	In    int    `json:"in"`
	Out   int    `json:"out"`
}

// ModelResult holds the fitted regressor's evaluation
type ModelResult struct {
	Type              ModelType          `json:"type"`
	TrainRows         int                `json:"train_rows"`
	TestRows          int                `json:"test_rows"`
	Train             *RegressionMetrics `json:"train"`
	Test              *RegressionMetrics `json:"test"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
	OOBScore          *float64           `json:"oob_score,omitempty"`
}

// RunReport is everything one pipeline run produced
type RunReport struct {
	ID          string    `json:"id"`
	Input       string    `json:"input"`
	Status      RunStatus `json:"status"`
	NoDataStage string    `json:"no_data_stage,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`

	Load   LoadStats    `json:"load"`
	Clean  CleanStats   `json:"clean"`
	Stages []StageCount `json:"stages"`

	ReferenceDate time.Time    `json:"reference_date,omitempty"`
	Correlation   *Correlation `json:"correlation,omitempty"`
	TrimBounds    []TrimBound  `json:"trim_bounds,omitempty"`
	ScalerMean    []float64    `json:"scaler_mean,omitempty"`
	ScalerStd     []float64    `json:"scaler_std,omitempty"`

	Inertia  []InertiaPoint   `json:"inertia,omitempty"`
	K        int              `json:"k"`
	Clusters []ClusterSummary `json:"clusters,omitempty"`
	Segments []Segment        `json:"segments,omitempty"`

	Model *ModelResult `json:"model,omitempty"`

	// Transactions is kept for the console summary only
	Transactions []EnrichedTransaction `json:"-"`
}

// AddStage appends a stage count
func (r *RunReport) AddStage(stage string, in, out int) {
	r.Stages = append(r.Stages, StageCount{Stage: stage, In: in, Out: out})
}
