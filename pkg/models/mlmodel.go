package models

import (
	"fmt"
)

// ModelType represents the type of regression model
type ModelType string

const (
	ModelTypeDecisionTree ModelType = "decision_tree"
	ModelTypeRandomForest ModelType = "random_forest"
)

// Feature and target names used by the regressor
const (
	FeatureRecency   = "Recency"
	FeatureFrequency = "Frequency"
	FeatureCluster   = "Cluster"
	TargetMonetary   = "Monetary"
)

// RegressorFeatures lists the regressor inputs in matrix order
var RegressorFeatures = []string{FeatureRecency, FeatureFrequency, FeatureCluster}

// TrainingConfig holds configuration for model training
type TrainingConfig struct {
	TestFraction    float64 `json:"test_fraction"` // e.g., 0.2 for 80% training, 20% testing
	RandomSeed      int64   `json:"random_seed"`
	NumTrees        int     `json:"num_trees,omitempty"`
	MaxDepth        int     `json:"max_depth,omitempty"` // 0 means unlimited
	MinSamplesSplit int     `json:"min_samples_split,omitempty"`
	MinSamplesLeaf  int     `json:"min_samples_leaf,omitempty"`
	MaxFeatures     int     `json:"max_features,omitempty"` // 0 means all features
}

// Validate checks if the TrainingConfig is valid
func (c *TrainingConfig) Validate() error {
	if c.TestFraction <= 0 || c.TestFraction >= 1 {
		return fmt.Errorf("test_fraction must be in (0, 1), got %v", c.TestFraction)
	}
	if c.NumTrees < 0 {
		return fmt.Errorf("num_trees must not be negative")
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max_depth must not be negative")
	}
	if c.MinSamplesSplit != 0 && c.MinSamplesSplit < 2 {
		return fmt.Errorf("min_samples_split must be at least 2")
	}
	if c.MinSamplesLeaf < 0 || c.MaxFeatures < 0 {
		return fmt.Errorf("min_samples_leaf and max_features must not be negative")
	}
	return nil
}

// RegressionMetrics holds model performance on one partition
type RegressionMetrics struct {
	MAE        float64 `json:"mae"`
	RMSE       float64 `json:"rmse"`
	R2Score    float64 `json:"r2_score"`
	NumSamples int     `json:"num_samples"`
}

// String formats the metrics the way the console report prints them
func (m *RegressionMetrics) String() string {
	if m == nil {
		return "n/a"
	}
	return fmt.Sprintf("MAE: %.2f, RMSE: %.2f, R2: %.2f", m.MAE, m.RMSE, m.R2Score)
}
