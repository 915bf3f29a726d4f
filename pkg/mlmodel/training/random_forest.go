package training

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/mimir-aip/rfm-pipeline/pkg/models"
)

// RandomForest is a bagged ensemble of regression trees
type RandomForest struct {
	Trees           []*RegressionTree `json:"trees"`
	NumTrees        int               `json:"num_trees"`
	MaxDepth        int               `json:"max_depth"`
	MinSamplesSplit int               `json:"min_samples_split"`
	MinSamplesLeaf  int               `json:"min_samples_leaf"`
	MaxFeatures     int               `json:"max_features"` // Number of features to consider per split, 0 = all
	Bootstrap       bool              `json:"bootstrap"`    // Use bootstrap sampling
	RandomSeed      int64             `json:"random_seed"`
	NumFeatures     int               `json:"num_features"`
	OOBScore        *float64          `json:"oob_score,omitempty"` // Out-of-bag R²
}

// NewRandomForest creates a forest from the training configuration
func NewRandomForest(config *models.TrainingConfig) *RandomForest {
	rf := &RandomForest{
		NumTrees:        100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Bootstrap:       true,
	}
	if config != nil {
		if config.NumTrees > 0 {
			rf.NumTrees = config.NumTrees
		}
		if config.MinSamplesSplit > 0 {
			rf.MinSamplesSplit = config.MinSamplesSplit
		}
		if config.MinSamplesLeaf > 0 {
			rf.MinSamplesLeaf = config.MinSamplesLeaf
		}
		rf.MaxDepth = config.MaxDepth
		rf.MaxFeatures = config.MaxFeatures
		rf.RandomSeed = config.RandomSeed
	}
	return rf
}

// Fit trains the trees one after another. Every tree draws its bootstrap
// sample and feature subsets from its own generator, seeded from the forest
// seed, so two fits with the same seed produce identical forests.
func (rf *RandomForest) Fit(x [][]float64, y []float64) error {
	n := len(x)
	if n == 0 {
		return ErrEmptyTrainingData
	}
	if len(y) != n {
		return fmt.Errorf("features (%d) and labels (%d) differ in length", n, len(y))
	}
	rf.NumFeatures = len(x[0])
	rf.Trees = make([]*RegressionTree, 0, rf.NumTrees)

	seeds := rand.New(rand.NewSource(rf.RandomSeed))
	oobSum := make([]float64, n)
	oobCount := make([]int, n)

	for i := 0; i < rf.NumTrees; i++ {
		rng := rand.New(rand.NewSource(seeds.Int63()))

		idx := make([]int, n)
		inBag := make([]bool, n)
		for j := range idx {
			if rf.Bootstrap {
				idx[j] = rng.Intn(n)
			} else {
				idx[j] = j
			}
			inBag[idx[j]] = true
		}

		tree := &RegressionTree{
			MaxDepth:        rf.MaxDepth,
			MinSamplesSplit: rf.MinSamplesSplit,
			MinSamplesLeaf:  rf.MinSamplesLeaf,
			MaxFeatures:     rf.MaxFeatures,
		}
		if err := tree.fit(x, y, idx, rng); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
		rf.Trees = append(rf.Trees, tree)

		for j := range x {
			if !inBag[j] {
				oobSum[j] += tree.Predict(x[j])
				oobCount[j]++
			}
		}
	}

	rf.OOBScore = nil
	var pred, actual []float64
	for j := range x {
		if oobCount[j] > 0 {
			pred = append(pred, oobSum[j]/float64(oobCount[j]))
			actual = append(actual, y[j])
		}
	}
	if len(pred) > 1 {
		if m, err := CalculateRegressionMetrics(pred, actual); err == nil {
			rf.OOBScore = &m.R2Score
		}
	}
	return nil
}

// Predict averages the predictions of every tree
func (rf *RandomForest) Predict(features []float64) float64 {
	if len(rf.Trees) == 0 {
		return 0
	}
	sum := 0.0
	for _, tree := range rf.Trees {
		sum += tree.Predict(features)
	}
	return sum / float64(len(rf.Trees))
}

// FeatureImportance returns the mean normalized variance reduction per feature
func (rf *RandomForest) FeatureImportance() []float64 {
	importance := make([]float64, rf.NumFeatures)
	for _, tree := range rf.Trees {
		floats.Add(importance, tree.Importance)
	}
	if total := floats.Sum(importance); total > 0 {
		floats.Scale(1/total, importance)
	}
	return importance
}

// RandomForestTrainer implements random forest training
type RandomForestTrainer struct {
	forest *RandomForest
}

// NewRandomForestTrainer creates a new random forest trainer
func NewRandomForestTrainer() *RandomForestTrainer {
	return &RandomForestTrainer{}
}

// Train trains a random forest regressor
func (t *RandomForestTrainer) Train(data *TrainingData, config *models.TrainingConfig) (*TrainingResult, error) {
	if err := validateData(data); err != nil {
		return nil, err
	}
	if config != nil {
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("invalid training config: %w", err)
		}
	}

	forest := NewRandomForest(config)
	if err := forest.Fit(data.TrainFeatures, data.TrainLabels); err != nil {
		return nil, err
	}
	t.forest = forest

	result := &TrainingResult{
		Model:             forest,
		FeatureImportance: importanceByName(forest.FeatureImportance(), data.FeatureNames),
		OOBScore:          forest.OOBScore,
	}
	if err := score(forest, data, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Validate validates the trained model
func (t *RandomForestTrainer) Validate(data *TrainingData) (*models.RegressionMetrics, error) {
	if t.forest == nil {
		return nil, fmt.Errorf("model not trained")
	}
	return CalculateRegressionMetrics(PredictAll(t.forest, data.TestFeatures), data.TestLabels)
}

// GetType returns the model type
func (t *RandomForestTrainer) GetType() models.ModelType {
	return models.ModelTypeRandomForest
}
