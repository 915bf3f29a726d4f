package training

import (
	"fmt"
	"math/rand"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/mimir-aip/rfm-pipeline/pkg/models"
)

// TreeNode is one node of a regression tree
type TreeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      *TreeNode `json:"left,omitempty"`
	Right     *TreeNode `json:"right,omitempty"`
	Value     float64   `json:"value"` // mean target of the samples reaching the node
	Samples   int       `json:"samples"`
	IsLeaf    bool      `json:"is_leaf"`
}

// RegressionTree is a CART regression tree grown by variance reduction
type RegressionTree struct {
	MaxDepth        int // 0 means unlimited
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // features tried per split, 0 means all

	Root        *TreeNode `json:"root"`
	NumFeatures int       `json:"num_features"`
	Importance  []float64 `json:"importance"` // total SSE reduction per feature
}

// NewRegressionTree creates a tree with the given growth limits
func NewRegressionTree(config *models.TrainingConfig) *RegressionTree {
	t := &RegressionTree{MinSamplesSplit: 2, MinSamplesLeaf: 1}
	if config != nil {
		t.MaxDepth = config.MaxDepth
		t.MaxFeatures = config.MaxFeatures
		if config.MinSamplesSplit > 0 {
			t.MinSamplesSplit = config.MinSamplesSplit
		}
		if config.MinSamplesLeaf > 0 {
			t.MinSamplesLeaf = config.MinSamplesLeaf
		}
	}
	return t
}

// Fit grows the tree on every row of x
func (t *RegressionTree) Fit(x [][]float64, y []float64, rng *rand.Rand) error {
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	return t.fit(x, y, idx, rng)
}

// fit grows the tree on the rows named by idx; idx may repeat rows
func (t *RegressionTree) fit(x [][]float64, y []float64, idx []int, rng *rand.Rand) error {
	if len(idx) == 0 {
		return ErrEmptyTrainingData
	}
	if len(x) != len(y) {
		return fmt.Errorf("features (%d) and labels (%d) differ in length", len(x), len(y))
	}
	t.NumFeatures = len(x[idx[0]])
	t.Importance = make([]float64, t.NumFeatures)
	t.Root = t.buildTree(x, y, idx, 0, rng)

	if total := floats.Sum(t.Importance); total > 0 {
		floats.Scale(1/total, t.Importance)
	}
	return nil
}

// Predict walks the tree for one feature row
func (t *RegressionTree) Predict(features []float64) float64 {
	node := t.Root
	for node != nil && !node.IsLeaf {
		if features[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	if node == nil {
		return 0
	}
	return node.Value
}

// Depth returns the number of edges on the longest root-to-leaf path
func (t *RegressionTree) Depth() int {
	var depth func(n *TreeNode) int
	depth = func(n *TreeNode) int {
		if n == nil || n.IsLeaf {
			return 0
		}
		return 1 + max(depth(n.Left), depth(n.Right))
	}
	return depth(t.Root)
}

// buildTree recursively builds a regression tree
func (t *RegressionTree) buildTree(x [][]float64, y []float64, idx []int, depth int, rng *rand.Rand) *TreeNode {
	labels := gather(y, idx)
	leaf := &TreeNode{IsLeaf: true, Value: stat.Mean(labels, nil), Samples: len(idx)}

	// Stop conditions
	if (t.MaxDepth > 0 && depth >= t.MaxDepth) ||
		len(idx) < t.MinSamplesSplit ||
		len(idx) < 2*t.MinSamplesLeaf ||
		isHomogeneous(labels) {
		return leaf
	}

	feature, threshold, gain := t.findBestSplit(x, labels, idx, leaf.Value, rng)
	if gain <= 0 {
		return leaf
	}
	t.Importance[feature] += gain

	left, right := splitIndices(x, idx, feature, threshold)
	return &TreeNode{
		Feature:   feature,
		Threshold: threshold,
		Value:     leaf.Value,
		Samples:   len(idx),
		Left:      t.buildTree(x, y, left, depth+1, rng),
		Right:     t.buildTree(x, y, right, depth+1, rng),
	}
}

// findBestSplit returns the feature and midpoint threshold with the largest
// reduction in squared error. labels[i] is the target of row idx[i].
func (t *RegressionTree) findBestSplit(x [][]float64, labels []float64, idx []int, mean float64, rng *rand.Rand) (int, float64, float64) {
	n := len(idx)
	order := make([]int, n) // positions into idx
	bestFeature, bestThreshold, bestGain := 0, 0.0, 0.0

	// centred sums keep the running SSE numerically stable
	totalSum, totalSq := 0.0, 0.0
	for _, v := range labels {
		totalSum += v - mean
		totalSq += (v - mean) * (v - mean)
	}
	parentSSE := totalSq - totalSum*totalSum/float64(n)

	for _, feature := range t.candidateFeatures(rng) {
		for i := range order {
			order[i] = i
		}
		slices.SortStableFunc(order, func(a, b int) int {
			va, vb := x[idx[a]][feature], x[idx[b]][feature]
			switch {
			case va < vb:
				return -1
			case va > vb:
				return 1
			}
			return 0
		})

		leftSum, leftSq := 0.0, 0.0
		for i := 0; i < n-1; i++ {
			v := labels[order[i]] - mean
			leftSum += v
			leftSq += v * v

			cur, next := x[idx[order[i]]][feature], x[idx[order[i+1]]][feature]
			if cur == next {
				continue
			}
			leftN, rightN := float64(i+1), float64(n-i-1)
			if int(leftN) < t.MinSamplesLeaf || int(rightN) < t.MinSamplesLeaf {
				continue
			}
			rightSum, rightSq := totalSum-leftSum, totalSq-leftSq
			sse := (leftSq - leftSum*leftSum/leftN) + (rightSq - rightSum*rightSum/rightN)
			gain := parentSSE - sse
			if gain > bestGain {
				threshold := (cur + next) / 2
				if threshold >= next {
					threshold = cur
				}
				bestFeature, bestThreshold, bestGain = feature, threshold, gain
			}
		}
	}
	return bestFeature, bestThreshold, bestGain
}

// candidateFeatures returns the features considered at one split, in ascending order
func (t *RegressionTree) candidateFeatures(rng *rand.Rand) []int {
	if t.MaxFeatures <= 0 || t.MaxFeatures >= t.NumFeatures || rng == nil {
		all := make([]int, t.NumFeatures)
		for i := range all {
			all[i] = i
		}
		return all
	}
	picked := rng.Perm(t.NumFeatures)[:t.MaxFeatures]
	slices.Sort(picked)
	return picked
}

// DecisionTreeTrainer trains a single regression tree
type DecisionTreeTrainer struct {
	tree *RegressionTree
}

// NewDecisionTreeTrainer creates a new decision tree trainer
func NewDecisionTreeTrainer() *DecisionTreeTrainer {
	return &DecisionTreeTrainer{}
}

// Train trains a decision tree model
func (t *DecisionTreeTrainer) Train(data *TrainingData, config *models.TrainingConfig) (*TrainingResult, error) {
	if err := validateData(data); err != nil {
		return nil, err
	}
	if config == nil {
		config = &models.TrainingConfig{TestFraction: 0.2}
	}

	tree := NewRegressionTree(config)
	if err := tree.Fit(data.TrainFeatures, data.TrainLabels, rand.New(rand.NewSource(config.RandomSeed))); err != nil {
		return nil, err
	}
	t.tree = tree

	result := &TrainingResult{
		Model:             tree,
		FeatureImportance: importanceByName(tree.Importance, data.FeatureNames),
	}
	if err := score(tree, data, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Validate validates the trained model
func (t *DecisionTreeTrainer) Validate(data *TrainingData) (*models.RegressionMetrics, error) {
	if t.tree == nil {
		return nil, fmt.Errorf("model not trained")
	}
	return CalculateRegressionMetrics(PredictAll(t.tree, data.TestFeatures), data.TestLabels)
}

// GetType returns the model type
func (t *DecisionTreeTrainer) GetType() models.ModelType {
	return models.ModelTypeDecisionTree
}

// Helper functions

func isHomogeneous(labels []float64) bool {
	if len(labels) == 0 {
		return true
	}
	first := labels[0]
	for _, v := range labels {
		if v != first {
			return false
		}
	}
	return true
}

func gather(values []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = values[j]
	}
	return out
}

func splitIndices(x [][]float64, idx []int, feature int, threshold float64) ([]int, []int) {
	var left, right []int
	for _, i := range idx {
		if x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}
