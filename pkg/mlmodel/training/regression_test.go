package training

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/mimir-aip/rfm-pipeline/pkg/models"
)

func houseData() ([][]float64, []float64) {
	X := [][]float64{
		{1000, 2}, // 1000 sqft, 2 bedrooms
		{1500, 3},
		{2000, 4},
		{1200, 2},
		{1800, 3},
		{2500, 5},
		{1100, 2},
		{1700, 3},
	}
	y := []float64{100, 150, 200, 120, 180, 250, 110, 170}
	return X, y
}

func TestRegressionTreeFitsTrainingData(t *testing.T) {
	X, y := houseData()

	tree := NewRegressionTree(nil)
	if err := tree.Fit(X, y, nil); err != nil {
		t.Fatalf("Training failed: %v", err)
	}

	// unlimited depth on distinct rows memorizes the targets
	for i, row := range X {
		if got := tree.Predict(row); got != y[i] {
			t.Errorf("row %d: predicted %.2f, expected %.2f", i, got, y[i])
		}
	}
}

func TestRegressionTreeMaxDepth(t *testing.T) {
	X, y := houseData()

	tree := NewRegressionTree(&models.TrainingConfig{MaxDepth: 1})
	if err := tree.Fit(X, y, nil); err != nil {
		t.Fatalf("Training failed: %v", err)
	}
	if d := tree.Depth(); d != 1 {
		t.Errorf("Expected depth 1, got %d", d)
	}

	// the stump threshold is a midpoint between two observed values
	if tree.Root.IsLeaf {
		t.Fatal("Expected a split at the root")
	}
	seen := map[float64]bool{}
	for _, row := range X {
		seen[row[tree.Root.Feature]] = true
	}
	if seen[tree.Root.Threshold] {
		t.Errorf("Threshold %.2f should not be an observed value", tree.Root.Threshold)
	}
}

func TestRegressionTreeConstantTarget(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}}
	y := []float64{5, 5, 5}

	tree := NewRegressionTree(nil)
	if err := tree.Fit(X, y, nil); err != nil {
		t.Fatalf("Training failed: %v", err)
	}
	if !tree.Root.IsLeaf || tree.Root.Value != 5 {
		t.Errorf("Expected a single leaf predicting 5, got %+v", tree.Root)
	}
}

func TestRegressionTreeMinSamplesLeaf(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}, {4}, {100}}
	y := []float64{1, 1, 1, 1, 50}

	tree := NewRegressionTree(&models.TrainingConfig{MinSamplesLeaf: 2})
	if err := tree.Fit(X, y, nil); err != nil {
		t.Fatalf("Training failed: %v", err)
	}

	var check func(n *TreeNode)
	check = func(n *TreeNode) {
		if n.IsLeaf {
			if n.Samples < 2 {
				t.Errorf("leaf with %d samples", n.Samples)
			}
			return
		}
		check(n.Left)
		check(n.Right)
	}
	check(tree.Root)
}

func linearData(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		X[i] = []float64{float64(i), rng.Float64() * 100}
		y[i] = 10 * float64(i)
	}
	return X, y
}

func TestRandomForestDeterministic(t *testing.T) {
	X, y := linearData(60, 1)
	config := &models.TrainingConfig{TestFraction: 0.2, RandomSeed: 42, NumTrees: 25}

	a := NewRandomForest(config)
	b := NewRandomForest(config)
	if err := a.Fit(X, y); err != nil {
		t.Fatalf("Training failed: %v", err)
	}
	if err := b.Fit(X, y); err != nil {
		t.Fatalf("Training failed: %v", err)
	}

	for i, row := range X {
		if pa, pb := a.Predict(row), b.Predict(row); pa != pb {
			t.Fatalf("row %d: forests disagree (%v vs %v)", i, pa, pb)
		}
	}
	if len(a.Trees) != 25 {
		t.Errorf("Expected 25 trees, got %d", len(a.Trees))
	}
}

func TestRandomForestPredictionsWithinTargetRange(t *testing.T) {
	X, y := linearData(40, 2)

	rf := NewRandomForest(&models.TrainingConfig{RandomSeed: 7, NumTrees: 15})
	if err := rf.Fit(X, y); err != nil {
		t.Fatalf("Training failed: %v", err)
	}

	for _, row := range [][]float64{{-5, 0}, {20, 50}, {500, 99}} {
		pred := rf.Predict(row)
		if pred < 0 || pred > 390 {
			t.Errorf("prediction %.2f outside target range", pred)
		}
	}

	importance := rf.FeatureImportance()
	if importance[0] <= importance[1] {
		t.Errorf("Expected the informative feature to dominate, got %v", importance)
	}
	if sum := importance[0] + importance[1]; math.Abs(sum-1) > 1e-9 {
		t.Errorf("Expected importances to sum to 1, got %v", sum)
	}
	if rf.OOBScore == nil || *rf.OOBScore > 1 {
		t.Errorf("Expected an OOB score <= 1, got %v", rf.OOBScore)
	}
}

func TestRandomForestMaxFeatures(t *testing.T) {
	X, y := linearData(30, 3)

	rf := NewRandomForest(&models.TrainingConfig{RandomSeed: 1, NumTrees: 5, MaxFeatures: 1})
	if err := rf.Fit(X, y); err != nil {
		t.Fatalf("Training failed: %v", err)
	}
	if rf.Predict(X[0]) < 0 {
		t.Error("Expected a non-negative prediction")
	}
}

func TestCalculateRegressionMetrics(t *testing.T) {
	tests := []struct {
		name     string
		pred     []float64
		actual   []float64
		mae      float64
		rmse     float64
		r2       float64
		hasError bool
	}{
		{"perfect", []float64{1, 2, 3}, []float64{1, 2, 3}, 0, 0, 1, false},
		{"one miss", []float64{1, 2, 4}, []float64{1, 2, 3}, 1.0 / 3, math.Sqrt(1.0 / 3), 0.5, false},
		{"constant exact", []float64{4, 4}, []float64{4, 4}, 0, 0, 1, false},
		{"constant missed", []float64{3, 5}, []float64{4, 4}, 1, 1, 0, false},
		{"length mismatch", []float64{1}, []float64{1, 2}, 0, 0, 0, true},
		{"empty", nil, nil, 0, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := CalculateRegressionMetrics(tt.pred, tt.actual)
			if tt.hasError {
				if err == nil {
					t.Fatal("Expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if math.Abs(m.MAE-tt.mae) > 1e-12 || math.Abs(m.RMSE-tt.rmse) > 1e-12 || math.Abs(m.R2Score-tt.r2) > 1e-12 {
				t.Errorf("got MAE=%v RMSE=%v R2=%v, want %v %v %v", m.MAE, m.RMSE, m.R2Score, tt.mae, tt.rmse, tt.r2)
			}
			if m.MAE < 0 || m.RMSE < 0 || m.R2Score > 1 {
				t.Errorf("metric bounds violated: %+v", m)
			}
		})
	}
}

func TestTrainTestSplit(t *testing.T) {
	train, test, err := TrainTestSplit(10, 0.2, 42)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(train) != 8 || len(test) != 2 {
		t.Fatalf("Expected 8/2 split, got %d/%d", len(train), len(test))
	}

	seen := map[int]bool{}
	for _, i := range append(append([]int{}, train...), test...) {
		if seen[i] {
			t.Errorf("index %d appears twice", i)
		}
		seen[i] = true
	}
	if len(seen) != 10 {
		t.Errorf("Expected all 10 rows, got %d", len(seen))
	}

	train2, test2, _ := TrainTestSplit(10, 0.2, 42)
	for i := range test {
		if test[i] != test2[i] {
			t.Fatal("Split is not deterministic")
		}
	}
	_ = train2

	_, small, err := TrainTestSplit(3, 0.2, 1)
	if err != nil || len(small) != 1 {
		t.Errorf("Expected one test row for n=3, got %v (%v)", small, err)
	}

	if _, _, err := TrainTestSplit(1, 0.2, 1); !errors.Is(err, models.ErrNoData) {
		t.Errorf("Expected ErrNoData, got %v", err)
	}
}

func TestTrainerFactory(t *testing.T) {
	factory := NewTrainerFactory()

	for _, mt := range []models.ModelType{models.ModelTypeRandomForest, models.ModelTypeDecisionTree} {
		trainer, err := factory.GetTrainer(mt)
		if err != nil {
			t.Fatalf("GetTrainer(%s): %v", mt, err)
		}
		if trainer.GetType() != mt {
			t.Errorf("Expected %s, got %s", mt, trainer.GetType())
		}
	}

	if _, err := factory.GetTrainer("neural_network"); err == nil {
		t.Error("Expected an error for an unknown model type")
	}
}

func TestRandomForestTrainer(t *testing.T) {
	X, y := linearData(50, 5)
	trainIdx, testIdx, err := TrainTestSplit(len(X), 0.2, 42)
	if err != nil {
		t.Fatal(err)
	}
	data := &TrainingData{FeatureNames: []string{"signal", "noise"}}
	data.TrainFeatures, data.TrainLabels = Subset(X, y, trainIdx)
	data.TestFeatures, data.TestLabels = Subset(X, y, testIdx)
	config := &models.TrainingConfig{TestFraction: 0.2, RandomSeed: 42, NumTrees: 20}

	first, err := NewRandomForestTrainer().Train(data, config)
	if err != nil {
		t.Fatalf("Training failed: %v", err)
	}
	second, err := NewRandomForestTrainer().Train(data, config)
	if err != nil {
		t.Fatalf("Training failed: %v", err)
	}

	if *first.TrainMetrics != *second.TrainMetrics || *first.TestMetrics != *second.TestMetrics {
		t.Errorf("metrics differ between identical runs: %+v vs %+v", first.TestMetrics, second.TestMetrics)
	}
	if first.TestMetrics.NumSamples != 10 {
		t.Errorf("Expected 10 test samples, got %d", first.TestMetrics.NumSamples)
	}
	if first.FeatureImportance["signal"] <= first.FeatureImportance["noise"] {
		t.Errorf("unexpected importance %v", first.FeatureImportance)
	}

	trainer := NewDecisionTreeTrainer()
	if _, err := trainer.Validate(data); err == nil {
		t.Error("Expected an error validating an untrained model")
	}
	if _, err := trainer.Train(data, config); err != nil {
		t.Fatalf("Training failed: %v", err)
	}
	if m, err := trainer.Validate(data); err != nil || m.NumSamples != 10 {
		t.Errorf("Validate: %+v, %v", m, err)
	}

	if _, err := NewRandomForestTrainer().Train(&TrainingData{}, config); !errors.Is(err, ErrEmptyTrainingData) {
		t.Errorf("Expected ErrEmptyTrainingData, got %v", err)
	}
}
