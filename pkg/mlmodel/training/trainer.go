package training

import (
	"errors"
	"fmt"

	"github.com/mimir-aip/rfm-pipeline/pkg/models"
)

// ErrEmptyTrainingData is returned when a trainer gets no training rows
var ErrEmptyTrainingData = errors.New("no training data provided")

// Trainer interface defines the contract for regression model training
type Trainer interface {
	// Train fits the model on the training partition and scores both partitions
	Train(data *TrainingData, config *models.TrainingConfig) (*TrainingResult, error)

	// Validate scores the trained model on the test partition
	Validate(data *TrainingData) (*models.RegressionMetrics, error)

	// GetType returns the model type this trainer handles
	GetType() models.ModelType
}

// Regressor is a fitted model that predicts one value per feature row
type Regressor interface {
	Predict(features []float64) float64
}

// TrainingData holds the data for training and validation
type TrainingData struct {
	TrainFeatures [][]float64 // Training features (rows x features)
	TrainLabels   []float64   // Training targets
	TestFeatures  [][]float64 // Test features
	TestLabels    []float64   // Test targets
	FeatureNames  []string    // Names of features
}

// TrainingResult holds the results of model training
type TrainingResult struct {
	Model             Regressor
	TrainMetrics      *models.RegressionMetrics
	TestMetrics       *models.RegressionMetrics // nil when there is no test partition
	FeatureImportance map[string]float64
	OOBScore          *float64 // out-of-bag R², forests only
}

// TrainerFactory creates trainers for different model types
type TrainerFactory struct {
	trainers map[models.ModelType]func() Trainer
}

// NewTrainerFactory creates a new trainer factory
func NewTrainerFactory() *TrainerFactory {
	factory := &TrainerFactory{
		trainers: make(map[models.ModelType]func() Trainer),
	}

	factory.trainers[models.ModelTypeDecisionTree] = func() Trainer { return NewDecisionTreeTrainer() }
	factory.trainers[models.ModelTypeRandomForest] = func() Trainer { return NewRandomForestTrainer() }

	return factory
}

// GetTrainer returns a fresh trainer for a model type
func (f *TrainerFactory) GetTrainer(modelType models.ModelType) (Trainer, error) {
	newTrainer, ok := f.trainers[modelType]
	if !ok {
		return nil, fmt.Errorf("no trainer available for model type: %s", modelType)
	}
	return newTrainer(), nil
}

// score fills the train and test metrics of result using model
func score(model Regressor, data *TrainingData, result *TrainingResult) error {
	var err error
	result.TrainMetrics, err = CalculateRegressionMetrics(PredictAll(model, data.TrainFeatures), data.TrainLabels)
	if err != nil {
		return fmt.Errorf("train metrics: %w", err)
	}
	if len(data.TestFeatures) > 0 {
		result.TestMetrics, err = CalculateRegressionMetrics(PredictAll(model, data.TestFeatures), data.TestLabels)
		if err != nil {
			return fmt.Errorf("test metrics: %w", err)
		}
	}
	return nil
}

// PredictAll predicts every row of features
func PredictAll(model Regressor, features [][]float64) []float64 {
	out := make([]float64, len(features))
	for i, row := range features {
		out[i] = model.Predict(row)
	}
	return out
}

func importanceByName(importance []float64, names []string) map[string]float64 {
	out := make(map[string]float64, len(importance))
	for i, v := range importance {
		name := fmt.Sprintf("feature_%d", i)
		if i < len(names) {
			name = names[i]
		}
		out[name] = v
	}
	return out
}

func validateData(data *TrainingData) error {
	if data == nil || len(data.TrainFeatures) == 0 {
		return ErrEmptyTrainingData
	}
	if len(data.TrainFeatures) != len(data.TrainLabels) {
		return fmt.Errorf("train features (%d) and labels (%d) differ in length", len(data.TrainFeatures), len(data.TrainLabels))
	}
	if len(data.TestFeatures) != len(data.TestLabels) {
		return fmt.Errorf("test features (%d) and labels (%d) differ in length", len(data.TestFeatures), len(data.TestLabels))
	}
	return nil
}
