// Package pipeline runs the RFM stages in order and assembles the run report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/mimir-aip/rfm-pipeline/pkg/cleaning"
	"github.com/mimir-aip/rfm-pipeline/pkg/clustering"
	"github.com/mimir-aip/rfm-pipeline/pkg/config"
	"github.com/mimir-aip/rfm-pipeline/pkg/dataset"
	"github.com/mimir-aip/rfm-pipeline/pkg/features"
	"github.com/mimir-aip/rfm-pipeline/pkg/logger"
	"github.com/mimir-aip/rfm-pipeline/pkg/metadatastore"
	"github.com/mimir-aip/rfm-pipeline/pkg/mlmodel/training"
	"github.com/mimir-aip/rfm-pipeline/pkg/models"
)

// Service drives one pipeline run per call
type Service struct {
	cfg      *config.Config
	store    metadatastore.RunStore
	trainers *training.TrainerFactory
	log      *logger.Logger
	now      func() time.Time
}

// NewService creates a pipeline service. store may be nil, in which case
// reports are not archived.
func NewService(cfg *config.Config, store metadatastore.RunStore) *Service {
	return &Service{
		cfg:      cfg,
		store:    store,
		trainers: training.NewTrainerFactory(),
		log:      logger.Named("pipeline"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run loads the configured input file and runs every stage
func (s *Service) Run(ctx context.Context) (*models.RunReport, error) {
	path := s.cfg.Input.Path
	if path == "" {
		return nil, &models.StageError{Stage: models.StageLoad, Err: errors.New("no input file configured")}
	}
	return s.run(ctx, path, func(ctx context.Context) (*dataset.Result, error) {
		return dataset.LoadFile(ctx, path, s.loadOptions())
	})
}

// RunReader runs every stage over r; name labels the input in the report
func (s *Service) RunReader(ctx context.Context, name string, r io.Reader) (*models.RunReport, error) {
	return s.run(ctx, name, func(ctx context.Context) (*dataset.Result, error) {
		return dataset.Load(ctx, r, s.loadOptions())
	})
}

func (s *Service) loadOptions() dataset.Options {
	return dataset.Options{
		Delimiter:   s.cfg.Input.DelimiterRune(),
		Encoding:    s.cfg.Input.Encoding,
		DateLayouts: s.cfg.Input.DateLayouts,
	}
}

// run executes the stages. Running out of rows ends the run early with
// status no_data and a nil error. On failure the partial report is returned
// with the error.
func (s *Service) run(ctx context.Context, input string, load func(context.Context) (*dataset.Result, error)) (*models.RunReport, error) {
	report := &models.RunReport{
		ID:        uuid.New().String(),
		Input:     input,
		Status:    models.RunStatusRunning,
		StartedAt: s.now(),
		K:         s.cfg.Clustering.K,
	}
	ctx = logger.WithRun(ctx, report.ID)
	log := logger.C(ctx, s.log)
	log.Info().Str("input", input).Msg("pipeline run started")

	err := s.execute(ctx, report, load)
	report.FinishedAt = s.now()

	switch {
	case err != nil:
		report.Status = models.RunStatusFailed
		report.Error = err.Error()
		log.Error().Err(err).Msg("pipeline run failed")
	case report.Status == models.RunStatusNoData:
		log.Warn().Str("stage", report.NoDataStage).Msg("pipeline ran out of data")
	default:
		report.Status = models.RunStatusCompleted
		log.Info().Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).Msg("pipeline run completed")
	}

	if s.store != nil {
		if serr := s.store.SaveRun(report); serr != nil {
			log.Error().Err(serr).Msg("failed to archive run")
			if err == nil {
				err = fmt.Errorf("archive run: %w", serr)
			}
		}
	}
	return report, err
}

func (s *Service) execute(ctx context.Context, report *models.RunReport, load func(context.Context) (*dataset.Result, error)) error {
	log := logger.C(ctx, s.log)
	noData := func(stage string) error {
		report.Status = models.RunStatusNoData
		report.NoDataStage = stage
		return nil
	}
	checkpoint := func(stage string) error {
		if err := ctx.Err(); err != nil {
			return &models.StageError{Stage: stage, Err: err}
		}
		return nil
	}

	// load
	loaded, err := load(ctx)
	if err != nil {
		return models.NewStageError(models.StageLoad, err)
	}
	report.Load = loaded.Stats
	report.AddStage(models.StageLoad, loaded.Stats.Records, loaded.Stats.Loaded)
	log.Info().Int("records", loaded.Stats.Records).Int("loaded", loaded.Stats.Loaded).
		Interface("skipped", loaded.Stats.Skipped).Msg("load finished")
	if len(loaded.Rows) == 0 {
		return noData(models.StageLoad)
	}

	// clean
	if err := checkpoint(models.StageClean); err != nil {
		return err
	}
	cleaned := cleaning.Clean(loaded.Rows, cleaning.Options{
		DescriptionPlaceholder: s.cfg.Cleaning.DescriptionPlaceholder,
		ZThreshold:             s.cfg.Cleaning.ZThreshold,
	})
	report.Clean = cleaned.Stats
	report.AddStage(models.StageClean, cleaned.Stats.Input, cleaned.Stats.Output)
	log.Info().Int("in", cleaned.Stats.Input).Int("out", cleaned.Stats.Output).Msg("clean finished")
	log.Debug().Interface("stats", cleaned.Stats).Msg("clean details")
	if len(cleaned.Rows) == 0 {
		return noData(models.StageClean)
	}

	// derive
	if err := checkpoint(models.StageDerive); err != nil {
		return err
	}
	derived := features.Derive(cleaned.Rows)
	report.Transactions = derived.Transactions
	report.ReferenceDate = derived.ReferenceDate
	report.Correlation = features.Correlate(derived.Transactions)
	report.AddStage(models.StageDerive, len(cleaned.Rows), len(derived.Customers))
	log.Info().Int("customers", len(derived.Customers)).Time("reference_date", derived.ReferenceDate).Msg("derive finished")
	if len(derived.Customers) == 0 {
		return noData(models.StageDerive)
	}

	// trim
	if err := checkpoint(models.StageTrim); err != nil {
		return err
	}
	trimmed, err := features.Trim(derived.Customers, features.TrimOptions{
		LowerQuantile: s.cfg.Trim.LowerQuantile,
		UpperQuantile: s.cfg.Trim.UpperQuantile,
		IQRMultiplier: s.cfg.Trim.IQRMultiplier,
		Policy:        features.TrimPolicy(s.cfg.Trim.Policy),
	})
	if err != nil {
		return models.NewStageError(models.StageTrim, err)
	}
	report.TrimBounds = trimmed.Bounds
	report.AddStage(models.StageTrim, len(derived.Customers), len(trimmed.Customers))
	log.Info().Int("in", len(derived.Customers)).Int("out", len(trimmed.Customers)).Msg("trim finished")
	if len(trimmed.Customers) == 0 {
		return noData(models.StageTrim)
	}

	// scale
	if err := checkpoint(models.StageScale); err != nil {
		return err
	}
	raw := features.RFMMatrix(trimmed.Customers)
	scaler, err := features.FitScaler(raw)
	if err != nil {
		return models.NewStageError(models.StageScale, err)
	}
	scaled := scaler.Transform(raw)
	report.ScalerMean, report.ScalerStd = scaler.Mean, scaler.Std
	report.AddStage(models.StageScale, len(raw), len(scaled))

	// cluster
	if err := checkpoint(models.StageCluster); err != nil {
		return err
	}
	if err := s.cluster(ctx, report, trimmed.Customers, scaled); err != nil {
		return models.NewStageError(models.StageCluster, err)
	}

	// regress
	if err := checkpoint(models.StageRegress); err != nil {
		return err
	}
	if err := s.regress(ctx, report); err != nil {
		if errors.Is(err, models.ErrNoData) {
			return noData(models.StageRegress)
		}
		return models.NewStageError(models.StageRegress, err)
	}
	return nil
}

func (s *Service) cluster(ctx context.Context, report *models.RunReport, customers []models.CustomerRFM, scaled [][]float64) error {
	log := logger.C(ctx, s.log)
	c := s.cfg.Clustering

	curve, err := clustering.Sweep(scaled, c.SweepMinK, c.SweepMaxK, clustering.Options{
		NInit:     c.NInit,
		MaxIter:   c.SweepMaxIter,
		Tolerance: c.Tolerance,
		Seed:      c.SweepSeed,
	})
	if err != nil {
		return fmt.Errorf("inertia sweep: %w", err)
	}
	report.Inertia = curve
	if len(curve) < c.SweepMaxK-c.SweepMinK+1 {
		log.Warn().Int("samples", len(scaled)).Msg("sweep skipped k values above the sample count")
	}

	model, err := clustering.Fit(scaled, clustering.Options{
		K:         c.K,
		NInit:     c.NInit,
		MaxIter:   c.MaxIter,
		Tolerance: c.Tolerance,
		Seed:      c.Seed,
	})
	if errors.Is(err, clustering.ErrTooFewSamples) {
		return fmt.Errorf("only %d customers left after trimming, set clustering.k to at most %d: %w", len(scaled), len(scaled), err)
	}
	if err != nil {
		return err
	}
	report.Clusters = clustering.Summarize(customers, model.Labels, c.K)
	report.Segments = clustering.Segments(customers, model.Labels)
	report.AddStage(models.StageCluster, len(scaled), len(model.Labels))
	log.Info().Int("k", c.K).Float64("inertia", model.Inertia).Int("iterations", model.Iterations).Msg("cluster finished")
	return nil
}

func (s *Service) regress(ctx context.Context, report *models.RunReport) error {
	log := logger.C(ctx, s.log)
	m := s.cfg.Model

	x, y := RegressionMatrix(report.Segments)
	trainIdx, testIdx, err := training.TrainTestSplit(len(x), m.TestFraction, m.Seed)
	if err != nil {
		return err
	}

	data := &training.TrainingData{FeatureNames: models.RegressorFeatures}
	data.TrainFeatures, data.TrainLabels = training.Subset(x, y, trainIdx)
	data.TestFeatures, data.TestLabels = training.Subset(x, y, testIdx)

	trainer, err := s.trainers.GetTrainer(models.ModelType(m.Type))
	if err != nil {
		return err
	}
	result, err := trainer.Train(data, &models.TrainingConfig{
		TestFraction:    m.TestFraction,
		RandomSeed:      m.Seed,
		NumTrees:        m.NumTrees,
		MaxDepth:        m.MaxDepth,
		MinSamplesSplit: m.MinSamplesSplit,
		MinSamplesLeaf:  m.MinSamplesLeaf,
		MaxFeatures:     m.MaxFeatures,
	})
	if err != nil {
		return err
	}

	report.Model = &models.ModelResult{
		Type:              trainer.GetType(),
		TrainRows:         len(trainIdx),
		TestRows:          len(testIdx),
		Train:             result.TrainMetrics,
		Test:              result.TestMetrics,
		FeatureImportance: result.FeatureImportance,
		OOBScore:          result.OOBScore,
	}
	report.AddStage(models.StageRegress, len(x), len(x))
	log.Info().Str("model", string(trainer.GetType())).
		Str("train", result.TrainMetrics.String()).
		Str("test", result.TestMetrics.String()).
		Msg("regress finished")
	return nil
}

// RegressionMatrix builds [Recency, Frequency, Cluster] rows and the Monetary target
func RegressionMatrix(segments []models.Segment) ([][]float64, []float64) {
	x := make([][]float64, len(segments))
	y := make([]float64, len(segments))
	for i, s := range segments {
		x[i] = []float64{float64(s.Recency), float64(s.Frequency), float64(s.Cluster)}
		y[i] = s.Monetary
	}
	return x, y
}
