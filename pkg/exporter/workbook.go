// Package exporter writes run reports to side artifacts.
package exporter

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/mimir-aip/rfm-pipeline/pkg/models"
)

// Sheet names of the exported workbook
const (
	SheetSegments = "Segments"
	SheetClusters = "Clusters"
	SheetElbow    = "Elbow"
	SheetMetrics  = "Metrics"
	SheetStages   = "Stages"
)

// WriteWorkbook saves the customer segments, cluster summary, elbow curve,
// model metrics and stage counts of rep to an xlsx file at path.
func WriteWorkbook(path string, rep *models.RunReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSegments); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{SheetClusters, SheetElbow, SheetMetrics, SheetStages} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", name, err)
		}
	}

	sheets := map[string][][]any{
		SheetSegments: segmentRows(rep.Segments),
		SheetClusters: clusterRows(rep.Clusters),
		SheetElbow:    elbowRows(rep.Inertia),
		SheetMetrics:  metricRows(rep.Model),
		SheetStages:   stageRows(rep.Stages),
	}
	for sheet, rows := range sheets {
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(sheet, cell, &row); err != nil {
				return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func segmentRows(segments []models.Segment) [][]any {
	rows := [][]any{{"CustomerID", "Monetary", "Frequency", "Recency", "Cluster"}}
	for _, s := range segments {
		rows = append(rows, []any{s.CustomerID, s.Monetary, s.Frequency, s.Recency, s.Cluster})
	}
	return rows
}

func clusterRows(clusters []models.ClusterSummary) [][]any {
	rows := [][]any{{"Cluster", "Customers", "MeanMonetary", "MeanFrequency", "MeanRecency"}}
	for _, c := range clusters {
		rows = append(rows, []any{c.Cluster, c.Customers, c.MeanMonetary, c.MeanFrequency, c.MeanRecency})
	}
	return rows
}

func elbowRows(curve []models.InertiaPoint) [][]any {
	rows := [][]any{{"K", "Inertia"}}
	for _, p := range curve {
		rows = append(rows, []any{p.K, p.Inertia})
	}
	return rows
}

func metricRows(m *models.ModelResult) [][]any {
	rows := [][]any{{"Partition", "Rows", "MAE", "RMSE", "R2"}}
	if m == nil {
		return rows
	}
	for _, part := range []struct {
		name    string
		n       int
		metrics *models.RegressionMetrics
	}{{"train", m.TrainRows, m.Train}, {"test", m.TestRows, m.Test}} {
		if part.metrics == nil {
			continue
		}
		rows = append(rows, []any{part.name, part.n, part.metrics.MAE, part.metrics.RMSE, part.metrics.R2Score})
	}
	return rows
}

func stageRows(stages []models.StageCount) [][]any {
	rows := [][]any{{"Stage", "In", "Out"}}
	for _, s := range stages {
		rows = append(rows, []any{s.Stage, s.In, s.Out})
	}
	return rows
}
