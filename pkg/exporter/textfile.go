package exporter

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mimir-aip/rfm-pipeline/pkg/models"
)

// NewRegistry returns a registry holding gauges that describe rep
func NewRegistry(rep *models.RunReport) *prometheus.Registry {
	reg := prometheus.NewRegistry()

	stageRows := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rfm_stage_rows",
		Help: "Rows entering and leaving each pipeline stage.",
	}, []string{"stage", "direction"})
	skipped := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rfm_load_skipped_rows",
		Help: "Input rows skipped by the loader, by reason.",
	}, []string{"reason"})
	clusterSize := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rfm_cluster_customers",
		Help: "Customers assigned to each cluster.",
	}, []string{"cluster"})
	inertia := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rfm_kmeans_inertia",
		Help: "Within-cluster sum of squares per k of the sweep.",
	}, []string{"k"})
	modelMetric := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rfm_model_metric",
		Help: "Regression metrics per partition.",
	}, []string{"partition", "metric"})
	status := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rfm_run_status",
		Help: "1 for the status of the last run.",
	}, []string{"status"})
	finished := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rfm_run_finished_timestamp_seconds",
		Help: "Unix time the last run finished.",
	})
	duration := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rfm_run_duration_seconds",
		Help: "Wall time of the last run.",
	})

	reg.MustRegister(stageRows, skipped, clusterSize, inertia, modelMetric, status, finished, duration)

	for _, s := range rep.Stages {
		stageRows.WithLabelValues(s.Stage, "in").Set(float64(s.In))
		stageRows.WithLabelValues(s.Stage, "out").Set(float64(s.Out))
	}
	for reason, n := range rep.Load.Skipped {
		skipped.WithLabelValues(reason).Set(float64(n))
	}
	for _, c := range rep.Clusters {
		clusterSize.WithLabelValues(strconv.Itoa(c.Cluster)).Set(float64(c.Customers))
	}
	for _, p := range rep.Inertia {
		inertia.WithLabelValues(strconv.Itoa(p.K)).Set(p.Inertia)
	}
	if rep.Model != nil {
		for partition, m := range map[string]*models.RegressionMetrics{"train": rep.Model.Train, "test": rep.Model.Test} {
			if m == nil {
				continue
			}
			modelMetric.WithLabelValues(partition, "mae").Set(m.MAE)
			modelMetric.WithLabelValues(partition, "rmse").Set(m.RMSE)
			modelMetric.WithLabelValues(partition, "r2").Set(m.R2Score)
		}
	}
	status.WithLabelValues(string(rep.Status)).Set(1)
	if !rep.FinishedAt.IsZero() {
		finished.Set(float64(rep.FinishedAt.Unix()))
		duration.Set(rep.FinishedAt.Sub(rep.StartedAt).Seconds())
	}
	return reg
}

// WriteMetrics writes rep as a node_exporter textfile at path
func WriteMetrics(path string, rep *models.RunReport) error {
	if err := prometheus.WriteToTextfile(path, NewRegistry(rep)); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
