package metadatastore

import "github.com/mimir-aip/rfm-pipeline/pkg/models"

// RunStore is the interface for run report persistence.
// The pipeline writes finished reports; the CLI archive commands read them back.
type RunStore interface {
	SaveRun(report *models.RunReport) error
	GetRun(id string) (*models.RunReport, error)
	ListRuns(limit int) ([]*models.RunReport, error)
	DeleteRun(id string) error
	Close() error
}
