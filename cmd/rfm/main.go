// rfm segments retail customers by Recency, Frequency and Monetary value
// and fits a regressor that predicts spend from the segments.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mimir-aip/rfm-pipeline/pkg/config"
	"github.com/mimir-aip/rfm-pipeline/pkg/exporter"
	"github.com/mimir-aip/rfm-pipeline/pkg/logger"
	"github.com/mimir-aip/rfm-pipeline/pkg/metadatastore"
	"github.com/mimir-aip/rfm-pipeline/pkg/models"
	"github.com/mimir-aip/rfm-pipeline/pkg/pipeline"
	"github.com/mimir-aip/rfm-pipeline/pkg/report"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", os.Getenv("RFM_CONFIG"), "path to a YAML config file")
	listLimit := flag.Int("list-runs", -1, "list the N most recent archived runs (0 for all) and exit")
	showID := flag.String("show-run", "", "print an archived run report and exit")
	deleteID := flag.String("delete-run", "", "delete an archived run and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config file.yaml] [input.csv]\n", os.Args[0])
		fmt.Fprintf(flag.CommandLine.Output(), "       %s [-config file.yaml] -list-runs N | -show-run ID | -delete-run ID\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 2
	}
	if flag.NArg() > 0 {
		cfg.Input.Path = flag.Arg(0)
	}

	logger.Init(logger.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Service: "rfm",
	})
	log := logger.Named("main")

	if *listLimit >= 0 || *showID != "" || *deleteID != "" {
		return archiveCommand(cfg, *listLimit, *showID, *deleteID)
	}

	if cfg.Input.Path == "" {
		flag.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store metadatastore.RunStore
	if cfg.Output.ArchivePath != "" {
		s, err := metadatastore.NewSQLiteStore(cfg.Output.ArchivePath)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.Output.ArchivePath).Msg("failed to open run archive")
			return 1
		}
		defer s.Close()
		store = s
	}

	svc := pipeline.NewService(cfg, store)
	rep, runErr := svc.Run(ctx)
	if rep == nil {
		log.Error().Err(runErr).Msg("pipeline failed")
		return 1
	}

	if err := report.Write(os.Stdout, rep); err != nil {
		log.Error().Err(err).Msg("failed to write report")
	}

	if rep.Status != models.RunStatusFailed {
		if err := writeOutputs(cfg, rep); err != nil {
			log.Error().Err(err).Msg("failed to write outputs")
			return 1
		}
	}

	if runErr != nil {
		return 1
	}
	return 0
}

// writeOutputs saves the optional workbook and metrics textfile
func writeOutputs(cfg *config.Config, rep *models.RunReport) error {
	log := logger.Named("main")
	if path := cfg.Output.WorkbookPath; path != "" {
		if err := exporter.WriteWorkbook(path, rep); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("workbook written")
	}
	if path := cfg.Output.MetricsPath; path != "" {
		if err := exporter.WriteMetrics(path, rep); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("metrics textfile written")
	}
	return nil
}

// archiveCommand serves the read side of the run archive
func archiveCommand(cfg *config.Config, limit int, showID, deleteID string) int {
	log := logger.Named("main")
	if cfg.Output.ArchivePath == "" {
		fmt.Fprintln(os.Stderr, "no run archive configured (output.archive_path or RFM_OUTPUT_ARCHIVE_PATH)")
		return 2
	}
	store, err := metadatastore.NewSQLiteStore(cfg.Output.ArchivePath)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.Output.ArchivePath).Msg("failed to open run archive")
		return 1
	}
	defer store.Close()

	switch {
	case deleteID != "":
		err = deleteRun(os.Stdout, store, deleteID)
	case showID != "":
		err = showRun(os.Stdout, store, showID)
	default:
		err = listRuns(os.Stdout, store, limit)
	}
	if err != nil {
		log.Error().Err(err).Msg("archive command failed")
		return 1
	}
	return 0
}
