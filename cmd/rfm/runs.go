package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/mimir-aip/rfm-pipeline/pkg/metadatastore"
	"github.com/mimir-aip/rfm-pipeline/pkg/report"
)

// listRuns prints the most recent archived runs, newest first
func listRuns(w io.Writer, store metadatastore.RunStore, limit int) error {
	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}

	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"id", "started", "status", "input", "customers", "k", "test r2"})
	t.SetAutoFormatHeaders(false)
	for _, r := range runs {
		r2 := "-"
		if r.Model != nil && r.Model.Test != nil {
			r2 = strconv.FormatFloat(r.Model.Test.R2Score, 'f', 2, 64)
		}
		t.Append([]string{
			r.ID,
			r.StartedAt.Format(time.RFC3339),
			string(r.Status),
			r.Input,
			strconv.Itoa(len(r.Segments)),
			strconv.Itoa(r.K),
			r2,
		})
	}
	t.Render()
	return nil
}

// showRun prints an archived run the same way a live run is printed
func showRun(w io.Writer, store metadatastore.RunStore, id string) error {
	rep, err := store.GetRun(id)
	if err != nil {
		return err
	}
	return report.Write(w, rep)
}

func deleteRun(w io.Writer, store metadatastore.RunStore, id string) error {
	if _, err := store.GetRun(id); err != nil {
		return err
	}
	if err := store.DeleteRun(id); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "deleted run %s\n", id)
	return err
}
