// Package report renders a run report for the terminal.
package report

import (
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"

	"github.com/mimir-aip/rfm-pipeline/pkg/models"
)

// Write prints every section the report has data for
func Write(w io.Writer, rep *models.RunReport) error {
	p := &printer{w: w}

	p.printf("RFM run %s (%s)\n", rep.ID, rep.Input)
	p.printf("status: %s\n", rep.Status)
	if rep.Status == models.RunStatusNoData {
		p.printf("no data left after stage %q\n", rep.NoDataStage)
	}
	if rep.Error != "" {
		p.printf("error: %s\n", rep.Error)
	}

	p.section("Stage row counts")
	p.table([]string{"stage", "in", "out"}, stageRows(rep.Stages))

	if len(rep.Load.Skipped) > 0 {
		p.section("Skipped input rows")
		p.table([]string{"reason", "rows"}, skippedRows(rep.Load.Skipped))
	}

	if len(rep.Transactions) > 0 {
		p.section("Summary statistics")
		records := Describe(rep.Transactions).Records()
		p.table(records[0], records[1:])
	}

	if rep.Correlation != nil {
		p.section("Correlation matrix")
		p.table(append([]string{""}, rep.Correlation.Columns...), correlationRows(rep.Correlation))
	}

	if len(rep.TrimBounds) > 0 {
		p.section("Outlier bounds")
		p.table([]string{"column", "q_low", "q_high", "lower", "upper", "removed"}, boundRows(rep.TrimBounds))
	}

	if len(rep.Inertia) > 0 {
		p.section("Elbow curve")
		p.table([]string{"k", "inertia"}, inertiaRows(rep.Inertia))
		if chart := ElbowChart(rep.Inertia); chart != "" {
			p.printf("%s\n", chart)
		}
	}

	if len(rep.Clusters) > 0 {
		p.section("Cluster summary")
		p.table([]string{"cluster", "customers", "monetary", "frequency", "recency"}, clusterRows(rep.Clusters))
	}

	if rep.Model != nil {
		p.section(fmt.Sprintf("Model (%s)", rep.Model.Type))
		p.printf("Train - %s\n", rep.Model.Train)
		p.printf("Test - %s\n", rep.Model.Test)
		if rep.Model.OOBScore != nil {
			p.printf("OOB R2: %.2f\n", *rep.Model.OOBScore)
		}
		if len(rep.Model.FeatureImportance) > 0 {
			p.table([]string{"feature", "importance"}, importanceRows(rep.Model.FeatureImportance))
		}
	}
	return p.err
}

// Describe returns count/mean/std/quantile summaries of the numeric transaction columns
func Describe(rows []models.EnrichedTransaction) dataframe.DataFrame {
	qty := make([]float64, len(rows))
	price := make([]float64, len(rows))
	total := make([]float64, len(rows))
	for i, r := range rows {
		qty[i] = float64(r.Quantity)
		price[i] = r.UnitPrice
		total[i] = r.TotalPrice
	}
	df := dataframe.New(
		series.New(qty, series.Float, "Quantity"),
		series.New(price, series.Float, "UnitPrice"),
		series.New(total, series.Float, "TotalPrice"),
	)
	return df.Describe()
}

// ElbowChart plots inertia against k
func ElbowChart(curve []models.InertiaPoint) string {
	if len(curve) < 2 {
		return ""
	}
	values := make([]float64, len(curve))
	for i, p := range curve {
		values[i] = p.Inertia
	}
	caption := fmt.Sprintf("inertia for k = %d..%d", curve[0].K, curve[len(curve)-1].K)
	return asciigraph.Plot(values, asciigraph.Height(10), asciigraph.Caption(caption))
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) section(title string) {
	p.printf("\n== %s ==\n", title)
}

func (p *printer) table(header []string, rows [][]string) {
	if p.err != nil {
		return
	}
	t := tablewriter.NewWriter(p.w)
	t.SetHeader(header)
	t.SetAutoFormatHeaders(false)
	t.SetAlignment(tablewriter.ALIGN_RIGHT)
	t.AppendBulk(rows)
	t.Render()
}

func f2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func stageRows(stages []models.StageCount) [][]string {
	rows := make([][]string, len(stages))
	for i, s := range stages {
		rows[i] = []string{s.Stage, strconv.Itoa(s.In), strconv.Itoa(s.Out)}
	}
	return rows
}

func skippedRows(skipped map[string]int) [][]string {
	reasons := make([]string, 0, len(skipped))
	for r := range skipped {
		reasons = append(reasons, r)
	}
	slices.Sort(reasons)
	rows := make([][]string, len(reasons))
	for i, r := range reasons {
		rows[i] = []string{r, strconv.Itoa(skipped[r])}
	}
	return rows
}

func correlationRows(c *models.Correlation) [][]string {
	rows := make([][]string, len(c.Columns))
	for i, name := range c.Columns {
		row := []string{name}
		for _, v := range c.Values[i] {
			row = append(row, f2(v))
		}
		rows[i] = row
	}
	return rows
}

func boundRows(bounds []models.TrimBound) [][]string {
	rows := make([][]string, len(bounds))
	for i, b := range bounds {
		rows[i] = []string{b.Column, f2(b.QLow), f2(b.QHigh), f2(b.Lower), f2(b.Upper), strconv.Itoa(b.Removed)}
	}
	return rows
}

func inertiaRows(curve []models.InertiaPoint) [][]string {
	rows := make([][]string, len(curve))
	for i, p := range curve {
		rows[i] = []string{strconv.Itoa(p.K), f2(p.Inertia)}
	}
	return rows
}

func clusterRows(clusters []models.ClusterSummary) [][]string {
	rows := make([][]string, len(clusters))
	for i, c := range clusters {
		rows[i] = []string{strconv.Itoa(c.Cluster), strconv.Itoa(c.Customers), f2(c.MeanMonetary), f2(c.MeanFrequency), f2(c.MeanRecency)}
	}
	return rows
}

func importanceRows(importance map[string]float64) [][]string {
	names := make([]string, 0, len(importance))
	for n := range importance {
		names = append(names, n)
	}
	slices.Sort(names)
	rows := make([][]string, len(names))
	for i, n := range names {
		rows[i] = []string{n, f2(importance[n])}
	}
	return rows
}
