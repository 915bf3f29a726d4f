// Package dataset reads the retail transaction log into memory.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/mimir-aip/rfm-pipeline/pkg/models"
)

// Column names expected in the header row
const (
	ColInvoiceNo   = "InvoiceNo"
	ColStockCode   = "StockCode"
	ColDescription = "Description"
	ColQuantity    = "Quantity"
	ColInvoiceDate = "InvoiceDate"
	ColUnitPrice   = "UnitPrice"
	ColCustomerID  = "CustomerID"
	ColCountry     = "Country"
)

var requiredColumns = []string{
	ColInvoiceNo, ColDescription, ColQuantity, ColInvoiceDate, ColUnitPrice, ColCustomerID,
}

var optionalColumns = []string{ColStockCode, ColCountry}

// Skip reasons reported in LoadStats.Skipped
const (
	SkipMalformed  = "malformed"
	SkipFieldCount = "field_count"
	SkipQuantity   = "bad_quantity"
	SkipUnitPrice  = "bad_unit_price"
	SkipDate       = "bad_invoice_date"
)

// Options controls how the file is decoded and parsed
type Options struct {
	Delimiter   rune
	Encoding    string // latin1, windows1252 or utf8
	DateLayouts []string
}

// DefaultOptions matches the shape of the public online-retail export
func DefaultOptions() Options {
	return Options{
		Delimiter:   ',',
		Encoding:    "latin1",
		DateLayouts: []string{"2-1-2006 15:04", "2-1-2006 15:04:05"},
	}
}

// Result is the loaded table plus parse statistics
type Result struct {
	Rows  []models.Transaction
	Stats models.LoadStats
}

// LoadFile opens path and loads it
func LoadFile(ctx context.Context, path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &models.StageError{Stage: models.StageLoad, Err: fmt.Errorf("failed to open input: %w", err)}
	}
	defer f.Close()
	return Load(ctx, f, opts)
}

// Load decodes r and parses every record after the header.
// Rows that cannot be parsed are skipped and counted by reason.
func Load(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	decoded, err := decode(r, opts.Encoding)
	if err != nil {
		return nil, &models.StageError{Stage: models.StageLoad, Err: err}
	}
	if len(opts.DateLayouts) == 0 {
		opts.DateLayouts = DefaultOptions().DateLayouts
	}

	reader := csv.NewReader(decoded)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &models.StageError{Stage: models.StageLoad, Row: 1, Err: fmt.Errorf("missing header row: %w", models.ErrNoData)}
		}
		return nil, &models.StageError{Stage: models.StageLoad, Row: 1, Err: fmt.Errorf("failed to read header: %w", err)}
	}

	idx, err := indexHeader(header)
	if err != nil {
		return nil, err
	}

	result := &Result{Stats: models.LoadStats{Skipped: make(map[string]int)}}
	line := 1
	for {
		line++
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, &models.StageError{Stage: models.StageLoad, Row: line, Err: err}
			}
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		result.Stats.Records++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				result.Stats.Skipped[SkipMalformed]++
				continue
			}
			return nil, &models.StageError{Stage: models.StageLoad, Row: line, Err: err}
		}
		if len(record) != len(header) {
			result.Stats.Skipped[SkipFieldCount]++
			continue
		}

		tx, reason := parseRecord(record, idx, opts.DateLayouts)
		if reason != "" {
			result.Stats.Skipped[reason]++
			continue
		}
		result.Rows = append(result.Rows, tx)
	}

	result.Stats.Loaded = len(result.Rows)
	return result, nil
}

func decode(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(encoding) {
	case "", "latin1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder().Reader(r), nil
	case "windows1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(r), nil
	case "utf8", "utf-8":
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

// indexHeader maps column names to positions, ignoring case and surrounding spaces
func indexHeader(header []string) (map[string]int, error) {
	byName := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(strings.TrimPrefix(name, "\ufeff"), "\u00ef\u00bb\u00bf")
		byName[strings.ToLower(strings.TrimSpace(name))] = i
	}

	idx := make(map[string]int, len(requiredColumns)+len(optionalColumns))
	for _, col := range requiredColumns {
		pos, ok := byName[strings.ToLower(col)]
		if !ok {
			return nil, &models.StageError{Stage: models.StageLoad, Row: 1, Column: col, Err: errors.New("required column missing from header")}
		}
		idx[col] = pos
	}
	for _, col := range optionalColumns {
		if pos, ok := byName[strings.ToLower(col)]; ok {
			idx[col] = pos
		}
	}
	return idx, nil
}

func parseRecord(record []string, idx map[string]int, layouts []string) (models.Transaction, string) {
	field := func(col string) string {
		pos, ok := idx[col]
		if !ok {
			return ""
		}
		return strings.TrimSpace(record[pos])
	}

	qty, err := parseQuantity(field(ColQuantity))
	if err != nil {
		return models.Transaction{}, SkipQuantity
	}
	price, err := strconv.ParseFloat(field(ColUnitPrice), 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
		return models.Transaction{}, SkipUnitPrice
	}
	date, err := parseDate(field(ColInvoiceDate), layouts)
	if err != nil {
		return models.Transaction{}, SkipDate
	}

	return models.Transaction{
		InvoiceNo:   field(ColInvoiceNo),
		StockCode:   field(ColStockCode),
		Description: field(ColDescription),
		Quantity:    qty,
		InvoiceDate: date,
		UnitPrice:   price,
		CustomerID:  models.NormalizeCustomerID(field(ColCustomerID)),
		Country:     field(ColCountry),
	}, ""
}

func parseQuantity(s string) (int, error) {
	if q, err := strconv.Atoi(s); err == nil {
		return q, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("quantity %q is not integral", s)
	}
	return int(f), nil
}

func parseDate(s string, layouts []string) (time.Time, error) {
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
