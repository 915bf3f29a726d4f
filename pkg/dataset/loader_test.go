package dataset

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/rfm-pipeline/pkg/models"
)

const header = "InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country\n"

func TestLoad(t *testing.T) {
	input := header +
		"536365,85123A,WHITE HANGING HEART,6,01-12-2010 08:26,2.55,17850.0,United Kingdom\n" +
		"536365,71053,WHITE METAL LANTERN,6,1-12-2010 8:26,3.39,17850,United Kingdom\n" +
		"536366,22633,,6,01-12-2010 08:28,1.85,,France\n"

	res, err := Load(context.Background(), strings.NewReader(input), DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)

	first := res.Rows[0]
	assert.Equal(t, "536365", first.InvoiceNo)
	assert.Equal(t, "85123A", first.StockCode)
	assert.Equal(t, 6, first.Quantity)
	assert.Equal(t, 2.55, first.UnitPrice)
	assert.Equal(t, "17850", first.CustomerID, "float-rendered IDs are normalized")
	assert.Equal(t, time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC), first.InvoiceDate)
	assert.Equal(t, first.InvoiceDate, res.Rows[1].InvoiceDate, "unpadded day and hour parse")

	assert.Empty(t, res.Rows[2].Description)
	assert.False(t, res.Rows[2].HasCustomer())

	assert.Equal(t, 3, res.Stats.Records)
	assert.Equal(t, 3, res.Stats.Loaded)
	assert.Empty(t, res.Stats.Skipped)
}

func TestLoadDecodesLatin1(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(header)
	buf.WriteString("536370,22728,ALARM CLOCK CAF\xe9,24,01-12-2010 08:45,3.75,12583,France\n")

	res, err := Load(context.Background(), &buf, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "ALARM CLOCK CAFé", res.Rows[0].Description)
}

func TestLoadSkipsMalformedRows(t *testing.T) {
	input := header +
		"1,A,ok,2,01-12-2010 08:26,1.00,1,UK\n" +
		"2,A,short row,2\n" +
		"3,A,bad qty,two,01-12-2010 08:26,1.00,1,UK\n" +
		"4,A,bad price,2,01-12-2010 08:26,abc,1,UK\n" +
		"5,A,bad date,2,2010/12/01,1.00,1,UK\n" +
		"6,A,float qty,3.0,01-12-2010 08:26,1.00,1,UK\n" +
		"7,A,fractional qty,2.5,01-12-2010 08:26,1.00,1,UK\n"

	res, err := Load(context.Background(), strings.NewReader(input), DefaultOptions())
	require.NoError(t, err)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, 3, res.Rows[1].Quantity)
	assert.Equal(t, 7, res.Stats.Records)
	assert.Equal(t, map[string]int{
		SkipFieldCount: 1,
		SkipQuantity:   2,
		SkipUnitPrice:  1,
		SkipDate:       1,
	}, res.Stats.Skipped)
}

func TestLoadHeaderByName(t *testing.T) {
	input := "customerid; Quantity ;UnitPrice;InvoiceDate;Description;InvoiceNo\n" +
		"12346;1;1.04;18-01-2011 10:01;MUG;541431\n"

	opts := DefaultOptions()
	opts.Delimiter = ';'
	opts.Encoding = "utf8"

	res, err := Load(context.Background(), strings.NewReader(input), opts)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "12346", res.Rows[0].CustomerID)
	assert.Equal(t, 1.04, res.Rows[0].UnitPrice)
	assert.Empty(t, res.Rows[0].Country)
}

func TestLoadMissingColumn(t *testing.T) {
	input := "InvoiceNo,Description,Quantity,InvoiceDate,CustomerID\n"

	_, err := Load(context.Background(), strings.NewReader(input), DefaultOptions())
	require.Error(t, err)

	var se *models.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, models.StageLoad, se.Stage)
	assert.Equal(t, ColUnitPrice, se.Column)
}

func TestLoadEmptyInput(t *testing.T) {
	_, err := Load(context.Background(), strings.NewReader(""), DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNoData))

	res, err := Load(context.Background(), strings.NewReader(header), DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
}

func TestLoadUnsupportedEncoding(t *testing.T) {
	opts := DefaultOptions()
	opts.Encoding = "ebcdic"
	_, err := Load(context.Background(), strings.NewReader(header), opts)
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retail.csv")
	require.NoError(t, os.WriteFile(path, []byte(header+"1,A,x,1,01-12-2010 08:26,1.00,1,UK\n"), 0o644))

	res, err := LoadFile(context.Background(), path, DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)

	_, err = LoadFile(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), DefaultOptions())
	assert.Error(t, err)
}
