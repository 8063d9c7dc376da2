package table

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/IBM/fp-go/v2/option"
	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/config"
)

func buildTable(t *testing.T, columns []string, rows [][]option.Option[string]) *Table {
	t.Helper()
	b := array.NewRecordBuilder(memory.NewGoAllocator(), StringSchema(columns))
	defer b.Release()
	for _, row := range rows {
		require.Len(t, row, len(columns))
		for i, v := range row {
			AppendString(b.Field(i).(*array.StringBuilder), v)
		}
	}
	return New(b.NewRecord())
}

func latin1Options() CSVOptions {
	return CSVOptions{Comma: ';', Encoding: charmap.ISO8859_1, EncodingName: "ISO-8859-1", Index: true}
}

func utf8Options(t *testing.T) CSVOptions {
	t.Helper()
	opts, err := NewCSVOptions(config.CSV{Delimiter: ";", Encoding: "UTF-8"})
	require.NoError(t, err)
	return opts
}

var (
	some = option.Some[string]
	none = option.None[string]()
)

func TestNewCSVOptions(t *testing.T) {
	opts, err := NewCSVOptions(config.CSV{Delimiter: ";", Encoding: "latin1"})
	require.NoError(t, err)
	assert.Equal(t, ';', opts.Comma)
	assert.Equal(t, "latin1", opts.EncodingName)
	assert.True(t, opts.Index)

	encoded, err := opts.Encoding.NewEncoder().String("München")
	require.NoError(t, err)
	assert.Equal(t, "M\xfcnchen", encoded)

	_, err = NewCSVOptions(config.CSV{Delimiter: ";;", Encoding: "latin1"})
	assert.Error(t, err)
	_, err = NewCSVOptions(config.CSV{Delimiter: ";", Encoding: "klingon"})
	assert.Error(t, err)
}

func TestWriteCSVWithIndex(t *testing.T) {
	tbl := buildTable(t, []string{"Document_ID", "Inventors_0_Address"}, [][]option.Option[string]{
		{some("DE1"), some("80333 München")},
		{some("DE2"), none},
	})
	defer tbl.Release()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl, latin1Options(), memory.NewGoAllocator()))

	assert.Equal(t,
		";Document_ID;Inventors_0_Address\n0;DE1;80333 M\xfcnchen\n1;DE2;\n",
		buf.String())
}

func TestWriteCSVQuotesDelimiter(t *testing.T) {
	tbl := buildTable(t, []string{"Name"}, [][]option.Option[string]{{some("Müller; Schmidt")}})
	defer tbl.Release()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl, CSVOptions{Comma: ';'}, memory.NewGoAllocator()))
	assert.Equal(t, "Name\n\"Müller; Schmidt\"\n", buf.String())
}

func TestCSVRoundTrip(t *testing.T) {
	columns := []string{"Document_ID", "Country", "Applicants_0_Name", "Applicants_0_Address"}
	latin1Rows := [][]option.Option[string]{
		{some("102010000001"), some("DE"), some("Bosch GmbH, Stuttgart"), some("70469 Stuttgart")},
		{some("102010000002"), some("DE"), some("Jürgen Weiß"), none},
		{some("102010000003"), some("AT"), none, none},
	}
	tests := []struct {
		name string
		opts CSVOptions
		rows [][]option.Option[string]
	}{
		{"latin1", latin1Options(), latin1Rows},
		{"utf8", utf8Options(t), append(latin1Rows,
			[]option.Option[string]{some("102010000004"), some("PL"), some("Łukasz Dvořák"), some(`10115 Berlin; "Mitte"`)},
			[]option.Option[string]{some("102010000005"), some("JP"), some("株式会社 東芝"), some("105-8001 東京都")},
		)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := buildTable(t, columns, tt.rows)
			defer tbl.Release()

			path := filepath.Join(t.TempDir(), "result.csv")
			require.NoError(t, WriteCSVFile(path, tbl, tt.opts, memory.NewGoAllocator()))

			back, err := ReadCSVFile(path, tt.opts, memory.NewGoAllocator())
			require.NoError(t, err)
			defer back.Release()

			assert.Equal(t, columns, back.Columns())
			require.Equal(t, tbl.NumRows(), back.NumRows())
			for r := 0; r < tbl.NumRows(); r++ {
				for _, c := range columns {
					assert.Equal(t, tbl.Value(r, c), back.Value(r, c), "row %d column %s", r, c)
				}
			}
		})
	}
}

func TestWriteCSVFileRejectsUnencodableValue(t *testing.T) {
	tbl := buildTable(t, []string{"Document_ID", "Inventors_0_Name"}, [][]option.Option[string]{
		{some("DE1"), some("Jürgen Weiß")},
		{some("DE2"), some("Łukasz Dvořák")},
	})
	defer tbl.Release()

	path := filepath.Join(t.TempDir(), "result.csv")
	err := WriteCSVFile(path, tbl, latin1Options(), memory.NewGoAllocator())

	var unencodable *UnencodableError
	require.ErrorAs(t, err, &unencodable)
	assert.Equal(t, 1, unencodable.Row)
	assert.Equal(t, "DE2", unencodable.Record)
	assert.Equal(t, "Inventors_0_Name", unencodable.Column)
	assert.Contains(t, err.Error(), "ISO-8859-1")
	assert.NoFileExists(t, path)

	var buf bytes.Buffer
	assert.ErrorAs(t, WriteCSV(&buf, tbl, latin1Options(), memory.NewGoAllocator()), &unencodable)
	assert.Zero(t, buf.Len())
}

func TestWriteCSVIndexUsesAllocator(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	tbl := buildTable(t, []string{"Document_ID"}, [][]option.Option[string]{{some("DE1")}, {some("DE2")}})
	defer tbl.Release()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl, latin1Options(), mem))
	assert.Equal(t, ";Document_ID\n0;DE1\n1;DE2\n", buf.String())
}

func TestReadCSVKeepsNamedFirstColumn(t *testing.T) {
	in := "PLZ;City\n10115;Berlin\n;Hamburg\n"
	tbl, err := ReadCSV(strings.NewReader(in), CSVOptions{Comma: ';'}, memory.NewGoAllocator())
	require.NoError(t, err)
	defer tbl.Release()

	assert.Equal(t, []string{"PLZ", "City"}, tbl.Columns())
	assert.Equal(t, some("10115"), tbl.Value(0, "PLZ"))
	assert.Equal(t, none, tbl.Value(1, "PLZ"))
	assert.Equal(t, none, tbl.Value(0, "Street"))
}

func TestReadCSVHeaderOnly(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(";Document_ID\n"), CSVOptions{Comma: ';'}, memory.NewGoAllocator())
	require.NoError(t, err)
	defer tbl.Release()

	assert.Equal(t, 0, tbl.NumRows())
	assert.True(t, tbl.Has("Document_ID"))
}

func TestReadCSVEmptyInput(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), CSVOptions{Comma: ';'}, memory.NewGoAllocator())
	assert.ErrorContains(t, err, "no header row")
}

func TestWriteParquet(t *testing.T) {
	tbl := buildTable(t, []string{"Document_ID", "Inventors_0_Name"}, [][]option.Option[string]{
		{some("DE1"), some("Erika Mustermann")},
		{some("DE2"), none},
	})
	defer tbl.Release()

	var buf bytes.Buffer
	require.NoError(t, WriteParquet(&buf, tbl))

	mem := memory.NewGoAllocator()
	back, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(buf.Bytes()), nil, pqarrow.ArrowReadProperties{}, mem)
	require.NoError(t, err)
	defer back.Release()

	assert.EqualValues(t, 2, back.NumRows())
	assert.EqualValues(t, 2, back.NumCols())
	assert.Equal(t, arrow.BinaryTypes.String, back.Schema().Field(1).Type)
	assert.EqualValues(t, 1, back.Column(1).NullN())
}

func TestWriteXLSXFile(t *testing.T) {
	byPLZ := buildTable(t, []string{"PLZ", "City"}, [][]option.Option[string]{
		{some("10115"), some("Berlin")},
		{none, some("Kein Stadtname!")},
	})
	defer byPLZ.Release()
	byCity := buildTable(t, []string{"City", "PLZ"}, [][]option.Option[string]{
		{some("Berlin"), some("10115")},
	})
	defer byCity.Release()

	path := filepath.Join(t.TempDir(), "summary.xlsx")
	require.NoError(t, WriteXLSXFile(path, Sheet{Name: "by_plz", Table: byPLZ}, Sheet{Name: "by_city", Table: byCity}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"by_plz", "by_city"}, f.GetSheetList())
	rows, err := f.GetRows("by_plz")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"PLZ", "City"}, rows[0])
	assert.Equal(t, []string{"10115", "Berlin"}, rows[1])
	assert.Equal(t, []string{"", "Kein Stadtname!"}, rows[2])
}
