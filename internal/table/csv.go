package table

import (
	"bufio"
	"bytes"
	stdcsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/csv"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/config"
)

// IndexColumn is the (unnamed) header of the row index column.
const IndexColumn = ""

type CSVOptions struct {
	Comma     rune
	Encoding  encoding.Encoding
	// EncodingName is the IANA name of Encoding, used in error messages.
	EncodingName string
	NullValue    string
	// Index writes a leading 0-based row number column.
	Index bool
}

// NewCSVOptions resolves the configured delimiter and IANA encoding name.
func NewCSVOptions(c config.CSV) (CSVOptions, error) {
	comma, _ := utf8.DecodeRuneInString(c.Delimiter)
	if comma == utf8.RuneError || utf8.RuneCountInString(c.Delimiter) != 1 {
		return CSVOptions{}, fmt.Errorf("invalid csv delimiter %q", c.Delimiter)
	}
	opts := CSVOptions{Comma: comma, NullValue: c.NullValue, Index: true}
	return opts.WithEncoding(c.Encoding)
}

// WithEncoding returns a copy of o that reads and writes the IANA encoding name.
func (o CSVOptions) WithEncoding(name string) (CSVOptions, error) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return CSVOptions{}, fmt.Errorf("unknown csv encoding %q: %w", name, err)
	}
	if enc == nil {
		return CSVOptions{}, fmt.Errorf("unsupported csv encoding %q", name)
	}
	o.Encoding = enc
	o.EncodingName = name
	return o, nil
}

// UnencodableError reports a cell the output encoding cannot represent.
// Record is the row's first column, the document or group key.
type UnencodableError struct {
	Row      int
	Record   string
	Column   string
	Value    string
	Encoding string
}

func (e *UnencodableError) Error() string {
	return fmt.Sprintf("row %d (%s): column %s value %q cannot be encoded as %s",
		e.Row, e.Record, e.Column, e.Value, e.Encoding)
}

func (o CSVOptions) encoding() encoding.Encoding {
	if o.Encoding == nil {
		return encoding.Nop
	}
	return o.Encoding
}

// WriteCSV writes a header row and every row of t. It fails with an
// UnencodableError before writing anything if a cell cannot be represented
// in the target encoding.
func WriteCSV(w io.Writer, t *Table, opts CSVOptions, mem memory.Allocator) error {
	if err := checkEncodable(t, opts); err != nil {
		return err
	}
	rec := t.Record()
	if opts.Index {
		rec = withIndex(rec, mem)
		defer rec.Release()
	}

	encoded := opts.encoding().NewEncoder().Writer(w)
	writer := csv.NewWriter(encoded, rec.Schema(),
		csv.WithComma(opts.Comma),
		csv.WithHeader(true),
		csv.WithNullWriter(opts.NullValue),
	)
	if err := writer.Write(rec); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	if err := writer.Error(); err != nil {
		return err
	}
	if c, ok := encoded.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// WriteCSVFile creates (or truncates) path and writes t to it. Nothing is
// created when a cell cannot be encoded.
func WriteCSVFile(path string, t *Table, opts CSVOptions, mem memory.Allocator) error {
	if err := checkEncodable(t, opts); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV: %w", err)
	}
	buffered := bufio.NewWriter(file)
	if err := WriteCSV(buffered, t, opts, mem); err != nil {
		file.Close()
		return err
	}
	if err := buffered.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return file.Close()
}

func checkEncodable(t *Table, opts CSVOptions) error {
	enc := opts.encoding().NewEncoder()
	columns := t.Columns()
	for _, c := range columns {
		if _, err := enc.String(c); err != nil {
			return &UnencodableError{Row: -1, Record: "header", Column: c, Value: c, Encoding: opts.EncodingName}
		}
	}
	for r := 0; r < t.NumRows(); r++ {
		for i, c := range columns {
			strs, ok := t.Record().Column(i).(*array.String)
			if !ok || strs.IsNull(r) {
				continue
			}
			if _, err := enc.String(strs.Value(r)); err != nil {
				return &UnencodableError{
					Row:      r,
					Record:   orEmpty(t.Value(r, columns[0])),
					Column:   c,
					Value:    strs.Value(r),
					Encoding: opts.EncodingName,
				}
			}
		}
	}
	return nil
}

// ReadCSV reads delimited text with a header row into a table of nullable
// string columns. Cells equal to the null value become nulls. A leading
// unnamed column is taken as the row index and dropped.
func ReadCSV(r io.Reader, opts CSVOptions, mem memory.Allocator) (*Table, error) {
	raw, err := io.ReadAll(opts.encoding().NewDecoder().Reader(r))
	if err != nil {
		return nil, fmt.Errorf("decode csv: %w", err)
	}

	header, err := readHeader(raw, opts.Comma)
	if err != nil {
		return nil, err
	}
	schema := StringSchema(header)

	reader := csv.NewReader(bytes.NewReader(raw), schema,
		csv.WithComma(opts.Comma),
		csv.WithHeader(true),
		csv.WithNullReader(true, opts.NullValue),
		csv.WithChunk(-1),
		csv.WithAllocator(mem),
	)
	defer reader.Release()

	var rec arrow.Record
	if reader.Next() {
		rec = reader.Record()
		rec.Retain()
	}
	if err := reader.Err(); err != nil {
		if rec != nil {
			rec.Release()
		}
		return nil, fmt.Errorf("read csv rows: %w", err)
	}
	if rec == nil {
		b := array.NewRecordBuilder(mem, schema)
		rec = b.NewRecord()
		b.Release()
	}

	if header[0] == IndexColumn {
		trimmed := array.NewRecord(arrow.NewSchema(schema.Fields()[1:], nil), rec.Columns()[1:], rec.NumRows())
		rec.Release()
		rec = trimmed
	}
	return New(rec), nil
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string, opts CSVOptions, mem memory.Allocator) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCSV(file, opts, mem)
}

func readHeader(raw []byte, comma rune) ([]string, error) {
	r := stdcsv.NewReader(bytes.NewReader(raw))
	r.Comma = comma
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("csv has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	return header, nil
}

func withIndex(rec arrow.Record, mem memory.Allocator) arrow.Record {
	b := array.NewInt64Builder(mem)
	defer b.Release()
	for i := int64(0); i < rec.NumRows(); i++ {
		b.Append(i)
	}
	index := b.NewInt64Array()
	defer index.Release()

	fields := append([]arrow.Field{{Name: IndexColumn, Type: arrow.PrimitiveTypes.Int64}}, rec.Schema().Fields()...)
	cols := append([]arrow.Array{index}, rec.Columns()...)
	return array.NewRecord(arrow.NewSchema(fields, nil), cols, rec.NumRows())
}
