// Package table holds the in-memory tables of the pipeline as arrow records
// and reads and writes them as delimited text, Parquet and XLSX.
package table

import (
	"github.com/IBM/fp-go/v2/option"
	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
)

var orEmpty = option.GetOrElse(func() string { return "" })

// Table is an immutable, column-named table.
type Table struct {
	rec   arrow.Record
	index map[string]int
}

// New wraps rec. The table takes over the caller's reference.
func New(rec arrow.Record) *Table {
	index := make(map[string]int, rec.NumCols())
	for i, f := range rec.Schema().Fields() {
		if _, dup := index[f.Name]; !dup {
			index[f.Name] = i
		}
	}
	return &Table{rec: rec, index: index}
}

// StringSchema returns a schema of nullable string columns.
func StringSchema(columns []string) *arrow.Schema {
	fields := make([]arrow.Field, len(columns))
	for i, name := range columns {
		fields[i] = arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

func (t *Table) Record() arrow.Record { return t.rec }

func (t *Table) Schema() *arrow.Schema { return t.rec.Schema() }

func (t *Table) NumRows() int { return int(t.rec.NumRows()) }

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	fields := t.rec.Schema().Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

func (t *Table) Has(column string) bool {
	_, ok := t.index[column]
	return ok
}

// Value returns the cell at row in column, None for nulls and unknown columns.
func (t *Table) Value(row int, column string) option.Option[string] {
	i, ok := t.index[column]
	if !ok {
		return option.None[string]()
	}
	col := t.rec.Column(i)
	if col.IsNull(row) {
		return option.None[string]()
	}
	if s, ok := col.(*array.String); ok {
		return option.Some(s.Value(row))
	}
	return option.Some(col.ValueStr(row))
}

func (t *Table) Release() {
	if t != nil && t.rec != nil {
		t.rec.Release()
	}
}

// AppendString appends v to a string builder, or a null when v is None.
func AppendString(b *array.StringBuilder, v option.Option[string]) {
	if option.IsNone(v) {
		b.AppendNull()
		return
	}
	b.Append(orEmpty(v))
}
