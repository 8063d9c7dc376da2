// Package flatten expands the variable-length party lists of patent records
// into a fixed set of numbered columns.
package flatten

import (
	"github.com/IBM/fp-go/v2/option"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"

	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/models"
	"github.com/Qubut/IP-Claim/packages/dpma_processor/internal/table"
)

// MaxEntries is the longest list of the role across records, 0 for no records.
func MaxEntries(records []models.PatentRecord, role models.Role) int {
	maxEntries := 0
	for _, r := range records {
		if n := len(r.Entries(role)); n > maxEntries {
			maxEntries = n
		}
	}
	return maxEntries
}

// Widths holds the number of entry positions per role.
type Widths map[models.Role]int

// Measure is the first pass: the column widths needed for records.
func Measure(records []models.PatentRecord) Widths {
	w := make(Widths, len(models.Roles))
	for _, role := range models.Roles {
		w[role] = MaxEntries(records, role)
	}
	return w
}

// Columns lists the flat table's columns: the scalar columns, then for each
// role its positions ascending with name, address and country per position.
func Columns(layout models.Layout, widths Widths) []string {
	columns := layout.Scalars()
	for _, role := range models.Roles {
		for pos := 0; pos < widths[role]; pos++ {
			for _, f := range models.Fields {
				columns = append(columns, layout.Column(role, pos, f))
			}
		}
	}
	return columns
}

// Row is the second pass for one record: every column of the layout in
// order, positions past the end of a list are None.
func Row(r models.PatentRecord, widths Widths) []option.Option[string] {
	row := []option.Option[string]{
		option.Some(r.DocumentID),
		option.Some(r.Country),
		option.Some(r.FilingDate),
	}
	for _, role := range models.Roles {
		entries := r.Entries(role)
		for pos := 0; pos < widths[role]; pos++ {
			for _, f := range models.Fields {
				if pos < len(entries) {
					row = append(row, entries[pos].Get(f))
				} else {
					row = append(row, option.None[string]())
				}
			}
		}
	}
	return row
}

// Flatten builds the flat table of records in their given order.
func Flatten(records []models.PatentRecord, layout models.Layout, mem memory.Allocator) *table.Table {
	widths := Measure(records)
	schema := table.StringSchema(Columns(layout, widths))

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	for _, r := range records {
		for i, v := range Row(r, widths) {
			table.AppendString(b.Field(i).(*array.StringBuilder), v)
		}
	}
	return table.New(b.NewRecord())
}
