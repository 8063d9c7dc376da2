package table

import (
	"fmt"

	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/xuri/excelize/v2"
)

// Sheet is a table written to one worksheet.
type Sheet struct {
	Name  string
	Table *Table
}

// WriteXLSXFile writes every sheet into a new workbook at path. Null cells stay empty.
func WriteXLSXFile(path string, sheets ...Sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		idx, err := f.NewSheet(sheet.Name)
		if err != nil {
			return fmt.Errorf("create sheet %s: %w", sheet.Name, err)
		}
		if i == 0 {
			f.SetActiveSheet(idx)
		}
		if err := writeSheet(f, sheet); err != nil {
			return err
		}
	}
	if !hasSheet(sheets, "Sheet1") {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return fmt.Errorf("drop default sheet: %w", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet Sheet) error {
	columns := sheet.Table.Columns()
	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet.Name, "A1", &header); err != nil {
		return fmt.Errorf("write header of %s: %w", sheet.Name, err)
	}

	for r := 0; r < sheet.Table.NumRows(); r++ {
		row := make([]interface{}, len(columns))
		for i, c := range columns {
			if ints, ok := sheet.Table.Record().Column(i).(*array.Int64); ok && ints.IsValid(r) {
				row[i] = ints.Value(r)
				continue
			}
			row[i] = orEmpty(sheet.Table.Value(r, c))
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet.Name, cell, &row); err != nil {
			return fmt.Errorf("write row %d of %s: %w", r, sheet.Name, err)
		}
	}
	return nil
}

func hasSheet(sheets []Sheet, name string) bool {
	for _, s := range sheets {
		if s.Name == name {
			return true
		}
	}
	return false
}
