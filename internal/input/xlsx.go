package input

import (
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"
)

func readXLSX(path string) ([]Table, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	wb, err := excelize.OpenReader(fh)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = wb.Close() }()

	var tables []Table
	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		raw := make([]Row, len(rows))
		for i, cells := range rows {
			raw[i] = Row{Index: i + 1, Cells: cells}
		}
		tables = append(tables, newTable(sheet, raw))
	}
	return tables, nil
}
