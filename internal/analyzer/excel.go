package analyzer

import (
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// readExcelSummary pulls headers, a handful of sample rows and the data row
// count from the first sheet. It iterates rows instead of loading the sheet
// wholesale so large workbooks stay cheap to fingerprint.
func readExcelSummary(path string, sampleLimit int) (headers []string, sample [][]string, rowCount int, err error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, 0, errors.New("spreadsheet has no sheets")
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	defer func() { _ = rows.Close() }()

	first := true
	for rows.Next() {
		row, rowErr := rows.Columns()
		if rowErr != nil {
			return nil, nil, 0, fmt.Errorf("failed to read xlsx row: %w", rowErr)
		}
		if first {
			headers = trimAll(row)
			first = false
			continue
		}
		rowCount++
		if len(sample) < sampleLimit {
			sample = append(sample, row)
		}
	}
	if err := rows.Error(); err != nil {
		return nil, nil, 0, fmt.Errorf("failed to iterate xlsx rows: %w", err)
	}

	return headers, sample, rowCount, nil
}
