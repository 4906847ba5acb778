package workbook

import (
	"fmt"
	"math"
	"time"

	"github.com/uoloki/microsoft-dataextract/domain"
)

// MakeDataset converts a spreadsheet value range (row 1 is the header) into a dataset.
// Numbers arrive as float64 and are returned as int64 when integral; empty strings are
// returned as nil.
func MakeDataset(sheet string, values [][]any) (*domain.Dataset, error) {
	if len(values) == 0 {
		return nil, domain.ErrMalformedWorkbook("sheet '%s' is empty", sheet)
	}

	// ... header
	cells := make([]string, len(values[0]))
	for i, v := range values[0] {
		cells[i] = fmt.Sprintf("%v", v)
	}

	header, err := makeHeader(sheet, cells)
	if err != nil {
		return nil, err
	}

	// ... records
	records := [][]any{}
	for r, row := range values[1:] {
		if len(row) > len(header) {
			return nil, domain.ErrMalformedWorkbook("sheet '%s' row %d has %d values but only %d columns", sheet, r+2, len(row), len(header))
		}

		record := make([]any, len(header))
		for i, v := range row {
			record[i] = value(v)
		}

		records = append(records, record)
	}

	return &domain.Dataset{
		Columns: header,
		Rows:    records,
	}, nil
}

// MakeValues is the inverse of MakeDataset.
func MakeValues(data *domain.Dataset) [][]any {
	values := make([][]any, 0, len(data.Rows)+1)

	header := make([]any, len(data.Columns))
	for i, c := range data.Columns {
		header[i] = c
	}

	values = append(values, header)

	for _, row := range data.Rows {
		record := make([]any, len(row))
		for i, v := range row {
			switch x := cellValue(v).(type) {
			case nil:
				record[i] = ""
			case time.Time:
				record[i] = x.Format(time.RFC3339)
			default:
				record[i] = x
			}
		}

		values = append(values, record)
	}

	return values
}

func value(v any) any {
	switch x := v.(type) {
	case nil:
		return nil

	case string:
		if x == "" {
			return nil
		}
		return x

	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
		return x

	default:
		return domain.Normalize(x)
	}
}
