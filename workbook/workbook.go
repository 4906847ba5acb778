// Package workbook reads and writes datasets as multi-sheet workbooks: xlsx files on disk,
// Google Sheets spreadsheets and single-sheet TSV exports.
package workbook

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/uoloki/microsoft-dataextract/domain"
)

// Sheet is one named dataset in a workbook.
type Sheet struct {
	Name string
	Data *domain.Dataset
}

// Sheets is an ordered mapping of sheet name to dataset.
type Sheets []Sheet

// Names returns the sheet names in order.
func (s Sheets) Names() []string {
	names := make([]string, 0, len(s))
	for _, sheet := range s {
		names = append(names, sheet.Name)
	}

	return names
}

// Get returns the dataset for the named sheet. Sheet names are matched case-insensitively,
// the same way spreadsheet applications match them.
func (s Sheets) Get(name string) (*domain.Dataset, bool) {
	for _, sheet := range s {
		if strings.EqualFold(sheet.Name, name) {
			return sheet.Data, true
		}
	}

	return nil, false
}

// Text renders a cell value the way it is displayed.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return Text(domain.Normalize(x))
	}
}

func width(v any) int {
	return utf8.RuneCountInString(Text(v))
}

func validate(workbook Sheets) error {
	if len(workbook) == 0 {
		return domain.ErrMalformedInput("workbook has no sheets")
	}

	names := map[string]bool{}
	for _, sheet := range workbook {
		if err := ValidateSheetName(sheet.Name); err != nil {
			return err
		}

		k := strings.ToLower(sheet.Name)
		if names[k] {
			return domain.ErrInvalidSheetName("duplicate sheet name '%s'", sheet.Name)
		}

		names[k] = true

		if err := sheet.Data.Validate(); err != nil {
			return domain.ErrMalformedInput("sheet '%s' (%w)", sheet.Name, err)
		}
	}

	return nil
}

func makeHeader(sheet string, cells []string) ([]string, error) {
	if len(cells) == 0 {
		return nil, domain.ErrMalformedWorkbook("sheet '%s' is missing a header row", sheet)
	}

	index := map[string]int{}
	header := make([]string, 0, len(cells))
	for i, h := range cells {
		if h == "" {
			return nil, domain.ErrMalformedWorkbook("sheet '%s' is missing a column name in column %d", sheet, i+1)
		}

		if _, ok := index[h]; ok {
			return nil, domain.ErrMalformedWorkbook("sheet '%s' has a duplicate column name '%s'", sheet, h)
		}

		index[h] = i
		header = append(header, h)
	}

	return header, nil
}
