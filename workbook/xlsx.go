package workbook

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/uoloki/microsoft-dataextract/domain"
)

// Column widths are the widest value (header included) plus padding, capped at the
// xlsx maximum.
const (
	ColumnPadding  = 2
	MaxColumnWidth = 255
)

const defaultSheet = "Sheet1"

// Write saves the sheets to an xlsx workbook, replacing any existing file. The workbook is
// written to a temporary file alongside the target and renamed into place, so on failure
// the target is left as it was.
func Write(path string, workbook Sheets) error {
	if err := validate(workbook); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range workbook {
		if i == 0 {
			if sheet.Name != defaultSheet {
				if err := f.SetSheetName(defaultSheet, sheet.Name); err != nil {
					return domain.ErrInvalidSheetName("sheet '%s' (%w)", sheet.Name, err)
				}
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return domain.ErrInvalidSheetName("sheet '%s' (%w)", sheet.Name, err)
		}

		if err := writeSheet(f, sheet.Name, sheet.Data); err != nil {
			return err
		}
	}

	f.SetActiveSheet(0)

	return save(f, path)
}

func writeSheet(f *excelize.File, sheet string, data *domain.Dataset) error {
	widths := make([]int, len(data.Columns))

	set := func(col, row int, v any) error {
		cell, err := excelize.CoordinatesToCellName(col+1, row+1)
		if err != nil {
			return domain.ErrIOFailure("sheet '%s' (%w)", sheet, err)
		}

		if s, ok := v.(string); ok {
			if n := utf8.RuneCountInString(s); n > excelize.TotalCellChars {
				return domain.ErrIOFailure("sheet '%s' row %d column '%s': %d characters exceeds the cell limit of %d",
					sheet, row+1, data.Columns[col], n, excelize.TotalCellChars)
			}
		}

		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return domain.ErrIOFailure("sheet '%s' cell %s (%w)", sheet, cell, err)
		}

		if w := width(v); w > widths[col] {
			widths[col] = w
		}

		return nil
	}

	for i, column := range data.Columns {
		if err := set(i, 0, column); err != nil {
			return err
		}
	}

	for r, row := range data.Rows {
		for i, v := range row {
			if v = cellValue(v); v != nil {
				if err := set(i, r+1, v); err != nil {
					return err
				}
			}
		}
	}

	// Trailing blank rows have no cells, so the dimension is the only record of them.
	last, err := excelize.CoordinatesToCellName(max(len(data.Columns), 1), len(data.Rows)+1)
	if err != nil {
		return domain.ErrIOFailure("sheet '%s' (%w)", sheet, err)
	}

	if err := f.SetSheetDimension(sheet, "A1:"+last); err != nil {
		return domain.ErrIOFailure("sheet '%s' dimension (%w)", sheet, err)
	}

	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return domain.ErrIOFailure("sheet '%s' (%w)", sheet, err)
		}

		if err := f.SetColWidth(sheet, col, col, float64(min(w+ColumnPadding, MaxColumnWidth))); err != nil {
			return domain.ErrIOFailure("sheet '%s' column %s (%w)", sheet, col, err)
		}
	}

	return nil
}

// cellValue maps a dataset value onto what is stored in the cell. Empty strings are
// stored as blank cells and timestamps as RFC 3339 text.
func cellValue(v any) any {
	switch x := domain.Normalize(v).(type) {
	case string:
		if x == "" {
			return nil
		}
		return x

	case time.Time:
		return x.Format(time.RFC3339)

	default:
		return x
	}
}

func save(f *excelize.File, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0770); err != nil {
		return domain.ErrIOFailure("unable to create directory for '%s' (%w)", path, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return domain.ErrIOFailure("unable to create temporary file for '%s' (%w)", path, err)
	}

	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if _, err := f.WriteTo(tmp); err != nil {
		return domain.ErrIOFailure("error writing workbook '%s' (%w)", path, err)
	}

	if err := tmp.Close(); err != nil {
		return domain.ErrIOFailure("error writing workbook '%s' (%w)", path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return domain.ErrIOFailure("error saving workbook '%s' (%w)", path, err)
	}

	return nil
}

// Read loads every sheet of an xlsx workbook in sheet order. Row 1 of each sheet is the
// header; numeric cells are returned as int64 (integral) or float64, boolean cells as bool,
// text as string and blank cells as nil.
func Read(path string) (Sheets, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, domain.ErrIOFailure("unable to open workbook '%s' (%w)", path, err)
	}

	defer file.Close()

	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, domain.ErrMalformedWorkbook("unable to parse workbook '%s' (%w)", path, err)
	}

	defer f.Close()

	workbook := Sheets{}
	for _, name := range f.GetSheetList() {
		data, err := readSheet(f, name)
		if err != nil {
			return nil, err
		}

		workbook = append(workbook, Sheet{Name: name, Data: data})
	}

	if len(workbook) == 0 {
		return nil, domain.ErrMalformedWorkbook("workbook '%s' has no sheets", path)
	}

	return workbook, nil
}

func readSheet(f *excelize.File, sheet string) (*domain.Dataset, error) {
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, domain.ErrMalformedWorkbook("unable to read sheet '%s' (%w)", sheet, err)
	}

	if len(rows) == 0 {
		return nil, domain.ErrMalformedWorkbook("sheet '%s' is empty", sheet)
	}

	header, err := makeHeader(sheet, rows[0])
	if err != nil {
		return nil, err
	}

	records := make([][]any, 0, len(rows)-1)
	for r, row := range rows[1:] {
		if len(row) > len(header) {
			return nil, domain.ErrMalformedWorkbook("sheet '%s' row %d has %d values but only %d columns", sheet, r+2, len(row), len(header))
		}

		record := make([]any, len(header))
		for i, raw := range row {
			if raw == "" {
				continue
			}

			cell, err := excelize.CoordinatesToCellName(i+1, r+2)
			if err != nil {
				return nil, domain.ErrMalformedWorkbook("sheet '%s' (%w)", sheet, err)
			}

			t, err := f.GetCellType(sheet, cell)
			if err != nil {
				return nil, domain.ErrMalformedWorkbook("sheet '%s' cell %s (%w)", sheet, cell, err)
			}

			record[i] = parse(t, raw)
		}

		records = append(records, record)
	}

	n := height(f, sheet)
	for len(records) < n-1 {
		records = append(records, make([]any, len(header)))
	}

	return &domain.Dataset{
		Columns: header,
		Rows:    records,
	}, nil
}

// height returns the number of rows in the sheet dimension, or 0 if the sheet has no
// usable dimension.
func height(f *excelize.File, sheet string) int {
	dimension, err := f.GetSheetDimension(sheet)
	if err != nil || dimension == "" {
		return 0
	}

	_, ref, _ := strings.Cut(dimension, ":")
	if ref == "" {
		ref = dimension
	}

	_, rows, err := excelize.CellNameToCoordinates(ref)
	if err != nil {
		return 0
	}

	return rows
}

func parse(t excelize.CellType, raw string) any {
	switch t {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "TRUE")

	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i
		}

		if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return f
		}

		return raw

	default:
		return raw
	}
}
