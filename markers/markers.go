// Package markers implements the include-marker round trip: Annotate pairs every column
// with a "_Y" marker column for an operator to edit, Reduce keeps the columns whose
// markers were left affirmative.
package markers

import (
	"github.com/uoloki/microsoft-dataextract/domain"
)

// Annotate returns a copy of the dataset with a marker column inserted after every
// column. Every marker cell is set to the affirmative token.
//
// Column names already ending in the marker suffix are rejected: they would be
// indistinguishable from markers when the workbook is read back.
func Annotate(d *domain.Dataset) (*domain.Dataset, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	columns := make([]string, 0, 2*len(d.Columns))
	for _, c := range d.Columns {
		if domain.IsMarkerName(c) {
			return nil, domain.ErrMalformedInput("column '%s' ends with the marker suffix '%s'", c, domain.MarkerSuffix)
		}

		columns = append(columns, c, domain.MarkerFor(c))
	}

	rows := make([][]any, 0, len(d.Rows))
	for _, row := range d.Rows {
		record := make([]any, 0, len(columns))
		for _, v := range row {
			record = append(record, v, domain.Affirmative)
		}

		rows = append(rows, record)
	}

	return &domain.Dataset{
		Columns: columns,
		Rows:    rows,
	}, nil
}

// Reduce returns the data columns whose marker column holds the affirmative token in
// at least one row, in their original order. Marker columns are always dropped, and
// every marker must name a data column present in the dataset.
func Reduce(d *domain.Dataset) (*domain.Dataset, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	index := d.Index()

	for _, c := range d.Columns {
		if !domain.IsMarkerName(c) {
			continue
		}

		column, ok := domain.PairedColumn(c)
		if !ok {
			return nil, domain.ErrMalformedInput("marker column '%s' has no column name", c)
		}

		if _, ok := index[column]; !ok {
			return nil, domain.ErrMalformedInput("marker column '%s' has no paired column '%s'", c, column)
		}
	}

	keep := []int{}
	for i, c := range d.Columns {
		if domain.IsMarkerName(c) {
			continue
		}

		if ix, ok := index[domain.MarkerFor(c)]; ok && affirmed(d, ix) {
			keep = append(keep, i)
		}
	}

	if len(keep) == 0 {
		return domain.NewDataset(), nil
	}

	columns := make([]string, 0, len(keep))
	for _, i := range keep {
		columns = append(columns, d.Columns[i])
	}

	rows := make([][]any, 0, len(d.Rows))
	for _, row := range d.Rows {
		record := make([]any, 0, len(keep))
		for _, i := range keep {
			record = append(record, row[i])
		}

		rows = append(rows, record)
	}

	return &domain.Dataset{
		Columns: columns,
		Rows:    rows,
	}, nil
}

func affirmed(d *domain.Dataset, marker int) bool {
	for _, row := range d.Rows {
		if domain.IsAffirmative(row[marker]) {
			return true
		}
	}

	return false
}
