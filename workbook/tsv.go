package workbook

import (
	"encoding/csv"
	"io"

	"github.com/uoloki/microsoft-dataextract/domain"
)

// WriteTSV writes a dataset as tab separated values, header first.
func WriteTSV(f io.Writer, data *domain.Dataset) error {
	if err := data.Validate(); err != nil {
		return err
	}

	w := csv.NewWriter(f)
	w.Comma = '\t'

	if err := w.Write(data.Columns); err != nil {
		return domain.ErrIOFailure("error writing TSV header (%w)", err)
	}

	for _, row := range data.Rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = Text(v)
		}

		if err := w.Write(record); err != nil {
			return domain.ErrIOFailure("error writing TSV record (%w)", err)
		}
	}

	w.Flush()

	if err := w.Error(); err != nil {
		return domain.ErrIOFailure("error writing TSV (%w)", err)
	}

	return nil
}
