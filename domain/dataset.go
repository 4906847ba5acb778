// Package domain defines the dataset model, the workbook schema contract and the error
// taxonomy shared by the annotator, the workbook reader/writer, the source adapters and
// the pipeline.
package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Dataset is a rectangular table: an ordered set of unique column names and rows holding
// exactly one value per column, in column order.
//
// Values are one of string, int64, float64, bool, time.Time or nil.
type Dataset struct {
	Columns []string
	Rows    [][]any
}

// NewDataset returns an empty dataset with the given columns.
func NewDataset(columns ...string) *Dataset {
	return &Dataset{
		Columns: append([]string{}, columns...),
		Rows:    [][]any{},
	}
}

// Validate checks the rectangular invariants.
func (d *Dataset) Validate() error {
	if d == nil {
		return ErrMalformedInput("missing dataset")
	}

	index := map[string]int{}
	for i, c := range d.Columns {
		if c == "" {
			return ErrMalformedInput("missing column name in column %d", i+1)
		}

		if _, ok := index[c]; ok {
			return ErrMalformedInput("duplicate column name '%s'", c)
		}

		index[c] = i
	}

	for i, row := range d.Rows {
		if len(row) != len(d.Columns) {
			return ErrMalformedInput("row %d has %d values, expected %d", i+1, len(row), len(d.Columns))
		}
	}

	return nil
}

// Index returns the position of each column.
func (d *Dataset) Index() map[string]int {
	index := make(map[string]int, len(d.Columns))
	for i, c := range d.Columns {
		index[c] = i
	}

	return index
}

// Column returns the values of column ix, one per row.
func (d *Dataset) Column(ix int) []any {
	values := make([]any, 0, len(d.Rows))
	for _, row := range d.Rows {
		values = append(values, row[ix])
	}

	return values
}

// Append adds a row, normalising each value.
func (d *Dataset) Append(values ...any) {
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = Normalize(v)
	}

	d.Rows = append(d.Rows, row)
}

// Normalize coerces a Go value to one of the dataset scalar types. Values without a
// scalar representation (maps, slices, structs) are rendered as compact JSON.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string, int64, float64, bool, time.Time:
		return x
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return uintValue(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return uintValue(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		if b, err := json.Marshal(x); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", x)
	}
}

func uintValue(u uint64) any {
	if u > math.MaxInt64 {
		return strconv.FormatUint(u, 10)
	}

	return int64(u)
}
