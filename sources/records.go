package sources

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/uoloki/microsoft-dataextract/domain"
)

// Record is a decoded JSON object that remembers the order of its keys. Nested objects and
// arrays are kept as compact JSON text and numbers as int64 or float64.
type Record struct {
	Keys   []string
	Values map[string]any
}

// NewRecord creates an empty record.
func NewRecord() Record {
	return Record{
		Keys:   []string{},
		Values: map[string]any{},
	}
}

// Set adds or replaces a value, appending the key if it is new.
func (r *Record) Set(key string, v any) {
	if r.Values == nil {
		r.Values = map[string]any{}
	}

	if _, ok := r.Values[key]; !ok {
		r.Keys = append(r.Keys, key)
	}

	r.Values[key] = v
}

// Get returns the value for key, if present.
func (r Record) Get(key string) (any, bool) {
	v, ok := r.Values[key]
	return v, ok
}

// Text returns the value for key as a string, or "" if it is absent or not a string.
func (r Record) Text(key string) string {
	if v, ok := r.Values[key].(string); ok {
		return v
	}

	return ""
}

func (r *Record) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	} else if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	*r = NewRecord()

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}

		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("invalid object key %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}

		v, err := decodeValue(raw)
		if err != nil {
			return err
		}

		r.Set(key, v)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	return nil
}

// DecodeRecord decodes a single JSON object.
func DecodeRecord(b []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return Record{}, domain.ErrSourceQuery("invalid JSON object (%w)", err)
	}

	return r, nil
}

// DecodeRecords decodes a JSON array of objects.
func DecodeRecords(b []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, domain.ErrSourceQuery("invalid JSON array (%w)", err)
	}

	return records, nil
}

// FromRecords builds a dataset from records. Columns are ordered by first appearance and
// values missing from a record are nil.
func FromRecords(records []Record) *domain.Dataset {
	data := domain.NewDataset()
	index := map[string]int{}

	for _, r := range records {
		for _, k := range r.Keys {
			if _, ok := index[k]; !ok {
				index[k] = len(data.Columns)
				data.Columns = append(data.Columns, k)
			}
		}
	}

	for _, r := range records {
		row := make([]any, len(data.Columns))
		for _, k := range r.Keys {
			row[index[k]] = r.Values[k]
		}

		data.Rows = append(data.Rows, row)
	}

	return data
}

func decodeValue(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '{', '[':
		var b bytes.Buffer
		if err := json.Compact(&b, trimmed); err != nil {
			return nil, err
		}
		return b.String(), nil

	default:
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()

		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}

		return domain.Normalize(v), nil
	}
}
